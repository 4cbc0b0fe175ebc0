package desktop

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestFileName(t *testing.T) {
	if got := FileName("work vpn"); got != "givetray_work_vpn.desktop" {
		t.Fatalf("FileName = %q", got)
	}
	if got := FileName(""); got != "givetray_default.desktop" {
		t.Fatalf("FileName = %q", got)
	}
}

func TestRenderBasic(t *testing.T) {
	out := Render(Entry{Profile: "work", ExecPath: "/usr/bin/givetray"})
	for _, want := range []string{
		"[Desktop Entry]\n",
		"Type=Application\n",
		"Name=work (givetray)\n",
		"Exec=/usr/bin/givetray run -c work\n",
		"Terminal=false\n",
		"Categories=Utility;\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("entry missing %q:\n%s", want, out)
		}
	}
	if strings.Contains(out, "X-GNOME-Autostart-enabled") {
		t.Error("non-autostart entry carries autostart key")
	}
	if strings.Contains(out, "Icon=") {
		t.Error("entry has Icon line with no icon configured")
	}
}

func TestRenderAutostartAndIcon(t *testing.T) {
	out := Render(Entry{
		Profile:   "work",
		ExecPath:  "/usr/bin/givetray",
		IconPath:  "/usr/share/icons/tray.png",
		Autostart: true,
	})
	if !strings.Contains(out, "X-GNOME-Autostart-enabled=true\n") {
		t.Errorf("missing autostart key:\n%s", out)
	}
	if !strings.Contains(out, "Icon=/usr/share/icons/tray.png\n") {
		t.Errorf("missing icon line:\n%s", out)
	}
}

func TestEscapeArg(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"plain", "plain"},
		{"50%done", "50%%done"},
		{"with space", `"with space"`},
		{`has"quote`, `"has\"quote"`},
		{`back\slash`, `"back\\slash"`},
		{"space and %", `"space and %%"`},
	}
	for _, c := range cases {
		if got := escapeArg(c.in); got != c.want {
			t.Errorf("escapeArg(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestRenderEscapesExecPath(t *testing.T) {
	out := Render(Entry{Profile: "p", ExecPath: "/opt/my tray/givetray"})
	if !strings.Contains(out, `Exec="/opt/my tray/givetray" run -c p`) {
		t.Fatalf("exec path not quoted:\n%s", out)
	}
}

func TestWriteFileCreatesParents(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "apps", "givetray_work.desktop")
	e := Entry{Profile: "work", ExecPath: "/usr/bin/givetray"}
	if err := WriteFile(e, path); err != nil {
		t.Fatalf("write: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read back: %v", err)
	}
	if string(data) != Render(e) {
		t.Fatal("file contents differ from rendered entry")
	}
}

func TestInstallAndRemove(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())
	e := Entry{Profile: "work", ExecPath: "/usr/bin/givetray"}
	path, err := Install(e)
	if err != nil {
		t.Fatalf("install: %v", err)
	}
	if !Installed("work", false) {
		t.Fatal("launcher not reported installed")
	}
	if filepath.Base(path) != "givetray_work.desktop" {
		t.Fatalf("unexpected path %q", path)
	}
	if err := Remove("work", false); err != nil {
		t.Fatalf("remove: %v", err)
	}
	if Installed("work", false) {
		t.Fatal("launcher still reported installed")
	}
	// Removing twice stays quiet.
	if err := Remove("work", false); err != nil {
		t.Fatalf("second remove: %v", err)
	}
}
