package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestSanitizeProfileName(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"work", "work"},
		{"Work-VPN_2", "Work-VPN_2"},
		{"my profile", "my_profile"},
		{"a/b\\c", "a_b_c"},
		{"über", "_ber"},
		{"", "default"},
		{"...", "___"},
	}
	for _, c := range cases {
		if got := SanitizeProfileName(c.in); got != c.want {
			t.Errorf("SanitizeProfileName(%q) = %q, want %q", c.in, got, c.want)
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := Default("demo")
	if cfg.Command != DefaultCommand {
		t.Fatalf("command = %q", cfg.Command)
	}
	if cfg.Profile != "demo" {
		t.Fatalf("profile = %q", cfg.Profile)
	}
	if cfg.History.Driver != "sqlite" || !cfg.History.Enabled {
		t.Fatalf("history defaults = %+v", cfg.History)
	}
}

func TestSaveAndLoadRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	in := Default("demo")
	in.Command = "openvpn --config work.ovpn"
	in.WorkDir = "/etc/openvpn"
	in.Env = []string{"LANG=C"}
	in.Autostart = true
	in.IconPath = "/usr/share/icons/net.png"
	in.LogToFile = true
	in.LogFilePath = "/tmp/demo.log"
	in.Log.MaxSizeMB = 25
	in.History.Driver = "postgres"
	in.History.DSN = "postgres://app@localhost/runs"

	if err := SavePath(in, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	out, err := LoadPath("demo", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if out.Command != in.Command || out.WorkDir != in.WorkDir {
		t.Fatalf("command/workdir mismatch: %+v", out)
	}
	if !out.Autostart || !out.LogToFile {
		t.Fatalf("bool fields lost: %+v", out)
	}
	if out.IconPath != in.IconPath || out.LogFilePath != in.LogFilePath {
		t.Fatalf("path fields mismatch: %+v", out)
	}
	if out.Log.MaxSizeMB != 25 {
		t.Fatalf("rotation mismatch: %+v", out.Log)
	}
	if out.History.Driver != "postgres" || out.History.DSN != in.History.DSN {
		t.Fatalf("history mismatch: %+v", out.History)
	}
	if len(out.Env) != 1 || out.Env[0] != "LANG=C" {
		t.Fatalf("env mismatch: %v", out.Env)
	}
}

func TestLoadCorruptFileFallsBack(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	if err := os.WriteFile(path, []byte("command = [not toml"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadPath("demo", path)
	if err == nil {
		t.Fatal("expected a parse error")
	}
	if cfg.Command != DefaultCommand {
		t.Fatalf("fallback command = %q", cfg.Command)
	}
}

func TestLoadBlankCommandGetsDefault(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	if err := os.WriteFile(path, []byte("command = \"  \"\n"), 0o644); err != nil {
		t.Fatal(err)
	}
	cfg, err := LoadPath("demo", path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Command != DefaultCommand {
		t.Fatalf("command = %q", cfg.Command)
	}
}

func TestSavedFileNeverHoldsSecrets(t *testing.T) {
	path := filepath.Join(t.TempDir(), "demo.toml")
	cfg := Default("demo")
	cfg.Command = "sudo openvpn --config work.ovpn"
	if err := SavePath(cfg, path); err != nil {
		t.Fatalf("save: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	for _, word := range []string{"password", "secret"} {
		if strings.Contains(strings.ToLower(string(data)), word) {
			t.Fatalf("config file mentions %q: %s", word, data)
		}
	}
}

func TestSinkConfig(t *testing.T) {
	cfg := Default("demo")
	cfg.LogFilePath = "/tmp/x.log"
	cfg.Log = RotationConfig{MaxSizeMB: 5, MaxBackups: 2, MaxAgeDays: 1, Compress: true}
	sc := cfg.SinkConfig()
	if sc.Path != "/tmp/x.log" || sc.MaxSizeMB != 5 || sc.MaxBackups != 2 || sc.MaxAgeDays != 1 || !sc.Compress {
		t.Fatalf("sink config = %+v", sc)
	}
}
