package process

import (
	"bufio"
	"io"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/awnumar/memguard"
)

func requireUnix(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("tests require sh/sleep on Unix-like systems")
	}
}

func TestSpawnEmptyCommand(t *testing.T) {
	if _, err := Spawn(Spec{Profile: "p", Command: "   "}); err != ErrEmptyCommand {
		t.Fatalf("expected ErrEmptyCommand, got %v", err)
	}
}

func TestSpawnCapturesStdoutStderr(t *testing.T) {
	requireUnix(t)
	h, err := Spawn(Spec{Profile: "p", Command: "sh -c 'echo out; echo err 1>&2'"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	outB, _ := io.ReadAll(h.Stdout())
	errB, _ := io.ReadAll(h.Stderr())
	if err := h.Wait(); err != nil {
		t.Fatalf("wait: %v", err)
	}
	if !strings.Contains(string(outB), "out") {
		t.Fatalf("stdout missing content: %q", string(outB))
	}
	if !strings.Contains(string(errB), "err") {
		t.Fatalf("stderr missing content: %q", string(errB))
	}
}

func TestSpawnShellPipeline(t *testing.T) {
	requireUnix(t)
	h, err := Spawn(Spec{Profile: "p", Command: "printf 'a\\nb\\nc\\n' | wc -l"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	b, _ := io.ReadAll(h.Stdout())
	_ = h.Wait()
	if strings.TrimSpace(string(b)) != "3" {
		t.Fatalf("pipeline not interpreted by shell: %q", string(b))
	}
}

func TestSpawnWorkDirAndEnv(t *testing.T) {
	requireUnix(t)
	dir := t.TempDir()
	h, err := Spawn(Spec{Profile: "p", Command: "sh -c 'pwd; echo $FOO'", WorkDir: dir, Env: []string{"FOO=bar"}})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	b, _ := io.ReadAll(h.Stdout())
	_ = h.Wait()
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	if len(lines) != 2 || lines[1] != "bar" {
		t.Fatalf("unexpected output: %q", string(b))
	}
	if !strings.HasSuffix(lines[0], strings.TrimPrefix(dir, "/private")) && lines[0] != dir {
		t.Fatalf("workdir not applied: %q want %q", lines[0], dir)
	}
}

func TestTerminateEscalation(t *testing.T) {
	requireUnix(t)
	h, err := Spawn(Spec{Profile: "p", Command: "sleep 30"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- h.Wait() }()
	if err := h.Terminate(); err != nil {
		t.Fatalf("terminate: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		_ = h.Kill()
		t.Fatalf("process ignored SIGTERM")
	}
}

func TestKill(t *testing.T) {
	requireUnix(t)
	// The group-wide SIGTERM still reaches the sleep child, so the shell has
	// to outlive it: it ignores TERM and respawns sleep until SIGKILL wins.
	h, err := Spawn(Spec{Profile: "p", Command: "sh -c 'trap \"\" TERM; while :; do sleep 1; done'"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	done := make(chan error, 1)
	go func() { done <- h.Wait() }()
	_ = h.Terminate()
	select {
	case <-done:
		t.Fatalf("SIGTERM should have been trapped")
	case <-time.After(300 * time.Millisecond):
	}
	if err := h.Kill(); err != nil {
		t.Fatalf("kill: %v", err)
	}
	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatalf("process survived SIGKILL")
	}
}

func TestWritePasswordReachesStdin(t *testing.T) {
	requireUnix(t)
	h, err := Spawn(Spec{Profile: "p", Command: "head -n 1", WantStdin: true})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	secret := memguard.NewBufferFromBytes([]byte("s3cret"))
	if err := h.WritePassword(secret); err != nil {
		t.Fatalf("write password: %v", err)
	}
	r := bufio.NewReader(h.Stdout())
	line, _ := r.ReadString('\n')
	_ = h.Wait()
	if strings.TrimSpace(line) != "s3cret" {
		t.Fatalf("stdin delivery broken: %q", line)
	}
}

func TestWritePasswordWithoutPipe(t *testing.T) {
	requireUnix(t)
	h, err := Spawn(Spec{Profile: "p", Command: "true"})
	if err != nil {
		t.Fatalf("spawn: %v", err)
	}
	defer func() { _ = h.Wait() }()
	secret := memguard.NewBufferFromBytes([]byte("x"))
	if err := h.WritePassword(secret); err == nil {
		t.Fatalf("expected error when stdin pipe absent")
	}
}

func TestIsSudoCommand(t *testing.T) {
	cases := map[string]bool{
		"sudo systemctl start foo":     true,
		"/usr/bin/sudo ls":             true,
		"echo sudo":                    false,
		"sudoedit /etc/hosts":          false,
		"":                             false,
		"  sudo -S apt-get update -y ": true,
	}
	for cmd, want := range cases {
		if got := IsSudoCommand(cmd); got != want {
			t.Fatalf("IsSudoCommand(%q)=%v want %v", cmd, got, want)
		}
	}
}

func TestEnsureSudoStdinFlag(t *testing.T) {
	cases := map[string]string{
		"sudo systemctl start foo": "sudo -S systemctl start foo",
		"sudo -S ls":               "sudo -S ls",
		"sudo --stdin ls":          "sudo --stdin ls",
		"sudo --askpass ls":        "sudo --askpass ls",
		"sudo":                     "sudo -S",
		"ls -la":                   "ls -la",
	}
	for in, want := range cases {
		if got := EnsureSudoStdinFlag(in); got != want {
			t.Fatalf("EnsureSudoStdinFlag(%q)=%q want %q", in, got, want)
		}
	}
}

func TestBuildCommandShapes(t *testing.T) {
	requireUnix(t)
	direct := buildCommand("echo hello")
	if strings.Contains(direct.Path, "sh") {
		t.Fatalf("simple commands must not be shell-wrapped: %v", direct.Args)
	}
	wrapped := buildCommand("echo a && echo b")
	if wrapped.Args[0] != "/bin/sh" || wrapped.Args[1] != "-c" {
		t.Fatalf("metacharacter command not shell-wrapped: %v", wrapped.Args)
	}
	explicit := buildCommand("sh -c 'echo hi'")
	if explicit.Args[len(explicit.Args)-1] != "echo hi" {
		t.Fatalf("explicit shell double-wrapped: %v", explicit.Args)
	}
}
