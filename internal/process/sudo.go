package process

import (
	"path/filepath"
	"strings"
)

// IsSudoCommand reports whether the command's first token resolves to sudo,
// matching on the basename so "/usr/bin/sudo" counts too.
func IsSudoCommand(command string) bool {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return false
	}
	return filepath.Base(fields[0]) == "sudo"
}

// EnsureSudoStdinFlag injects -S after the sudo token unless the command
// already asks for stdin or askpass password delivery. The returned string is
// equivalent to invoking sudo -S, so the password can be written to the
// child's standard input.
func EnsureSudoStdinFlag(command string) string {
	fields := strings.Fields(command)
	if len(fields) == 0 || filepath.Base(fields[0]) != "sudo" {
		return command
	}
	for _, f := range fields[1:] {
		if f == "-S" || f == "--stdin" || f == "--askpass" {
			return command
		}
	}
	// Splice after the first token so quoting in the remainder stays intact.
	trim := strings.TrimLeft(command, " \t")
	i := strings.IndexAny(trim, " \t")
	if i < 0 {
		return trim + " -S"
	}
	return trim[:i] + " -S" + trim[i:]
}
