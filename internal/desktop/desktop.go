// Package desktop writes freedesktop launcher entries so a profile can be
// started from the applications menu or on session login.
package desktop

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/allenguarnes/givetray/internal/config"
)

const appName = "givetray"

// Entry describes one launcher file.
type Entry struct {
	Profile   string
	ExecPath  string
	IconPath  string
	Autostart bool
}

// FileName returns the launcher file name for a profile.
func FileName(profile string) string {
	return appName + "_" + config.SanitizeProfileName(profile) + ".desktop"
}

// ApplicationsPath is the menu launcher location for the profile.
func ApplicationsPath(profile string) (string, error) {
	base := os.Getenv("XDG_DATA_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home dir: %w", err)
		}
		base = filepath.Join(home, ".local", "share")
	}
	return filepath.Join(base, "applications", FileName(profile)), nil
}

// AutostartPath is the session autostart location for the profile.
func AutostartPath(profile string) (string, error) {
	base, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config dir: %w", err)
	}
	return filepath.Join(base, "autostart", FileName(profile)), nil
}

// Render produces the desktop entry contents.
func Render(e Entry) string {
	var b strings.Builder
	b.WriteString("[Desktop Entry]\n")
	b.WriteString("Type=Application\n")
	fmt.Fprintf(&b, "Name=%s (%s)\n", config.SanitizeProfileName(e.Profile), appName)
	// The binary supervises via the run subcommand; a bare invocation only
	// prints usage.
	fmt.Fprintf(&b, "Exec=%s run -c %s\n", escapeArg(e.ExecPath), escapeArg(e.Profile))
	if e.IconPath != "" {
		fmt.Fprintf(&b, "Icon=%s\n", e.IconPath)
	}
	b.WriteString("Terminal=false\n")
	b.WriteString("Categories=Utility;\n")
	if e.Autostart {
		b.WriteString("X-GNOME-Autostart-enabled=true\n")
	}
	return b.String()
}

// escapeArg applies the Exec key quoting rules: '%' doubles everywhere, and
// values containing whitespace, quotes or backslashes are wrapped in double
// quotes with inner quotes and backslashes escaped.
func escapeArg(value string) string {
	percentEscaped := strings.ReplaceAll(value, "%", "%%")
	needsQuotes := strings.ContainsFunc(value, func(r rune) bool {
		return unicode.IsSpace(r) || r == '"' || r == '\\'
	})
	if !needsQuotes {
		return percentEscaped
	}
	var b strings.Builder
	b.WriteByte('"')
	for _, r := range percentEscaped {
		if r == '"' || r == '\\' {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	b.WriteByte('"')
	return b.String()
}

// WriteFile renders e and writes it to path, creating parent directories.
func WriteFile(e Entry, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create desktop dir: %w", err)
	}
	if err := os.WriteFile(path, []byte(Render(e)), 0o644); err != nil {
		return fmt.Errorf("write desktop file: %w", err)
	}
	return nil
}

// Install writes the launcher to its standard location. With e.Autostart set
// it targets the autostart directory, otherwise the applications menu.
func Install(e Entry) (string, error) {
	var (
		path string
		err  error
	)
	if e.Autostart {
		path, err = AutostartPath(e.Profile)
	} else {
		path, err = ApplicationsPath(e.Profile)
	}
	if err != nil {
		return "", err
	}
	if err := WriteFile(e, path); err != nil {
		return "", err
	}
	return path, nil
}

// Remove deletes the launcher at its standard location. A missing file is not
// an error.
func Remove(profile string, autostart bool) error {
	var (
		path string
		err  error
	)
	if autostart {
		path, err = AutostartPath(profile)
	} else {
		path, err = ApplicationsPath(profile)
	}
	if err != nil {
		return err
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("remove desktop file: %w", err)
	}
	return nil
}

// Installed reports whether the launcher file exists at its standard location.
func Installed(profile string, autostart bool) bool {
	var (
		path string
		err  error
	)
	if autostart {
		path, err = AutostartPath(profile)
	} else {
		path, err = ApplicationsPath(profile)
	}
	if err != nil {
		return false
	}
	_, statErr := os.Stat(path)
	return statErr == nil
}
