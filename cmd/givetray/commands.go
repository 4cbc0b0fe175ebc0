package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/allenguarnes/givetray/internal/config"
	"github.com/allenguarnes/givetray/internal/desktop"
	"github.com/allenguarnes/givetray/internal/history"
	"github.com/allenguarnes/givetray/internal/history/factory"
	"github.com/allenguarnes/givetray/internal/logger"
	"github.com/allenguarnes/givetray/internal/manager"
	"github.com/allenguarnes/givetray/internal/metrics"
	"github.com/allenguarnes/givetray/internal/process"
	"github.com/allenguarnes/givetray/internal/server"
	"github.com/allenguarnes/givetray/internal/supervisor"
)

func buildRoot() *cobra.Command {
	root := &cobra.Command{
		Use:           "givetray",
		Short:         "Per-profile command supervisor with log capture",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newRunCmd(),
		newStartCmd(),
		newStopCmd(),
		newStatusCmd(),
		newLogsCmd(),
		newHistoryCmd(),
		newDesktopFileCmd(),
	)
	return root
}

func addClientFlags(cmd *cobra.Command, f *ClientFlags) {
	cmd.Flags().StringVarP(&f.Profile, "profile", "c", "default", "profile name")
	cmd.Flags().StringVar(&f.APIUrl, "api-url", "", "base URL of a running instance")
	cmd.Flags().DurationVar(&f.APITimeout, "api-timeout", 10*time.Second, "API request timeout")
}

// startOptionsFor builds start options from a profile config. The result
// never carries a password; callers that may legitimately prompt attach one
// separately.
func startOptionsFor(cfg config.ProfileConfig) supervisor.StartOptions {
	return supervisor.StartOptions{
		Command:   cfg.Command,
		WorkDir:   cfg.WorkDir,
		Env:       cfg.Env,
		LogToFile: cfg.LogToFile,
		LogFile:   cfg.SinkConfig(),
	}
}

// promptSudoPassword asks for the sudo password on the controlling terminal.
// Non-sudo commands need no password and return nil. Without a terminal the
// start is refused rather than left hanging on a prompt nobody can answer.
func promptSudoPassword(profile, command string) (*memguard.LockedBuffer, error) {
	if !process.IsSudoCommand(command) {
		return nil, nil
	}
	fd := int(os.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return nil, fmt.Errorf("profile %s runs sudo but stdin is not a terminal", profile)
	}
	fmt.Fprintf(os.Stderr, "sudo password for profile %s: ", profile)
	raw, err := term.ReadPassword(fd)
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return nil, fmt.Errorf("read password: %w", err)
	}
	if len(raw) == 0 {
		return nil, fmt.Errorf("empty password for profile %s", profile)
	}
	// NewBufferFromBytes wipes raw after copying it into locked memory.
	return memguard.NewBufferFromBytes(raw), nil
}

func newRunCmd() *cobra.Command {
	var f RunFlags
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Load a profile, serve the HTTP API and supervise its command",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(f)
		},
	}
	cmd.Flags().StringVarP(&f.Profile, "profile", "c", "default", "profile name")
	cmd.Flags().StringVar(&f.Listen, "listen", "", "HTTP listen address (overrides config)")
	cmd.Flags().StringVar(&f.LogLevel, "log-level", "info", "log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&f.NoColor, "no-color", false, "disable colored log output")
	cmd.Flags().BoolVar(&f.NoServe, "no-serve", false, "supervise without the HTTP API")
	return cmd
}

func runServe(f RunFlags) error {
	log := logger.New(os.Stderr, logger.ParseLevel(f.LogLevel), !f.NoColor)
	slog.SetDefault(log)

	profile := config.SanitizeProfileName(f.Profile)
	cfg, err := config.LoadOrCreate(profile)
	if err != nil {
		log.Warn("profile config problem, using defaults", "profile", profile, "error", err)
	}

	metrics.Register(prometheus.DefaultRegisterer)

	var store history.Store
	if cfg.History.Enabled && cfg.History.DSN != "" {
		store, err = factory.NewStoreFromDSN(cfg.History.DSN)
		if err != nil {
			log.Warn("run history disabled", "error", err)
			store = nil
		}
	}

	var supOpts []supervisor.Option
	if store != nil {
		onStart, onStop := history.Callbacks(store, log)
		supOpts = append(supOpts, supervisor.WithHistory(onStart, onStop))
	}
	mgr := manager.New(log, manager.WithSupervisorOptions(supOpts...))

	resolve := func(p string) (supervisor.StartOptions, error) {
		pc, loadErr := config.LoadOrCreate(p)
		if loadErr != nil {
			return supervisor.StartOptions{}, loadErr
		}
		return startOptionsFor(pc), nil
	}

	listen := f.Listen
	if listen == "" {
		listen = cfg.Listen
	}
	var srv interface{ Close() error }
	if !f.NoServe {
		srv = server.NewServer(listen, "", mgr, resolve, store)
		log.Info("http api listening", "addr", listen)
	}

	if cfg.Autostart {
		opts := startOptionsFor(cfg)
		opts.SudoPassword, err = promptSudoPassword(profile, cfg.Command)
		if err != nil {
			log.Error("autostart refused", "profile", profile, "error", err)
		} else if err := mgr.Start(profile, opts); err != nil {
			log.Error("autostart failed", "error", err)
		}
	}

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	got := <-sig
	log.Info("shutting down", "signal", got.String())

	if srv != nil {
		_ = srv.Close()
	}
	mgr.Shutdown(10 * time.Second)
	if store != nil {
		_ = store.Close()
	}
	return nil
}

func newStartCmd() *cobra.Command {
	var f ClientFlags
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start a profile's command in a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			if err := client.Start(config.SanitizeProfileName(f.Profile)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "started profile %s\n", f.Profile)
			return nil
		},
	}
	addClientFlags(cmd, &f)
	return cmd
}

func newStopCmd() *cobra.Command {
	var f ClientFlags
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Stop a profile's command in a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			if err := client.Stop(config.SanitizeProfileName(f.Profile)); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "stopped profile %s\n", f.Profile)
			return nil
		},
	}
	addClientFlags(cmd, &f)
	return cmd
}

func newStatusCmd() *cobra.Command {
	var f ClientFlags
	var all bool
	cmd := &cobra.Command{
		Use:   "status",
		Short: "Show profile status from a running instance",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			out := cmd.OutOrStdout()
			if all {
				sts, err := client.StatusAll()
				if err != nil {
					return err
				}
				for _, st := range sts {
					printStatus(out, st)
				}
				return nil
			}
			st, err := client.Status(config.SanitizeProfileName(f.Profile))
			if err != nil {
				return err
			}
			printStatus(out, st)
			return nil
		},
	}
	addClientFlags(cmd, &f)
	cmd.Flags().BoolVar(&all, "all", false, "show every known profile")
	return cmd
}

func printStatus(out io.Writer, st supervisor.Status) {
	line := fmt.Sprintf("%-20s %-9s", st.Profile, st.State)
	if st.PID > 0 {
		line += fmt.Sprintf(" pid=%d", st.PID)
	}
	if st.ExitErr != "" {
		line += " exit=" + st.ExitErr
	}
	fmt.Fprintln(out, line)
}

func newLogsCmd() *cobra.Command {
	var f ClientFlags
	var clear bool
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show or clear a profile's buffered output",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			profile := config.SanitizeProfileName(f.Profile)
			if clear {
				if err := client.ClearLogs(profile); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "cleared logs for profile %s\n", profile)
				return nil
			}
			lines, err := client.Logs(profile)
			if err != nil {
				return err
			}
			for _, l := range lines {
				fmt.Fprintf(cmd.OutOrStdout(), "%s [%s] %s\n",
					l.Time.Format("15:04:05.000"), l.Stream, l.Text)
			}
			return nil
		},
	}
	addClientFlags(cmd, &f)
	cmd.Flags().BoolVar(&clear, "clear", false, "clear the buffer instead of printing it")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var f ClientFlags
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent runs of a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			client := NewAPIClient(f.APIUrl, f.APITimeout)
			recs, err := client.History(config.SanitizeProfileName(f.Profile), limit)
			if err != nil {
				return err
			}
			for _, r := range recs {
				line := fmt.Sprintf("%s pid=%d started=%s",
					r.Profile, r.PID, r.StartedAt.Format(time.RFC3339))
				if r.StoppedAt.Valid {
					line += " stopped=" + r.StoppedAt.Time.Format(time.RFC3339)
				}
				if r.ExitError.Valid {
					line += " exit=" + r.ExitError.String
				}
				fmt.Fprintln(cmd.OutOrStdout(), line)
			}
			return nil
		},
	}
	addClientFlags(cmd, &f)
	cmd.Flags().IntVar(&limit, "limit", 20, "maximum runs to show")
	return cmd
}

func newDesktopFileCmd() *cobra.Command {
	var f DesktopFileFlags
	cmd := &cobra.Command{
		Use:   "desktop-file",
		Short: "Write a desktop launcher for a profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			profile := config.SanitizeProfileName(f.Profile)
			cfg, err := config.LoadOrCreate(profile)
			if err != nil {
				return err
			}
			exe, err := os.Executable()
			if err != nil {
				return fmt.Errorf("resolve executable path: %w", err)
			}
			entry := desktop.Entry{
				Profile:   profile,
				ExecPath:  exe,
				IconPath:  cfg.IconPath,
				Autostart: f.Autostart,
			}
			var path string
			if f.OutputDir != "" {
				path = filepath.Join(f.OutputDir, desktop.FileName(profile))
				err = desktop.WriteFile(entry, path)
			} else {
				path, err = desktop.Install(entry)
			}
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "desktop file created: %s\n", path)
			return nil
		},
	}
	cmd.Flags().StringVarP(&f.Profile, "profile", "c", "default", "profile name")
	cmd.Flags().StringVar(&f.OutputDir, "output-dir", "", "write the launcher into this directory")
	cmd.Flags().BoolVar(&f.Autostart, "autostart", false, "install as a session autostart entry")
	return cmd
}
