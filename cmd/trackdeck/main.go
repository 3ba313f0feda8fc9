package main

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
)

func main() {
	if err := buildRoot().Execute(); err != nil {
		_, _ = fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// buildRoot creates the command tree.
func buildRoot() *cobra.Command {
	globalFlags := &GlobalFlags{}
	root := createRootCommand(globalFlags)
	cmd := command{flags: globalFlags, sessions: NewSessionManager()}

	root.AddCommand(
		createServeCommand(globalFlags),
		createStatusCommand(cmd),
		createStartCommand(cmd),
		createStopCommand(cmd),
		createLogsCommand(cmd),
		createRemoteCheckCommand(cmd),
		createKeepaliveCommand(cmd),
		createSettingsCommand(cmd),
		createLoginCommand(cmd),
		createLogoutCommand(cmd),
		createHashPasswordCommand(),
	)
	return root
}

func createRootCommand(flags *GlobalFlags) *cobra.Command {
	root := &cobra.Command{
		Use:   "trackdeck",
		Short: "Operator dashboard for a tracker script and its notifier server",
		Long: `Trackdeck supervises a tracker script and a notifier server, streams their
logs to browsers over WebSocket and keeps the hosting platform awake while
the tracker runs.

Examples:
  trackdeck serve --config trackdeck.toml
  trackdeck start --role tracker
  trackdeck logs --source bark
  trackdeck settings set BARK_SERVER=https://bark.example.com`,
		SilenceUsage: true,
	}
	root.PersistentFlags().StringVar(&flags.ConfigPath, "config", "", "path to TOML config file (optional)")
	root.PersistentFlags().StringVar(&flags.APIUrl, "api-url", "http://localhost:6060/api", "daemon API base URL")
	root.PersistentFlags().DurationVar(&flags.APITimeout, "api-timeout", 15*time.Second, "daemon API request timeout")
	root.PersistentFlags().StringVar(&flags.Token, "token", "", "bearer token (defaults to the stored login session)")
	return root
}

func createServeCommand(globalFlags *GlobalFlags) *cobra.Command {
	serveFlags := &ServeFlags{}
	cmd := &cobra.Command{
		Use:   "serve [config.toml]",
		Short: "Run the dashboard daemon",
		Long: `Run the dashboard daemon: HTTP API, WebSocket live channel and the
supervised children. Children are started on request unless --start names them.

Examples:
  trackdeck serve
  trackdeck serve trackdeck.toml --start tracker,notifier`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := globalFlags.ConfigPath
			if len(args) == 1 {
				path = args[0]
			}
			return runServe(cmd.Context(), path, *serveFlags)
		},
	}
	cmd.Flags().StringSliceVar(&serveFlags.Start, "start", nil, "roles to start once the daemon is up (tracker, notifier)")
	return cmd
}

func createStatusCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show tracker, notifier and keepalive status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Status(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createStartCommand(c command) *cobra.Command {
	f := &ControlFlags{}
	cmd := &cobra.Command{
		Use:   "start",
		Short: "Start the tracker or the notifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Start(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Role, "role", "tracker", "role to start (tracker, notifier)")
	return cmd
}

func createStopCommand(c command) *cobra.Command {
	f := &ControlFlags{}
	cmd := &cobra.Command{
		Use:   "stop",
		Short: "Send the stop signal to the tracker or the notifier",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Stop(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Role, "role", "tracker", "role to stop (tracker, notifier)")
	return cmd
}

func createLogsCommand(c command) *cobra.Command {
	f := &LogsFlags{}
	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Print a full persisted log",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Logs(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Source, "source", "tracker", "log source (tracker, bark, remote)")
	return cmd
}

func createRemoteCheckCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "remote-check",
		Short: "Probe the remote notifier server named by BARK_SERVER",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.RemoteCheck(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createKeepaliveCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "keepalive",
		Short: "Show the keepalive loop status",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Keepalive(cmd.Context(), cmd.OutOrStdout())
		},
	}
}

func createSettingsCommand(c command) *cobra.Command {
	settings := &cobra.Command{
		Use:   "settings",
		Short: "Read or change the runtime settings passed to the children",
	}
	settings.AddCommand(
		&cobra.Command{
			Use:   "get",
			Short: "Show the operator-visible settings",
			RunE: func(cmd *cobra.Command, _ []string) error {
				return c.SettingsGet(cmd.Context(), cmd.OutOrStdout())
			},
		},
		&cobra.Command{
			Use:   "set KEY=VALUE...",
			Short: "Update settings; they apply the next time the tracker starts",
			Args:  cobra.MinimumNArgs(1),
			RunE: func(cmd *cobra.Command, args []string) error {
				return c.SettingsSet(cmd.Context(), cmd.OutOrStdout(), args)
			},
		},
	)
	return settings
}

func createLoginCommand(c command) *cobra.Command {
	f := &LoginFlags{}
	cmd := &cobra.Command{
		Use:   "login",
		Short: "Log in to a daemon with auth enabled and store the token",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.Login(cmd.Context(), cmd.OutOrStdout(), *f)
		},
	}
	cmd.Flags().StringVar(&f.Username, "username", "", "operator username")
	cmd.Flags().StringVar(&f.Password, "password", "", "operator password")
	_ = cmd.MarkFlagRequired("username")
	_ = cmd.MarkFlagRequired("password")
	return cmd
}

func createLogoutCommand(c command) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored login session",
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := c.sessions.ClearSession(); err != nil {
				return err
			}
			_, _ = fmt.Fprintln(cmd.OutOrStdout(), "logged out")
			return nil
		},
	}
}

func createHashPasswordCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "hash-password PASSWORD",
		Short: "Print a bcrypt hash for [auth] password_hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmdHashPassword(cmd.OutOrStdout(), args[0])
		},
	}
}
