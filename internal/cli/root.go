package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tengjizhang/feedexec/internal/config"
	"github.com/tengjizhang/feedexec/internal/logger"
)

// Execute runs the root command with a context canceled on SIGINT/SIGTERM.
func Execute() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return NewRootCmd().ExecuteContext(ctx)
}

func NewRootCmd() *cobra.Command {
	var envFile string
	var configPath string
	var opmlPath string
	var logLevel string
	var strict bool
	var timestamp int64
	var appOpts AppOptions
	var report bool

	cmd := &cobra.Command{
		Use:   "feedexec",
		Short: "Run a command for every new RSS item",
		Long: `feedexec fetches the configured RSS feeds once, keeps the items published
after the cutoff timestamp (and matching a keyword, when keywords are set)
and runs the configured command for each of them. #TITLE and #LINK in the
command arguments are replaced by the item's title and link.

Configuration is read from the environment (urls, cmd, args, keywords,
timestamp), after loading an optional .env file:

  urls='["https://example.com/rss"]' timestamp=1700000000 \
    cmd=notify-send args='["#TITLE", "#LINK"]' feedexec`,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts := config.Options{
				EnvFile:    envFile,
				ConfigPath: configPath,
				OPML:       opmlPath,
				LogLevel:   logLevel,
			}
			if cmd.Flags().Changed("timestamp") {
				opts.Timestamp = &timestamp
			}
			if cmd.Flags().Changed("strict") {
				opts.Strict = &strict
			}

			cfg, err := config.Load(opts)
			if err != nil {
				return err
			}
			if err := logger.InitWithWriter(logger.Config{Level: cfg.LogLevel, File: cfg.LogFile}, cmd.ErrOrStderr()); err != nil {
				return err
			}
			defer logger.Sync()

			stats, err := NewApp(cfg, cmd.OutOrStdout(), appOpts).Run(cmd.Context())
			if report && err == nil {
				if appOpts.JSON {
					return writeJSON(cmd.ErrOrStderr(), stats)
				}
				writeReportTable(cmd.ErrOrStderr(), stats)
			}
			return err
		},
	}

	cmd.Flags().StringVar(&envFile, "env-file", ".env", "Environment file loaded before reading variables (ignored if missing)")
	cmd.Flags().StringVar(&configPath, "config", "", "TOML config file (default $XDG_CONFIG_HOME/feedexec/config.toml)")
	cmd.Flags().StringVar(&opmlPath, "opml", "", "OPML file or URL whose feeds are fetched after urls")
	cmd.Flags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	cmd.Flags().BoolVar(&strict, "strict", false, "Abort on items without a valid pubDate, or without a title when keywords are set")
	cmd.Flags().Int64Var(&timestamp, "timestamp", 0, "Override the cutoff (Unix seconds)")
	cmd.Flags().BoolVar(&appOpts.DryRun, "dry-run", false, "List matching items instead of running the command")
	cmd.Flags().BoolVar(&appOpts.JSON, "json", false, "JSON output for --dry-run and --report")
	cmd.Flags().BoolVar(&report, "report", false, "Print a per-feed summary to stderr after the run")

	return cmd
}
