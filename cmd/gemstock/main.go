// Command gemstock loads gem inventory files from the command line.
package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/JonMunkholm/gemstock/internal/config"
	"github.com/JonMunkholm/gemstock/internal/core"
	"github.com/JonMunkholm/gemstock/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, styleError.Render("error: "+errorText(err)))
		os.Exit(1)
	}
}

// errorText is what a failed command prints. Errors with a known message
// get the same wording and code the web UI shows, then the technical text.
func errorText(err error) string {
	if !core.IsUserFacing(err) {
		return err.Error()
	}
	return core.FormatUserError(err) + "\n  " + err.Error()
}

// cli carries the configuration shared by every subcommand.
type cli struct {
	cfg *config.Config

	logLevel    string
	logFormat   string
	envFile     string
	driver      string
	sqlitePath  string
	databaseURL string
}

func newRootCmd() *cobra.Command {
	c := &cli{}

	root := &cobra.Command{
		Use:           "gemstock",
		Short:         "Bulk load gem inventory files",
		Long:          "Validate and load gem inventory CSV or Excel files into the stock database.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load(cmd)
		},
	}

	root.PersistentFlags().StringVar(&c.logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	root.PersistentFlags().StringVar(&c.logFormat, "log-format", "text", "log format: text or json")
	root.PersistentFlags().StringVar(&c.envFile, "env-file", ".env", "load environment variables from this file if it exists")
	root.PersistentFlags().StringVar(&c.driver, "driver", "", "store driver: postgres or sqlite (default from STORE_DRIVER)")
	root.PersistentFlags().StringVar(&c.sqlitePath, "sqlite", "", "SQLite database file; implies --driver sqlite")
	root.PersistentFlags().StringVar(&c.databaseURL, "database-url", "", "PostgreSQL connection string; implies --driver postgres")

	root.AddCommand(
		c.ingestCmd(),
		c.validateCmd(),
		c.templateCmd(),
		c.migrateCmd(),
		c.watchCmd(),
		c.historyCmd(),
	)

	return root
}

// load reads the environment, applies the flags and sets up logging on stderr
// so reports on stdout stay clean.
func (c *cli) load(cmd *cobra.Command) error {
	if c.envFile != "" {
		if err := godotenv.Load(c.envFile); err != nil && cmd.Flags().Changed("env-file") {
			return fmt.Errorf("load %s: %w", c.envFile, err)
		}
	}

	cfg, err := config.FromEnv()
	if err != nil {
		return err
	}

	switch {
	case c.sqlitePath != "":
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.SQLitePath = c.sqlitePath
	case c.databaseURL != "":
		cfg.Database.Driver = config.DriverPostgres
		cfg.Database.URL = c.databaseURL
	}
	if c.driver != "" {
		cfg.Database.Driver = c.driver
	}
	if os.Getenv("LOG_LEVEL") == "" || cmd.Flags().Changed("log-level") {
		cfg.Logging.Level = c.logLevel
	}
	if os.Getenv("LOG_FORMAT") == "" || cmd.Flags().Changed("log-format") {
		cfg.Logging.Format = c.logFormat
	}

	slog.SetDefault(logging.New(cmd.ErrOrStderr(), cfg.Logging.Level, cfg.Logging.Format))
	c.cfg = cfg
	return nil
}

// validated returns the configuration after checking it. Commands that open
// the store call it; template and validate work without a database.
func (c *cli) validated() (*config.Config, error) {
	if err := c.cfg.Validate(); err != nil {
		return nil, err
	}
	return c.cfg, nil
}

func closeQuietly(c io.Closer) {
	if err := c.Close(); err != nil {
		slog.Warn("close failed", "error", err)
	}
}
