package cmd

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/teemow/inbleach/internal/config"
	"github.com/teemow/inbleach/internal/logging"
)

var (
	// v holds defaults, the config file, INBLEACH_* env vars and bound flags
	v       = config.New()
	cfgFile string

	// cfg and logger are ready once PersistentPreRunE has run
	cfg    *config.Config
	logger *slog.Logger
)

// rootCmd represents the base command for the inbleach application
var rootCmd = &cobra.Command{
	Use:   "inbleach",
	Short: "Unsubscribes you from marketing email in Gmail",
	Long: `inbleach finds the unsubscribe link of promotional Gmail messages and
follows it for you.

It can run as:
  - An HTTP API with a Google OAuth login flow (serve, the default)
  - A one-shot command line sweep over recent mail (sweep)`,
	SilenceUsage:      true,
	PersistentPreRunE: initConfig,
}

// version will be set by main
var version = "dev"

// SetVersion sets the version for the root command
func SetVersion(v string) {
	version = v
	rootCmd.Version = v
}

// Execute is the main entry point for the CLI application
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "inbleach version %s\n" .Version}}`)

	// If no subcommand is provided, run the API server by default
	if len(os.Args) == 1 {
		os.Args = append(os.Args, "serve")
	}

	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfgFile, "config", "", "Config file (default: ./inbleach.yaml or $HOME/.config/inbleach/inbleach.yaml)")
	flags.String("log-level", "info", "Log level: debug, info, warn or error")
	flags.String("log-format", logging.FormatText, "Log format: text or json")
	flags.String("credentials-file", "", "Google OAuth client secret JSON file")
	flags.String("token-store", "", "Where CLI credentials are kept: file or keyring")
	flags.String("token-file", "", "Token file (file store) or encrypted fallback directory (keyring store)")
	mustBind(flags, map[string]string{
		"log.level":               "log-level",
		"log.format":              "log-format",
		"google.credentials_file": "credentials-file",
		"google.token_store":      "token-store",
		"google.token_file":       "token-file",
	})

	rootCmd.AddCommand(newServeCmd())
	rootCmd.AddCommand(newSweepCmd())
	rootCmd.AddCommand(newLoginCmd())
	rootCmd.AddCommand(newLogoutCmd())
	rootCmd.AddCommand(newVersionCmd())
}

// initConfig reads the config file and builds cfg and logger
func initConfig(cmd *cobra.Command, _ []string) error {
	used, err := config.ReadFile(v, cfgFile)
	if err != nil {
		return err
	}

	cfg, err = config.Load(v)
	if err != nil {
		return err
	}

	logger, err = logging.New(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	if used != "" {
		logger.Debug("loaded config file", "path", used)
	}
	return nil
}

// mustBind binds flags to viper keys. Unknown flag names are programming
// errors.
func mustBind(flags *pflag.FlagSet, keys map[string]string) {
	for key, name := range keys {
		if err := bindFlag(v, key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}
}

func bindFlag(v *viper.Viper, key string, flag *pflag.Flag) error {
	if flag == nil {
		return fmt.Errorf("no flag for config key %s", key)
	}
	return v.BindPFlag(key, flag)
}
