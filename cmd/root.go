// -- cmd/root.go --
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/xkilldash9x/vulncorr/internal/config"
	"github.com/xkilldash9x/vulncorr/internal/observability"
)

type contextKey string

const configKey contextKey = "config"

// flagKeys maps command line flags onto the configuration keys they override.
// A flag only takes effect when it is set explicitly.
var flagKeys = map[string]string{
	"results-dir":        "scan.results_dir",
	"output-dir":         "report.output_dir",
	"top":                "report.top_n",
	"formats":            "report.formats",
	"severity-threshold": "correlation.severity_threshold",
	"log-level":          "logger.level",
	"log-format":         "logger.format",
}

// NewRootCommand builds a fresh command tree. Each call returns an
// independent instance so that tests never share flag state.
func NewRootCommand() *cobra.Command {
	var cfgFile string

	rootCmd := &cobra.Command{
		Use:   "vulncorr",
		Short: "vulncorr correlates and deduplicates findings from multiple security scanners.",
		Long: `vulncorr reads the JSON and SARIF output of container, dependency, Dockerfile
and source code scanners, normalizes their severities, merges findings that
describe the same underlying issue, and writes prioritized reports.`,
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			v := viper.New()
			config.SetDefaults(v)

			if err := initializeConfig(cmd, v, cfgFile); err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "vulncorr"})
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("failed to initialize configuration: %w", err)}
			}

			cfg, err := config.NewConfigFromViper(v)
			if err != nil {
				observability.InitializeLogger(config.LoggerConfig{Level: "info", Format: "console", ServiceName: "vulncorr"})
				return &ExitError{Code: ExitFatal, Err: fmt.Errorf("failed to load or validate config: %w", err)}
			}

			observability.InitializeLogger(cfg.Logger())
			observability.GetLogger().Debug("Starting vulncorr", zap.String("version", Version))

			cmd.SetContext(context.WithValue(cmd.Context(), configKey, cfg))
			return nil
		},
	}

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file (default is ./vulncorr.yaml)")
	rootCmd.PersistentFlags().String("log-level", "", "log level (debug, info, warn, error)")
	rootCmd.PersistentFlags().String("log-format", "", "log format (console or json)")
	rootCmd.SetVersionTemplate(`{{printf "%s version %s\n" .Name .Version}}`)

	rootCmd.AddCommand(newCorrelateCmd())
	rootCmd.AddCommand(newSARIFCmd())
	rootCmd.AddCommand(newConfigCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

// Execute runs the command tree and returns the process exit code.
func Execute(ctx context.Context) int {
	defer observability.Sync()

	err := NewRootCommand().ExecuteContext(ctx)
	if err == nil {
		return ExitOK
	}

	code := ExitFatal
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		code = exitErr.Code
	}

	logger := observability.GetLogger()
	switch {
	case errors.Is(err, context.Canceled):
		logger.Warn("Run aborted.", zap.Error(err))
	case code == ExitEscalation:
		logger.Warn("Escalation threshold reached.", zap.Error(err))
	default:
		logger.Error("Command execution failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, "Error:", err)
	}
	return code
}

// initializeConfig reads the config file and environment into v and binds
// the invoked command's flags.
func initializeConfig(cmd *cobra.Command, v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		v.SetConfigName("vulncorr")
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix("VULNCORR")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// Only the implicit ./vulncorr.yaml is optional.
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("error reading config file: %w", err)
		}
	}

	for name, key := range flagKeys {
		flag := cmd.Flags().Lookup(name)
		if flag == nil || !flag.Changed {
			continue
		}
		if err := v.BindPFlag(key, flag); err != nil {
			return fmt.Errorf("failed to bind flag --%s: %w", name, err)
		}
	}
	return nil
}

// getConfigFromContext returns the configuration stored by PersistentPreRunE.
func getConfigFromContext(ctx context.Context) (config.Interface, error) {
	cfg, ok := ctx.Value(configKey).(config.Interface)
	if !ok || cfg == nil {
		return nil, &ExitError{Code: ExitFatal, Err: errors.New("configuration not found in command context")}
	}
	return cfg, nil
}
