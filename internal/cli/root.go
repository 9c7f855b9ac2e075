package cli

import (
	"log/slog"
	"os"
	"strings"

	"cinematch-quiz-service/internal/config"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Execute runs the CLI.
func Execute() error {
	return newRootCmd().Execute()
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "cinematch-quiz-service",
		Short:        "Film taste quiz service: sessions, scoring, verified submissions and statistics",
		SilenceUsage: true,
	}

	f := cmd.PersistentFlags()
	f.String("config", "config/config.yaml", "path to YAML config (or CINEMATCH_CONFIG)")
	f.String("port", "", "port to listen on, overrides server.port (or CINEMATCH_PORT)")
	f.String("log-level", "", "log level (debug, info, warn, error)")
	f.String("log-format", "", "log format (text, json)")

	cmd.AddCommand(NewStartCmd())
	cmd.AddCommand(NewMigrateCmd())
	return cmd
}

// viperForCmd binds a command's flags and environment to a fresh viper instance.
func viperForCmd(cmd *cobra.Command) *viper.Viper {
	v := viper.New()
	_ = v.BindPFlags(cmd.Flags())

	v.SetEnvPrefix("CINEMATCH")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	_ = v.BindEnv("verifier-secret")
	_ = v.BindEnv("attestation-secret")
	return v
}

// loadConfig reads the YAML file named by --config and layers flags and environment on top.
func loadConfig(cmd *cobra.Command) (config.Config, error) {
	v := viperForCmd(cmd)
	cfg, err := config.Load(v.GetString("config"))
	if err != nil {
		return cfg, err
	}
	if p := v.GetString("port"); p != "" {
		cfg.Server.Port = p
	}
	if l := v.GetString("log-level"); l != "" {
		cfg.Log.Level = l
	}
	if f := v.GetString("log-format"); f != "" {
		cfg.Log.Format = f
	}
	if s := v.GetString("verifier-secret"); s != "" {
		cfg.Verifier.Secret = s
	}
	if s := v.GetString("attestation-secret"); s != "" {
		cfg.Attestation.Secret = s
	}
	return cfg, nil
}

func setupLogging(cfg config.Config) {
	var logLevel slog.Level
	switch strings.ToLower(cfg.Log.Level) {
	case "debug":
		logLevel = slog.LevelDebug
	case "warn":
		logLevel = slog.LevelWarn
	case "error":
		logLevel = slog.LevelError
	default:
		logLevel = slog.LevelInfo
	}
	handlerOpts := &slog.HandlerOptions{Level: logLevel}
	var logHandler slog.Handler
	switch strings.ToLower(cfg.Log.Format) {
	case "json":
		logHandler = slog.NewJSONHandler(os.Stderr, handlerOpts)
	default:
		logHandler = slog.NewTextHandler(os.Stderr, handlerOpts)
	}
	slog.SetDefault(slog.New(logHandler))
}
