package cmd

import (
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/expenso-ai/expenso/internal/config"
)

var (
	cfgFile string
	verbose bool
	cfg     config.Config
)

// GetConfig returns the loaded configuration.
func GetConfig() config.Config {
	return cfg
}

var rootCmd = &cobra.Command{
	Use:   "expenso",
	Short: "Expenso: a receipt knowledge store",
	Long: `Expenso stores receipts extracted from images in Elasticsearch with
vector embeddings, keeps the receipt images in S3-compatible storage,
and exposes search and aggregation tools over MCP.

Commands:
  serve     Start the MCP server for receipt tools
  chat      Start the conversational HTTP server
  search    Search stored receipts from the command line
  backfill  Classify items on receipts ingested before categorization`,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig, initLogger)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is ./config/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose logging")
}

func initLogger() {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}

	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: level,
	})
	slog.SetDefault(slog.New(handler))
}

func initConfig() {
	// Start with defaults
	cfg = config.Defaults()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath("./config")
		viper.AddConfigPath("/etc/expenso")
		viper.AddConfigPath(".")
	}

	// Environment variable overrides
	// EXPENSO_ELASTICSEARCH_ADDRESSES -> elasticsearch.addresses
	viper.SetEnvPrefix("EXPENSO")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	// Explicitly bind nested env vars
	viper.BindEnv("elasticsearch.addresses", "EXPENSO_ELASTICSEARCH_ADDRESSES")
	viper.BindEnv("elasticsearch.index", "EXPENSO_ELASTICSEARCH_INDEX")
	viper.BindEnv("elasticsearch.username", "EXPENSO_ELASTICSEARCH_USERNAME")
	viper.BindEnv("elasticsearch.password", "EXPENSO_ELASTICSEARCH_PASSWORD")
	viper.BindEnv("embeddings.socket_path", "EXPENSO_EMBEDDINGS_SOCKET_PATH")
	viper.BindEnv("embeddings.model", "EXPENSO_EMBEDDINGS_MODEL")
	viper.BindEnv("llm.enabled", "EXPENSO_LLM_ENABLED")
	viper.BindEnv("llm.socket_path", "EXPENSO_LLM_SOCKET_PATH")
	viper.BindEnv("llm.model", "EXPENSO_LLM_MODEL")
	viper.BindEnv("storage.endpoint", "EXPENSO_STORAGE_ENDPOINT")
	viper.BindEnv("storage.bucket", "EXPENSO_STORAGE_BUCKET")
	viper.BindEnv("storage.access_key_id", "EXPENSO_STORAGE_ACCESS_KEY_ID")
	viper.BindEnv("storage.secret_access_key", "EXPENSO_STORAGE_SECRET_ACCESS_KEY")
	viper.BindEnv("storage.use_ssl", "EXPENSO_STORAGE_USE_SSL")
	viper.BindEnv("mcp.name", "EXPENSO_MCP_NAME")
	viper.BindEnv("mcp.version", "EXPENSO_MCP_VERSION")
	viper.BindEnv("receipts.default_currency", "EXPENSO_RECEIPTS_DEFAULT_CURRENCY")

	// Read config file
	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			slog.Warn("config file error", "error", err)
		}
		// No config file - use defaults + env vars
	}

	// Unmarshal into struct (merges config file with defaults)
	if err := viper.Unmarshal(&cfg); err != nil {
		slog.Warn("failed to parse config", "error", err)
	}

	// Handle special case: addresses as comma-separated string from env
	if addrs := os.Getenv("EXPENSO_ELASTICSEARCH_ADDRESSES"); addrs != "" {
		cfg.Elasticsearch.Addresses = strings.Split(addrs, ",")
	}
}
