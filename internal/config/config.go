package config

// Config holds all application configuration.
type Config struct {
	Elasticsearch Elasticsearch `mapstructure:"elasticsearch"`
	Embeddings    Embeddings    `mapstructure:"embeddings"`
	LLM           LLM           `mapstructure:"llm"`
	Storage       Storage       `mapstructure:"storage"`
	MCP           MCP           `mapstructure:"mcp"`
	Receipts      Receipts      `mapstructure:"receipts"`
}

// Elasticsearch holds ES connection configuration.
type Elasticsearch struct {
	Addresses []string `mapstructure:"addresses"`
	Index     string   `mapstructure:"index"`
	Username  string   `mapstructure:"username"`
	Password  string   `mapstructure:"password"`
}

// Embeddings holds embedding generation configuration.
type Embeddings struct {
	SocketPath string `mapstructure:"socket_path"`
	Model      string `mapstructure:"model"`
}

// LLM holds item-classification model configuration.
type LLM struct {
	Enabled    bool   `mapstructure:"enabled"`
	SocketPath string `mapstructure:"socket_path"`
	Model      string `mapstructure:"model"`
}

// Storage holds S3/MinIO storage configuration for receipt images.
type Storage struct {
	Endpoint        string `mapstructure:"endpoint"`
	Bucket          string `mapstructure:"bucket"`
	AccessKeyID     string `mapstructure:"access_key_id"`
	SecretAccessKey string `mapstructure:"secret_access_key"`
	UseSSL          bool   `mapstructure:"use_ssl"`
}

// MCP holds MCP server configuration.
type MCP struct {
	Name    string `mapstructure:"name"`
	Version string `mapstructure:"version"`
}

// Receipts holds receipt-store behavior configuration.
type Receipts struct {
	DefaultCurrency string `mapstructure:"default_currency"`
}

// Defaults returns a Config with sensible default values.
func Defaults() Config {
	return Config{
		Elasticsearch: Elasticsearch{
			Addresses: []string{"http://localhost:9200"},
			Index:     "expenso-receipts",
		},
		Embeddings: Embeddings{
			SocketPath: "", // User must provide their Docker socket path
			Model:      "ai/embeddinggemma",
		},
		LLM: LLM{
			Enabled:    false, // Disabled by default, requires DMR setup
			SocketPath: "",
			Model:      "ai/gemma3",
		},
		Storage: Storage{
			Endpoint:        "localhost:9002",
			Bucket:          "expenso-receipts",
			AccessKeyID:     "minioadmin",
			SecretAccessKey: "minioadmin",
			UseSSL:          false,
		},
		MCP: MCP{
			Name:    "expenso",
			Version: "1.0.0",
		},
		Receipts: Receipts{
			DefaultCurrency: "IDR",
		},
	}
}
