package configuration

import (
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v6"
)

const (
	StorageBackendAzure = "azure"
	StorageBackendMinio = "minio"

	TokenStoreMemory   = "memory"
	TokenStorePostgres = "postgres"
)

type (
	Properties struct {
		LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
		LogFormat string `env:"LOG_FORMAT" envDefault:"text"`

		Azure      AzureProperties      `envPrefix:"AZURE_"`
		Storage    StorageProperties    `envPrefix:"STORAGE_"`
		Dataverse  DataverseProperties  `envPrefix:"DATAVERSE_"`
		Graph      GraphProperties      `envPrefix:"GRAPH_"`
		Auth       AuthProperties       `envPrefix:"AUTH_"`
		TokenStore TokenStoreProperties `envPrefix:"TOKEN_STORE_"`
		Server     HttpServerProperties `envPrefix:"HTTP_"`
	}

	// AzureProperties holds the app registration used for On-Behalf-Of exchanges.
	AzureProperties struct {
		TenantID      string `env:"TENANT_ID"`
		ClientID      string `env:"CLIENT_ID"`
		ClientSecret  string `env:"CLIENT_SECRET"`
		AuthorityHost string `env:"AUTHORITY_HOST"`
	}

	StorageProperties struct {
		Backend          string        `env:"BACKEND" envDefault:"azure"`
		ConnectionString string        `env:"CONNECTION_STRING"`
		Container        string        `env:"CONTAINER" envDefault:"event-photos"`
		IndexBlob        string        `env:"INDEX_BLOB" envDefault:"_index.json"`
		SASExpiry        time.Duration `env:"SAS_EXPIRY" envDefault:"60m"`
		CountConcurrency int           `env:"COUNT_CONCURRENCY" envDefault:"8"`
		S3               S3Properties  `envPrefix:"S3_"`
	}

	// S3Properties configures the MinIO backend. The bucket is Storage.Container.
	S3Properties struct {
		Host      string `env:"HOST"`
		AccessKey string `env:"ACCESS_KEY"`
		SecretKey string `env:"SECRET_KEY"`
		UseSSL    bool   `env:"USE_SSL" envDefault:"true"`
	}

	// DataverseProperties also carries the app-only credentials used for Graph,
	// mirroring how the gallery registration was provisioned.
	DataverseProperties struct {
		ClientID     string `env:"CLIENT_ID"`
		ClientSecret string `env:"CLIENT_SECRET"`
		URL          string `env:"URL" envDefault:"https://org4bd35fe5.crm4.dynamics.com"`
		APIVersion   string `env:"API_VERSION" envDefault:"9.2"`
		Table        string `env:"TABLE" envDefault:"cr15b_meshevents"`
		Scope        string `env:"SCOPE"`
	}

	GraphProperties struct {
		BaseURL    string   `env:"BASE_URL" envDefault:"https://graph.microsoft.com/v1.0"`
		UserScopes []string `env:"USER_SCOPES" envSeparator:"," envDefault:"https://graph.microsoft.com/Files.Read.All"`
		AppScopes  []string `env:"APP_SCOPES" envSeparator:"," envDefault:"https://graph.microsoft.com/.default"`
	}

	AuthProperties struct {
		VerifyAssertion bool   `env:"VERIFY_ASSERTION" envDefault:"false"`
		Audience        string `env:"AUDIENCE"`
	}

	TokenStoreProperties struct {
		Driver string `env:"DRIVER" envDefault:"memory"`
		DSN    string `env:"DSN"`
	}

	HttpServerProperties struct {
		Port            string        `env:"PORT" envDefault:"8088"`
		ReadTimeout     time.Duration `env:"READ_TIMEOUT" envDefault:"30s"`
		ShutdownTimeout time.Duration `env:"SHUTDOWN_TIMEOUT" envDefault:"10s"`
		Pprof           bool          `env:"PPROF" envDefault:"false"`
		StaticDir       string        `env:"STATIC_DIR"`
		RateLimit       int           `env:"RATE_LIMIT" envDefault:"30"`
		RateLimitWindow time.Duration `env:"RATE_LIMIT_WINDOW" envDefault:"1m"`
	}
)

// DataverseScope returns the delegated scope requested for Dataverse.
func (d DataverseProperties) DataverseScope() string {
	if d.Scope != "" {
		return d.Scope
	}
	return strings.TrimSuffix(d.URL, "/") + "/user_impersonation"
}

// Audience falls back to the client id of the app registration.
func (p *Properties) Audience() string {
	if p.Auth.Audience != "" {
		return p.Auth.Audience
	}
	return p.Azure.ClientID
}

func Parse() (*Properties, error) {
	config := &Properties{}
	if err := env.Parse(config); err != nil {
		return nil, err
	}
	switch config.Storage.Backend {
	case StorageBackendAzure, StorageBackendMinio:
	default:
		return nil, fmt.Errorf("unknown storage backend %q", config.Storage.Backend)
	}
	switch config.TokenStore.Driver {
	case TokenStoreMemory, TokenStorePostgres:
	default:
		return nil, fmt.Errorf("unknown token store driver %q", config.TokenStore.Driver)
	}
	return config, nil
}

func ReadProperties() *Properties {
	config, err := Parse()
	if err != nil {
		panic(fmt.Errorf("read config error: %w", err))
	}
	return config
}
