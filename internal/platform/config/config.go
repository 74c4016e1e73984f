package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile              = ".env"
	defaultPort                 = "8080"
	defaultReadTimeout          = 15 * time.Second
	defaultWriteTimeout         = 30 * time.Second
	defaultIdleTimeout          = 120 * time.Second
	defaultRequestTimeout       = 20 * time.Second
	defaultShutdownTimeout      = 15 * time.Second
	defaultNotificationsTopic   = "order-notifications"
	defaultPublishTimeout       = 10 * time.Second
	defaultIdempotencyHeader    = "Idempotency-Key"
	defaultIdempotencyTTL       = 24 * time.Hour
	defaultIdempotencyInterval  = time.Hour
	defaultIdempotencyBatchSize = 200
	defaultOrdersPageSize       = 20
	defaultOrdersMaxPageSize    = 100
	defaultEnvironment          = "local"

	// StoreFirestore persists orders and replay records in Firestore.
	StoreFirestore = "firestore"
	// StoreMemory keeps everything in process; intended for local runs and tests.
	StoreMemory = "memory"
)

// Config is the bakery orders API runtime configuration.
type Config struct {
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PubSub      PubSubConfig
	Idempotency IdempotencyConfig
	Orders      OrdersConfig
	Build       BuildConfig
}

type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	RequestTimeout  time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig holds the auth project. CredentialsJSON may be given as a secret reference and
// holds the resolved service account document after Load.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
	CredentialsJSON string
}

type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PubSubConfig controls order notification publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID          string
	NotificationsTopic string
	EmulatorHost       string
	PublishTimeout     time.Duration
}

// IdempotencyConfig tunes payment replay protection and the expiry sweep.
type IdempotencyConfig struct {
	Header           string
	TTL              time.Duration
	CleanupInterval  time.Duration
	CleanupBatchSize int
}

type OrdersConfig struct {
	Store              string
	DefaultPageSize    int
	MaxPageSize        int
	GuestOrdersEnabled bool
}

// BuildConfig describes the running binary for health endpoints.
type BuildConfig struct {
	Version     string
	CommitSHA   string
	Environment string
}

// Option customises Load and EnvironmentValues.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

func newLoaderOptions(opts []Option) loaderOptions {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(&options)
		}
	}
	return options
}

// WithEnvFile overrides the dotenv path. An empty path skips the file.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) { o.envFile = path }
}

// WithEnvMap supplies explicit values that win over the process environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) { o.envMap = values }
}

// WithoutSystemEnv stops Load from consulting the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) { o.useSystemEnv = false }
}

// WithSecretResolver sets the resolver used for secret:// and sm:// values.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) { o.secret = resolver }
}

// WithRequiredSecrets marks secret-backed fields (e.g. "Firebase.CredentialsJSON") that must
// resolve to a non-empty value.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) { o.requiredSecrets = append(o.requiredSecrets, names...) }
}

// WithPanicOnMissingSecrets makes Load panic instead of returning MissingSecretsError.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) { o.panicOnMissingSecrets = true }
}

// Load reads defaults, the dotenv file, the process environment and explicit overrides (in
// increasing precedence), resolves secret references and validates the result.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := newLoaderOptions(opts)

	src, err := newEnvSource(options)
	if err != nil {
		return Config{}, err
	}
	r := &reader{src: src}

	cfg := Config{
		Server: ServerConfig{
			Port:            r.str("API_SERVER_PORT", defaultPort),
			ReadTimeout:     r.duration("Server.ReadTimeout", "API_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    r.duration("Server.WriteTimeout", "API_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     r.duration("Server.IdleTimeout", "API_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			RequestTimeout:  r.duration("Server.RequestTimeout", "API_SERVER_REQUEST_TIMEOUT", defaultRequestTimeout),
			ShutdownTimeout: r.duration("Server.ShutdownTimeout", "API_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       r.str("API_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: r.str("API_FIREBASE_CREDENTIALS_FILE", ""),
			CredentialsJSON: r.str("API_FIREBASE_CREDENTIALS_JSON", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    r.str("API_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: r.str("API_FIRESTORE_EMULATOR_HOST", ""),
		},
		PubSub: PubSubConfig{
			ProjectID:          r.str("API_PUBSUB_PROJECT_ID", ""),
			NotificationsTopic: r.str("API_PUBSUB_NOTIFICATIONS_TOPIC", defaultNotificationsTopic),
			EmulatorHost:       r.str("API_PUBSUB_EMULATOR_HOST", ""),
			PublishTimeout:     r.duration("PubSub.PublishTimeout", "API_PUBSUB_PUBLISH_TIMEOUT", defaultPublishTimeout),
		},
		Idempotency: IdempotencyConfig{
			Header:           r.str("API_IDEMPOTENCY_HEADER", defaultIdempotencyHeader),
			TTL:              r.duration("Idempotency.TTL", "API_IDEMPOTENCY_TTL", defaultIdempotencyTTL),
			CleanupInterval:  r.duration("Idempotency.CleanupInterval", "API_IDEMPOTENCY_CLEANUP_INTERVAL", defaultIdempotencyInterval),
			CleanupBatchSize: r.integer("Idempotency.CleanupBatchSize", "API_IDEMPOTENCY_CLEANUP_BATCH", defaultIdempotencyBatchSize),
		},
		Orders: OrdersConfig{
			Store:              strings.ToLower(r.str("API_ORDERS_STORE", StoreFirestore)),
			DefaultPageSize:    r.integer("Orders.DefaultPageSize", "API_ORDERS_DEFAULT_PAGE_SIZE", defaultOrdersPageSize),
			MaxPageSize:        r.integer("Orders.MaxPageSize", "API_ORDERS_MAX_PAGE_SIZE", defaultOrdersMaxPageSize),
			GuestOrdersEnabled: r.boolean("Orders.GuestOrdersEnabled", "API_ORDERS_GUEST_ENABLED", true),
		},
		Build: BuildConfig{
			Version:     r.str("API_BUILD_VERSION", "dev"),
			CommitSHA:   r.str("API_BUILD_COMMIT_SHA", ""),
			Environment: strings.ToLower(r.str("API_ENVIRONMENT", defaultEnvironment)),
		},
	}
	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}

	resolved, err := resolveSecretFields(ctx, options.secret, map[string]*string{
		"Firebase.CredentialsJSON":  &cfg.Firebase.CredentialsJSON,
		"PubSub.NotificationsTopic": &cfg.PubSub.NotificationsTopic,
	})
	if err != nil {
		return Config{}, err
	}

	if invalid := append(r.invalid, validate(cfg)...); len(invalid) > 0 {
		return Config{}, &ValidationError{fields: invalid}
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}
	return cfg, nil
}

func validate(cfg Config) []string {
	var invalid []string
	check := func(ok bool, field string) {
		if !ok {
			invalid = append(invalid, field)
		}
	}

	check(cfg.Server.Port != "", "Server.Port")
	switch cfg.Orders.Store {
	case StoreFirestore:
		check(cfg.Firebase.ProjectID != "", "Firebase.ProjectID")
		check(cfg.Firestore.ProjectID != "", "Firestore.ProjectID")
	case StoreMemory:
	default:
		invalid = append(invalid, "Orders.Store")
	}
	check(strings.TrimSpace(cfg.Idempotency.Header) != "", "Idempotency.Header")
	check(cfg.Idempotency.TTL > 0, "Idempotency.TTL")
	check(cfg.Idempotency.CleanupInterval > 0, "Idempotency.CleanupInterval")
	check(cfg.Idempotency.CleanupBatchSize > 0, "Idempotency.CleanupBatchSize")
	check(cfg.Orders.DefaultPageSize > 0, "Orders.DefaultPageSize")
	check(cfg.Orders.MaxPageSize >= cfg.Orders.DefaultPageSize, "Orders.MaxPageSize")
	return invalid
}

// ValidationError lists configuration fields that are missing or malformed.
type ValidationError struct {
	fields []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns the offending field names in the order they were found.
func (e *ValidationError) Fields() []string {
	return append([]string(nil), e.fields...)
}
