package config

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/go-viper/mapstructure/v2"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/v2"
)

const (
	defaultEnvFile    = ".env"
	defaultConfigFile = "config.yaml"
	envPrefix         = "STORE_"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Server      ServerConfig      `koanf:"server"`
	Firestore   FirestoreConfig   `koanf:"firestore"`
	Postgres    PostgresConfig    `koanf:"postgres"`
	PSP         PSPConfig         `koanf:"psp"`
	Auth        AuthConfig        `koanf:"auth"`
	OIDC        OIDCConfig        `koanf:"oidc"`
	PubSub      PubSubConfig      `koanf:"pubsub"`
	Cache       CacheConfig       `koanf:"cache"`
	Cleanup     CleanupConfig     `koanf:"cleanup"`
	Idempotency IdempotencyConfig `koanf:"idempotency"`
	Pricing     PricingConfig     `koanf:"pricing"`
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port         string        `koanf:"port"`
	Environment  string        `koanf:"environment"`
	ReadTimeout  time.Duration `koanf:"readTimeout"`
	WriteTimeout time.Duration `koanf:"writeTimeout"`
	IdleTimeout  time.Duration `koanf:"idleTimeout"`
}

// FirestoreConfig stores document database parameters.
type FirestoreConfig struct {
	ProjectID    string `koanf:"projectId"`
	EmulatorHost string `koanf:"emulatorHost"`
}

// PostgresConfig points at the catalog database. Replicas receive read traffic when set.
type PostgresConfig struct {
	DSN             string        `koanf:"dsn"`
	Replicas        []string      `koanf:"replicas"`
	MaxOpenConns    int           `koanf:"maxOpenConns"`
	MaxIdleConns    int           `koanf:"maxIdleConns"`
	ConnMaxLifetime time.Duration `koanf:"connMaxLifetime"`
}

// PSPConfig collects Stripe credentials and checkout redirect targets.
type PSPConfig struct {
	StripeAPIKey        string `koanf:"stripeApiKey"`
	StripeWebhookSecret string `koanf:"stripeWebhookSecret"`
	SuccessURL          string `koanf:"successUrl"`
	CancelURL           string `koanf:"cancelUrl"`
	Currency            string `koanf:"currency"`
}

// AuthConfig controls customer token issuance and password hashing.
type AuthConfig struct {
	JWTSecret         string        `koanf:"jwtSecret"`
	Issuer            string        `koanf:"issuer"`
	TokenTTL          time.Duration `koanf:"tokenTtl"`
	CookieName        string        `koanf:"cookieName"`
	SessionCookieName string        `koanf:"sessionCookieName"`
	SessionHeader     string        `koanf:"sessionHeader"`
	BcryptCost        int           `koanf:"bcryptCost"`
	ResetTokenTTL     time.Duration `koanf:"resetTokenTtl"`
	// ResetLinkBaseURL is the storefront origin hosting the /reset-password page.
	ResetLinkBaseURL string `koanf:"resetLinkBaseUrl"`
}

// OIDCConfig controls Google-signed token verification for internal endpoints.
type OIDCConfig struct {
	JWKSURL  string   `koanf:"jwksUrl"`
	Audience string   `koanf:"audience"`
	Issuers  []string `koanf:"issuers"`
}

// PubSubConfig names the topics used for order events and the mail outbox.
type PubSubConfig struct {
	ProjectID        string `koanf:"projectId"`
	OrderEventsTopic string `koanf:"orderEventsTopic"`
	MailTopic        string `koanf:"mailTopic"`
}

// CacheConfig sizes the in-process read caches.
type CacheConfig struct {
	Size int           `koanf:"size"`
	TTL  time.Duration `koanf:"ttl"`
}

// CleanupConfig controls the anonymous cart and wishlist retention sweep.
type CleanupConfig struct {
	Retention time.Duration `koanf:"retention"`
	Interval  time.Duration `koanf:"interval"`
}

// IdempotencyConfig controls idempotency middleware and webhook dedupe behaviour.
type IdempotencyConfig struct {
	Header           string        `koanf:"header"`
	TTL              time.Duration `koanf:"ttl"`
	WebhookTTL       time.Duration `koanf:"webhookTtl"`
	CleanupInterval  time.Duration `koanf:"cleanupInterval"`
	CleanupBatchSize int           `koanf:"cleanupBatchSize"`
}

// PricingConfig selects where cart unit prices come from.
type PricingConfig struct {
	TrustClientPrice bool `koanf:"trustClientPrice"`
}

func defaults() map[string]any {
	return map[string]any{
		"server.port":                  "8080",
		"server.environment":           "local",
		"server.readTimeout":           15 * time.Second,
		"server.writeTimeout":          30 * time.Second,
		"server.idleTimeout":           120 * time.Second,
		"firestore.projectId":          "",
		"firestore.emulatorHost":       "",
		"postgres.dsn":                 "",
		"postgres.replicas":            []string{},
		"postgres.maxOpenConns":        20,
		"postgres.maxIdleConns":        5,
		"postgres.connMaxLifetime":     30 * time.Minute,
		"psp.stripeApiKey":             "",
		"psp.stripeWebhookSecret":      "",
		"psp.successUrl":               "",
		"psp.cancelUrl":                "",
		"psp.currency":                 "EUR",
		"auth.jwtSecret":               "",
		"auth.issuer":                  "store-app",
		"auth.tokenTtl":                24 * time.Hour,
		"auth.cookieName":              "access_token",
		"auth.sessionCookieName":       "sessionId",
		"auth.sessionHeader":           "X-Session-ID",
		"auth.bcryptCost":              10,
		"auth.resetTokenTtl":           15 * time.Minute,
		"auth.resetLinkBaseUrl":        "http://localhost:3000",
		"oidc.jwksUrl":                 "https://www.googleapis.com/oauth2/v3/certs",
		"oidc.audience":                "",
		"oidc.issuers":                 []string{"https://accounts.google.com"},
		"pubsub.projectId":             "",
		"pubsub.orderEventsTopic":      "",
		"pubsub.mailTopic":             "",
		"cache.size":                   1024,
		"cache.ttl":                    10 * time.Minute,
		"cleanup.retention":            240 * time.Hour,
		"cleanup.interval":             24 * time.Hour,
		"idempotency.header":           "Idempotency-Key",
		"idempotency.ttl":              24 * time.Hour,
		"idempotency.webhookTtl":       72 * time.Hour,
		"idempotency.cleanupInterval":  time.Hour,
		"idempotency.cleanupBatchSize": 200,
		"pricing.trustClientPrice":     false,
	}
}

// SecretResolver resolves references to external secrets (e.g. Secret Manager URIs).
type SecretResolver interface {
	ResolveSecret(ctx context.Context, ref string) (string, error)
}

// SecretResolverFunc adapts ordinary functions to SecretResolver.
type SecretResolverFunc func(context.Context, string) (string, error)

// ResolveSecret resolves the secret using the wrapped function.
func (f SecretResolverFunc) ResolveSecret(ctx context.Context, ref string) (string, error) {
	return f(ctx, ref)
}

// ValidationError is returned when required configuration fields are missing or invalid.
type ValidationError struct {
	fields []string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	return fmt.Sprintf("config validation failed: missing or invalid fields [%s]", strings.Join(e.fields, ", "))
}

// Fields returns a copy of the missing/invalid field list.
func (e *ValidationError) Fields() []string {
	out := make([]string, len(e.fields))
	copy(out, e.fields)
	return out
}

// SecretError describes failures while resolving a secret reference.
type SecretError struct {
	Ref string
	Err error
}

// Error implements the error interface.
func (e *SecretError) Error() string {
	return fmt.Sprintf("secret resolution failed for ref %q: %v", e.Ref, e.Err)
}

// Unwrap exposes the underlying error.
func (e *SecretError) Unwrap() error { return e.Err }

var errSecretResolverNotConfigured = errors.New("secret resolver not configured")

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile      string
	configFile   string
	envMap       map[string]string
	useSystemEnv bool
	secret       SecretResolver
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithConfigFile overrides the YAML file loaded on top of the defaults.
func WithConfigFile(path string) Option {
	return func(o *loaderOptions) {
		o.configFile = path
	}
}

// WithEnvMap injects an explicit key/value map for environment lookups. Values in the map
// take precedence over system environment variables.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets a custom secret resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// Load assembles the application configuration. Sources are layered in this order, later
// ones winning: defaults, config.yaml, .env, STORE_* environment variables, the env map.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		configFile:   defaultConfigFile,
		useSystemEnv: true,
	}
	for _, opt := range opts {
		opt(&options)
	}

	k := koanf.New(".")
	for key, value := range defaults() {
		if err := k.Set(key, value); err != nil {
			return Config{}, fmt.Errorf("config: set default %s: %w", key, err)
		}
	}

	if options.configFile != "" {
		if _, err := os.Stat(options.configFile); err == nil {
			if err := k.Load(file.Provider(options.configFile), yaml.Parser()); err != nil {
				return Config{}, fmt.Errorf("config: read %s: %w", options.configFile, err)
			}
		}
	}

	known := k.Raw()

	dotEnvValues, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	if err := setEnvValues(k, dotEnvValues, known); err != nil {
		return Config{}, err
	}

	if options.useSystemEnv {
		provider := env.Provider(".", env.Opt{
			Prefix: envPrefix,
			TransformFunc: func(key, value string) (string, any) {
				return canonicalizeEnvKey(strings.TrimPrefix(key, envPrefix), known), value
			},
		})
		if err := k.Load(provider, nil); err != nil {
			return Config{}, fmt.Errorf("config: load environment: %w", err)
		}
	}

	if err := setEnvValues(k, options.envMap, known); err != nil {
		return Config{}, err
	}

	var cfg Config
	if err := k.UnmarshalWithConf("", &cfg, koanf.UnmarshalConf{
		Tag: "koanf",
		DecoderConfig: &mapstructure.DecoderConfig{
			Result:           &cfg,
			WeaklyTypedInput: true,
			DecodeHook: mapstructure.ComposeDecodeHookFunc(
				mapstructure.StringToTimeDurationHookFunc(),
				mapstructure.StringToSliceHookFunc(","),
			),
			MatchName: func(mapKey, fieldName string) bool {
				return strings.EqualFold(mapKey, fieldName)
			},
		},
	}); err != nil {
		return Config{}, fmt.Errorf("config: unmarshal: %w", err)
	}

	normalize(&cfg)

	secretFields := []*string{
		&cfg.PSP.StripeAPIKey,
		&cfg.PSP.StripeWebhookSecret,
		&cfg.Auth.JWTSecret,
		&cfg.Postgres.DSN,
	}
	for _, field := range secretFields {
		resolved, err := resolveSecret(ctx, *field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*field = resolved
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func normalize(cfg *Config) {
	cfg.Server.Environment = strings.ToLower(strings.TrimSpace(cfg.Server.Environment))
	cfg.PSP.Currency = strings.ToUpper(strings.TrimSpace(cfg.PSP.Currency))
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	cfg.Postgres.Replicas = compact(cfg.Postgres.Replicas)
	cfg.OIDC.Issuers = compact(cfg.OIDC.Issuers)
}

func compact(values []string) []string {
	out := make([]string, 0, len(values))
	for _, value := range values {
		if trimmed := strings.TrimSpace(value); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

func setEnvValues(k *koanf.Koanf, values map[string]string, known map[string]any) error {
	for key, value := range values {
		if !strings.HasPrefix(key, envPrefix) {
			continue
		}
		path := canonicalizeEnvKey(strings.TrimPrefix(key, envPrefix), known)
		if path == "" {
			continue
		}
		if err := k.Set(path, value); err != nil {
			return fmt.Errorf("config: set %s: %w", key, err)
		}
	}
	return nil
}

func resolveSecret(ctx context.Context, value string, resolver SecretResolver) (string, error) {
	if value == "" || !isSecretReference(value) {
		return value, nil
	}
	normalized := normalizeSecretReference(value)
	if resolver == nil {
		return "", &SecretError{Ref: normalized, Err: errSecretResolverNotConfigured}
	}
	secret, err := resolver.ResolveSecret(ctx, normalized)
	if err != nil {
		return "", &SecretError{Ref: normalized, Err: err}
	}
	return secret, nil
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if cfg.Postgres.DSN == "" {
		missing = append(missing, "Postgres.DSN")
	}
	if cfg.Auth.JWTSecret == "" {
		missing = append(missing, "Auth.JWTSecret")
	}
	if cfg.Auth.TokenTTL <= 0 {
		missing = append(missing, "Auth.TokenTTL")
	}
	if cfg.Auth.BcryptCost < 4 || cfg.Auth.BcryptCost > 31 {
		missing = append(missing, "Auth.BcryptCost")
	}
	if cfg.Auth.ResetTokenTTL <= 0 {
		missing = append(missing, "Auth.ResetTokenTTL")
	}
	if len(cfg.PSP.Currency) != 3 {
		missing = append(missing, "PSP.Currency")
	}
	if cfg.Cache.Size <= 0 {
		missing = append(missing, "Cache.Size")
	}
	if cfg.Cleanup.Retention <= 0 {
		missing = append(missing, "Cleanup.Retention")
	}
	if strings.TrimSpace(cfg.Idempotency.Header) == "" {
		missing = append(missing, "Idempotency.Header")
	}
	if cfg.Idempotency.TTL <= 0 {
		missing = append(missing, "Idempotency.TTL")
	}
	if cfg.Idempotency.CleanupBatchSize <= 0 {
		missing = append(missing, "Idempotency.CleanupBatchSize")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}

func isSecretReference(value string) bool {
	trimmed := strings.TrimSpace(value)
	return strings.HasPrefix(trimmed, "secret://") || strings.HasPrefix(trimmed, "sm://")
}

func normalizeSecretReference(value string) string {
	trimmed := strings.TrimSpace(value)
	if strings.HasPrefix(trimmed, "sm://") {
		return "secret://" + strings.TrimPrefix(trimmed, "sm://")
	}
	return trimmed
}

func loadDotEnv(path string) (map[string]string, error) {
	if path == "" {
		return nil, nil
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		absPath = path
	}

	f, err := os.Open(absPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("config: unable to read %s: %w", absPath, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	values := make(map[string]string)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		line = strings.TrimSpace(strings.TrimPrefix(line, "export "))
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}
		values[key] = strings.Trim(strings.TrimSpace(value), "\"'")
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("config: failed parsing %s: %w", absPath, err)
	}
	return values, nil
}

// canonicalizeEnvKey maps PSP_STRIPE_API_KEY onto the known path psp.stripeApiKey. At each
// level the longest run of underscore separated segments matching an existing key wins.
func canonicalizeEnvKey(rawKey string, existing map[string]any) string {
	var segments []string
	for _, segment := range strings.Split(strings.ToLower(rawKey), "_") {
		if segment != "" {
			segments = append(segments, segment)
		}
	}

	canonical := make([]string, 0, len(segments))
	current := existing
	for i := 0; i < len(segments); {
		matched, next, width := longestExistingSegment(current, segments[i:])
		if width == 0 {
			canonical = append(canonical, segments[i])
			current = nil
			i++
			continue
		}
		canonical = append(canonical, matched)
		current = next
		i += width
	}
	return strings.Join(canonical, ".")
}

func longestExistingSegment(current map[string]any, segments []string) (string, map[string]any, int) {
	if len(current) == 0 {
		return "", nil, 0
	}
	for width := len(segments); width > 0; width-- {
		needle := normalizeToken(strings.Join(segments[:width], ""))
		for key, value := range current {
			if normalizeToken(key) != needle {
				continue
			}
			child, _ := value.(map[string]any)
			return key, child, width
		}
	}
	return "", nil, 0
}

func normalizeToken(s string) string {
	var normalized strings.Builder
	normalized.Grow(len(s))
	for _, r := range s {
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			continue
		}
		normalized.WriteRune(unicode.ToLower(r))
	}
	return normalized.String()
}
