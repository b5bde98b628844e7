// Package secrets resolves secret:// configuration references against Google Secret Manager.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const meterName = "github.com/Bashir-Janbalat/store-app-be/internal/platform/secrets"

// ErrNotFound is returned when neither Secret Manager nor the local values know the reference.
var ErrNotFound = errors.New("secrets: secret not found")

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver caches resolved values for the process lifetime. Secrets are read once at startup,
// so rotation requires a restart.
type Resolver struct {
	client     accessor
	ownsClient bool
	project    string
	local      map[string]string
	logger     *zap.Logger

	mu    sync.Mutex
	cache map[string]string

	lookups metric.Int64Counter
}

type resolverConfig struct {
	project    string
	local      map[string]string
	logger     *zap.Logger
	meter      metric.Meter
	client     accessor
	clientOpts []option.ClientOption
}

// Option customises Resolver construction.
type Option func(*resolverConfig)

// WithProject sets the Google Cloud project holding the secrets.
func WithProject(projectID string) Option {
	return func(cfg *resolverConfig) { cfg.project = strings.TrimSpace(projectID) }
}

// WithLocalValues supplies values keyed by secret name, used when Secret Manager is unreachable
// or no project is configured.
func WithLocalValues(values map[string]string) Option {
	return func(cfg *resolverConfig) {
		cfg.local = make(map[string]string, len(values))
		for k, v := range values {
			cfg.local[strings.TrimSpace(k)] = v
		}
	}
}

func WithLogger(logger *zap.Logger) Option {
	return func(cfg *resolverConfig) { cfg.logger = logger }
}

func WithMeter(meter metric.Meter) Option {
	return func(cfg *resolverConfig) { cfg.meter = meter }
}

// WithClientOptions forwards options to the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *resolverConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

func withClient(client accessor) Option {
	return func(cfg *resolverConfig) { cfg.client = client }
}

// NewResolver constructs a Resolver. A Secret Manager client is only dialled when a project is set.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	cfg := resolverConfig{}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	if cfg.meter == nil {
		cfg.meter = otel.GetMeterProvider().Meter(meterName)
	}

	r := &Resolver{
		client:  cfg.client,
		project: cfg.project,
		local:   cfg.local,
		logger:  cfg.logger.Named("secrets"),
		cache:   make(map[string]string),
	}
	lookups, err := cfg.meter.Int64Counter("secrets.resolve",
		metric.WithDescription("Secret resolutions by source"))
	if err != nil {
		r.logger.Warn("unable to register secrets metric", zap.Error(err))
	} else {
		r.lookups = lookups
	}

	if r.client == nil && r.project != "" {
		client, err := secretmanager.NewClient(ctx, cfg.clientOpts...)
		if err != nil {
			if len(r.local) == 0 {
				return nil, fmt.Errorf("secrets: create secret manager client: %w", err)
			}
			r.logger.Warn("secret manager unavailable, using local values", zap.Error(err))
		} else {
			r.client = client
			r.ownsClient = true
		}
	}
	return r, nil
}

// Close releases the Secret Manager client when the resolver created it.
func (r *Resolver) Close() error {
	if r.ownsClient && r.client != nil {
		return r.client.Close()
	}
	return nil
}

// ResolveSecret resolves secret://name[?version=v&project=p].
func (r *Resolver) ResolveSecret(ctx context.Context, ref string) (string, error) {
	name, version, project, err := parseReference(ref)
	if err != nil {
		return "", err
	}
	if project == "" {
		project = r.project
	}
	key := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, name, version)

	r.mu.Lock()
	value, ok := r.cache[key]
	r.mu.Unlock()
	if ok {
		r.record(ctx, "cache")
		return value, nil
	}

	if r.client != nil && project != "" {
		resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: key})
		switch {
		case err == nil:
			value = string(resp.GetPayload().GetData())
			r.store(key, value)
			r.record(ctx, "remote")
			return value, nil
		case !fallbackAllowed(err):
			r.record(ctx, "error")
			return "", fmt.Errorf("secrets: access %s: %w", name, err)
		default:
			r.logger.Debug("secret manager lookup failed, trying local values", zap.String("secret", name), zap.Error(err))
		}
	}

	value, ok = r.local[name]
	if !ok {
		r.record(ctx, "error")
		return "", fmt.Errorf("%w: %s", ErrNotFound, name)
	}
	r.store(key, value)
	r.record(ctx, "local")
	return value, nil
}

func (r *Resolver) store(key, value string) {
	r.mu.Lock()
	r.cache[key] = value
	r.mu.Unlock()
}

func (r *Resolver) record(ctx context.Context, source string) {
	if r.lookups != nil {
		r.lookups.Add(ctx, 1, metric.WithAttributes(attribute.String("source", source)))
	}
}

func parseReference(ref string) (name, version, project string, err error) {
	u, err := url.Parse(strings.TrimSpace(ref))
	if err != nil {
		return "", "", "", fmt.Errorf("secrets: invalid reference %q: %w", ref, err)
	}
	if u.Scheme != "secret" && u.Scheme != "sm" {
		return "", "", "", fmt.Errorf("secrets: unsupported scheme %q", u.Scheme)
	}
	name = strings.Trim(u.Host+u.Path, "/")
	if name == "" {
		return "", "", "", fmt.Errorf("secrets: missing secret name in %q", ref)
	}
	// Secret Manager ids cannot contain slashes.
	name = strings.ReplaceAll(name, "/", "_")
	q := u.Query()
	version = strings.TrimSpace(q.Get("version"))
	if version == "" {
		version = "latest"
	}
	return name, version, strings.TrimSpace(q.Get("project")), nil
}

func fallbackAllowed(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
