// Package secrets resolves secret:// references against Google Secret Manager with a local file
// fallback for development.
package secrets

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

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

const meterName = "github.com/crumbline/orders-api/internal/platform/secrets"

var newSecretManagerClient = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type accessor interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Resolver looks references up in a process-wide cache, then Secret Manager, then the fallback
// file. The fallback is only consulted when Secret Manager is unreachable or refuses access; a
// secret that does not exist remotely is an error.
type Resolver struct {
	client     accessor
	ownsClient bool
	clientOpts []option.ClientOption
	project    string
	fallback   *fallbackFile
	logger     *zap.Logger
	meter      metric.Meter
	latency    metric.Float64Histogram

	mu    sync.RWMutex
	cache map[string]string
}

type Option func(*Resolver)

func WithLogger(logger *zap.Logger) Option {
	return func(r *Resolver) {
		if logger != nil {
			r.logger = logger
		}
	}
}

// WithDefaultProject is used for references without ?project=.
func WithDefaultProject(projectID string) Option {
	return func(r *Resolver) { r.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile replaces the default .secrets.local path. An empty path disables the fallback.
func WithFallbackFile(path string) Option {
	return func(r *Resolver) { r.fallback = newFallbackFile(path) }
}

func WithMeter(m metric.Meter) Option {
	return func(r *Resolver) { r.meter = m }
}

func WithSecretManagerClient(client accessor) Option {
	return func(r *Resolver) { r.client = client }
}

func WithClientOptions(opts ...option.ClientOption) Option {
	return func(r *Resolver) { r.clientOpts = append(r.clientOpts, opts...) }
}

// NewResolver never fails on missing credentials: without a Secret Manager client the resolver
// serves from the fallback file only.
func NewResolver(ctx context.Context, opts ...Option) (*Resolver, error) {
	r := &Resolver{
		fallback: newFallbackFile(".secrets.local"),
		logger:   zap.NewNop(),
		cache:    map[string]string{},
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}
	if r.meter == nil {
		r.meter = otel.GetMeterProvider().Meter(meterName)
	}
	latency, err := r.meter.Float64Histogram("secrets.resolve.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Secret resolution latency by source"),
	)
	if err != nil {
		r.logger.Warn("secrets: latency metric unavailable", zap.Error(err))
	}
	r.latency = latency

	if r.client == nil {
		client, err := newSecretManagerClient(ctx, r.clientOpts...)
		if err != nil {
			r.logger.Warn("secrets: secret manager unavailable; serving fallback file only", zap.Error(err))
			return r, nil
		}
		r.client, r.ownsClient = client, true
	}
	return r, nil
}

// Close releases a client the resolver created itself.
func (r *Resolver) Close() error {
	if r == nil || !r.ownsClient {
		return nil
	}
	return r.client.Close()
}

func (r *Resolver) ResolveSecret(ctx context.Context, raw string) (string, error) {
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}
	start := time.Now()
	value, source, err := r.resolve(ctx, ref)
	if r.latency != nil {
		r.latency.Record(ctx, float64(time.Since(start).Microseconds())/1000,
			metric.WithAttributes(attribute.String("source", source)))
	}
	if err != nil {
		return "", err
	}
	return value, nil
}

func (r *Resolver) resolve(ctx context.Context, ref reference) (value, source string, err error) {
	r.mu.RLock()
	value, ok := r.cache[ref.cacheKey()]
	r.mu.RUnlock()
	if ok {
		return value, "cache", nil
	}

	project := ref.project
	if project == "" {
		project = r.project
	}
	if project != "" && r.client != nil {
		value, err := r.access(ctx, ref.resource(project))
		switch {
		case err == nil:
			r.remember(ref, value)
			return value, "remote", nil
		case !fallbackEligible(err):
			return "", "error", fmt.Errorf("secrets: fetch %s: %w", ref.canonical(), err)
		}
		r.logger.Debug("secrets: using fallback file", zap.String("ref", ref.canonical()), zap.Error(err))
	}

	value, ok, err = r.fallback.lookup(ref)
	if err != nil {
		return "", "error", err
	}
	if !ok {
		return "", "error", fmt.Errorf("secrets: no value found for %s", ref.canonical())
	}
	r.remember(ref, value)
	return value, "fallback", nil
}

func (r *Resolver) access(ctx context.Context, name string) (string, error) {
	resp, err := r.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
	if err != nil {
		return "", err
	}
	if resp.GetPayload() == nil {
		return "", fmt.Errorf("empty payload for %s", name)
	}
	return string(resp.GetPayload().GetData()), nil
}

func (r *Resolver) remember(ref reference, value string) {
	r.mu.Lock()
	r.cache[ref.cacheKey()] = value
	r.mu.Unlock()
}

func fallbackEligible(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	}
	return false
}

// Check backs the readiness probe: a Secret Manager client or a readable fallback file is enough.
func (r *Resolver) Check(context.Context) error {
	if r == nil {
		return errors.New("secrets: resolver is nil")
	}
	if r.client != nil {
		return nil
	}
	if _, err := r.fallback.load(); err != nil {
		return fmt.Errorf("secrets: secret manager unavailable and fallback unreadable: %w", err)
	}
	return nil
}
