package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

type stubAccessor struct {
	mu     sync.Mutex
	values map[string]string
	err    error
	calls  map[string]int
}

func newStubAccessor(values map[string]string) *stubAccessor {
	return &stubAccessor{values: values, calls: map[string]int{}}
}

func (s *stubAccessor) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[req.GetName()]++
	if s.err != nil {
		return nil, s.err
	}
	value, ok := s.values[req.GetName()]
	if !ok {
		return nil, status.Error(codes.NotFound, "no such secret")
	}
	return &secretmanagerpb.AccessSecretVersionResponse{
		Name:    req.GetName(),
		Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
	}, nil
}

func (s *stubAccessor) Close() error { return nil }

func (s *stubAccessor) count(name string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[name]
}

func writeFallback(t *testing.T, lines ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "secrets.env")
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o600); err != nil {
		t.Fatalf("write fallback: %v", err)
	}
	return path
}

func withoutSecretManager(t *testing.T) {
	t.Helper()
	previous := newSecretManagerClient
	newSecretManagerClient = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no default credentials")
	}
	t.Cleanup(func() { newSecretManagerClient = previous })
}

func TestResolveSecret(t *testing.T) {
	const (
		latest   = "projects/bakery/secrets/firebase-credentials/versions/latest"
		pinned   = "projects/ovens/secrets/orders-topic/versions/3"
		fallback = "secret://firebase-credentials=local-json"
	)

	tests := []struct {
		name      string
		remote    map[string]string
		remoteErr error
		fallback  []string
		ref       string
		want      string
		wantErr   bool
	}{
		{
			name:   "remote latest with default project",
			remote: map[string]string{latest: `{"type":"service_account"}`},
			ref:    "secret://firebase-credentials",
			want:   `{"type":"service_account"}`,
		},
		{
			name:   "sm alias with version and project",
			remote: map[string]string{pinned: "orders-v3"},
			ref:    "sm://orders-topic?version=3&project=ovens",
			want:   "orders-v3",
		},
		{
			name:      "permission denied uses fallback",
			remoteErr: status.Error(codes.PermissionDenied, "denied"),
			fallback:  []string{"# local values", fallback},
			ref:       "secret://firebase-credentials",
			want:      "local-json",
		},
		{
			name:      "unavailable uses fallback",
			remoteErr: status.Error(codes.Unavailable, "down"),
			fallback:  []string{fallback},
			ref:       "secret://firebase-credentials",
			want:      "local-json",
		},
		{
			name:      "fallback answers for any version",
			remoteErr: status.Error(codes.Unauthenticated, "no creds"),
			fallback:  []string{"secret://orders-topic=local-topic"},
			ref:       "secret://orders-topic?version=2",
			want:      "local-topic",
		},
		{
			name:     "missing remote secret does not fall back",
			remote:   map[string]string{},
			fallback: []string{fallback},
			ref:      "secret://firebase-credentials",
			wantErr:  true,
		},
		{
			name:    "unsupported scheme",
			ref:     "vault://firebase-credentials",
			wantErr: true,
		},
		{
			name:    "missing name",
			ref:     "secret://",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stub := newStubAccessor(tt.remote)
			stub.err = tt.remoteErr
			resolver, err := NewResolver(context.Background(),
				WithSecretManagerClient(stub),
				WithDefaultProject("bakery"),
				WithFallbackFile(writeFallback(t, tt.fallback...)),
			)
			if err != nil {
				t.Fatalf("NewResolver: %v", err)
			}

			got, err := resolver.ResolveSecret(context.Background(), tt.ref)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %q", got)
				}
				return
			}
			if err != nil {
				t.Fatalf("ResolveSecret: %v", err)
			}
			if got != tt.want {
				t.Fatalf("expected %q, got %q", tt.want, got)
			}
		})
	}
}

func TestResolveSecretCachesPerVersion(t *testing.T) {
	stub := newStubAccessor(map[string]string{
		"projects/bakery/secrets/topic/versions/latest": "current",
		"projects/bakery/secrets/topic/versions/1":      "first",
	})
	resolver, err := NewResolver(context.Background(), WithSecretManagerClient(stub), WithDefaultProject("bakery"))
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}

	for range 3 {
		if got, _ := resolver.ResolveSecret(context.Background(), "secret://topic"); got != "current" {
			t.Fatalf("expected current, got %q", got)
		}
		if got, _ := resolver.ResolveSecret(context.Background(), "secret://topic?version=1"); got != "first" {
			t.Fatalf("expected first, got %q", got)
		}
	}
	if n := stub.count("projects/bakery/secrets/topic/versions/latest"); n != 1 {
		t.Fatalf("expected one remote call for latest, got %d", n)
	}
	if n := stub.count("projects/bakery/secrets/topic/versions/1"); n != 1 {
		t.Fatalf("expected one remote call for version 1, got %d", n)
	}
}

func TestResolverWithoutCredentialsServesFallback(t *testing.T) {
	withoutSecretManager(t)

	resolver, err := NewResolver(context.Background(),
		WithDefaultProject("bakery"),
		WithFallbackFile(writeFallback(t, "sm://payments-webhook = whsec_local")),
	)
	if err != nil {
		t.Fatalf("NewResolver: %v", err)
	}
	got, err := resolver.ResolveSecret(context.Background(), "secret://payments-webhook")
	if err != nil {
		t.Fatalf("ResolveSecret: %v", err)
	}
	if got != "whsec_local" {
		t.Fatalf("expected whsec_local, got %q", got)
	}
	if err := resolver.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
}

func TestResolverCheck(t *testing.T) {
	withoutSecretManager(t)

	tests := []struct {
		name    string
		opts    []Option
		wantErr bool
	}{
		{name: "remote client", opts: []Option{WithSecretManagerClient(newStubAccessor(nil))}},
		{name: "missing fallback file", opts: []Option{WithFallbackFile(filepath.Join(t.TempDir(), "absent"))}},
		{name: "unreadable fallback", opts: []Option{WithFallbackFile(t.TempDir())}, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resolver, err := NewResolver(context.Background(), tt.opts...)
			if err != nil {
				t.Fatalf("NewResolver: %v", err)
			}
			err = resolver.Check(context.Background())
			if tt.wantErr != (err != nil) {
				t.Fatalf("Check error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}

	var nilResolver *Resolver
	if err := nilResolver.Check(context.Background()); err == nil {
		t.Fatal("expected error from nil resolver")
	}
}
