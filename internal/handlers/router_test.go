package handlers

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	domain "github.com/crumbline/orders-api/internal/domain"
	"github.com/crumbline/orders-api/internal/services"
)

func TestNewRouterRoutes(t *testing.T) {
	now := time.Date(2025, time.May, 3, 8, 0, 0, 0, time.UTC)
	health := NewHealthHandlers(
		WithHealthSystemService(&stubSystemService{
			report: services.SystemHealthReport{
				Status:      domain.HealthStatusOK,
				GeneratedAt: now,
				Checks: map[string]domain.SystemHealthCheck{
					"firestore": {Status: domain.HealthStatusOK},
				},
			},
		}),
		WithHealthClock(func() time.Time { return now }),
	)
	router := NewRouter(WithHealthHandlers(health))

	tests := []struct {
		name   string
		method string
		path   string
		status int
		code   string
	}{
		{name: "liveness", method: http.MethodGet, path: "/healthz", status: http.StatusOK},
		{name: "readiness", method: http.MethodGet, path: "/readyz", status: http.StatusOK},
		{name: "orders without service", method: http.MethodGet, path: "/api/v1/orders/ord_1", status: http.StatusServiceUnavailable, code: "order_service_unavailable"},
		{name: "orders root without service", method: http.MethodPost, path: "/api/v1/orders", status: http.StatusServiceUnavailable, code: "order_service_unavailable"},
		{name: "unknown path", method: http.MethodGet, path: "/does/not/exist", status: http.StatusNotFound, code: "route_not_found"},
		{name: "wrong method", method: http.MethodPost, path: "/healthz", status: http.StatusMethodNotAllowed, code: "method_not_allowed"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, httptest.NewRequest(tc.method, tc.path, nil))
			if rr.Code != tc.status {
				t.Fatalf("expected status %d, got %d", tc.status, rr.Code)
			}
			if ct := rr.Header().Get("Content-Type"); ct != "application/json" {
				t.Fatalf("expected application/json, got %q", ct)
			}
			if tc.code == "" {
				return
			}
			var body struct {
				Error     string `json:"error"`
				RequestID string `json:"request_id"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("expected JSON body: %v", err)
			}
			if body.Error != tc.code {
				t.Fatalf("expected %s, got %s", tc.code, body.Error)
			}
			if body.RequestID == "" {
				t.Fatalf("expected request id in error envelope")
			}
		})
	}
}

func TestNewRouterMountsOrderRegistrar(t *testing.T) {
	router := NewRouter(WithOrderRoutes(func(r chi.Router) {
		r.Get("/", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusNoContent)
		})
	}))

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if rr.Code != http.StatusNoContent {
		t.Fatalf("expected status 204, got %d", rr.Code)
	}
}

func TestNewRouterRunsMiddlewareAfterRequestID(t *testing.T) {
	var requestID string
	capture := func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			requestID = middleware.GetReqID(r.Context())
			w.Header().Set("X-Bakery", "open")
			next.ServeHTTP(w, r)
		})
	}

	rr := httptest.NewRecorder()
	NewRouter(WithMiddlewares(nil, capture)).ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rr.Header().Get("X-Bakery") != "open" {
		t.Fatalf("expected global middleware to run")
	}
	if requestID == "" {
		t.Fatalf("expected request id before custom middleware")
	}
}

func TestNewRouterAppliesRequestTimeout(t *testing.T) {
	var remaining time.Duration
	router := NewRouter(
		WithRequestTimeout(2*time.Second),
		WithOrderRoutes(func(r chi.Router) {
			r.Get("/", func(w http.ResponseWriter, r *http.Request) {
				deadline, ok := r.Context().Deadline()
				if ok {
					remaining = time.Until(deadline)
				}
				w.WriteHeader(http.StatusNoContent)
			})
		}),
	)

	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/api/v1/orders", nil))
	if remaining <= 0 || remaining > 2*time.Second {
		t.Fatalf("expected deadline within 2s, got %s", remaining)
	}
}
