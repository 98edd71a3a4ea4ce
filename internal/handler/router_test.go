package handler

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/hitoshi/dosekeeper/internal/middleware"
	"github.com/hitoshi/dosekeeper/internal/model"
)

func newTestRouterDeps(service MedicationServiceInterface) *RouterDeps {
	return &RouterDeps{
		APIToken:          "test-token",
		CORSAllowedOrigin: "http://localhost:5173",
		RateLimiter:       middleware.NewRateLimiter(middleware.DefaultRateLimiterConfig()),
		Logger:            slog.New(slog.NewJSONHandler(io.Discard, nil)),
		MedicationService: service,
	}
}

// TestRouter_HealthIsPublic は/healthが認証なしで応答することを検証する。
func TestRouter_HealthIsPublic(t *testing.T) {
	deps := newTestRouterDeps(&mockMedicationService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}

// TestRouter_APIRequiresToken は/api/*がトークンなしで401になることを検証する。
func TestRouter_APIRequiresToken(t *testing.T) {
	deps := newTestRouterDeps(&mockMedicationService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/api/medications", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
}

// TestRouter_APIWithToken はトークン付きで全ルートが配線されていることを検証する。
func TestRouter_APIWithToken(t *testing.T) {
	med := sampleMedication()
	service := &mockMedicationService{
		listFn:     func() []*model.Medication { return []*model.Medication{med} },
		dueTodayFn: func() []*model.Medication { return nil },
		dueSoonFn:  func(window time.Duration) []*model.Medication { return nil },
		getFn:      func(id string) (*model.Medication, error) { return med, nil },
		nextDoseTimeFn: func(id string) (time.Time, bool, error) {
			return time.Time{}, false, nil
		},
		takenTodayFn: func(id string) ([]time.Time, error) { return nil, nil },
		toggleActiveFn: func(ctx context.Context, id string) (*model.Medication, error) {
			return med, nil
		},
	}
	deps := newTestRouterDeps(service)
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	routes := []struct {
		method string
		path   string
		want   int
	}{
		{http.MethodGet, "/api/medications", http.StatusOK},
		{http.MethodGet, "/api/medications/due-today", http.StatusOK},
		{http.MethodGet, "/api/medications/due-soon", http.StatusOK},
		{http.MethodGet, "/api/medications/med-1", http.StatusOK},
		{http.MethodPost, "/api/medications/med-1/toggle", http.StatusOK},
		{http.MethodGet, "/api/medications/med-1/taken", http.StatusOK},
		{http.MethodGet, "/api/medications/med-1/next-dose", http.StatusOK},
	}

	for _, tt := range routes {
		req := httptest.NewRequest(tt.method, tt.path, nil)
		req.Header.Set("Authorization", "Bearer test-token")
		w := httptest.NewRecorder()

		router.ServeHTTP(w, req)

		if w.Code != tt.want {
			t.Errorf("%s %s: status = %d, want %d: %s", tt.method, tt.path, w.Code, tt.want, w.Body.String())
		}
	}
}

// TestRouter_SecurityHeaders はセキュリティヘッダーが付与されることを検証する。
func TestRouter_SecurityHeaders(t *testing.T) {
	deps := newTestRouterDeps(&mockMedicationService{})
	defer deps.RateLimiter.Stop()
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	w := httptest.NewRecorder()

	router.ServeHTTP(w, req)

	if got := w.Result().Header.Get("X-Content-Type-Options"); got != "nosniff" {
		t.Errorf("X-Content-Type-Options = %q, want nosniff", got)
	}
	if got := w.Result().Header.Get("X-Frame-Options"); got != "DENY" {
		t.Errorf("X-Frame-Options = %q, want DENY", got)
	}
}

// TestRouter_MetricsHandler は/metricsが設定時のみ公開されることを検証する。
func TestRouter_MetricsHandler(t *testing.T) {
	deps := newTestRouterDeps(&mockMedicationService{})
	defer deps.RateLimiter.Stop()
	deps.MetricsHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	router := NewRouter(deps)

	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("status = %d, want %d", w.Code, http.StatusOK)
	}
}
