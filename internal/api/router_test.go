package api

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/evtxhunter/evtxhunter/internal/apiauth"
	"github.com/evtxhunter/evtxhunter/internal/detect"
)

func TestRouterRequiresAuth(t *testing.T) {
	store := detect.NewAlertStore(false)
	jwtSvc := apiauth.NewJWTService([]byte("secret"))
	auth := apiauth.NewAuthenticator(jwtSvc, nil)

	r := NewRouter(store, detect.RunStats{}, Config{Auth: auth})

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("status = %d, want 401", rec.Code)
	}
}

func TestRouterServesAlertsWithValidToken(t *testing.T) {
	store := detect.NewAlertStore(false)
	store.Add(detect.AlertRow{Timestamp: time.Now(), RuleID: "rule-1", RuleLevel: "high"})

	jwtSvc := apiauth.NewJWTService([]byte("secret"))
	auth := apiauth.NewAuthenticator(jwtSvc, nil)
	token, err := jwtSvc.GenerateToken("tester", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	r := NewRouter(store, detect.RunStats{RecordsSeen: 1}, Config{Auth: auth})

	req := httptest.NewRequest(http.MethodGet, "/alerts", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200, body %s", rec.Code, rec.Body.String())
	}
}

func TestRouterHealthIsPublic(t *testing.T) {
	r := NewRouter(detect.NewAlertStore(false), detect.RunStats{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

func TestRouterNotFound(t *testing.T) {
	r := NewRouter(detect.NewAlertStore(false), detect.RunStats{}, Config{})

	req := httptest.NewRequest(http.MethodGet, "/nope", nil)
	rec := httptest.NewRecorder()
	r.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d, want 404", rec.Code)
	}
}

func TestRouterRateLimitsAfterAuth(t *testing.T) {
	store := detect.NewAlertStore(false)
	jwtSvc := apiauth.NewJWTService([]byte("secret"))
	auth := apiauth.NewAuthenticator(jwtSvc, nil)
	token, err := jwtSvc.GenerateToken("tester", time.Hour)
	if err != nil {
		t.Fatalf("GenerateToken: %v", err)
	}

	limiter := apiauth.NewRateLimiter(1)
	r := NewRouter(store, detect.RunStats{}, Config{Auth: auth, RequestLimiter: limiter})

	makeReq := func() *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, "/stats", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		r.ServeHTTP(rec, req)
		return rec
	}

	if rec := makeReq(); rec.Code != http.StatusOK {
		t.Fatalf("first request: status = %d, want 200", rec.Code)
	}
	if rec := makeReq(); rec.Code != http.StatusTooManyRequests {
		t.Fatalf("second request: status = %d, want 429", rec.Code)
	}
}
