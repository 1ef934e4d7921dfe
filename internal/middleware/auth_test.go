package middleware

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/dukerupert/fampulse/internal/auth"
)

func TestRequireTokenMissing(t *testing.T) {
	handler := RequireToken(auth.NewTokens("s3cret", time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/rest/v1/profiles", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", rec.Code, http.StatusUnauthorized)
	}
	if !strings.Contains(rec.Body.String(), `"error"`) {
		t.Errorf("body = %q, want JSON error", rec.Body.String())
	}
}

func TestRequireTokenInvalid(t *testing.T) {
	handler := RequireToken(auth.NewTokens("s3cret", time.Hour))(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatal("should not reach handler")
	}))
	other, _ := auth.NewTokens("other", time.Hour).Issue(auth.AuthContext{UserID: "asha"})

	for _, h := range []string{"Bearer " + other, "Basic abc", "Bearer"} {
		req := httptest.NewRequest("GET", "/", nil)
		req.Header.Set("Authorization", h)
		rec := httptest.NewRecorder()
		handler.ServeHTTP(rec, req)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("%q: status = %d, want %d", h, rec.Code, http.StatusUnauthorized)
		}
	}
}

func TestRequireTokenValid(t *testing.T) {
	tokens := auth.NewTokens("s3cret", time.Hour)
	tok, err := tokens.Issue(auth.AuthContext{UserID: "asha", FamilyID: "fam-1"})
	if err != nil {
		t.Fatalf("Issue: %v", err)
	}

	var got auth.AuthContext
	handler := RequireToken(tokens)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = auth.FromContext(r.Context())
		w.WriteHeader(http.StatusOK)
	}))

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	if got.UserID != "asha" || got.FamilyID != "fam-1" {
		t.Errorf("auth context = %+v", got)
	}

	req = httptest.NewRequest("GET", "/realtime/v1?access_token="+tok, nil)
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Errorf("query token: status = %d", rec.Code)
	}
}

func TestRequestLoggerObserves(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	var route string
	var status int
	obs := func(method, r string, s int, _ time.Duration) { route, status = r, s }

	mux := http.NewServeMux()
	mux.HandleFunc("GET /items/{id}", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})
	handler := RequestLogger(logger, obs)(mux)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest("GET", "/items/42", nil))

	if status != http.StatusNotFound {
		t.Errorf("observed status = %d", status)
	}
	if route != "unmatched" && route != "GET /items/{id}" {
		t.Errorf("observed route = %q", route)
	}
	if !strings.Contains(buf.String(), "status=404") {
		t.Errorf("log = %q", buf.String())
	}
}
