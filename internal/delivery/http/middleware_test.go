package http

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func request(t *testing.T, method, path, origin string, origins ...string) *httptest.ResponseRecorder {
	t.Helper()
	router, dataDir := setupRouterWithOrigins(t, origins...)
	seedCheckpoint(t, dataDir)

	req, _ := http.NewRequest(method, path, nil)
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	if method == http.MethodOptions {
		req.Header.Set("Access-Control-Request-Method", "GET")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCORS_ConfiguredOrigins(t *testing.T) {
	tests := []struct {
		name    string
		origin  string
		origins []string
		allowed bool
	}{
		{"localhost any port", "http://localhost:5173", []string{"http://localhost:*"}, true},
		{"exact dashboard", "https://dashboard.example.com", []string{"http://localhost:*", "https://dashboard.example.com"}, true},
		{"trailing slash in config", "https://dashboard.example.com", []string{"https://dashboard.example.com/"}, true},
		{"wildcard everything", "https://anywhere.example.org", []string{"*"}, true},
		{"port pattern needs a port", "http://localhost:", []string{"http://localhost:*"}, false},
		{"port pattern rejects other hosts", "http://localhost:80.evil.com", []string{"http://localhost:*"}, false},
		{"unknown origin", "https://evil.example.com", []string{"http://localhost:*"}, false},
		{"nothing configured", "http://localhost:5173", nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := request(t, http.MethodGet, "/api/v1/retailers/giant/progress", tt.origin, tt.origins...)

			if w.Code != http.StatusOK {
				t.Fatalf("Status = %d, want %d", w.Code, http.StatusOK)
			}
			got := w.Header().Get("Access-Control-Allow-Origin")
			if tt.allowed && got != tt.origin {
				t.Errorf("Access-Control-Allow-Origin = %q, want %q", got, tt.origin)
			}
			if !tt.allowed && got != "" {
				t.Errorf("Access-Control-Allow-Origin = %q, want none", got)
			}
			if w.Header().Get("Vary") != "Origin" {
				t.Errorf("Vary = %q, want Origin", w.Header().Get("Vary"))
			}
		})
	}
}

func TestCORS_ReadOnlyHeaders(t *testing.T) {
	w := request(t, http.MethodGet, "/api/v1/retailers/wholefoods/catalogue", "http://localhost:3000", "http://localhost:*")

	if got := w.Header().Get("Access-Control-Allow-Methods"); got != "GET, OPTIONS" {
		t.Errorf("Access-Control-Allow-Methods = %q, want %q", got, "GET, OPTIONS")
	}
	if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "" {
		t.Errorf("Access-Control-Allow-Credentials = %q, want none", got)
	}
	if w.Code != http.StatusNotFound {
		t.Errorf("Status = %d, want %d for a catalogue that was never crawled", w.Code, http.StatusNotFound)
	}
}

func TestCORS_Preflight(t *testing.T) {
	t.Run("allowed origin gets no content", func(t *testing.T) {
		w := request(t, http.MethodOptions, "/api/v1/retailers/giant/progress", "http://localhost:3000", "http://localhost:*")

		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if w.Header().Get("Access-Control-Max-Age") != "3600" {
			t.Errorf("Access-Control-Max-Age = %q, want 3600", w.Header().Get("Access-Control-Max-Age"))
		}
		if w.Body.Len() != 0 {
			t.Errorf("Preflight body = %q, want empty", w.Body.String())
		}
	})

	t.Run("unknown origin is refused", func(t *testing.T) {
		w := request(t, http.MethodOptions, "/api/v1/retailers/giant/progress", "https://evil.example.com", "http://localhost:*")

		if w.Code != http.StatusForbidden {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusForbidden)
		}
		if w.Header().Get("Access-Control-Allow-Origin") != "" {
			t.Errorf("Access-Control-Allow-Origin should not be set for refused preflight")
		}
	})
}
