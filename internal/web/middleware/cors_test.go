package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestIsLocalhostOrigin(t *testing.T) {
	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"localhost with port", "http://localhost:3000", true},
		{"localhost without port", "http://localhost", true},
		{"localhost https", "https://localhost:8443", true},
		{"loopback ip", "http://127.0.0.1:8080", true},
		{"ipv6 loopback", "http://[::1]:3000", true},
		{"localhost prefix attack", "http://localhostevil.com", false},
		{"localhost subdomain attack", "http://localhost.evil.com", false},
		{"plain host", "http://example.com", false},
		{"non-http scheme", "ftp://localhost", false},
		{"empty", "", false},
		{"garbage", "not a url", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isLocalhostOrigin(tt.origin); got != tt.want {
				t.Errorf("isLocalhostOrigin(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestIsOriginAllowed(t *testing.T) {
	allowed := parseAllowedOrigins("https://app.example.com, https://admin.example.com")

	tests := []struct {
		name   string
		origin string
		want   bool
	}{
		{"whitelisted", "https://app.example.com", true},
		{"second whitelisted", "https://admin.example.com", true},
		{"localhost bypasses whitelist", "http://localhost:5173", true},
		{"not whitelisted", "https://other.example.com", false},
		{"scheme mismatch", "http://app.example.com", false},
		{"no origin header", "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isOriginAllowed(tt.origin, allowed); got != tt.want {
				t.Errorf("isOriginAllowed(%q) = %v, want %v", tt.origin, got, tt.want)
			}
		})
	}
}

func TestCORS(t *testing.T) {
	handlerCalled := false
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		handlerCalled = true
		w.WriteHeader(http.StatusOK)
	})

	corsHandler := CORS("https://app.example.com")(testHandler)

	t.Run("allowed origin gets headers", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/groups", nil)
		req.Header.Set("Origin", "https://app.example.com")

		corsHandler.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.com" {
			t.Errorf("Allow-Origin = %q, want %q", got, "https://app.example.com")
		}
		if got := w.Header().Get("Access-Control-Allow-Credentials"); got != "true" {
			t.Errorf("Allow-Credentials = %q, want %q", got, "true")
		}
		if !handlerCalled {
			t.Error("Handler was not called")
		}
	})

	t.Run("disallowed origin gets no allow header", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/groups", nil)
		req.Header.Set("Origin", "https://evil.example.com")

		corsHandler.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "" {
			t.Errorf("Allow-Origin = %q, want empty", got)
		}
		// The request itself still runs; the browser enforces the block.
		if !handlerCalled {
			t.Error("Handler was not called")
		}
	})

	t.Run("preflight short-circuits", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodOptions, "/api/groups", nil)
		req.Header.Set("Origin", "https://app.example.com")

		corsHandler.ServeHTTP(w, req)

		if w.Code != http.StatusNoContent {
			t.Errorf("Status = %d, want %d", w.Code, http.StatusNoContent)
		}
		if handlerCalled {
			t.Error("Handler should not be called for preflight request")
		}
		if got := w.Header().Get("Access-Control-Allow-Methods"); got == "" {
			t.Error("Allow-Methods header missing on preflight response")
		}
	})

	t.Run("localhost origin allowed without configuration", func(t *testing.T) {
		handlerCalled = false
		w := httptest.NewRecorder()
		req := httptest.NewRequest("GET", "/api/groups", nil)
		req.Header.Set("Origin", "http://localhost:3000")

		corsHandler.ServeHTTP(w, req)

		if got := w.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
			t.Errorf("Allow-Origin = %q, want %q", got, "http://localhost:3000")
		}
		if !handlerCalled {
			t.Error("Handler was not called")
		}
	})
}

func TestSecurityHeaders(t *testing.T) {
	testHandler := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	handler := SecurityHeaders()(testHandler)

	w := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/api/stats", nil)

	handler.ServeHTTP(w, req)

	want := map[string]string{
		"Content-Security-Policy": "default-src 'none'; frame-ancestors 'none'",
		"X-Content-Type-Options":  "nosniff",
		"X-Frame-Options":         "DENY",
	}
	for header, value := range want {
		if got := w.Header().Get(header); got != value {
			t.Errorf("%s = %q, want %q", header, got, value)
		}
	}
}
