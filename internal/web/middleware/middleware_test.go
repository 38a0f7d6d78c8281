package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/JonMunkholm/gemstock/internal/config"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{
			name:    "untrusted proxy keeps connection address",
			remote:  "198.51.100.4:5123",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "198.51.100.4",
		},
		{
			name:    "trusted proxy uses X-Real-IP",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "203.0.113.9",
		},
		{
			name:    "trusted single IP uses first X-Forwarded-For",
			trusted: []string{"127.0.0.1"},
			remote:  "127.0.0.1:8000",
			headers: map[string]string{"X-Forwarded-For": "203.0.113.9, 10.0.0.1"},
			want:    "203.0.113.9",
		},
		{
			name:    "invalid header value is ignored",
			trusted: []string{"10.0.0.0/8"},
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Real-IP": "not-an-ip"},
			want:    "10.1.2.3",
		},
		{
			name:    "bad CIDR entries are skipped",
			trusted: []string{"garbage", ""},
			remote:  "10.1.2.3:443",
			headers: map[string]string{"X-Real-IP": "203.0.113.9"},
			want:    "10.1.2.3",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = r.RemoteAddr
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestAPIKeyAuth(t *testing.T) {
	ok := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	cfg := config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"k1", "k2"}}

	tests := []struct {
		name   string
		cfg    config.SecurityConfig
		header string
		query  string
		want   int
	}{
		{name: "disabled", cfg: config.SecurityConfig{}, want: http.StatusNoContent},
		{name: "missing", cfg: cfg, want: http.StatusUnauthorized},
		{name: "wrong", cfg: cfg, header: "nope", want: http.StatusForbidden},
		{name: "header", cfg: cfg, header: "k2", want: http.StatusNoContent},
		{name: "query for event streams", cfg: cfg, query: "?api_key=k1", want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/uploads/x/progress"+tt.query, nil)
			if tt.header != "" {
				req.Header.Set("X-API-Key", tt.header)
			}
			rec := httptest.NewRecorder()
			APIKeyAuth(tt.cfg)(ok).ServeHTTP(rec, req)
			assert.Equal(t, tt.want, rec.Code)
		})
	}
}

func TestLogger_PassesThroughStatusAndFlush(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("hello"))
		w.(http.Flusher).Flush()
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/api/uploads", nil))

	assert.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, "hello", rec.Body.String())
	assert.True(t, rec.Flushed)
}
