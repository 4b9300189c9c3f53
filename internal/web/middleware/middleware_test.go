package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/JonMunkholm/multinet/internal/auth"
	"github.com/JonMunkholm/multinet/internal/config"
	"github.com/JonMunkholm/multinet/internal/core"
)

func TestTrustedRealIP(t *testing.T) {
	tests := []struct {
		name    string
		trusted []string
		remote  string
		headers map[string]string
		want    string
	}{
		{"no proxies", nil, "203.0.113.5:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "203.0.113.5"},
		{"trusted real ip", []string{"10.0.0.0/8"}, "10.1.2.3:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"trusted forwarded for", []string{"10.0.0.1"}, "10.0.0.1:4000", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.1"}, "5.6.7.8"},
		{"untrusted source", []string{"10.0.0.0/8"}, "192.0.2.1:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "192.0.2.1"},
		{"garbage header", []string{"10.0.0.0/8"}, "10.0.0.9:4000", map[string]string{"X-Real-IP": "nope"}, "10.0.0.9"},
		{"invalid proxy entry ignored", []string{"bogus", "10.0.0.0/8"}, "10.0.0.9:4000", map[string]string{"X-Real-IP": "1.2.3.4"}, "1.2.3.4"},
		{"ipv6 proxy", []string{"::1"}, "[::1]:4000", map[string]string{"X-Real-IP": "2001:db8::1"}, "2001:db8::1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got, ua string
			h := TrustedRealIP(tt.trusted)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				got = core.GetIPAddressFromContext(r.Context())
				ua = core.GetUserAgentFromContext(r.Context())
			}))

			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			req.Header.Set("User-Agent", "test-agent")
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			h.ServeHTTP(httptest.NewRecorder(), req)

			assert.Equal(t, tt.want, got)
			assert.Equal(t, "test-agent", ua)
		})
	}
}

type recordedError struct {
	err error
}

func (re *recordedError) write(w http.ResponseWriter, _ *http.Request, err error) {
	re.err = err
	w.WriteHeader(http.StatusTeapot)
}

func newAuthRouter(t *testing.T, cfg config.SecurityConfig, need auth.Level, onError ErrorFunc) (*chi.Mux, *string) {
	t.Helper()
	authz, err := auth.NewStatic(cfg)
	require.NoError(t, err)

	var principal string
	r := chi.NewRouter()
	r.Use(APIKeyAuth(authz, onError))
	r.With(RequireLevel(authz, need, onError)).Post("/ws/{workspace}", func(w http.ResponseWriter, r *http.Request) {
		principal = core.GetPrincipalFromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	return r, &principal
}

func TestAPIKeyAuth(t *testing.T) {
	cfg := config.SecurityConfig{RequireAPIKey: true, APIKeys: []string{"wk=writer", "rk=reader"}}

	tests := []struct {
		name    string
		key     string
		wantErr error
	}{
		{"missing", "", auth.ErrMissingKey},
		{"invalid", "zz", auth.ErrInvalidKey},
		{"insufficient", "rk", auth.ErrPermissionDenied},
		{"allowed", "wk", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &recordedError{}
			r, principal := newAuthRouter(t, cfg, auth.LevelWriter, rec.write)

			req := httptest.NewRequest(http.MethodPost, "/ws/lab", nil)
			if tt.key != "" {
				req.Header.Set(APIKeyHeader, tt.key)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			if tt.wantErr != nil {
				assert.ErrorIs(t, rec.err, tt.wantErr)
				assert.Equal(t, http.StatusTeapot, w.Code)
				return
			}
			assert.NoError(t, rec.err)
			assert.Equal(t, http.StatusNoContent, w.Code)
			assert.Equal(t, "apikey-1", *principal)
		})
	}
}

func TestAPIKeyAuth_Disabled(t *testing.T) {
	rec := &recordedError{}
	r, principal := newAuthRouter(t, config.SecurityConfig{}, auth.LevelOwner, rec.write)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/ws/lab", nil))

	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "anonymous", *principal)
}

func TestRequireLevel_WithoutPrincipal(t *testing.T) {
	authz, err := auth.NewStatic(config.SecurityConfig{})
	require.NoError(t, err)

	rec := &recordedError{}
	h := RequireLevel(authz, auth.LevelReader, rec.write)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("handler must not run")
	}))
	h.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/", nil))

	assert.ErrorIs(t, rec.err, auth.ErrMissingKey)
}

func TestLogger_PassesThrough(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte("ok"))
	}))

	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Equal(t, "ok", w.Body.String())
}
