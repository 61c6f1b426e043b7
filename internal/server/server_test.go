package server

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/config"
	"github.com/taghive/taghive/internal/database"
	"github.com/taghive/taghive/internal/search"
)

func newTestContext(t *testing.T, header http.Header) (echo.Context, *httptest.ResponseRecorder) {
	t.Helper()
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", nil)
	if header != nil {
		req.Header = header
	}
	rec := httptest.NewRecorder()
	return e.NewContext(req, rec), rec
}

func TestExtractBearer(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"well formed", "Bearer abc123", "abc123"},
		{"case insensitive scheme", "bearer abc123", "abc123"},
		{"missing header", "", ""},
		{"wrong scheme", "Basic abc123", ""},
		{"scheme only", "Bearer ", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := http.Header{}
			if tt.header != "" {
				h.Set("Authorization", tt.header)
			}
			c, _ := newTestContext(t, h)
			assert.Equal(t, tt.want, extractBearer(c))
		})
	}
}

func TestForwardedFor(t *testing.T) {
	tests := []struct {
		name   string
		header string
		want   string
	}{
		{"plain", "for=203.0.113.60", "203.0.113.60"},
		{"quoted with port", `for="203.0.113.60:4711"`, "203.0.113.60:4711"},
		{"ipv6 bracketed", `for="[2001:db8::1]:8080"`, "2001:db8::1"},
		{"with proto and by", "proto=https;by=10.0.0.1;for=198.51.100.17", "198.51.100.17"},
		{"first element wins", "for=198.51.100.17, for=198.51.100.18", "198.51.100.17"},
		{"obfuscated skipped", "for=_hidden, for=198.51.100.18", "198.51.100.18"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, forwardedFor(tt.header))
		})
	}
}

func TestRemoteIPTrustsForwardedOnlyWhenConfigured(t *testing.T) {
	h := http.Header{}
	h.Set("Forwarded", "for=203.0.113.60")

	trusted := &Server{cfg: &config.Config{App: config.AppConfig{TrustForwarded: true}}}
	c, _ := newTestContext(t, h)
	assert.Equal(t, "203.0.113.60", trusted.remoteIP(c))

	untrusted := &Server{cfg: &config.Config{}}
	c, _ = newTestContext(t, h)
	assert.NotEqual(t, "203.0.113.60", untrusted.remoteIP(c))
}

func TestBindJSONRejectsUnknownFields(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"login":"a","surprise":1}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var dst loginRequest
	err := bindJSON(c, &dst)
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestWriteErrorEnvelope(t *testing.T) {
	s := &Server{log: zap.NewNop()}

	t.Run("domain error passes code and message", func(t *testing.T) {
		c, rec := newTestContext(t, nil)
		err := s.writeError(c, apperr.New(apperr.NotFound, "NotFound", "no such tag"))
		require.NoError(t, err)
		assert.Equal(t, http.StatusNotFound, rec.Code)
		assert.JSONEq(t, `{"error":"NotFound","message":"no such tag"}`, rec.Body.String())
	})

	t.Run("rate limited sets Retry-After", func(t *testing.T) {
		c, rec := newTestContext(t, nil)
		e := apperr.New(apperr.RateLimited, "TooManyFailedLogins", "slow down")
		e.RetryAfterSeconds = 30
		require.NoError(t, s.writeError(c, e))
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
		assert.Equal(t, "30", rec.Header().Get("Retry-After"))
	})

	t.Run("internal details stay hidden", func(t *testing.T) {
		c, rec := newTestContext(t, nil)
		require.NoError(t, s.writeError(c, assert.AnError))
		assert.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.NotContains(t, rec.Body.String(), assert.AnError.Error())
	})
}

func TestRouteTable(t *testing.T) {
	s := &Server{}
	byPath := map[string]route{}
	for _, rt := range s.routeTable() {
		byPath[rt.method+" "+rt.path] = rt
	}
	assert.Len(t, byPath, 23, "every declared route is unique")

	adminOnly := []string{
		"POST /tags/add", "PUT /tags/update", "DELETE /tags/delete",
		"POST /objects/add", "PUT /objects/update", "POST /objects/bulk_upsert",
		"PUT /objects/update_tags", "DELETE /objects/delete",
		"PUT /settings/update", "PUT /users/update",
	}
	for key, rt := range byPath {
		wantAdmin := false
		for _, a := range adminOnly {
			if a == key {
				wantAdmin = true
			}
		}
		assert.Equal(t, wantAdmin, rt.admin, key)
	}

	// Mutating routes commit through a transaction; lenient auth is
	// limited to logout and the public settings view.
	for _, key := range []string{
		"POST /tags/add", "PUT /tags/update", "DELETE /tags/delete",
		"POST /objects/bulk_upsert", "DELETE /objects/delete", "PUT /users/update",
	} {
		assert.True(t, byPath[key].tx, key)
	}
	assert.True(t, byPath["POST /auth/logout"].lenientAuth)
	assert.True(t, byPath["POST /settings/view"].lenientAuth)
	assert.False(t, byPath["POST /auth/login"].lenientAuth)

	// Logout is the only route answering outside the JSON envelope.
	for key, rt := range byPath {
		assert.Equal(t, key == "POST /auth/logout", rt.noContent, key)
	}
}

func TestRegisterBodyBinds(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"login":"reader","username":"Reader","password":"hunter2hunter2","password_repeat":"hunter2hunter2"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	var dst registerRequest
	require.NoError(t, bindJSON(c, &dst))
	assert.Equal(t, "hunter2hunter2", dst.PasswordRepeat)
}

func TestRegisterPasswordRepeatMismatch(t *testing.T) {
	s := &Server{}
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/",
		strings.NewReader(`{"login":"reader","password":"hunter2hunter2","password_repeat":"something-else"}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	c := e.NewContext(req, httptest.NewRecorder())

	_, err := s.handleRegister(c, &reqCtx{})
	assert.True(t, apperr.Is(err, apperr.BadRequest))
}

func TestNoContentRouteSkipsEnvelope(t *testing.T) {
	s := &Server{
		log:     zap.NewNop(),
		db:      &database.DB{},
		indexer: search.NewIndexer(nil, nil, zap.NewNop(), false),
	}
	called := false
	h := s.handle(route{noContent: true, handler: func(echo.Context, *reqCtx) (map[string]any, error) {
		called = true
		return nil, nil
	}})

	c, rec := newTestContext(t, nil)
	require.NoError(t, h(c))
	assert.True(t, called)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Empty(t, rec.Body.String())
}
