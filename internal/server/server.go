// Package server provides the HTTP API, built on Echo v4. Every route
// is declared in the route table in routes.go; this file carries the
// request plumbing: bearer auth, per-request transactions, the error
// envelope, and the post-commit searchable enqueue.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/rs/xid"
	"go.uber.org/zap"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/clock"
	"github.com/taghive/taghive/internal/config"
	"github.com/taghive/taghive/internal/database"
	"github.com/taghive/taghive/internal/search"
)

// Server wraps the Echo instance and application dependencies.
type Server struct {
	echo    *echo.Echo
	cfg     *config.Config
	db      *database.DB
	clk     clock.Clock
	log     *zap.Logger
	indexer *search.Indexer
}

// New creates a configured Echo server with all routes registered.
func New(cfg *config.Config, db *database.DB, clk clock.Clock, log *zap.Logger, indexer *search.Indexer) *Server {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true // We log the listen address ourselves.

	e.Use(middleware.Recover())
	e.Use(middleware.BodyLimit(strconv.FormatInt(cfg.MaxBodyBytes, 10)))
	e.Use(middleware.RequestIDWithConfig(middleware.RequestIDConfig{
		Generator: func() string { return xid.New().String() },
	}))

	s := &Server{
		echo:    e,
		cfg:     cfg,
		db:      db,
		clk:     clk,
		log:     log,
		indexer: indexer,
	}

	s.registerRoutes()
	return s
}

// Start begins listening for HTTP requests. It blocks until the context
// is cancelled, then performs a graceful shutdown allowing in-flight
// requests to complete.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		s.log.Info("listening", zap.String("addr", s.cfg.ListenAddr))
		if err := s.echo.Start(s.cfg.ListenAddr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		s.log.Info("shutting down HTTP server")
		return s.echo.Shutdown(context.Background())
	}
}

// reqCtx carries the per-request state handlers need: the querier
// (transaction when the route declares one, pool otherwise), the
// resolved caller, and the searchable ids to enqueue after commit.
type reqCtx struct {
	q      database.Querier
	caller auth.Caller
	token  string

	pending []search.Item
}

func (rc *reqCtx) enqueueObjects(ids ...int64) {
	for _, id := range ids {
		rc.pending = append(rc.pending, search.Item{Kind: search.KindObject, ID: id})
	}
}

func (rc *reqCtx) enqueueTags(ids ...int64) {
	for _, id := range ids {
		rc.pending = append(rc.pending, search.Item{Kind: search.KindTag, ID: id})
	}
}

type handlerFunc func(c echo.Context, rc *reqCtx) (map[string]any, error)

// handle wraps a handler with the shared request pipeline: bearer
// validation, admin gating, optional transaction, post-commit enqueue,
// and the auth envelope with the prolonged token expiration.
func (s *Server) handle(rt route) echo.HandlerFunc {
	return func(c echo.Context) error {
		ctx := c.Request().Context()
		token := extractBearer(c)

		caller := auth.Anonymous
		var tokenExp *time.Time
		if token != "" && !rt.lenientAuth {
			svc := auth.NewService(s.db.Pool, s.clk, s.cfg.TokenLifetime())
			_, u, err := svc.Validate(ctx, token)
			if err != nil {
				return s.writeError(c, err)
			}
			caller = auth.CallerFor(u)
			exp, err := svc.Prolong(ctx, token)
			if err != nil {
				return s.writeError(c, err)
			}
			tokenExp = &exp
		} else if token != "" && rt.lenientAuth {
			// Logout and public settings view accept any syntactically
			// valid bearer; an unknown token degrades to anonymous.
			svc := auth.NewService(s.db.Pool, s.clk, s.cfg.TokenLifetime())
			if _, u, err := svc.Validate(ctx, token); err == nil {
				caller = auth.CallerFor(u)
				if exp, err := svc.Prolong(ctx, token); err == nil {
					tokenExp = &exp
				}
			}
		}

		if rt.admin {
			if caller.IsAnonymous() {
				return s.writeError(c, apperr.New(apperr.Unauthorized, "AuthRequired", "authentication is required"))
			}
			if !caller.IsAdmin() {
				return s.writeError(c, apperr.New(apperr.Forbidden, "Forbidden", "administrator access is required"))
			}
		}

		rc := &reqCtx{q: s.db.Pool, caller: caller, token: token}

		var tx pgx.Tx
		if rt.tx {
			var err error
			tx, err = s.db.Begin(ctx)
			if err != nil {
				return s.writeError(c, err)
			}
			defer tx.Rollback(ctx) //nolint:errcheck // no-op after commit
			rc.q = tx
		}

		body, err := rt.handler(c, rc)
		if err != nil {
			return s.writeError(c, err)
		}
		if tx != nil {
			if err := tx.Commit(ctx); err != nil {
				return s.writeError(c, database.MapError(err))
			}
		}
		// Enqueue only after a successful commit; a rollback must never
		// leave a stale index behind.
		s.indexer.Enqueue(rc.pending...)

		if rt.noContent {
			return c.NoContent(http.StatusOK)
		}
		if body == nil {
			body = map[string]any{}
		}
		if tokenExp != nil {
			body["auth"] = map[string]string{
				"access_token_expiration_time": tokenExp.UTC().Format(time.RFC3339),
			}
		}
		return c.JSON(http.StatusOK, body)
	}
}

// bindJSON decodes the request body; unknown top-level fields are a
// BadRequest.
func bindJSON(c echo.Context, dst any) error {
	dec := json.NewDecoder(c.Request().Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		return apperr.Wrap(apperr.BadRequest, "InvalidRequest", "invalid JSON body", err)
	}
	return nil
}

// extractBearer extracts the Bearer token from the Authorization header.
func extractBearer(c echo.Context) string {
	h := c.Request().Header.Get("Authorization")
	const prefix = "Bearer "
	if len(h) > len(prefix) && strings.EqualFold(h[:len(prefix)], prefix) {
		return h[len(prefix):]
	}
	return ""
}

// remoteIP resolves the client address for the rate-limit ledger. The
// Forwarded "for=" element is honored only behind a trusted proxy.
func (s *Server) remoteIP(c echo.Context) string {
	if s.cfg.App.TrustForwarded {
		if ip := forwardedFor(c.Request().Header.Get("Forwarded")); ip != "" {
			return ip
		}
	}
	return c.RealIP()
}

// forwardedFor pulls the first for= element out of an RFC 7239
// Forwarded header.
func forwardedFor(h string) string {
	for _, elem := range strings.Split(h, ",") {
		for _, part := range strings.Split(elem, ";") {
			k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
			if !ok || !strings.EqualFold(k, "for") {
				continue
			}
			v = strings.Trim(v, `"`)
			v = strings.TrimPrefix(v, "[")
			if i := strings.Index(v, "]"); i != -1 {
				v = v[:i]
			}
			if v != "" && !strings.HasPrefix(v, "_") {
				return v
			}
		}
	}
	return ""
}

// writeError maps a domain error onto the JSON error envelope. Internal
// details never reach the client; they go to the log.
func (s *Server) writeError(c echo.Context, err error) error {
	status := apperr.HTTPStatus(err)
	code, msg := "InternalError", "unexpected server error"

	var e *apperr.Error
	if errors.As(err, &e) && status < http.StatusInternalServerError {
		code, msg = e.Code, e.Message
		if e.RetryAfterSeconds > 0 {
			c.Response().Header().Set("Retry-After", strconv.Itoa(e.RetryAfterSeconds))
		}
	}
	if status >= http.StatusInternalServerError {
		s.log.Error("request failed",
			zap.String("request_id", c.Response().Header().Get(echo.HeaderXRequestID)),
			zap.String("path", c.Request().URL.Path),
			zap.Error(err))
	}
	return c.JSON(status, map[string]string{"error": code, "message": msg})
}
