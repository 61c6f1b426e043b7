package server

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/settings"
	"github.com/taghive/taghive/internal/user"
)

type registerRequest struct {
	Login          string `json:"login"`
	Password       string `json:"password"`
	PasswordRepeat string `json:"password_repeat"`
	Username       string `json:"username"`

	// Admin-only fields; anonymous registration ignores them.
	UserLevel      string `json:"user_level,omitempty"`
	CanLogin       *bool  `json:"can_login,omitempty"`
	CanEditObjects *bool  `json:"can_edit_objects,omitempty"`
}

// handleRegister creates a user. Administrators may register anyone;
// anonymous callers are admitted only while the
// non_admin_registration_allowed setting is on, and always get a
// regular account that can log in and edit objects.
func (s *Server) handleRegister(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req registerRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.Login == "" || len(req.Login) > 255 {
		return nil, apperr.BadRequestf("login must be 1..255 characters")
	}
	if len(req.Password) < 8 || len(req.Password) > 72 {
		return nil, apperr.BadRequestf("password must be 8..72 characters")
	}
	if req.Password != req.PasswordRepeat {
		return nil, apperr.BadRequestf("password and password_repeat do not match")
	}
	if req.Username == "" {
		req.Username = req.Login
	}
	if len(req.Username) > 255 {
		return nil, apperr.BadRequestf("username must be at most 255 characters")
	}

	p := user.CreateParams{
		Login:          req.Login,
		Username:       req.Username,
		UserLevel:      user.LevelUser,
		CanLogin:       true,
		CanEditObjects: true,
	}
	if rc.caller.IsAdmin() {
		if req.UserLevel != "" {
			if req.UserLevel != user.LevelAdmin && req.UserLevel != user.LevelUser {
				return nil, apperr.BadRequestf("unknown user_level %q", req.UserLevel)
			}
			p.UserLevel = req.UserLevel
		}
		if req.CanLogin != nil {
			p.CanLogin = *req.CanLogin
		}
		if req.CanEditObjects != nil {
			p.CanEditObjects = *req.CanEditObjects
		}
	} else {
		if !rc.caller.IsAnonymous() {
			return nil, apperr.New(apperr.Forbidden, "Forbidden", "administrator access is required")
		}
		open, err := settings.NewStore(rc.q).GetBool(c.Request().Context(), settings.NonAdminRegistrationAllowed)
		if err != nil {
			return nil, err
		}
		if !open {
			return nil, apperr.New(apperr.Forbidden, "RegistrationClosed", "registration is not open")
		}
	}

	hash, err := auth.HashPassword(req.Password)
	if err != nil {
		return nil, err
	}
	p.PasswordHash = hash

	u, err := user.NewStore(rc.q, s.clk).Create(c.Request().Context(), p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": u}, nil
}

type loginRequest struct {
	Login    string `json:"login"`
	Password string `json:"password"`
}

// handleLogin authenticates and issues a bearer token. Failed attempts
// feed the per-IP ledger; locked-out addresses get a 429 with
// Retry-After.
func (s *Server) handleLogin(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req loginRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.Login == "" || req.Password == "" {
		return nil, apperr.BadRequestf("login and password are required")
	}

	svc := auth.NewService(rc.q, s.clk, s.cfg.TokenLifetime())
	sess, u, err := svc.Login(c.Request().Context(), req.Login, req.Password, s.remoteIP(c))
	if err != nil {
		return nil, err
	}
	return map[string]any{
		"auth": map[string]any{
			"access_token":                 sess.AccessToken,
			"access_token_expiration_time": sess.ExpirationTime.UTC().Format(time.RFC3339),
			"user_id":                      sess.UserID,
		},
		"user": u,
	}, nil
}

// handleLogout destroys the presented session if it exists. The route
// answers a bare 200 with an empty body rather than the JSON envelope.
func (s *Server) handleLogout(c echo.Context, rc *reqCtx) (map[string]any, error) {
	if rc.token == "" {
		return nil, apperr.New(apperr.Unauthorized, "AuthRequired", "Authorization header with Bearer token is required")
	}
	svc := auth.NewService(rc.q, s.clk, s.cfg.TokenLifetime())
	if err := svc.Logout(c.Request().Context(), rc.token); err != nil {
		return nil, err
	}
	return nil, nil
}
