package server

import (
	"time"

	"github.com/labstack/echo/v4"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/auth"
	"github.com/taghive/taghive/internal/user"
)

type usersViewRequest struct {
	UserIDs      []int64 `json:"user_ids"`
	FullViewMode bool    `json:"full_view_mode,omitempty"`
}

// userBasicView is the subset of account fields everyone may see.
type userBasicView struct {
	UserID       int64     `json:"user_id"`
	Username     string    `json:"username"`
	RegisteredAt time.Time `json:"registered_at"`
}

// handleUsersView returns accounts in basic mode for everyone; full
// mode (login, level, permission flags) is restricted to
// administrators and to a user looking at themselves.
func (s *Server) handleUsersView(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req usersViewRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.UserIDs) == 0 || len(req.UserIDs) > 1000 {
		return nil, apperr.BadRequestf("user_ids must contain 1..1000 ids")
	}

	if req.FullViewMode && !rc.caller.IsAdmin() {
		if len(req.UserIDs) != 1 || req.UserIDs[0] != rc.caller.UserID {
			return nil, apperr.New(apperr.Forbidden, "Forbidden", "full view mode requires administrator access")
		}
	}

	users, err := user.NewStore(rc.q, s.clk).GetMany(c.Request().Context(), req.UserIDs)
	if err != nil {
		return nil, err
	}
	if len(users) == 0 {
		return nil, apperr.NotFoundf("no matching users")
	}

	if req.FullViewMode {
		return map[string]any{"users": users}, nil
	}
	basic := make([]userBasicView, len(users))
	for i, u := range users {
		basic[i] = userBasicView{UserID: u.UserID, Username: u.Username, RegisteredAt: u.RegisteredAt}
	}
	return map[string]any{"users": basic}, nil
}

type usersUpdateRequest struct {
	User struct {
		UserID         int64   `json:"user_id"`
		Login          *string `json:"login,omitempty"`
		Username       *string `json:"username,omitempty"`
		Password       *string `json:"password,omitempty"`
		UserLevel      *string `json:"user_level,omitempty"`
		CanLogin       *bool   `json:"can_login,omitempty"`
		CanEditObjects *bool   `json:"can_edit_objects,omitempty"`
	} `json:"user"`

	// The acting administrator re-confirms their own password.
	TokenOwnerPassword string `json:"token_owner_password"`
}

func (s *Server) handleUsersUpdate(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req usersUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if req.User.UserID <= 0 {
		return nil, apperr.BadRequestf("user_id is required")
	}
	if req.User.Login != nil && (*req.User.Login == "" || len(*req.User.Login) > 255) {
		return nil, apperr.BadRequestf("login must be 1..255 characters")
	}
	if req.User.Username != nil && (*req.User.Username == "" || len(*req.User.Username) > 255) {
		return nil, apperr.BadRequestf("username must be 1..255 characters")
	}

	ctx := c.Request().Context()
	store := user.NewStore(rc.q, s.clk)

	owner, err := store.GetByID(ctx, rc.caller.UserID)
	if err != nil {
		return nil, err
	}
	if auth.CheckPassword(owner.PasswordHash, req.TokenOwnerPassword) != nil {
		return nil, apperr.New(apperr.Forbidden, "InvalidPassword", "token owner password does not match")
	}

	p := user.UpdateParams{
		Login:          req.User.Login,
		Username:       req.User.Username,
		UserLevel:      req.User.UserLevel,
		CanLogin:       req.User.CanLogin,
		CanEditObjects: req.User.CanEditObjects,
	}
	if req.User.Password != nil {
		if len(*req.User.Password) < 8 || len(*req.User.Password) > 72 {
			return nil, apperr.BadRequestf("password must be 8..72 characters")
		}
		hash, err := auth.HashPassword(*req.User.Password)
		if err != nil {
			return nil, err
		}
		p.PasswordHash = &hash
	}

	// The built-in admin keeps its level and login rights.
	if req.User.UserID == user.DefaultAdminID {
		if p.UserLevel != nil && *p.UserLevel != user.LevelAdmin {
			return nil, apperr.BadRequestf("the default admin cannot be demoted")
		}
		if p.CanLogin != nil && !*p.CanLogin {
			return nil, apperr.BadRequestf("the default admin cannot be locked out")
		}
	}

	u, err := store.Update(ctx, req.User.UserID, p)
	if err != nil {
		return nil, err
	}
	return map[string]any{"user": u}, nil
}
