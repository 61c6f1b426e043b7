package server

import (
	"github.com/labstack/echo/v4"

	"github.com/taghive/taghive/internal/apperr"
	"github.com/taghive/taghive/internal/settings"
)

type settingsViewRequest struct {
	SettingNames []string `json:"setting_names,omitempty"`
	ViewAll      bool     `json:"view_all,omitempty"`
}

// handleSettingsView returns settings by name or all of them.
// Administrators see everything; anyone else only public settings.
func (s *Server) handleSettingsView(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req settingsViewRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.SettingNames) == 0 && !req.ViewAll {
		return nil, apperr.BadRequestf("setting_names or view_all is required")
	}
	if len(req.SettingNames) > 0 && req.ViewAll {
		return nil, apperr.BadRequestf("setting_names and view_all are mutually exclusive")
	}

	out, err := settings.NewStore(rc.q).View(
		c.Request().Context(), req.SettingNames, !rc.caller.IsAdmin())
	if err != nil {
		return nil, err
	}
	if len(out) == 0 {
		return nil, apperr.NotFoundf("no matching settings")
	}
	return map[string]any{"settings": out}, nil
}

type settingsUpdateRequest struct {
	Settings map[string]string `json:"settings"`
}

func (s *Server) handleSettingsUpdate(c echo.Context, rc *reqCtx) (map[string]any, error) {
	var req settingsUpdateRequest
	if err := bindJSON(c, &req); err != nil {
		return nil, err
	}
	if len(req.Settings) == 0 {
		return nil, apperr.BadRequestf("settings must not be empty")
	}

	store := settings.NewStore(rc.q)
	if err := store.Update(c.Request().Context(), req.Settings); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(req.Settings))
	for name := range req.Settings {
		names = append(names, name)
	}
	out, err := store.View(c.Request().Context(), names, false)
	if err != nil {
		return nil, err
	}
	return map[string]any{"settings": out}, nil
}
