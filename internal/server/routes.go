package server

import "net/http"

// route declares one API endpoint. admin gates the route to
// administrators; tx wraps the handler in a transaction committed only
// on success; lenientAuth lets an unknown bearer degrade to anonymous
// instead of a 401 (logout, public settings view); noContent answers a
// bare 200 with an empty body instead of the JSON envelope.
type route struct {
	method      string
	path        string
	admin       bool
	tx          bool
	lenientAuth bool
	noContent   bool
	handler     handlerFunc
}

// routeTable declares every API endpoint.
func (s *Server) routeTable() []route {
	return []route{
		{method: http.MethodPost, path: "/auth/register", tx: true, handler: s.handleRegister},
		{method: http.MethodPost, path: "/auth/login", handler: s.handleLogin},
		{method: http.MethodPost, path: "/auth/logout", lenientAuth: true, noContent: true, handler: s.handleLogout},

		{method: http.MethodPost, path: "/tags/add", admin: true, tx: true, handler: s.handleTagsAdd},
		{method: http.MethodPut, path: "/tags/update", admin: true, tx: true, handler: s.handleTagsUpdate},
		{method: http.MethodPost, path: "/tags/view", handler: s.handleTagsView},
		{method: http.MethodDelete, path: "/tags/delete", admin: true, tx: true, handler: s.handleTagsDelete},
		{method: http.MethodPost, path: "/tags/get_page_tag_ids", handler: s.handleTagsPage},
		{method: http.MethodPost, path: "/tags/search", handler: s.handleTagsSearch},

		{method: http.MethodPost, path: "/objects/add", admin: true, tx: true, handler: s.handleObjectsAdd},
		{method: http.MethodPut, path: "/objects/update", admin: true, tx: true, handler: s.handleObjectsUpdate},
		{method: http.MethodPost, path: "/objects/bulk_upsert", admin: true, tx: true, handler: s.handleObjectsBulkUpsert},
		{method: http.MethodPost, path: "/objects/view", handler: s.handleObjectsView},
		{method: http.MethodPut, path: "/objects/update_tags", admin: true, tx: true, handler: s.handleObjectsUpdateTags},
		{method: http.MethodPost, path: "/objects/get_page_object_ids", handler: s.handleObjectsPage},
		{method: http.MethodPost, path: "/objects/search", handler: s.handleObjectsSearch},
		{method: http.MethodPost, path: "/objects/view_composite_hierarchy_elements", handler: s.handleObjectsHierarchy},
		{method: http.MethodDelete, path: "/objects/delete", admin: true, tx: true, handler: s.handleObjectsDelete},

		{method: http.MethodPost, path: "/settings/view", lenientAuth: true, handler: s.handleSettingsView},
		{method: http.MethodPut, path: "/settings/update", admin: true, handler: s.handleSettingsUpdate},

		{method: http.MethodPost, path: "/users/view", handler: s.handleUsersView},
		{method: http.MethodPut, path: "/users/update", admin: true, tx: true, handler: s.handleUsersUpdate},

		{method: http.MethodPost, path: "/search", handler: s.handleSearch},
	}
}

// registerRoutes sets up all HTTP routes from the declarative table.
func (s *Server) registerRoutes() {
	for _, rt := range s.routeTable() {
		s.echo.Add(rt.method, rt.path, s.handle(rt))
	}
}
