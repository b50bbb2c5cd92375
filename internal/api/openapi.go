package api

import (
	"net/http"
	"strings"

	"github.com/mattjoyce/hostdeck/internal/auth"
)

type route struct {
	method  string
	path    string
	summary string
	scope   string
}

var workspaceRoutes = []route{
	{"get", "/workspaces/{ws}/tabs", "List tabs and the active tab", auth.ScopeWorkspaceRO},
	{"post", "/workspaces/{ws}/tabs/{id}/focus", "Focus a tab", auth.ScopeWorkspaceRW},
	{"delete", "/workspaces/{ws}/tabs/{id}", "Close a tab (confirm=true discards edits)", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/open", "Open an entity by ref", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/documents", "Open a new blank document", auth.ScopeWorkspaceRW},
	{"get", "/workspaces/{ws}/documents/{id}", "Get a document", auth.ScopeWorkspaceRO},
	{"put", "/workspaces/{ws}/documents/{id}", "Edit a document", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/documents/{id}/save", "Save a document (close=true closes it)", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/documents/{id}/execute", "Execute a query document", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/documents/{id}/revert", "Drop unsaved edits", auth.ScopeWorkspaceRW},
	{"get", "/workspaces/{ws}/views/{id}/entries", "List a view", auth.ScopeWorkspaceRO},
	{"post", "/workspaces/{ws}/views/{id}/navigate", "Enter a container or open an entry", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/views/{id}/up", "Move a view to its parent", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/views/{id}/mutations", "Create, delete or restore an entity", auth.ScopeWorkspaceRW},
	{"post", "/workspaces/{ws}/views/{id}/toggle", "Enable or disable an entry", auth.ScopeWorkspaceRW},
}

// buildOpenAPIDoc returns an OpenAPI 3.1 document for the workspace API. The
// {ws} parameter is limited to the configured workspace names.
func buildOpenAPIDoc(workspaces []string) map[string]any {
	paths := map[string]any{
		"/workspaces": map[string]any{"get": operation("List workspaces", auth.ScopeWorkspaceRO, nil)},
		"/events":     map[string]any{"get": operation("Stream workspace events (SSE)", auth.ScopeWorkspaceRO, nil)},
	}

	wsParam := map[string]any{
		"name":     "ws",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string", "enum": workspaces},
	}
	idParam := map[string]any{
		"name":     "id",
		"in":       "path",
		"required": true,
		"schema":   map[string]any{"type": "string"},
	}

	for _, rt := range workspaceRoutes {
		params := []any{wsParam}
		if strings.Contains(rt.path, "{id}") {
			params = append(params, idParam)
		}
		item, _ := paths[rt.path].(map[string]any)
		if item == nil {
			item = map[string]any{}
			paths[rt.path] = item
		}
		item[rt.method] = operation(rt.summary, rt.scope, params)
	}

	return map[string]any{
		"openapi": "3.1.0",
		"info": map[string]any{
			"title":   "hostdeck workspaces",
			"version": "1.0",
		},
		"paths": paths,
		"components": map[string]any{
			"securitySchemes": map[string]any{
				"BearerAuth": map[string]any{
					"type":   "http",
					"scheme": "bearer",
				},
			},
		},
	}
}

func operation(summary, scope string, params []any) map[string]any {
	op := map[string]any{
		"summary":   summary,
		"x-scope":   scope,
		"responses": map[string]any{
			"200": map[string]any{"description": "OK"},
			"401": map[string]any{"description": "Missing or invalid token"},
			"403": map[string]any{"description": "Insufficient scope"},
			"404": map[string]any{"description": "Unknown workspace, tab or entry"},
			"409": map[string]any{"description": "Document busy or tab has unsaved changes"},
			"502": map[string]any{"description": "Panel refused or unreachable"},
		},
		"security": []any{map[string]any{"BearerAuth": []string{}}},
	}
	if params != nil {
		op["parameters"] = params
	}
	return op
}

// handleOpenAPI handles GET /openapi.json.
func (s *Server) handleOpenAPI(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, buildOpenAPIDoc(s.workspaces.Names()))
}
