package api

import (
	"github.com/mattjoyce/hostdeck/internal/browse"
	"github.com/mattjoyce/hostdeck/internal/document"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

// ErrorResponse is returned on errors
type ErrorResponse struct {
	Error string `json:"error"`
	// Transport is set when the panel could not be reached.
	Transport bool `json:"transport,omitempty"`
}

// HealthzResponse is returned by GET /healthz.
type HealthzResponse struct {
	Status        string `json:"status"`
	UptimeSeconds int64  `json:"uptime_seconds"`
	Workspaces    int    `json:"workspaces"`
}

// WorkspacesResponse is returned by GET /workspaces.
type WorkspacesResponse struct {
	Workspaces []workspace.Summary `json:"workspaces"`
}

// TabResponse names the tab an operation opened or focused.
type TabResponse struct {
	ID string `json:"id"`
}

// CloseResponse is returned by DELETE /workspaces/{ws}/tabs/{id}.
type CloseResponse struct {
	Closed bool   `json:"closed"`
	Active string `json:"active"`
}

// NewDocumentRequest is the optional body of POST /workspaces/{ws}/documents.
type NewDocumentRequest struct {
	// View selects the location the new entity is created at.
	View string `json:"view,omitempty"`
}

// OpenRequest is the body of POST /workspaces/{ws}/open.
type OpenRequest struct {
	Ref document.Ref `json:"ref"`
}

// EditRequest is the body of PUT /workspaces/{ws}/documents/{id}. Either
// Value replaces the whole value, or Field and FieldValue change one field.
type EditRequest struct {
	Value      *document.Value `json:"value,omitempty"`
	Field      string          `json:"field,omitempty"`
	FieldValue any             `json:"field_value,omitempty"`
}

// DocumentResponse is an open document with its derived dirty flag.
type DocumentResponse struct {
	document.Document
	Dirty bool `json:"dirty"`
}

// SaveResponse is returned by POST /workspaces/{ws}/documents/{id}/save.
type SaveResponse struct {
	Message string           `json:"message,omitempty"`
	Ref     document.Ref     `json:"ref"`
	Result  *document.Result `json:"result,omitempty"`
	Closed  bool             `json:"closed,omitempty"`
}

// ViewResponse is a browse view with its filtered listing.
type ViewResponse struct {
	View    browse.View    `json:"view"`
	Entries []browse.Entry `json:"entries"`
}

// NavigateRequest is the body of POST /workspaces/{ws}/views/{id}/navigate.
type NavigateRequest struct {
	Name   string `json:"name"`
	NewTab bool   `json:"new_tab,omitempty"`
}

// UpResponse reports whether a view moved.
type UpResponse struct {
	Moved bool `json:"moved"`
}

// MutationResponse carries the panel's message for a mutation.
type MutationResponse struct {
	Message string `json:"message,omitempty"`
}

// ToggleRequest is the body of POST /workspaces/{ws}/views/{id}/toggle.
type ToggleRequest struct {
	Name    string `json:"name"`
	Enabled bool   `json:"enabled"`
}
