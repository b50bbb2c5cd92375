package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/mattjoyce/hostdeck/internal/gateway"
	"github.com/mattjoyce/hostdeck/internal/tabs"
	"github.com/mattjoyce/hostdeck/internal/workspace"
)

// handleHealthz handles GET /healthz (no auth).
func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, HealthzResponse{
		Status:        "ok",
		UptimeSeconds: int64(time.Since(s.startedAt).Seconds()),
		Workspaces:    len(s.workspaces.Names()),
	})
}

// handleListWorkspaces handles GET /workspaces.
func (s *Server) handleListWorkspaces(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, WorkspacesResponse{Workspaces: s.workspaces.Summaries()})
}

// handleTabs handles GET /workspaces/{ws}/tabs.
func (s *Server) handleTabs(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, controllerFrom(r).Tabs())
}

// handleFocus handles POST /workspaces/{ws}/tabs/{id}/focus.
func (s *Server) handleFocus(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if !controllerFrom(r).Focus(r.Context(), id) {
		s.writeError(w, http.StatusNotFound, "tab not found")
		return
	}
	respondJSON(w, http.StatusOK, TabResponse{ID: id})
}

// handleCloseTab handles DELETE /workspaces/{ws}/tabs/{id}. A dirty document
// is only closed with ?confirm=true.
func (s *Server) handleCloseTab(w http.ResponseWriter, r *http.Request) {
	confirmed, _ := strconv.ParseBool(r.URL.Query().Get("confirm"))
	c := controllerFrom(r)
	res, err := c.Close(r.Context(), chi.URLParam(r, "id"), workspace.Answer(confirmed))
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	if res.Blocked {
		s.writeError(w, http.StatusConflict, "tab has unsaved changes; repeat with confirm=true to discard them")
		return
	}
	respondJSON(w, http.StatusOK, CloseResponse{Closed: res.Closed, Active: c.Active()})
}

// handleOpenRef handles POST /workspaces/{ws}/open.
func (s *Server) handleOpenRef(w http.ResponseWriter, r *http.Request) {
	var req OpenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if !req.Ref.Kind.Valid() || req.Ref.Key == "" {
		s.writeError(w, http.StatusBadRequest, "ref needs a known kind and a key")
		return
	}
	id, err := controllerFrom(r).OpenRef(r.Context(), req.Ref)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TabResponse{ID: id})
}

// handleNewDocument handles POST /workspaces/{ws}/documents.
func (s *Server) handleNewDocument(w http.ResponseWriter, r *http.Request) {
	var req NewDocumentRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			s.writeError(w, http.StatusBadRequest, "invalid JSON body")
			return
		}
	}
	id, err := controllerFrom(r).NewDocument(req.View)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, TabResponse{ID: id})
}

// handleGetDocument handles GET /workspaces/{ws}/documents/{id}.
func (s *Server) handleGetDocument(w http.ResponseWriter, r *http.Request) {
	s.respondDocument(w, r, http.StatusOK)
}

// handleEditDocument handles PUT /workspaces/{ws}/documents/{id}.
func (s *Server) handleEditDocument(w http.ResponseWriter, r *http.Request) {
	var req EditRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	c := controllerFrom(r)
	id := chi.URLParam(r, "id")
	var err error
	switch {
	case req.Value != nil && req.Field == "":
		err = c.Edit(id, *req.Value)
	case req.Value == nil && req.Field != "":
		err = c.SetField(id, req.Field, req.FieldValue)
	default:
		s.writeError(w, http.StatusBadRequest, "send either value or field")
		return
	}
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.respondDocument(w, r, http.StatusOK)
}

// handleSaveDocument handles POST /workspaces/{ws}/documents/{id}/save.
func (s *Server) handleSaveDocument(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	id := chi.URLParam(r, "id")
	closeAfter, _ := strconv.ParseBool(r.URL.Query().Get("close"))

	var (
		rec    gateway.Receipt
		closed bool
		err    error
	)
	if closeAfter {
		var res tabs.CloseResult
		rec, res, err = c.SaveAndClose(r.Context(), id)
		closed = res.Closed
	} else {
		rec, err = c.Save(r.Context(), id)
	}
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, SaveResponse{Message: rec.Message, Ref: rec.Ref, Result: rec.Result, Closed: closed})
}

// handleExecuteDocument handles POST /workspaces/{ws}/documents/{id}/execute.
// A query rejected by the database answers 200 with the error in the result.
func (s *Server) handleExecuteDocument(w http.ResponseWriter, r *http.Request) {
	res, err := controllerFrom(r).Execute(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, res)
}

// handleRevertDocument handles POST /workspaces/{ws}/documents/{id}/revert.
func (s *Server) handleRevertDocument(w http.ResponseWriter, r *http.Request) {
	if err := controllerFrom(r).Revert(chi.URLParam(r, "id")); err != nil {
		s.writeControllerError(w, err)
		return
	}
	s.respondDocument(w, r, http.StatusOK)
}

// handleViewEntries handles GET /workspaces/{ws}/views/{id}/entries. A
// filter query parameter replaces the view's filter.
func (s *Server) handleViewEntries(w http.ResponseWriter, r *http.Request) {
	c := controllerFrom(r)
	id := chi.URLParam(r, "id")
	if q := r.URL.Query(); q.Has("filter") {
		if err := c.SetFilter(id, q.Get("filter")); err != nil {
			s.writeControllerError(w, err)
			return
		}
	}
	entries, err := c.Listing(r.Context(), id)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	v, err := c.View(id)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, ViewResponse{View: v, Entries: entries})
}

// handleNavigate handles POST /workspaces/{ws}/views/{id}/navigate.
func (s *Server) handleNavigate(w http.ResponseWriter, r *http.Request) {
	var req NavigateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	c := controllerFrom(r)
	viewID := chi.URLParam(r, "id")
	entry, err := c.Lookup(r.Context(), viewID, req.Name)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}

	var id string
	if req.NewTab {
		id, err = c.OpenInNewTab(r.Context(), viewID, entry)
	} else {
		id, err = c.NavigateInto(r.Context(), viewID, entry)
	}
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, TabResponse{ID: id})
}

// handleUp handles POST /workspaces/{ws}/views/{id}/up.
func (s *Server) handleUp(w http.ResponseWriter, r *http.Request) {
	moved, err := controllerFrom(r).NavigateUp(chi.URLParam(r, "id"))
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, UpResponse{Moved: moved})
}

// handleMutate handles POST /workspaces/{ws}/views/{id}/mutations.
func (s *Server) handleMutate(w http.ResponseWriter, r *http.Request) {
	var m gateway.Mutation
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	switch m.Action {
	case gateway.ActionCreateFile, gateway.ActionCreateFolder, gateway.ActionDelete, gateway.ActionRestore:
	default:
		s.writeError(w, http.StatusBadRequest, "unknown action")
		return
	}
	msg, err := controllerFrom(r).Mutate(r.Context(), chi.URLParam(r, "id"), m)
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, MutationResponse{Message: msg})
}

// handleToggle handles POST /workspaces/{ws}/views/{id}/toggle.
func (s *Server) handleToggle(w http.ResponseWriter, r *http.Request) {
	var req ToggleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Name == "" {
		s.writeError(w, http.StatusBadRequest, "name is required")
		return
	}
	if err := controllerFrom(r).SetEnabled(r.Context(), chi.URLParam(r, "id"), req.Name, req.Enabled); err != nil {
		s.writeControllerError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) respondDocument(w http.ResponseWriter, r *http.Request, status int) {
	d, err := controllerFrom(r).Document(chi.URLParam(r, "id"))
	if err != nil {
		s.writeControllerError(w, err)
		return
	}
	respondJSON(w, status, DocumentResponse{Document: d, Dirty: d.IsDirty()})
}

func respondJSON(w http.ResponseWriter, statusCode int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	_ = json.NewEncoder(w).Encode(data)
}

// writeError writes a JSON error response
func (s *Server) writeError(w http.ResponseWriter, statusCode int, message string) {
	respondJSON(w, statusCode, ErrorResponse{Error: message})
}

// writeControllerError maps a workspace or gateway error onto a status code.
// The panel's own message is passed through when there is one.
func (s *Server) writeControllerError(w http.ResponseWriter, err error) {
	status := http.StatusBadGateway
	switch {
	case errors.Is(err, workspace.ErrNotFound), errors.Is(err, workspace.ErrNoEntry):
		status = http.StatusNotFound
	case errors.Is(err, workspace.ErrBusy), errors.Is(err, workspace.ErrDocumentClosed):
		status = http.StatusConflict
	case errors.Is(err, gateway.ErrUnsupported), errors.Is(err, gateway.ErrNotExecutable):
		status = http.StatusBadRequest
	case gateway.IsRejection(err):
		status = http.StatusUnprocessableEntity
	}
	if status == http.StatusBadGateway {
		s.logger.Warn("panel operation failed", "error", err, "transport", gateway.IsTransport(err))
	}
	respondJSON(w, status, ErrorResponse{
		Error:     gateway.Message(err, err.Error()),
		Transport: gateway.IsTransport(err),
	})
}
