package handler

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/sakif/microblog/internal/model"
	"github.com/sakif/microblog/internal/service"
)

// APIHandler serves the token-authenticated JSON API.
//
// POST /api/tokens authenticates with HTTP Basic; everything else sits
// behind middleware.RequireToken.
type APIHandler struct {
	identity *service.IdentityService
	gate     *service.Gate
	graph    *service.GraphService
	docs     documents
	logger   *slog.Logger
}

func NewAPIHandler(
	identity *service.IdentityService,
	gate *service.Gate,
	graph *service.GraphService,
	content *service.ContentService,
	logger *slog.Logger,
) *APIHandler {
	return &APIHandler{
		identity: identity,
		gate:     gate,
		graph:    graph,
		docs:     documents{graph: graph, content: content},
		logger:   logger,
	}
}

// HandleGetToken exchanges Basic credentials for an API token. Calling it
// again while the token is fresh returns the same token.
//
// HTTP: POST /api/tokens
func (h *APIHandler) HandleGetToken(w http.ResponseWriter, r *http.Request) {
	user, err := h.gate.BasicLogin(r.Context(), r.Header.Get("Authorization"))
	if err != nil {
		w.Header().Set("WWW-Authenticate", `Basic realm="api"`)
		writeError(w, h.logger, err)
		return
	}

	tok, err := h.identity.GetOrCreateToken(r.Context(), user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, tok)
}

// HandleRevokeToken expires the caller's token.
//
// HTTP: DELETE /api/tokens
func (h *APIHandler) HandleRevokeToken(w http.ResponseWriter, r *http.Request) {
	user, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	if err := h.identity.RevokeToken(r.Context(), user.ID); err != nil {
		writeError(w, h.logger, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// HandleListUsers returns every user.
//
// HTTP: GET /api/users
func (h *APIHandler) HandleListUsers(w http.ResponseWriter, r *http.Request) {
	viewer, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	users, err := h.identity.ListUsers(r.Context())
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	docs, err := h.docs.users(r.Context(), users, viewer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []UserDocument `json:"items"`
	}{docs})
}

// HandleGetUser returns one user.
//
// HTTP: GET /api/users/{id}
func (h *APIHandler) HandleGetUser(w http.ResponseWriter, r *http.Request) {
	viewer, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}

	user, err := h.identity.GetUser(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	doc, err := h.docs.user(r.Context(), user, viewer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, doc)
}

// HandleFollowers returns the users following {id}.
//
// HTTP: GET /api/users/{id}/followers
func (h *APIHandler) HandleFollowers(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.graph.Followers)
}

// HandleFollowing returns the users {id} follows.
//
// HTTP: GET /api/users/{id}/following
func (h *APIHandler) HandleFollowing(w http.ResponseWriter, r *http.Request) {
	h.relation(w, r, h.graph.Following)
}

type listUsersFunc func(ctx context.Context, userID string) ([]model.User, error)

func (h *APIHandler) relation(w http.ResponseWriter, r *http.Request, list listUsersFunc) {
	viewer, err := currentUser(r)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	ctx := r.Context()

	// Resolve first so an unknown id is a 404 rather than an empty list.
	user, err := h.identity.GetUser(ctx, chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	users, err := list(ctx, user.ID)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	docs, err := h.docs.users(ctx, users, viewer)
	if err != nil {
		writeError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Items []UserDocument `json:"items"`
	}{docs})
}
