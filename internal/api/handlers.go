package api

import (
	"context"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nodeflow/internal/flow"
	"github.com/starford/nodeflow/internal/flowservice"
	"github.com/starford/nodeflow/internal/session"
)

// SessionChecker reports the backend session status.
type SessionChecker interface {
	Check(ctx context.Context) session.Status
}

// RunObserver is told about every run the API starts.
type RunObserver func(id string, status int, err error)

// Handler holds API route handlers.
type Handler struct {
	svc     *flowservice.Service
	session SessionChecker
	onRun   RunObserver
}

// NewHandler creates a new Handler. sess and onRun may be nil.
func NewHandler(svc *flowservice.Service, sess SessionChecker, onRun RunObserver) *Handler {
	return &Handler{svc: svc, session: sess, onRun: onRun}
}

func setETag(w http.ResponseWriter, f *FlowDetail) {
	w.Header().Set("ETag", `"`+f.Checksum+`"`)
}

// ListFlows handles GET /api/flows.
//
//	@Summary		List flows with optional pagination and filtering
//	@Tags			flows
//	@Produce		json
//	@Param			limit		query		int		false	"Page size"
//	@Param			offset		query		int		false	"Page offset"
//	@Param			node_type	query		string	false	"Only flows using this node type"
//	@Param			sort		query		string	false	"Sort field"	Enums(updated_at, name, node_count)
//	@Success		200			{object}	FlowListResponse
//	@Security		BearerAuth
//	@Router			/flows [get]
func (h *Handler) ListFlows(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))

	items, total, err := h.svc.ListFlows(r.Context(), limit, offset, q.Get("node_type"), q.Get("sort"))
	if err != nil {
		writeError(w, "list flows", err)
		return
	}
	writeJSON(w, http.StatusOK, FlowListResponse{Flows: items, Total: total})
}

// GetFlow handles GET /api/flows/{id}.
//
//	@Summary		Get a single flow
//	@Tags			flows
//	@Produce		json
//	@Param			id	path		string	true	"Flow id"
//	@Success		200	{object}	FlowDetail
//	@Failure		404	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flows/{id} [get]
func (h *Handler) GetFlow(w http.ResponseWriter, r *http.Request) {
	f, err := h.svc.GetFlow(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "get flow", err)
		return
	}
	setETag(w, f)
	writeJSON(w, http.StatusOK, f)
}

// CreateFlow handles POST /api/flows.
//
//	@Summary		Create a new flow
//	@Tags			flows
//	@Accept			json
//	@Produce		json
//	@Param			body	body		CreateFlowRequest	true	"Flow to create"
//	@Success		201		{object}	FlowDetail
//	@Failure		400		{object}	errResponse
//	@Failure		409		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flows [post]
func (h *Handler) CreateFlow(w http.ResponseWriter, r *http.Request) {
	var req CreateFlowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "create flow", err)
		return
	}
	f, err := h.svc.CreateFlow(r.Context(), req.document())
	if err != nil {
		writeError(w, "create flow", err)
		return
	}
	setETag(w, f)
	writeJSON(w, http.StatusCreated, f)
}

// UpdateFlow handles PUT /api/flows/{id}.
//
//	@Summary		Replace a flow with optimistic concurrency
//	@Tags			flows
//	@Accept			json
//	@Produce		json
//	@Param			id			path		string				true	"Flow id"
//	@Param			If-Match	header		string				false	"Checksum of the version being replaced"
//	@Param			body		body		UpdateFlowRequest	true	"New document"
//	@Success		200			{object}	FlowDetail
//	@Failure		400			{object}	errResponse
//	@Failure		404			{object}	errResponse
//	@Failure		409			{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flows/{id} [put]
func (h *Handler) UpdateFlow(w http.ResponseWriter, r *http.Request) {
	var req UpdateFlowRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "update flow", err)
		return
	}
	f, err := h.svc.UpdateFlow(r.Context(), chi.URLParam(r, "id"), req.document(), r.Header.Get("If-Match"))
	if err != nil {
		writeError(w, "update flow", err)
		return
	}
	setETag(w, f)
	writeJSON(w, http.StatusOK, f)
}

// DeleteFlow handles DELETE /api/flows/{id}.
func (h *Handler) DeleteFlow(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteFlow(r.Context(), chi.URLParam(r, "id")); err != nil {
		writeError(w, "delete flow", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// AddNode handles POST /api/flows/{id}/nodes.
//
//	@Summary		Add a node with every field empty
//	@Tags			nodes
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Flow id"
//	@Param			body	body		AddNodeRequest	true	"Node type and position"
//	@Success		201		{object}	parser.NodeDoc
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flows/{id}/nodes [post]
func (h *Handler) AddNode(w http.ResponseWriter, r *http.Request) {
	var req AddNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "add node", err)
		return
	}
	n, err := h.svc.AddNode(r.Context(), chi.URLParam(r, "id"), flow.NodeType(req.Type), req.Position)
	if err != nil {
		writeError(w, "add node", err)
		return
	}
	writeJSON(w, http.StatusCreated, n)
}

// UpdateNode handles PATCH /api/flows/{id}/nodes/{nodeID}.
func (h *Handler) UpdateNode(w http.ResponseWriter, r *http.Request) {
	var req UpdateNodeRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "update node", err)
		return
	}
	n, err := h.svc.UpdateNode(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "nodeID"), req.Fields, req.Position)
	if err != nil {
		writeError(w, "update node", err)
		return
	}
	writeJSON(w, http.StatusOK, n)
}

// RemoveNode handles DELETE /api/flows/{id}/nodes/{nodeID}.
func (h *Handler) RemoveNode(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.RemoveNode(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "nodeID")); err != nil {
		writeError(w, "remove node", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// Connect handles POST /api/flows/{id}/edges.
//
//	@Summary		Connect an output handle to an input handle
//	@Tags			edges
//	@Accept			json
//	@Produce		json
//	@Param			id		path		string			true	"Flow id"
//	@Param			body	body		ConnectRequest	true	"Edge endpoints"
//	@Success		201		{object}	flow.Edge
//	@Failure		400		{object}	errResponse
//	@Failure		404		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flows/{id}/edges [post]
func (h *Handler) Connect(w http.ResponseWriter, r *http.Request) {
	var req ConnectRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, "connect", err)
		return
	}
	e, err := h.svc.Connect(r.Context(), chi.URLParam(r, "id"), req.Source, req.SourceHandle, req.Target, req.TargetHandle)
	if err != nil {
		writeError(w, "connect", err)
		return
	}
	writeJSON(w, http.StatusCreated, e)
}

// Disconnect handles DELETE /api/flows/{id}/edges/{edgeID}.
func (h *Handler) Disconnect(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Disconnect(r.Context(), chi.URLParam(r, "id"), chi.URLParam(r, "edgeID")); err != nil {
		writeError(w, "disconnect", err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// EdgesTo handles GET /api/flows/{id}/edges?target=.
func (h *Handler) EdgesTo(w http.ResponseWriter, r *http.Request) {
	target := r.URL.Query().Get("target")
	if target == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'target' is required"))
		return
	}
	edges, err := h.svc.EdgesTo(r.Context(), chi.URLParam(r, "id"), target)
	if err != nil {
		writeError(w, "edges", err)
		return
	}
	writeJSON(w, http.StatusOK, EdgesResponse{Edges: edges})
}

// Payload handles GET /api/flows/{id}/payload.
func (h *Handler) Payload(w http.ResponseWriter, r *http.Request) {
	nodes, err := h.svc.Payload(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeError(w, "payload", err)
		return
	}
	writeJSON(w, http.StatusOK, PayloadResponse{Nodes: nodes})
}

// Run handles POST /api/flows/{id}/run.
//
//	@Summary		Submit the flow's run payload to the backend
//	@Tags			flows
//	@Produce		json
//	@Param			id	path		string	true	"Flow id"
//	@Success		200	{object}	RunResponse
//	@Failure		401	{object}	errResponse	"Backend session expired; redirect is set"
//	@Failure		404	{object}	errResponse
//	@Failure		502	{object}	errResponse
//	@Security		BearerAuth
//	@Router			/flows/{id}/run [post]
func (h *Handler) Run(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	res, err := h.svc.Run(r.Context(), id)
	if h.onRun != nil {
		status := 0
		if res != nil {
			status = res.StatusCode
		}
		h.onRun(id, status, err)
	}
	if err != nil {
		writeError(w, "run", err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

// NodeTypes handles GET /api/node-types.
func (h *Handler) NodeTypes(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, NodeTypesResponse{NodeTypes: h.svc.NodeTypes()})
}

// Search handles GET /api/search.
//
//	@Summary		Full-text search across flows
//	@Tags			search
//	@Produce		json
//	@Param			q		query		string	true	"Search query"
//	@Param			limit	query		int		false	"Max results"
//	@Success		200		{object}	SearchResponse
//	@Failure		400		{object}	errResponse
//	@Security		BearerAuth
//	@Router			/search [get]
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query().Get("q")
	if q == "" {
		writeJSON(w, http.StatusBadRequest, errorBody("query parameter 'q' is required"))
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	results, err := h.svc.Search(r.Context(), q, limit)
	if err != nil {
		slog.Error("search failed", slog.String("query", q), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	writeJSON(w, http.StatusOK, SearchResponse{Results: results})
}

// Session handles GET /api/session. It runs the verify/refresh check
// against the backend every time.
func (h *Handler) Session(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, SessionResponse{Status: h.session.Check(r.Context())})
}
