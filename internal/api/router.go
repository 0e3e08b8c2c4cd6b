package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/starford/nodeflow/internal/chat"
	"github.com/starford/nodeflow/internal/flowservice"
)

// RouterConfig holds the optional collaborators of the API router.
type RouterConfig struct {
	// AuthEnabled controls whether Bearer token auth is enforced.
	AuthEnabled bool
	Token       string
	// Events, if non-nil, is mounted at GET /events inside the auth group.
	Events http.Handler
	// Session, if non-nil, serves GET /session.
	Session SessionChecker
	// OnRun is called after every run request.
	OnRun RunObserver
	// Canvas, if non-nil, is served under /canvas.
	Canvas *chat.Canvas
}

// NewRouter creates a chi router with all API routes mounted.
func NewRouter(svc *flowservice.Service, cfg RouterConfig) chi.Router {
	h := NewHandler(svc, cfg.Session, cfg.OnRun)

	r := chi.NewRouter()
	r.Use(AuthMiddleware(cfg.AuthEnabled, cfg.Token))

	// Flows CRUD.
	r.Get("/flows", h.ListFlows)
	r.Post("/flows", h.CreateFlow)
	r.Route("/flows/{id}", func(r chi.Router) {
		r.Get("/", h.GetFlow)
		r.Put("/", h.UpdateFlow)
		r.Delete("/", h.DeleteFlow)

		r.Post("/nodes", h.AddNode)
		r.Patch("/nodes/{nodeID}", h.UpdateNode)
		r.Delete("/nodes/{nodeID}", h.RemoveNode)

		r.Get("/edges", h.EdgesTo)
		r.Post("/edges", h.Connect)
		r.Delete("/edges/{edgeID}", h.Disconnect)

		r.Get("/payload", h.Payload)
		r.Post("/run", h.Run)
	})

	r.Get("/node-types", h.NodeTypes)
	r.Get("/search", h.Search)

	if cfg.Session != nil {
		r.Get("/session", h.Session)
	}

	if cfg.Canvas != nil {
		ch := NewCanvasHandler(cfg.Canvas)
		r.Route("/canvas", func(r chi.Router) {
			r.Get("/", ch.Get)
			r.Post("/windows", ch.Open)
			r.Patch("/windows/{wid}", ch.Move)
			r.Post("/windows/{wid}/select", ch.Select)
			r.Post("/windows/{wid}/blocks", ch.SelectBlock)
			r.Post("/windows/{wid}/reset", ch.AskAgain)
			r.Delete("/selected", ch.DeleteSelected)
		})
	}

	// SSE endpoint (protected by same auth middleware).
	if cfg.Events != nil {
		r.Get("/events", cfg.Events.ServeHTTP)
	}

	return r
}
