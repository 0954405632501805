package app

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/markdave123-py/layoutflow/internal/api/handlers"
	"github.com/markdave123-py/layoutflow/internal/pkg/logger"
)

// Handlers groups everything the router dispatches to.
type Handlers struct {
	Files     *handlers.FileHandler
	Documents *handlers.DocumentHandler
	Ingestion *handlers.IngestionHandler
	Chat      *handlers.ChatHandler
}

// Server wraps the HTTP server instance and its handlers.
type Server struct {
	httpServer *http.Server
	log        logger.ILogger
}

// NewRouter builds all API routes.
func NewRouter(h Handlers, allowedOrigins []string) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Content-Type"},
		AllowCredentials: false,
	}))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	r.Route("/api", func(api chi.Router) {
		api.Route("/files", func(fr chi.Router) {
			fr.Get("/", h.Files.List)
			fr.Post("/", h.Files.Create)
			fr.Post("/upload", h.Files.Upload)
			fr.Get("/{fileID}", h.Files.Get)
			fr.Delete("/{fileID}", h.Files.Delete)
			fr.Get("/{fileID}/documents", h.Files.Documents)
		})

		api.Route("/documents", func(dr chi.Router) {
			dr.Get("/", h.Documents.List)
			dr.Post("/", h.Documents.Create)
			dr.Get("/{documentID}", h.Documents.Get)
			dr.Delete("/{documentID}", h.Documents.Delete)
			dr.Get("/{documentID}/chunks", h.Documents.Chunks)
			dr.Post("/{documentID}/chunks", h.Documents.AddChunk)
		})

		// Stage endpoints stay synchronous; long files should go through /enqueue.
		api.Route("/ingestion", func(ir chi.Router) {
			ir.Post("/split", h.Ingestion.Split())
			ir.Post("/analyze", h.Ingestion.Analyze())
			ir.Post("/extract", h.Ingestion.Extract())
			ir.Post("/run", h.Ingestion.Run())
			ir.Post("/enqueue", h.Ingestion.Enqueue)
			ir.Get("/artifact", h.Ingestion.Artifact)
		})

		api.Post("/chat/query", h.Chat.Query)
		api.Get("/chat/history", h.Chat.ListHistory)
		api.Post("/chat/history", h.Chat.CreateHistory)
	})

	return r
}

func NewServer(port string, handler http.Handler, log logger.ILogger) *Server {
	return &Server{
		httpServer: &http.Server{
			Addr:              ":" + port,
			Handler:           handler,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: log,
	}
}

// Start runs the HTTP server until it is shut down.
func (s *Server) Start() error {
	s.log.Info("Server", "HTTP server listening", map[string]interface{}{"addr": s.httpServer.Addr})
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info("Server", "shutting down HTTP server", nil)
	return s.httpServer.Shutdown(ctx)
}
