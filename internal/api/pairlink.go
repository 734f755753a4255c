package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/teris-io/shortid"

	"pairlink/internal/config"
	"pairlink/internal/connect"
	"pairlink/internal/database"
	"pairlink/internal/mailbox"
	"pairlink/internal/server"
	"pairlink/internal/stats"
)

type PairlinkApp struct {
	log            *log.Logger
	db             database.PairlinkRepository
	mux            *http.Server
	cs             *server.ChatServer
	requests       *connect.Service
	mailbox        *mailbox.Mailbox
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string
	uploadDir      string

	generateShortId func() (string, error)
}

func NewPairlinkApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.PairlinkRepository,
	requests *connect.Service, mb *mailbox.Mailbox, su stats.StatsProvider, cfg *config.Config) *PairlinkApp {
	s := &PairlinkApp{
		log:             logger,
		db:              db,
		cs:              cs,
		requests:        requests,
		mailbox:         mb,
		stats:           su,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		uploadDir:       cfg.UploadDir,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.HandleFunc("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("/api/account", s.authMiddleware(s.account))
	mux.Handle("GET /api/users", s.authMiddleware(s.listUsers))
	mux.Handle("POST /api/requests", s.authMiddleware(s.createRequest))
	mux.Handle("POST /api/requests/respond", s.authMiddleware(s.respondRequest))
	mux.Handle("GET /api/requests", s.authMiddleware(s.listRequests))
	mux.Handle("GET /api/connections", s.authMiddleware(s.getConnection))
	mux.Handle("GET /api/messages", s.authMiddleware(s.getMessages))
	mux.Handle("DELETE /api/messages", s.authMiddleware(s.deleteMessages))
	mux.Handle("POST /api/uploads", s.authMiddleware(s.upload))
	mux.Handle("GET /uploads/", s.authMiddleware(s.serveUpload))
	mux.Handle("GET /ws", s.authMiddleware(s.serveWs))

	h := handlers.CORS(
		handlers.MaxAge(3600),
		handlers.AllowedOrigins(cfg.AllowedOrigins),
		handlers.AllowedMethods([]string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete, http.MethodOptions}),
		handlers.AllowedHeaders([]string{"Origin", "Content-Type", "Accept"}),
		handlers.AllowCredentials(),
	)(mux)

	h = s.errorHandler(h)

	srv := &http.Server{
		Addr:    cfg.ServerAddr,
		Handler: h,
	}

	s.mux = srv
	return s
}

func (s *PairlinkApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *PairlinkApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
