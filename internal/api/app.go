package api

import (
	"context"
	"fmt"
	"log"
	"net/http"

	"github.com/gorilla/handlers"
	"github.com/studyhall/studyhall/internal/config"
	"github.com/studyhall/studyhall/internal/database"
	"github.com/studyhall/studyhall/internal/server"
	"github.com/studyhall/studyhall/internal/stats"
	"github.com/teris-io/shortid"
)

type StudyHallApp struct {
	log            *log.Logger
	db             database.StudyHallRepository
	mux            *http.Server
	cs             *server.ChatServer
	stats          stats.StatsProvider
	signingKey     []byte
	allowedOrigins []string

	// overridable in tests
	generateShortId func() (string, error)
}

func NewStudyHallApp(mux *http.ServeMux, logger *log.Logger, cs *server.ChatServer, db database.StudyHallRepository, su stats.StatsProvider, cfg *config.Config) *StudyHallApp {
	s := &StudyHallApp{
		log:             logger,
		db:              db,
		cs:              cs,
		stats:           su,
		signingKey:      cfg.SigningKey,
		allowedOrigins:  cfg.AllowedOrigins,
		generateShortId: shortid.Generate,
	}

	mux.HandleFunc("GET /healthz", s.healthCheck)
	mux.HandleFunc("POST /api/auth/register", s.createAccount)
	mux.HandleFunc("POST /api/auth/login", s.login)
	mux.Handle("GET /api/auth/session", s.authMiddleware(s.session))
	mux.Handle("GET /api/auth/logout", s.authMiddleware(s.logout))
	mux.Handle("PUT /api/auth/account", s.authMiddleware(s.updateAccount))
	mux.Handle("POST /api/rooms", s.authMiddleware(s.createRoom))
	mux.Handle("DELETE /api/rooms", s.authMiddleware(s.deleteRoom))
	mux.Handle("GET /api/rooms", s.authMiddleware(s.getRoom))
	mux.Handle("GET /api/messages", s.authMiddleware(s.listMessages))
	mux.Handle("GET /api/messages/since", s.authMiddleware(s.listMessagesSince))
	mux.Handle("GET /api/messages/latest", s.authMiddleware(s.latestMessage))
	mux.Handle("GET /api/messages/count", s.authMiddleware(s.countMessages))
	mux.Handle("DELETE /api/messages", s.authMiddleware(s.deleteMessage))
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

func (s *StudyHallApp) Start() error {
	s.log.Printf("starting server on %s\n", s.mux.Addr)
	return s.mux.ListenAndServe()
}

func (s *StudyHallApp) Shutdown(ctx context.Context) error {
	s.log.Println("shutting down HTTP server...")
	if err := s.mux.Shutdown(ctx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}

	return nil
}
