package apihttp

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"streamgate/internal/domain"
	"streamgate/internal/metadata"
)

type UserStore interface {
	FindByUsername(ctx context.Context, username string) (domain.User, error)
	FindByID(ctx context.Context, id string) (domain.User, error)
	Insert(ctx context.Context, u domain.User) error
	List(ctx context.Context) ([]domain.User, error)
	Update(ctx context.Context, u domain.User) error
	Delete(ctx context.Context, id string) error
}

type AddonStore interface {
	Insert(ctx context.Context, a domain.Addon) error
	ListByUser(ctx context.Context, userID string) ([]domain.Addon, error)
	Get(ctx context.Context, userID, id string) (domain.Addon, error)
	Delete(ctx context.Context, userID, id string) error
}

type LibraryStore interface {
	Add(ctx context.Context, it domain.LibraryItem) error
	ListByUser(ctx context.Context, userID string) ([]domain.LibraryItem, error)
	Delete(ctx context.Context, userID, key string) error
}

type StreamAggregator interface {
	Search(ctx context.Context, fp domain.Fingerprint, userID string) ([]domain.Stream, error)
}

type SessionManager interface {
	Ensure(ctx context.Context, infoHash string) error
	Status(ctx context.Context, infoHash string) domain.SessionState
	Snapshot(ctx context.Context) []domain.SessionState
	VideoPath(infoHash string) (string, error)
	Touch(infoHash string)
	Stats() (active int, peers int, downloadSpeed int64)
}

type MetadataService interface {
	Resolve(ctx context.Context, fp *domain.Fingerprint)
	Fetch(ctx context.Context, metaType, id string) ([]byte, error)
	Catalog(ctx context.Context, metaType, catalogID string, skip int) ([]metadata.Meta, error)
	Episodes(ctx context.Context, imdbID string) ([]metadata.Episode, error)
	Search(ctx context.Context, metaType, query string) ([]metadata.Meta, error)
}

type VideoServer interface {
	ServeVideo(w http.ResponseWriter, r *http.Request, path string, onProgress func())
}

type JSONGetter interface {
	GetJSON(ctx context.Context, url string) ([]byte, error)
}

type Server struct {
	users          UserStore
	addons         AddonStore
	library        LibraryStore
	aggregator     StreamAggregator
	sessions       SessionManager
	meta           MetadataService
	video          VideoServer
	http           JSONGetter
	jwtSecret      []byte
	tokenTTL       time.Duration
	allowedOrigins []string
	logger         *slog.Logger
	handler        http.Handler
	wsHub          *wsHub
}

type ServerOption func(*Server)

func WithUserStore(store UserStore) ServerOption {
	return func(s *Server) { s.users = store }
}

func WithAddonStore(store AddonStore) ServerOption {
	return func(s *Server) { s.addons = store }
}

func WithLibraryStore(store LibraryStore) ServerOption {
	return func(s *Server) { s.library = store }
}

func WithAggregator(agg StreamAggregator) ServerOption {
	return func(s *Server) { s.aggregator = agg }
}

func WithSessionManager(mgr SessionManager) ServerOption {
	return func(s *Server) { s.sessions = mgr }
}

func WithMetadata(meta MetadataService) ServerOption {
	return func(s *Server) { s.meta = meta }
}

func WithVideoServer(v VideoServer) ServerOption {
	return func(s *Server) { s.video = v }
}

func WithJSONGetter(getter JSONGetter) ServerOption {
	return func(s *Server) { s.http = getter }
}

func WithAuth(secret string, ttl time.Duration) ServerOption {
	return func(s *Server) {
		s.jwtSecret = []byte(secret)
		s.tokenTTL = ttl
	}
}

// WithAllowedOrigins configures the CORS allowed origins whitelist.
// When empty (default), any origin is permitted (development mode).
func WithAllowedOrigins(origins []string) ServerOption {
	return func(s *Server) { s.allowedOrigins = origins }
}

func WithLogger(logger *slog.Logger) ServerOption {
	return func(s *Server) { s.logger = logger }
}

func NewServer(opts ...ServerOption) *Server {
	s := &Server{
		tokenTTL: 30 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = slog.Default()
	}

	s.wsHub = newWSHub(s.logger)
	go s.wsHub.run()

	mux := http.NewServeMux()

	mux.HandleFunc("POST /api/auth/login", s.handleLogin)
	mux.HandleFunc("GET /api/auth/me", s.authed(s.handleMe))

	mux.HandleFunc("GET /api/admin/users", s.adminOnly(s.handleListUsers))
	mux.HandleFunc("POST /api/admin/users", s.adminOnly(s.handleCreateUser))
	mux.HandleFunc("PUT /api/admin/users/{id}", s.adminOnly(s.handleUpdateUser))
	mux.HandleFunc("DELETE /api/admin/users/{id}", s.adminOnly(s.handleDeleteUser))

	mux.HandleFunc("GET /api/addons", s.authed(s.handleListAddons))
	mux.HandleFunc("POST /api/addons/install", s.authed(s.handleInstallAddon))
	mux.HandleFunc("POST /api/addons/install-multiple", s.authed(s.handleInstallMultiple))
	mux.HandleFunc("DELETE /api/addons/{id}", s.authed(s.handleDeleteAddon))
	mux.HandleFunc("GET /api/addons/{id}/stream/{type}/{contentID...}", s.authed(s.handleAddonStream))

	mux.HandleFunc("GET /api/streams/{type}/{contentID...}", s.authed(s.handleStreams))
	mux.HandleFunc("GET /api/subtitles/{type}/{contentID...}", s.authed(s.handleSubtitles))

	mux.HandleFunc("GET /api/content/discover-organized", s.authed(s.handleDiscover))
	mux.HandleFunc("GET /api/content/category/{section}/{contentType}", s.authed(s.handleCategory))
	mux.HandleFunc("GET /api/content/search", s.authed(s.handleSearch))
	mux.HandleFunc("GET /api/content/meta/{type}/{contentID...}", s.authed(s.handleMeta))

	mux.HandleFunc("GET /api/library", s.authed(s.handleListLibrary))
	mux.HandleFunc("POST /api/library", s.authed(s.handleAddLibrary))
	mux.HandleFunc("DELETE /api/library/{type}/{id}", s.authed(s.handleDeleteLibrary))

	mux.HandleFunc("POST /api/stream/start/{hash}", s.authed(s.handleStreamStart))
	mux.HandleFunc("GET /api/stream/status/{hash}", s.authed(s.handleStreamStatus))
	mux.HandleFunc("GET /api/stream/video/{hash}", s.authed(s.handleStreamVideo))
	mux.HandleFunc("GET /api/stream/events", s.authed(s.handleWS))

	mux.HandleFunc("GET /api/health", s.handleHealth)
	mux.Handle("/metrics", promhttp.Handler())

	traced := otelhttp.NewHandler(loggingMiddleware(s.logger, mux), "streamgate",
		otelhttp.WithFilter(func(r *http.Request) bool {
			p := r.URL.Path
			// Long-lived video and websocket responses make useless spans.
			return p != "/metrics" && p != "/api/health" &&
				!strings.HasPrefix(p, "/api/stream/video/") &&
				p != "/api/stream/events"
		}),
	)
	s.handler = recoveryMiddleware(s.logger, rateLimitMiddleware(100, 200, metricsMiddleware(corsMiddleware(s.allowedOrigins, traced))))
	return s
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.handler.ServeHTTP(w, r)
}

func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("ws upgrade failed", slog.String("error", err.Error()))
		return
	}
	client := &wsClient{
		hub:  s.wsHub,
		conn: conn,
		send: make(chan []byte, 256),
	}
	s.wsHub.register <- client
	go client.writePump()
	go client.readPump()
}

// BroadcastSessions pushes a session snapshot to every events subscriber.
func (s *Server) BroadcastSessions(states []domain.SessionState) {
	if s.wsHub != nil {
		s.wsHub.BroadcastSessions(states)
	}
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	active := 0
	if s.sessions != nil {
		active, _, _ = s.sessions.Stats()
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status":         "ok",
		"activeSessions": active,
	})
}

// Close disconnects the websocket hub clients.
func (s *Server) Close() {
	if s.wsHub != nil {
		s.wsHub.Close()
	}
}
