// Package server assembles the collaborator services the inbox talks to: the
// durable DM API, the push hub, the blob store and the name directory.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/rs/zerolog"
	valkeygo "github.com/valkey-io/valkey-go"
	"golang.org/x/sync/errgroup"

	"github.com/Vasu1712/scenyx-inbox/internal/api/dms"
	"github.com/Vasu1712/scenyx-inbox/internal/api/names"
	"github.com/Vasu1712/scenyx-inbox/internal/api/respond"
	"github.com/Vasu1712/scenyx-inbox/internal/api/uploads"
	"github.com/Vasu1712/scenyx-inbox/internal/auth"
	"github.com/Vasu1712/scenyx-inbox/internal/config"
	"github.com/Vasu1712/scenyx-inbox/internal/middleware"
	"github.com/Vasu1712/scenyx-inbox/internal/storage/memory"
	"github.com/Vasu1712/scenyx-inbox/internal/storage/postgres"
	"github.com/Vasu1712/scenyx-inbox/internal/storage/valkey"
	"github.com/Vasu1712/scenyx-inbox/internal/ws"
)

type Server struct {
	cfg     *config.Config
	log     zerolog.Logger
	tokens  *auth.Manager
	hub     *ws.Hub
	handler http.Handler
	closers []func() error
}

// New opens the configured backends and builds the router. Call Close when
// the server is no longer needed, whether or not Run was called.
func New(ctx context.Context, cfg *config.Config, log zerolog.Logger) (*Server, error) {
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("auth.jwt_secret is required")
	}
	s := &Server{
		cfg:    cfg,
		log:    log.With().Str("component", "server").Logger(),
		tokens: auth.NewManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL),
	}
	if err := s.build(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Server) build(ctx context.Context) error {
	var store dms.Store
	switch s.cfg.Storage.Driver {
	case "postgres":
		pg, err := postgres.NewPostgresDMStore(ctx, s.cfg.Storage.PostgresDSN, s.log)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, pg.Close)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		store = pg
	default:
		store = memory.NewDMStore()
	}

	var vk valkeygo.Client
	if s.cfg.Feed.Driver == "valkey" || s.cfg.Names.Driver == "valkey" {
		client, err := valkey.Connect(ctx, s.cfg.Feed.ValkeyAddr)
		if err != nil {
			return err
		}
		s.closers = append(s.closers, func() error { client.Close(); return nil })
		vk = client
		s.log.Info().Str("addr", s.cfg.Feed.ValkeyAddr).Msg("Connected to Valkey")
	}

	var feed ws.Feed = memory.NewDMStore()
	if s.cfg.Feed.Driver == "valkey" {
		feed = valkey.NewFeed(vk)
	}
	var directory names.Store = memory.NewNameStore(s.cfg.Names.Seed)
	if s.cfg.Names.Driver == "valkey" {
		vn := valkey.NewNameStore(vk)
		for id, name := range s.cfg.Names.Seed {
			if err := vn.Set(ctx, id, name); err != nil {
				return fmt.Errorf("failed to seed names: %w", err)
			}
		}
		directory = vn
	}

	if err := os.MkdirAll(s.cfg.Uploads.Dir, 0o755); err != nil {
		return fmt.Errorf("failed to create upload dir: %w", err)
	}

	s.hub = ws.NewHub(feed, s.cfg.Feed.SnapshotLimit, s.log)
	s.handler = s.routes(store, directory)
	return nil
}

func (s *Server) routes(store dms.Store, directory names.Store) http.Handler {
	r := mux.NewRouter()
	r.HandleFunc("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		respond.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	}).Methods(http.MethodGet)

	api := r.PathPrefix("/api/v1").Subrouter()
	api.Use(middleware.Auth(s.tokens))
	sockets := r.PathPrefix("/ws").Subrouter()
	sockets.Use(middleware.Auth(s.tokens))

	dms.RegisterDMRoutes(api, sockets, &dms.DMHandler{Store: store, Hub: s.hub})
	uploads.RegisterUploadRoutes(api, r, &uploads.Handler{
		Dir:       s.cfg.Uploads.Dir,
		MaxBytes:  s.cfg.Uploads.MaxBytes,
		PublicURL: s.cfg.Server.PublicURL,
	})
	names.RegisterNameRoutes(api, &names.Handler{Store: directory})

	// CORS wraps the whole router: preflight requests match no route.
	return middleware.Logger(s.log)(middleware.CORS(s.cfg.Server.CORSOrigin)(r))
}

func (s *Server) Handler() http.Handler {
	return s.handler
}

// Hub is served by Run; callers mounting Handler elsewhere run it themselves.
func (s *Server) Hub() *ws.Hub {
	return s.hub
}

func (s *Server) Tokens() *auth.Manager {
	return s.tokens
}

// Run serves HTTP and the push hub until ctx is done, then shuts down
// gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.cfg.Server.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.hub.Run(gctx)
		return nil
	})
	g.Go(func() error {
		s.log.Info().Str("addr", srv.Addr).Msg("Server started")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.Server.ShutdownTimeout)
		defer cancel()
		s.log.Info().Msg("Shutting down")
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

func (s *Server) Close() error {
	var errs []error
	for i := len(s.closers) - 1; i >= 0; i-- {
		errs = append(errs, s.closers[i]())
	}
	s.closers = nil
	return errors.Join(errs...)
}
