// Package httpserver owns the shared chi mux and the HTTP listener
// lifecycle. Handler modules mount their routes onto the mux during fx
// invoke, before the listener starts.
package httpserver

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"go.uber.org/fx"

	"github.com/syntalk/im-server/config"
)

// NewMux builds the base router. No global timeout middleware here: /ws
// upgrades into long-lived connections that outlive any request deadline.
func NewMux() *chi.Mux {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	return r
}

// NewServer applies the HTTP timeouts from config. They do not constrain
// WebSocket traffic: the upgrade hijacks the connection and gorilla clears
// the server deadlines.
func NewServer(cfg *config.Config, mux *chi.Mux) *http.Server {
	return &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      mux,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
		IdleTimeout:  cfg.HTTP.IdleTimeout,
	}
}

var Module = fx.Module("http-server",
	fx.Provide(NewMux, NewServer),
	fx.Invoke(func(lc fx.Lifecycle, srv *http.Server, log *slog.Logger) {
		lc.Append(fx.Hook{
			OnStart: func(ctx context.Context) error {
				ln, err := net.Listen("tcp", srv.Addr)
				if err != nil {
					return err
				}
				log.Info("http server listening", slog.String("addr", srv.Addr))
				go func() {
					if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
						log.Error("http server terminated", slog.Any("error", err))
					}
				}()
				return nil
			},
			OnStop: func(ctx context.Context) error {
				return srv.Shutdown(ctx)
			},
		})
	}),
)
