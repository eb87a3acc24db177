package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"taskmarket-ledger/pkg/config"

	"github.com/gin-gonic/gin"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ProvideHTTPServer = fx.Module("http.server",
	fx.Provide(NewHTTPServer),
	fx.Invoke(Run),
)

type HTTPServer struct {
	srv *http.Server
}

type Params struct {
	fx.In

	Config  *config.Config
	Handler *gin.Engine
	Certs   *CertReloader
}

func NewHTTPServer(p Params) *HTTPServer {
	cfg := p.Config
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%s", cfg.Server.Addr),
		Handler:           p.Handler,
		ReadTimeout:       cfg.Server.ReadTimeout,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      cfg.Server.WriteTimeout,
		IdleTimeout:       cfg.Server.IdleTimeout,
	}
	if p.Certs != nil {
		srv.TLSConfig = p.Certs.TLSConfig()
	}
	return &HTTPServer{srv: srv}
}

func (s *HTTPServer) serve() error {
	if s.srv.TLSConfig != nil {
		// certificates come from GetCertificate
		return s.srv.ListenAndServeTLS("", "")
	}
	return s.srv.ListenAndServe()
}

func Run(lc fx.Lifecycle, s *HTTPServer) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				zap.L().Info("Starting HTTP server",
					zap.String("addr", s.srv.Addr),
					zap.Bool("tls", s.srv.TLSConfig != nil),
				)
				if err := s.serve(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					zap.L().Fatal("HTTP server exited", zap.Error(err))
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			zap.L().Info("Draining HTTP server")
			return s.srv.Shutdown(ctx)
		},
	})
}
