package service

import (
	"context"
	"net/http"

	"github.com/rs/cors"
	"go.uber.org/zap"
)

type HealthzServer struct {
	ctx    context.Context
	server *http.Server
	log    *zap.SugaredLogger
}

func (h *HealthzServer) Start(ctx context.Context, addr string) error {
	hdlr := http.NewServeMux()
	hdlr.HandleFunc("/healthz", h.Handle)
	c := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
	})
	server := &http.Server{
		Handler: c.Handler(hdlr),
		Addr:    addr,
	}
	h.server = server
	h.ctx = ctx
	return h.server.ListenAndServe()
}

func (h *HealthzServer) Shutdown() error {
	if h.server == nil {
		return nil
	}
	return h.server.Shutdown(h.ctx)
}

func (h *HealthzServer) Handle(w http.ResponseWriter, r *http.Request) {
	if h.log != nil {
		h.log.Debugw("Received health check request", "path", r.URL.Path)
	}
	w.Write([]byte("OK")) //nolint:errcheck
}
