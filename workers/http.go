package workers

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"time"

	"gomultibridge/config"
	"gomultibridge/logger"
	"gomultibridge/workers/handlers"

	"github.com/go-chi/chi"
	"github.com/go-chi/chi/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const shutdownTimeout = 5 * time.Second

func NewRouter(api *handlers.API, metrics http.Handler) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Options("/*", CORSHeaders)

	r.Get("/health", api.HealthCheck)
	r.Get("/state", api.State)

	r.Post("/quote", api.Quote)
	r.Post("/submit", api.Submit)
	r.Get("/ws/submit", api.SubmitWS)

	r.Get("/transfers/ongoing", api.GetOngoing)
	r.Get("/transfers/completed", api.GetCompleted)

	r.Get("/balance/{chain}/{token}/{owner}", api.Balance)

	if metrics == nil {
		metrics = promhttp.Handler()
	}
	r.Handle("/metrics", metrics)

	return r
}

// Worker_HTTP serves handler until ctx ends, then shuts down gracefully
func Worker_HTTP(ctx context.Context, cfg *config.Configuration, handler http.Handler, log logger.Logger) error {
	log.Info("starting HTTP service", map[string]any{"listen": cfg.Server.Listen, "ssl": cfg.Server.UseSSL})

	server := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	if cfg.Server.UseSSL {
		cert, err := tls.LoadX509KeyPair("certchain.pem", "privatekey.pem")
		if err != nil {
			return fmt.Errorf("cannot load TLS certificate: %w", err)
		}
		server.TLSConfig = &tls.Config{
			Certificates: []tls.Certificate{cert},
			MinVersion:   tls.VersionTLS12,
		}
	}

	errc := make(chan error, 1)
	go func() {
		var err error
		if cfg.Server.UseSSL {
			err = server.ListenAndServeTLS("", "")
		} else {
			err = server.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errc <- err
		}
		close(errc)
	}()
	log.Info("HTTP service started", nil)

	select {
	case err, ok := <-errc:
		if ok {
			return fmt.Errorf("error listening: %w", err)
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("HTTP service stopped", nil)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("HTTP service shutdown error: %w", err)
	}
	log.Info("HTTP service shutdown normal", nil)
	return nil
}

func CORSHeaders(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Access-Control-Allow-Origin", "*")
	w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
	w.Header().Set("Access-Control-Allow-Headers", "Accept, Content-Type, Content-Length, Accept-Encoding, Authorization, Origin, X-Requested-With")
}
