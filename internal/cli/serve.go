package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"captchad/internal/config"
	"captchad/internal/httpapi"
)

const shutdownGrace = 5 * time.Second

// serve runs the HTTP relay until ctx is done or SIGINT/SIGTERM arrives.
func serve(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	svc, err := buildRelay(cfg, log)
	if err != nil {
		return err
	}
	if !svc.Ready() {
		log.Warn().Str("predictor", cfg.PredictorScriptPath).Str("encoder", cfg.EncoderScriptPath).Msg("scripts missing; requests will fail until they are in place")
	}

	httpapi.SetLogger(log.With().Str("component", "http").Logger())
	httpapi.SetRequestLogLevel(cfg.LogLevel)
	httpapi.SetMaxUploadBytes(cfg.MaxUploadBytes)
	httpapi.SetCORSOptions(cfg.CORS.Enabled, cfg.CORS.AllowedOrigins, cfg.CORS.AllowedMethods, cfg.CORS.AllowedHeaders)
	httpapi.SetStaticDir(cfg.StaticDir)

	// Scripts still running when the grace period ends are terminated.
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()
	httpapi.SetBaseContext(baseCtx)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           httpapi.NewMux(svc),
		ReadHeaderTimeout: 10 * time.Second,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("predictor", cfg.PredictorScriptPath).Str("temp_dir", cfg.TempDir).Msg("captchad listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shCtx, cancel := context.WithTimeout(context.Background(), shutdownGrace)
	defer cancel()
	if err := srv.Shutdown(shCtx); err != nil {
		log.Warn().Err(err).Msg("graceful shutdown error")
	}
	return nil
}
