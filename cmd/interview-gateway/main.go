package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/JiawenZhu/JasTalk-AI-sub003/internal/dotenv"
	"github.com/JiawenZhu/JasTalk-AI-sub003/internal/store"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/config"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/provider"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/live/session"
	"github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/metrics"
	gatewayserver "github.com/JiawenZhu/JasTalk-AI-sub003/pkg/gateway/server"
)

type gatewayDeps struct {
	loadConfig   func() (config.Config, error)
	newConnector func(ctx context.Context, cfg config.Config) (provider.Connector, error)
	openStore    func(ctx context.Context, databaseURL string) (recorder session.Recorder, closeFn func(), err error)
	newGateway   func(config.Config, *slog.Logger, gatewayserver.Dependencies) *gatewayserver.Server
	signalNotify func(chan<- os.Signal, ...os.Signal)
	signalStop   func(chan<- os.Signal)
}

func defaultGatewayDeps() gatewayDeps {
	return gatewayDeps{
		loadConfig: config.LoadFromEnv,
		newConnector: func(ctx context.Context, cfg config.Config) (provider.Connector, error) {
			return provider.NewGeminiConnector(ctx, cfg.GeminiAPIKey, cfg.GeminiModel)
		},
		openStore: func(ctx context.Context, databaseURL string) (session.Recorder, func(), error) {
			st, err := store.Open(ctx, databaseURL)
			if err != nil {
				return nil, nil, err
			}
			return st, st.Close, nil
		},
		newGateway: gatewayserver.New,
		signalNotify: func(c chan<- os.Signal, sig ...os.Signal) {
			signal.Notify(c, sig...)
		},
		signalStop: signal.Stop,
	}
}

func buildHTTPServer(cfg config.Config, handler http.Handler) *http.Server {
	return &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler,
		ReadHeaderTimeout: cfg.ReadHeaderTimeout,
	}
}

func runGateway(ctx context.Context, logger *slog.Logger, deps gatewayDeps) error {
	if deps.loadConfig == nil {
		return errors.New("missing loadConfig dependency")
	}
	if deps.newConnector == nil {
		return errors.New("missing newConnector dependency")
	}
	if deps.newGateway == nil {
		return errors.New("missing newGateway dependency")
	}
	if deps.signalNotify == nil || deps.signalStop == nil {
		return errors.New("missing signal dependency")
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg, err := deps.loadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	connector, err := deps.newConnector(ctx, cfg)
	if err != nil {
		return fmt.Errorf("init provider: %w", err)
	}

	var recorder session.Recorder
	if cfg.DatabaseURL != "" && deps.openStore != nil {
		rec, closeFn, err := deps.openStore(ctx, cfg.DatabaseURL)
		if err != nil {
			return fmt.Errorf("open store: %w", err)
		}
		defer closeFn()
		recorder = rec
		logger.Info("conversation recorder enabled")
	}

	gw := deps.newGateway(cfg, logger, gatewayserver.Dependencies{
		Connector: connector,
		Recorder:  recorder,
		Metrics:   metrics.New(cfg.MetricsNamespace),
	})
	httpSrv := buildHTTPServer(cfg, gw.Handler())

	logger.Info("starting gateway", "addr", cfg.Addr, "model", cfg.GeminiModel)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	deps.signalNotify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer deps.signalStop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	gw.SetDraining()
	gw.WarnSessions("server shutting down")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer shutdownCancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}

	waitCtx, waitCancel := context.WithTimeout(context.Background(), cfg.ShutdownGracePeriod)
	defer waitCancel()
	if !gw.WaitSessions(waitCtx) {
		gw.CancelSessions()
	}

	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer, deps gatewayDeps) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.LoadFile(".env"); err != nil {
		fmt.Fprintf(stderr, "interview-gateway: %v\n", err)
		return 1
	}

	if err := runGateway(ctx, logger, deps); err != nil {
		fmt.Fprintf(stderr, "interview-gateway: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr, defaultGatewayDeps()))
}
