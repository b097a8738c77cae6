package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	httpapi "github.com/immxrtalbeast/videocall/internal/api/http"
	"github.com/immxrtalbeast/videocall/internal/callscreen"
	"github.com/immxrtalbeast/videocall/internal/config"
	"github.com/immxrtalbeast/videocall/internal/media"
	"github.com/immxrtalbeast/videocall/internal/repository"
	"github.com/immxrtalbeast/videocall/internal/service"
	"github.com/immxrtalbeast/videocall/internal/token"
	"github.com/immxrtalbeast/videocall/lib/logger/sl"
	"github.com/immxrtalbeast/videocall/lib/logger/slogpretty"
	"github.com/joho/godotenv"
)

const shutdownTimeout = 10 * time.Second

func main() {
	_ = godotenv.Load(".env")

	cfg := config.MustLoad()
	log := setupLogger(cfg.Env)

	sessionRepo := repository.NewInMemorySessionRepository()
	manager := callscreen.NewManager(sessionRepo, callscreen.Options{
		EventBuffer:      cfg.Screen.EventBuffer,
		SubscriberBuffer: cfg.Screen.SubscriberBuffer,
	}, log)

	tokenClient := token.NewClient(cfg.Token.BaseURL,
		token.WithPath(cfg.Token.Path),
		token.WithTimeout(cfg.Token.Timeout),
		token.WithLogger(log),
	)
	joinService := service.NewJoinService(tokenClient, manager, log)
	bridge := service.NewBridge(joinService, log)

	engine, err := media.NewEngine(cfg.WebRTC.STUNServers, cfg.WebRTC.GatherTimeout, log)
	if err != nil {
		log.Error("failed to create media engine", sl.Err(err))
		os.Exit(1)
	}

	var tokenController *httpapi.TokenController
	if cfg.Issuer.Enabled {
		issuer, err := token.NewIssuer(cfg.Issuer.Secret, cfg.Issuer.TTL, nil)
		if err != nil {
			log.Error("failed to create token issuer", sl.Err(err))
			os.Exit(1)
		}
		tokenController = httpapi.NewTokenController(issuer)
		log.Warn("development token endpoint enabled", slog.String("path", token.DefaultPath))
	}

	bridgeController := httpapi.NewBridgeController(bridge, cfg.HTTP.JoinTimeout, log)
	screenController := httpapi.NewScreenController(manager, engine, log)

	router := httpapi.SetupRouter(cfg.HTTP.AllowOrigins, bridgeController, screenController, tokenController)
	srv := &http.Server{
		Addr:    cfg.HTTP.Address,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go func() {
		log.Info("starting application",
			slog.String("addr", cfg.HTTP.Address),
			slog.String("token_url", cfg.Token.BaseURL+cfg.Token.Path),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("http server stopped", sl.Err(err))
			os.Exit(1)
		}
	}()

	<-ctx.Done()
	log.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error("http server shutdown", sl.Err(err))
	}
	manager.Shutdown(shutdownCtx)
	engine.Close()
}

const (
	envLocal = "local"
	envDev   = "dev"
	envProd  = "prod"
)

func setupLogger(env string) *slog.Logger {
	var log *slog.Logger

	switch env {
	case envLocal:
		log = setupPrettySlog()
	case envDev:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}),
		)
	case envProd:
		log = slog.New(
			slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}),
		)
	default:
		log = setupPrettySlog()
	}

	return log
}

func setupPrettySlog() *slog.Logger {
	opts := slogpretty.PrettyHandlerOptions{
		SlogOpts: &slog.HandlerOptions{
			Level: slog.LevelDebug,
		},
	}

	handler := opts.NewPrettyHandler(os.Stdout)

	return slog.New(handler)
}
