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

	"github.com/aws/aws-lambda-go/lambda"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awsssm "github.com/aws/aws-sdk-go-v2/service/ssm"
	"github.com/joho/godotenv"

	"marketing-copilot/handler"
	"marketing-copilot/internal/config"
	"marketing-copilot/internal/integrations/gemini"
	"marketing-copilot/internal/integrations/paramstore"
	"marketing-copilot/internal/repository"
	"marketing-copilot/internal/usecase"
)

const sweepInterval = time.Minute

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		slog.Warn("failed to load .env file", "err", err)
	}

	// ---- Configuration (read only here) ----
	cfg, err := config.Load()
	if err != nil {
		fatal("failed to load configuration", err)
	}

	var sessionOpts []usecase.SessionsOption
	if cfg.NeedsAWS() {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			fatal("failed to load AWS config", err)
		}

		if cfg.ParamPrefix != "" {
			params, err := paramstore.New(awsssm.NewFromConfig(awsCfg), cfg.ParamPrefix)
			if err != nil {
				fatal("failed to create SSM client", err)
			}
			if err := cfg.ApplyOverrides(ctx, params); err != nil {
				fatal("failed to load parameter overrides", err)
			}
		}

		if cfg.Archive.Enabled() {
			archive, err := repository.New(awsdynamodb.NewFromConfig(awsCfg), cfg.Archive.Table, repository.WithTTL(cfg.Archive.TTL))
			if err != nil {
				fatal("failed to create transcript archive", err)
			}
			sessionOpts = append(sessionOpts, usecase.WithTurnRecorder(archive))
			slog.Info("transcript archive enabled", "table", cfg.Archive.Table)
		}
	}

	// ---- Clients ----
	geminiClient, err := gemini.NewClient(cfg.Gemini.Model,
		gemini.WithBaseURL(cfg.Gemini.BaseURL),
		gemini.WithHTTPClient(&http.Client{Timeout: cfg.Gemini.Timeout}),
	)
	if err != nil {
		fatal("failed to create Gemini client", err)
	}

	sessionOpts = append(sessionOpts,
		usecase.WithIdleTTL(cfg.Sessions.IdleTTL),
		usecase.WithSessionPreamble(cfg.Sessions.Preamble),
		usecase.WithSessionsLogger(slog.Default()),
	)
	sessions, err := usecase.NewSessions(geminiClient, sessionOpts...)
	if err != nil {
		fatal("failed to create session registry", err)
	}
	go sweep(ctx, sessions)

	// ---- Handler ----
	h, err := handler.NewHandler(sessions)
	if err != nil {
		fatal("failed to create handler", err)
	}

	if os.Getenv("AWS_LAMBDA_FUNCTION_NAME") != "" {
		lambda.Start(h.Handle)
		return
	}

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           h,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	slog.Info("marketing copilot listening", "addr", cfg.Server.Addr, "model", geminiClient.Model())
	if err := runServer(ctx, srv); err != nil {
		fatal("server error", err)
	}
}

func sweep(ctx context.Context, sessions *usecase.Sessions) {
	ticker := time.NewTicker(sweepInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			sessions.Sweep(now)
		}
	}
}

func runServer(ctx context.Context, srv *http.Server) error {
	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}

func fatal(msg string, err error) {
	slog.Error(msg, "err", err)
	os.Exit(1)
}
