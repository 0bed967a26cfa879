package main

import (
	"context"
	"errors"
	"log"
	"log/slog"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-support-chat/internal/application/chat"
	transporthttp "github.com/go-support-chat/internal/transport/http"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Recover the chat session and serve the local HTTP bridge",
	RunE:  runServe,
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	openOnStart, _ := cmd.Flags().GetBool("open")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := buildApp(ctx, cfg)
	if err != nil {
		return err
	}

	bus := chat.NewBus()
	detach := app.controller.Attach(ctx, bus)
	defer detach()

	if err := app.controller.Initialize(ctx); err != nil {
		slog.Warn("session recovery incomplete", "err", err)
	}
	if openOnStart {
		bus.Publish(chat.CommandOpen)
	}

	router, stopRouter := transporthttp.NewRouter(cfg, &transporthttp.Deps{Chat: app.controller, Bus: bus})
	defer stopRouter()
	srv := &http.Server{
		Addr:         cfg.Addr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Printf("Bridge listening on %s (env=%s)", cfg.Addr(), cfg.AppEnv)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return err
		}
	case <-ctx.Done():
	}

	log.Println("Shutting down bridge...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	app.controller.Close()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	log.Println("Bridge stopped")
	return nil
}
