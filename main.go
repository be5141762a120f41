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

	"golang.org/x/sync/errgroup"

	"bazaar/api"
)

func main() {
	args := ParseArgs()
	if err := args.Validate(); err != nil {
		slog.Error("Invalid arguments", slog.Any("error", err))
		panic("invalid arguments")
	}
	slog.SetDefault(newLogger(args))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	server, err := api.NewServer(ctx, args.ServerConfig)
	if err != nil {
		slog.Error("Fail to create server", slog.Any("error", err))
		panic(err)
	}
	server.Start()
	defer server.Close()

	httpServer := &http.Server{
		Addr:              args.ServerURL,
		Handler:           server.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	httpServer.RegisterOnShutdown(server.CloseStreams)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Listening", slog.String("addr", args.ServerURL))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), args.ShutdownTimeout)
		defer cancel()
		slog.Info("Shutting down")
		return httpServer.Shutdown(shutdownCtx)
	})
	if err := g.Wait(); err != nil {
		slog.Error("Server stopped with error", slog.Any("error", err))
	}
}

func newLogger(args Args) *slog.Logger {
	level, _ := parseLevel(args.LogLevel)
	options := &slog.HandlerOptions{Level: level}
	if args.LogFormat == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, options))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, options))
}
