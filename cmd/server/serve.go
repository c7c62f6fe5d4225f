package main

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	grpcServer "github.com/wekeepgrowing/qris-gateway/internal/infrastructure/grpc"
	httpServer "github.com/wekeepgrowing/qris-gateway/internal/infrastructure/http"
)

const shutdownTimeout = 15 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API and the gRPC health endpoint",
		RunE:  runServe,
	}
}

func runServe(cmd *cobra.Command, args []string) error {
	app, err := newApplication()
	if err != nil {
		return err
	}
	defer app.close()

	httpSrv, err := httpServer.NewServer(app.config, app.logger, app.qris, app.webhooks)
	if err != nil {
		return fmt.Errorf("failed to create HTTP server: %w", err)
	}

	var grpcSrv *grpcServer.Server
	if app.config.Server.GRPC.Enabled {
		grpcSrv = grpcServer.NewServer(app.config, app.logger)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 2)
	go func() {
		errCh <- httpSrv.Start()
	}()
	if grpcSrv != nil {
		go func() {
			errCh <- grpcSrv.Start()
		}()
	}

	var runErr error
	select {
	case <-ctx.Done():
		app.logger.Info("Shutting down servers...")
	case runErr = <-errCh:
		if runErr != nil {
			app.logger.Error("Server stopped unexpectedly", zap.Error(runErr))
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if grpcSrv != nil {
		if err := grpcSrv.Shutdown(shutdownCtx); err != nil {
			app.logger.Error("Failed to shutdown gRPC server", zap.Error(err))
		}
	}
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		app.logger.Error("Failed to shutdown HTTP server", zap.Error(err))
	}

	app.logger.Info("Servers shut down successfully")
	return runErr
}
