package main

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"orderflow/internal/app"
	"orderflow/internal/config"
	"orderflow/internal/metrics"
	"orderflow/internal/server"
)

func serveCmd() *cobra.Command {
	var addr, basePath, envFile string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the fulfillment HTTP API",
		Long:  "Settings come from the environment (ORDERFLOW_ADDR, ORDERFLOW_JWT_SECRET, LOG_LEVEL, REDIS_ADDR, ...) and an optional .env file; flags override them.",
		RunE: func(cmd *cobra.Command, args []string) error {
			srvCfg, err := config.LoadServer(envFile)
			if err != nil {
				return err
			}
			if cmd.Flags().Changed("addr") {
				srvCfg.Addr = addr
			}
			if cmd.Flags().Changed("base-path") {
				srvCfg.BasePath = basePath
			}
			if cmd.Flags().Changed("workspace") || srvCfg.Workspace == "" {
				srvCfg.Workspace = viper.GetString("workspace")
			}
			logger, err := app.NewLogger(srvCfg.LogLevel)
			if err != nil {
				return err
			}
			defer logger.Sync()

			ctx := cmd.Context()
			cfg, err := config.LoadOptional(srvCfg.Workspace)
			if err != nil {
				return err
			}
			publisher, closePublisher, err := app.NewPublisher(ctx, cfg, srvCfg.Redis, logger)
			if err != nil {
				return err
			}
			collector := metrics.NewCollector()
			rt, err := app.Open(ctx, app.Options{
				Workspace: srvCfg.Workspace,
				Logger:    logger,
				Metrics:   collector,
				Publisher: publisher,
			})
			if err != nil {
				closePublisher()
				return err
			}
			rt.OnClose(closePublisher)
			defer rt.Close()

			handler, err := server.New(server.Config{
				Engine:   rt.Engine,
				BasePath: srvCfg.BasePath,
				Auth:     server.AuthConfig{JWTSecret: srvCfg.JWTSecret},
				Logger:   logger,
				Metrics:  collector,
			})
			if err != nil {
				return err
			}
			srv := &http.Server{Addr: srvCfg.Addr, Handler: handler, ReadHeaderTimeout: 10 * time.Second}
			go func() {
				<-ctx.Done()
				shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				srv.Shutdown(shutdownCtx)
			}()
			logger.Info("serving orderflow API",
				zap.String("addr", srvCfg.Addr),
				zap.String("base_path", srvCfg.BasePath),
				zap.String("workspace", srvCfg.Workspace))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			logger.Info("server stopped")
			return nil
		},
	}
	cmd.Flags().StringVar(&addr, "addr", "127.0.0.1:8080", "listen address")
	cmd.Flags().StringVar(&basePath, "base-path", "/api/v1", "API base path")
	cmd.Flags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	return cmd
}
