package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"talkinghead/internal/database"
	"talkinghead/internal/router"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

func newServeCommand(ctx *commandContext) *cobra.Command {
	var migrate bool
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API and the pending-payment sweep",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log := ctx.cfg, ctx.log
			db, err := ctx.openDB()
			if err != nil {
				return err
			}
			if migrate {
				if err := database.AutoMigrate(db); err != nil {
					return err
				}
			}
			gw, err := router.NewGateway(&cfg.Gateway, log.Named("gateway"))
			if err != nil {
				return err
			}
			svc, err := router.NewServices(cfg, db, gw, log)
			if err != nil {
				return err
			}
			engine, limiter, err := router.Setup(cfg, svc, log.Named("http"))
			if err != nil {
				return err
			}
			defer limiter.Close()

			if cfg.Reconcile.Enabled {
				if err := svc.Reconciler.Start(); err != nil {
					return err
				}
				defer func() { _ = svc.Reconciler.Stop() }()
			}

			srv := &http.Server{
				Addr:         ":" + cfg.Server.Port,
				Handler:      engine,
				ReadTimeout:  cfg.Server.ReadTimeout,
				WriteTimeout: cfg.Server.WriteTimeout,
			}
			errc := make(chan error, 1)
			go func() {
				log.Info("server listening", zap.String("addr", srv.Addr), zap.String("provider", cfg.Gateway.Provider))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					errc <- err
				}
			}()
			quit := make(chan os.Signal, 1)
			signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
			select {
			case err := <-errc:
				return err
			case <-quit:
			}
			log.Info("shutting down")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	}
	cmd.Flags().BoolVar(&migrate, "migrate", true, "Run schema migration before serving")
	return cmd
}
