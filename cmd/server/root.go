package main

import (
	"sync"

	"talkinghead/config"
	"talkinghead/internal/database"
	"talkinghead/internal/logging"
	"talkinghead/internal/router"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// commandContext lazily loads what each subcommand needs.
type commandContext struct {
	once sync.Once
	cfg  *config.Config
	log  *zap.Logger
	err  error
}

func (c *commandContext) ensure() error {
	c.once.Do(func() {
		c.cfg = config.Load()
		c.log, c.err = logging.New(c.cfg.Server.Env)
	})
	return c.err
}

func (c *commandContext) openDB() (*gorm.DB, error) {
	if err := c.ensure(); err != nil {
		return nil, err
	}
	return database.NewDB(&c.cfg.Database)
}

// services opens the database and wires the service graph.
func (c *commandContext) services() (*router.Services, error) {
	db, err := c.openDB()
	if err != nil {
		return nil, err
	}
	gw, err := router.NewGateway(&c.cfg.Gateway, c.log.Named("gateway"))
	if err != nil {
		return nil, err
	}
	return router.NewServices(c.cfg, db, gw, c.log)
}

func newRootCommand() *cobra.Command {
	ctx := &commandContext{}
	rootCmd := &cobra.Command{
		Use:           "talkinghead",
		Short:         "Scenario payments and referral bonus service",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return ctx.ensure()
		},
		PersistentPostRun: func(cmd *cobra.Command, args []string) {
			if ctx.log != nil {
				_ = ctx.log.Sync()
			}
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}
	rootCmd.AddCommand(newServeCommand(ctx))
	rootCmd.AddCommand(newMigrateCommand(ctx))
	rootCmd.AddCommand(newReconcileCommand(ctx))
	rootCmd.AddCommand(newAuditCommand(ctx))
	rootCmd.AddCommand(newTokenCommand(ctx))
	return rootCmd
}
