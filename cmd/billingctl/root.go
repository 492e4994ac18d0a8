package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"gorm.io/gorm"

	"schoolku_backend/internals/configs"
	database "schoolku_backend/internals/databases"
)

type app struct {
	cfg configs.Config
	db  *gorm.DB
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:           "billingctl",
		Short:         "Operasional billing & rekonsiliasi sekolah",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			configs.LoadEnv()
			a.cfg = configs.Load()
		},
	}
	root.AddCommand(
		newMigrateCmd(a),
		newWorkersCmd(a),
		newRelayCmd(a),
		newGenerateInvoicesCmd(a),
		newScanOverdueCmd(a),
	)
	return root
}

// connect membuka DB sekali per proses
func (a *app) connect() *gorm.DB {
	if a.db == nil {
		a.db = database.ConnectDB(a.cfg)
		database.TunePool()
	}
	return a.db
}

// signalContext dibatalkan saat SIGINT/SIGTERM
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	return signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
}
