package main

import (
	"log"

	"github.com/spf13/cobra"

	database "schoolku_backend/internals/databases"
)

func newMigrateCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "AutoMigrate semua tabel billing",
		RunE: func(cmd *cobra.Command, args []string) error {
			db := a.connect()
			defer database.Close()
			if err := database.AutoMigrate(db); err != nil {
				return err
			}
			log.Printf("[INFO] migrate ok (%d models)", len(database.Models()))
			return nil
		},
	}
}
