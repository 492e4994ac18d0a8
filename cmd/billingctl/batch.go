package main

import (
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"schoolku_backend/internals/bootstrap"
	"schoolku_backend/internals/constants"
	database "schoolku_backend/internals/databases"
	"schoolku_backend/internals/events"
	"schoolku_backend/internals/features/finance/invoices/dto"
	invService "schoolku_backend/internals/features/finance/invoices/service"
	"schoolku_backend/internals/middlewares/guard"
)

// publisher untuk perintah batch: kafka bila EVENT_BUS=kafka, selain itu RabbitMQ langsung
func (a *app) batchPublisher() (events.Publisher, func(), error) {
	bus, err := bootstrap.NewBus(a.cfg)
	if err != nil {
		return nil, nil, err
	}
	if !bus.InProcess() {
		return bus.Publisher, bus.Close, nil
	}
	broker, err := events.NewRabbitBroker(a.cfg.RabbitMQURL, a.cfg.QueuePrefetch)
	if err != nil {
		return nil, nil, err
	}
	return events.NewRouter(broker, events.DefaultRules), func() { _ = broker.Close() }, nil
}

func newGenerateInvoicesCmd(a *app) *cobra.Command {
	var (
		schoolID, termID, groupID, scheduleID, actorID, due string
		limit                                               int
		skip, async                                         bool
	)
	cmd := &cobra.Command{
		Use:   "generate-invoices",
		Short: "Buat invoice untuk semua siswa aktif di satu kelompok kelas",
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed := make([]uuid.UUID, 4)
			for i, raw := range []string{schoolID, termID, groupID, scheduleID} {
				id, err := uuid.Parse(raw)
				if err != nil {
					return fmt.Errorf("uuid tidak valid %q: %w", raw, err)
				}
				parsed[i] = id
			}
			dueAt, err := time.Parse("2006-01-02", due)
			if err != nil {
				return fmt.Errorf("--due harus YYYY-MM-DD: %w", err)
			}

			pub, closePub, err := a.batchPublisher()
			if err != nil {
				return err
			}
			defer closePub()
			db := a.connect()
			defer database.Close()

			c, err := bootstrap.New(a.cfg, db, pub)
			if err != nil {
				return err
			}

			p := guard.Principal{SchoolID: &parsed[0], Roles: []string{constants.RoleAdmin}}
			if actorID != "" {
				uid, err := uuid.Parse(actorID)
				if err != nil {
					return fmt.Errorf("--actor tidak valid: %w", err)
				}
				p.UserID = &uid
			}
			req := dto.GenerateClassInvoicesRequest{
				TermID:         parsed[1],
				ClassGroupID:   parsed[2],
				FeeScheduleID:  parsed[3],
				DueAt:          dueAt.UTC(),
				SkipDuplicates: skip,
			}
			if limit > 0 {
				req.Cap = &limit
			}
			in := invService.GenerateClassInvoicesInput{
				SchoolID:                     parsed[0],
				GenerateClassInvoicesRequest: req,
			}
			ctx := guard.WithPrincipal(cmd.Context(), p)
			if async {
				id, err := c.Invoices.RequestClassInvoices(ctx, in)
				if err != nil {
					return err
				}
				log.Printf("[INFO] generate-invoices queued event=%s", id)
				return nil
			}
			res, err := c.Invoices.GenerateClassInvoices(ctx, in)
			if err != nil {
				return err
			}
			log.Printf("[INFO] generate-invoices created=%d skipped=%d failed=%d", res.CreatedCount, res.SkippedCount, res.FailedCount)
			for _, e := range res.Errors {
				log.Printf("[WARN] %+v", e)
			}
			return nil
		},
	}
	f := cmd.Flags()
	f.StringVar(&schoolID, "school", "", "school id")
	f.StringVar(&termID, "term", "", "term id")
	f.StringVar(&groupID, "class-group", "", "class group id")
	f.StringVar(&scheduleID, "schedule", "", "fee schedule id")
	f.StringVar(&due, "due", "", "jatuh tempo (YYYY-MM-DD)")
	f.StringVar(&actorID, "actor", "", "user id pencatat audit (opsional)")
	f.IntVar(&limit, "cap", 0, "batas jumlah invoice dibuat (0 = tanpa batas)")
	f.BoolVar(&skip, "skip-duplicates", true, "lewati siswa yang sudah punya invoice")
	f.BoolVar(&async, "async", false, "antrekan ke worker invoicing (import.requested)")
	for _, name := range []string{"school", "term", "class-group", "schedule", "due"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newScanOverdueCmd(a *app) *cobra.Command {
	var sweep bool
	cmd := &cobra.Command{
		Use:   "scan-overdue",
		Short: "Sekali jalan: kirim pengingat invoice lewat jatuh tempo",
		RunE: func(cmd *cobra.Command, args []string) error {
			pub, closePub, err := a.batchPublisher()
			if err != nil {
				return err
			}
			defer closePub()
			db := a.connect()
			defer database.Close()

			c, err := bootstrap.New(a.cfg, db, pub)
			if err != nil {
				return err
			}
			sc := c.Scanner()
			n, err := sc.ScanOverdue(cmd.Context())
			if err != nil {
				return err
			}
			log.Printf("[INFO] overdue reminders published=%d", n)
			if sweep {
				m, err := sc.SweepStale(cmd.Context())
				if err != nil {
					return err
				}
				log.Printf("[INFO] stale invoices republished=%d", m)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&sweep, "sweep", false, "sekalian republish invoice yang belum dimaterialisasi")
	return cmd
}
