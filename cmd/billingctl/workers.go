package main

import (
	"log"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"schoolku_backend/internals/bootstrap"
	database "schoolku_backend/internals/databases"
	"schoolku_backend/internals/events"
	"schoolku_backend/internals/workers"
)

func newWorkersCmd(a *app) *cobra.Command {
	var withScanner bool
	cmd := &cobra.Command{
		Use:   "workers",
		Short: "Jalankan worker messaging/invoicing/receipts dari RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			broker, err := events.NewRabbitBroker(a.cfg.RabbitMQURL, a.cfg.QueuePrefetch)
			if err != nil {
				return err
			}
			defer broker.Close()

			db := a.connect()
			defer database.Close()

			// event turunan (payment.confirmed dsb) langsung dirutekan ke antrian
			c, err := bootstrap.New(a.cfg, db, events.NewRouter(broker, events.DefaultRules))
			if err != nil {
				return err
			}

			g, gctx := errgroup.WithContext(ctx)
			g.Go(func() error {
				return workers.Run(gctx, broker, events.DefaultQueues(), c.Workers())
			})
			if withScanner {
				cr, err := c.Scanner().Schedule(a.cfg.OverdueCron)
				if err != nil {
					return err
				}
				cr.Start()
				g.Go(func() error {
					<-gctx.Done()
					<-cr.Stop().Done()
					return nil
				})
			}
			log.Println("[INFO] workers running")
			return g.Wait()
		},
	}
	cmd.Flags().BoolVar(&withScanner, "scanner", true, "jadwalkan scan overdue + sweep invoice basi")
	return cmd
}

func newRelayCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "relay",
		Short: "Teruskan event dari Kafka ke antrian RabbitMQ",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signalContext(cmd.Context())
			defer stop()

			broker, err := events.NewRabbitBroker(a.cfg.RabbitMQURL, a.cfg.QueuePrefetch)
			if err != nil {
				return err
			}
			defer broker.Close()

			router := events.NewRouter(broker, events.DefaultRules)
			for _, spec := range events.DefaultQueues() {
				if err := broker.Declare(ctx, spec); err != nil {
					return err
				}
			}

			relay := events.NewRelay(a.cfg.KafkaBrokers, a.cfg.KafkaTopic, a.cfg.KafkaGroupID, router)
			defer relay.Close()
			log.Printf("[INFO] relay %s → rabbitmq", a.cfg.KafkaTopic)
			if err := relay.Run(ctx); err != nil && ctx.Err() == nil {
				return err
			}
			return nil
		},
	}
}

