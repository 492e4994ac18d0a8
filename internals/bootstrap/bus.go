package bootstrap

import (
	"fmt"
	"log"

	"schoolku_backend/internals/configs"
	"schoolku_backend/internals/events"
)

// Bus adalah sisi publish dari event bus.
//   - memory: Router langsung ke MemoryBroker, worker jalan di proses yang sama
//   - kafka: publish ke topic; relay (billingctl relay) meneruskan ke RabbitMQ
type Bus struct {
	Publisher events.Publisher
	Memory    *events.MemoryBroker
	kafka     *events.KafkaPublisher
}

func NewBus(cfg configs.Config) (*Bus, error) {
	switch cfg.BusMode {
	case configs.BusModeMemory, "":
		mb := events.NewMemoryBroker()
		log.Println("[INFO] event bus: memory (workers in-process)")
		return &Bus{Publisher: events.NewRouter(mb, events.DefaultRules), Memory: mb}, nil
	case configs.BusModeKafka:
		kp := events.NewKafkaPublisher(cfg.KafkaBrokers, cfg.KafkaTopic)
		log.Printf("[INFO] event bus: kafka topic=%s brokers=%v", cfg.KafkaTopic, cfg.KafkaBrokers)
		return &Bus{Publisher: kp, kafka: kp}, nil
	default:
		return nil, fmt.Errorf("EVENT_BUS tidak dikenal: %q", cfg.BusMode)
	}
}

func (b *Bus) InProcess() bool { return b.Memory != nil }

func (b *Bus) Close() {
	if b.Memory != nil {
		_ = b.Memory.Close()
	}
	if b.kafka != nil {
		if err := b.kafka.Close(); err != nil {
			log.Printf("[WARN] kafka writer close: %v", err)
		}
	}
}
