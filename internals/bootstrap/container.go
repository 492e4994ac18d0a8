// Package bootstrap merakit service, gateway, storage dan worker dari Config.
// Dipakai bersama oleh main (HTTP) dan cmd/billingctl.
package bootstrap

import (
	"fmt"
	"log"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"schoolku_backend/internals/configs"
	"schoolku_backend/internals/events"
	resultService "schoolku_backend/internals/features/academics/results/service"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	feeService "schoolku_backend/internals/features/finance/fees/service"
	invService "schoolku_backend/internals/features/finance/invoices/service"
	payService "schoolku_backend/internals/features/finance/payments/service"
	receiptService "schoolku_backend/internals/features/finance/receipts/service"
	"schoolku_backend/internals/helpers/oss"
	"schoolku_backend/internals/workers"
)

type Container struct {
	Cfg       configs.Config
	DB        *gorm.DB
	Publisher events.Publisher

	Audit    *auditService.Writer
	Fees     *feeService.Service
	Invoices *invService.Service
	Payments *payService.Service
	Receipts *receiptService.Service
	Results  *resultService.Service
	Store    oss.DocumentStore
}

// New merakit semua service di atas satu publisher.
// Store nil berarti upload bukti bayar & dokumen kuitansi nonaktif.
func New(cfg configs.Config, db *gorm.DB, pub events.Publisher) (*Container, error) {
	store, err := NewStore(cfg)
	if err != nil {
		return nil, err
	}

	audit := auditService.NewWriter(db)
	fees := feeService.New(db, audit, feeService.PolicyDefaults{
		MinFirstPaymentPercent: decimal.NewFromInt(int64(cfg.DefaultMinFirstPaymentPercent)),
		Currency:               cfg.DefaultCurrency,
	})

	pay := payService.New(db, audit, pub, fees)
	pay.Store = store
	pay.MidtransServerKey = cfg.MidtransServerKey
	pay.StripeWebhookSecret = cfg.StripeWebhookSecret
	if cfg.MidtransServerKey != "" {
		pay.WithGateway(payService.NewMidtransGateway(cfg.MidtransServerKey, cfg.MidtransUseProd))
	}
	if cfg.StripeSecretKey != "" {
		pay.WithGateway(payService.NewStripeGateway(cfg.StripeSecretKey))
	}

	return &Container{
		Cfg:       cfg,
		DB:        db,
		Publisher: pub,
		Audit:     audit,
		Fees:      fees,
		Invoices:  invService.New(db, audit, pub, fees),
		Payments:  pay,
		Receipts:  receiptService.New(db, audit),
		Results:   resultService.New(db, audit, pub),
		Store:     store,
	}, nil
}

// NewStore memilih backend dokumen sesuai RECEIPT_STORAGE.
func NewStore(cfg configs.Config) (oss.DocumentStore, error) {
	switch cfg.ReceiptStorage {
	case configs.StorageOSS:
		st, err := oss.NewOSSStore(oss.OSSConfig{
			Endpoint:      cfg.OSSEndpoint,
			AccessKey:     cfg.OSSAccessKey,
			SecretKey:     cfg.OSSSecretKey,
			Bucket:        cfg.OSSBucket,
			PublicBaseURL: cfg.OSSPublicBaseURL,
		})
		if err != nil {
			return nil, err
		}
		return st, nil
	case configs.StorageCloudinary:
		st, err := oss.NewCloudinaryStore(cfg.CloudinaryURL, "schoolku")
		if err != nil {
			return nil, err
		}
		return st, nil
	case configs.StorageNone, "":
		log.Println("[WARN] RECEIPT_STORAGE=none, dokumen kuitansi & bukti bayar tidak diunggah")
		return nil, nil
	default:
		return nil, fmt.Errorf("RECEIPT_STORAGE tidak dikenal: %q", cfg.ReceiptStorage)
	}
}

// Notifier: Brevo bila API key ada, selain itu hanya di-log.
func (c *Container) Notifier() workers.Notifier {
	if c.Cfg.BrevoAPIKey == "" || c.Cfg.EmailSender == "" {
		log.Println("[WARN] BREVO_API_KEY/EMAIL_SENDER kosong, email hanya di-log")
		return workers.LogNotifier{}
	}
	return workers.NewBrevoNotifier(c.Cfg.BrevoAPIKey, c.Cfg.EmailSender, c.Cfg.EmailSenderName)
}

func (c *Container) Renderer() receiptService.Renderer {
	if c.Cfg.ReceiptPDF {
		return receiptService.PDFRenderer{Timeout: 30 * time.Second}
	}
	return receiptService.HTMLRenderer{}
}

// Workers: worker kuitansi hanya aktif bila ada storage.
func (c *Container) Workers() workers.Set {
	set := workers.Set{
		Messaging: &workers.Messaging{DB: c.DB, Notifier: c.Notifier()},
		Invoicing: &workers.Invoicing{Invoices: c.Invoices},
	}
	if c.Store != nil {
		set.Receipts = &workers.Receipts{DB: c.DB, Receipts: c.Receipts, Renderer: c.Renderer(), Store: c.Store}
	}
	return set
}

func (c *Container) Scanner() *workers.Scanner {
	return &workers.Scanner{Invoices: c.Invoices, Publisher: c.Publisher}
}
