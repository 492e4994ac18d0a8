package database

import (
	"fmt"
	"log"

	"gorm.io/gorm"

	resultModel "schoolku_backend/internals/features/academics/results/model"
	auditModel "schoolku_backend/internals/features/finance/audit/model"
	feeModel "schoolku_backend/internals/features/finance/fees/model"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	payModel "schoolku_backend/internals/features/finance/payments/model"
	receiptModel "schoolku_backend/internals/features/finance/receipts/model"
	enrollModel "schoolku_backend/internals/features/school/enrollments/model"
	workerModel "schoolku_backend/internals/workers/model"
)

// Models lists every table of the billing engine in dependency order.
func Models() []any {
	return []any{
		&feeModel.FeeItem{},
		&feeModel.FeeSchedule{},
		&feeModel.FeeScheduleLine{},
		&feeModel.BillingPolicy{},

		&enrollModel.Enrollment{},

		&invModel.Invoice{},
		&invModel.InvoiceLine{},
		&invModel.InvoiceSequence{},
		&invModel.InvoicePaymentApplication{},
		&invModel.FeeAdjustment{},
		&invModel.InstallmentPlan{},
		&invModel.Installment{},

		&payModel.PaymentIntent{},
		&payModel.PaymentTransaction{},
		&payModel.ManualPaymentProof{},
		&payModel.GatewayEvent{},

		&receiptModel.ReceiptCounter{},
		&receiptModel.Receipt{},

		&resultModel.ResultReleasePolicy{},
		&resultModel.ReportCard{},

		&auditModel.AuditEvent{},
		&workerModel.NotificationLog{},
	}
}

func AutoMigrate(db *gorm.DB) error {
	for _, m := range Models() {
		if err := db.AutoMigrate(m); err != nil {
			return fmt.Errorf("automigrate %T: %w", m, err)
		}
	}
	log.Printf("[INFO] automigrate: %d tables ok", len(Models()))
	return nil
}
