package workers

import (
	"bytes"
	"context"
	"errors"
	"html/template"
	"log"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"schoolku_backend/internals/constants"
	"schoolku_backend/internals/events"
	invModel "schoolku_backend/internals/features/finance/invoices/model"
	enrollService "schoolku_backend/internals/features/school/enrollments/service"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/workers/model"
)

var mailTmpl = template.Must(template.New("mail").Parse(`
{{define "invoice.generated"}}<p>Yth. orang tua/wali {{.StudentName}},</p>
<p>Tagihan {{.InvoiceNumber}} telah terbit dengan jatuh tempo {{.DueAt}}. Rincian dapat dilihat di aplikasi.</p>{{end}}
{{define "invoice.overdue"}}<p>Yth. orang tua/wali {{.StudentName}},</p>
<p>Tagihan {{.InvoiceNumber}} sudah lewat jatuh tempo {{.Days}} hari. Sisa tagihan {{.Currency}} {{.Amount}}.</p>{{end}}
{{define "payment.confirmed"}}<p>Pembayaran {{.Currency}} {{.Amount}} untuk tagihan {{.InvoiceNumber}} telah kami terima.</p>
<p>Nomor kuitansi: {{.ReceiptNo}}</p>{{end}}
{{define "result.ready"}}<p>Rapor {{.StudentName}} untuk semester ini sudah dapat dilihat.</p>{{end}}
`))

var subjects = map[string]string{
	constants.EventInvoiceGenerated: "Tagihan sekolah baru",
	constants.EventInvoiceOverdue:   "Pengingat tagihan jatuh tempo",
	constants.EventPaymentConfirmed: "Pembayaran diterima",
	constants.EventResultReady:      "Rapor sudah terbit",
}

type mailView struct {
	StudentName   string
	InvoiceNumber string
	Currency      string
	Amount        string
	DueAt         string
	Days          int
	ReceiptNo     string
}

// Messaging sends one notification per (school, event, channel). The
// notification_logs row is claimed before sending and released when the
// send fails, so a redelivered event retries but never double-sends.
type Messaging struct {
	DB       *gorm.DB
	Notifier Notifier
}

func (m *Messaging) Handle(ctx context.Context, ev events.Event) error {
	schoolID, err := uuid.Parse(ev.SchoolID())
	if err != nil {
		return apperr.Validation("event without schoolId: " + ev.ID)
	}

	to, msg, err := m.compose(ctx, schoolID, ev)
	if err != nil {
		return err
	}
	if to == "" {
		log.Printf("[INFO] messaging: %s %s has no recipient, skipped", ev.DetailType, ev.ID)
		return nil
	}
	msg.To = to

	db := m.DB.WithContext(ctx)
	row := model.NotificationLog{
		NotificationLogSchoolID:  schoolID,
		NotificationLogEventID:   ev.ID,
		NotificationLogChannel:   m.Notifier.Channel(),
		NotificationLogKind:      ev.DetailType,
		NotificationLogRecipient: to,
	}
	res := db.Clauses(clause.OnConflict{DoNothing: true}).Create(&row)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		log.Printf("[INFO] messaging: %s already sent via %s", ev.ID, row.NotificationLogChannel)
		return nil
	}

	if err := m.Notifier.Send(ctx, msg); err != nil {
		if derr := db.Where("notification_log_school_id = ? AND notification_log_event_id = ? AND notification_log_channel = ?",
			schoolID, ev.ID, row.NotificationLogChannel).Delete(&model.NotificationLog{}).Error; derr != nil {
			log.Printf("[ERROR] messaging: release claim %s: %v", ev.ID, derr)
		}
		return err
	}
	return nil
}

// compose resolves the recipient and renders the body for one event.
func (m *Messaging) compose(ctx context.Context, schoolID uuid.UUID, ev events.Event) (string, Message, error) {
	var (
		to   string
		view mailView
	)
	switch ev.DetailType {
	case constants.EventInvoiceGenerated:
		var d events.InvoiceGenerated
		if err := ev.Decode(&d); err != nil {
			return "", Message{}, apperr.Validation(err.Error())
		}
		if d.Reason != constants.ReasonGenerated {
			// perubahan pilihan/penyesuaian tidak dikirim ulang
			return "", Message{}, nil
		}
		inv, err := m.invoice(ctx, schoolID, d.InvoiceID)
		if err != nil {
			return "", Message{}, err
		}
		to, view = email(inv.InvoiceBillToEmail), invoiceView(inv)

	case constants.EventInvoiceOverdue:
		var d events.InvoiceOverdue
		if err := ev.Decode(&d); err != nil {
			return "", Message{}, apperr.Validation(err.Error())
		}
		inv, err := m.invoice(ctx, schoolID, d.InvoiceID)
		if err != nil {
			return "", Message{}, err
		}
		to, view = email(inv.InvoiceBillToEmail), invoiceView(inv)
		view.Amount = d.AmountDue.StringFixedBank(2)
		view.Days = d.DaysOverdue

	case constants.EventPaymentConfirmed:
		var d events.PaymentConfirmed
		if err := ev.Decode(&d); err != nil {
			return "", Message{}, apperr.Validation(err.Error())
		}
		inv, err := m.invoice(ctx, schoolID, d.InvoiceID)
		if err != nil {
			return "", Message{}, err
		}
		to, view = email(inv.InvoiceBillToEmail), invoiceView(inv)
		view.Amount = d.Amount.StringFixedBank(2)
		view.Currency = d.Currency
		view.ReceiptNo = d.ReceiptNo

	case constants.EventResultReady:
		var d events.ResultReady
		if err := ev.Decode(&d); err != nil {
			return "", Message{}, apperr.Validation(err.Error())
		}
		enr, err := enrollService.CurrentEnrollment(m.DB.WithContext(ctx), schoolID, d.StudentID, d.TermID)
		if errors.Is(err, apperr.ErrNotFound) {
			return "", Message{}, nil
		}
		if err != nil {
			return "", Message{}, err
		}
		to, view = email(enr.EnrollmentGuardianEmail), mailView{StudentName: enr.EnrollmentStudentName}

	default:
		log.Printf("[WARN] messaging: no template for %s", ev.DetailType)
		return "", Message{}, nil
	}

	var buf bytes.Buffer
	if err := mailTmpl.ExecuteTemplate(&buf, ev.DetailType, view); err != nil {
		return "", Message{}, apperr.Internal("render notification", err)
	}
	return to, Message{ToName: view.StudentName, Subject: subjects[ev.DetailType], HTML: buf.String()}, nil
}

func (m *Messaging) invoice(ctx context.Context, schoolID, invoiceID uuid.UUID) (*invModel.Invoice, error) {
	var inv invModel.Invoice
	if err := m.DB.WithContext(ctx).
		Where("invoice_school_id = ? AND invoice_id = ?", schoolID, invoiceID).
		First(&inv).Error; err != nil {
		return nil, apperr.FromDB(err, "invoice")
	}
	return &inv, nil
}

func invoiceView(inv *invModel.Invoice) mailView {
	return mailView{
		StudentName:   inv.InvoiceStudentName,
		InvoiceNumber: inv.InvoiceNumber,
		Currency:      inv.InvoiceCurrency,
		DueAt:         inv.InvoiceDueAt.Format("02 Jan 2006"),
	}
}

func email(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
