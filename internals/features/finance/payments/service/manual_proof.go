package service

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"schoolku_backend/internals/constants"
	auditService "schoolku_backend/internals/features/finance/audit/service"
	"schoolku_backend/internals/features/finance/payments/dto"
	"schoolku_backend/internals/features/finance/payments/model"
	receiptService "schoolku_backend/internals/features/finance/receipts/service"
	helper "schoolku_backend/internals/helpers"
	"schoolku_backend/internals/helpers/apperr"
	"schoolku_backend/internals/helpers/oss"
	"schoolku_backend/internals/middlewares/guard"
)

const maxEvidenceBytes = 8 << 20

// ManualReference is the synthetic reference of a manual transfer.
func ManualReference(txnID uuid.UUID) string {
	return "MAN-" + strings.ToUpper(strings.ReplaceAll(txnID.String(), "-", ""))
}

// UploadEvidence stores a transfer slip before the proof is submitted. Images
// are normalized to bounded webp; PDFs are kept as is.
func (s *Service) UploadEvidence(ctx context.Context, schoolID uuid.UUID, filename string, data []byte) (string, error) {
	if err := guard.Enforce(ctx, guard.OpSubmitManualPaymentProof, schoolID); err != nil {
		return "", err
	}
	if s.Store == nil {
		return "", apperr.Validation("evidence upload is not configured; send file_url instead")
	}
	if len(data) == 0 || len(data) > maxEvidenceBytes {
		return "", apperr.Validation("evidence must be between 1 byte and 8 MB")
	}

	if constants.DetectEvidenceKind(filename) == constants.EvidenceUnknown {
		return "", apperr.Validation("evidence must be .jpg, .png, .webp or .pdf")
	}

	key := "evidence/" + schoolID.String() + "/" + uuid.NewString()
	switch {
	case oss.IsImage(data):
		out, err := oss.ToWebP(data, filename, oss.EvidenceWebP)
		if err != nil {
			return "", apperr.Validation("evidence image cannot be decoded: " + err.Error())
		}
		return s.Store.Put(ctx, key+".webp", out, "image/webp")
	case http.DetectContentType(data) == "application/pdf":
		return s.Store.Put(ctx, key+".pdf", data, "application/pdf")
	}
	return "", apperr.Validation("evidence must be an image or a PDF")
}

// SubmitManualPaymentProof writes the PENDING transaction and its proof in one
// tx; the audit row follows the commit.
func (s *Service) SubmitManualPaymentProof(ctx context.Context, schoolID uuid.UUID, req dto.SubmitManualPaymentProofRequest) (*dto.ManualProofResponse, error) {
	if err := guard.Enforce(ctx, guard.OpSubmitManualPaymentProof, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	req.FileURL = strings.TrimSpace(req.FileURL)
	if req.FileURL == "" {
		return nil, apperr.Validation("file_url or an evidence file is required")
	}
	amount := req.Amount.Round(2)
	actor := guard.FromContext(ctx).ActorID()

	var out dto.ManualProofResponse
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		inv, err := loadInvoice(tx, schoolID, req.InvoiceID)
		if err != nil {
			return err
		}
		if err := s.checkPayable(tx, inv, amount); err != nil {
			return err
		}

		txnID := uuid.New()
		out.Transaction = model.PaymentTransaction{
			PaymentTransactionID:        txnID,
			PaymentTransactionSchoolID:  schoolID,
			PaymentTransactionInvoiceID: inv.InvoiceID,
			PaymentTransactionMethod:    model.MethodManual,
			PaymentTransactionStatus:    model.TransactionPending,
			PaymentTransactionAmount:    amount,
			PaymentTransactionCurrency:  inv.InvoiceCurrency,
			PaymentTransactionReference: ManualReference(txnID),
		}
		if err := tx.Create(&out.Transaction).Error; err != nil {
			return apperr.FromDB(err, "payment transaction")
		}

		out.Proof = model.ManualPaymentProof{
			ManualPaymentProofID:            uuid.New(),
			ManualPaymentProofSchoolID:      schoolID,
			ManualPaymentProofTransactionID: txnID,
			ManualPaymentProofInvoiceID:     inv.InvoiceID,
			ManualPaymentProofFileURL:       req.FileURL,
			ManualPaymentProofSubmittedBy:   actor,
			ManualPaymentProofStatus:        model.ProofSubmitted,
		}
		return apperr.FromDB(tx.Create(&out.Proof).Error, "manual payment proof")
	})
	if err != nil {
		return nil, err
	}

	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: constants.AuditManualPaymentSubmitted,
		EntityType: "manual_payment_proof", EntityID: out.Proof.ManualPaymentProofID.String(),
		Snapshot: out,
	})
	return &out, nil
}

// ReviewManualPaymentProof moves a SUBMITTED proof to APPROVED or REJECTED.
// The status update is conditional on SUBMITTED, so a second review of the
// same proof is a Conflict and never allocates another receipt number.
func (s *Service) ReviewManualPaymentProof(ctx context.Context, schoolID, proofID uuid.UUID, req dto.ReviewManualPaymentProofRequest) (*dto.ReviewResponse, error) {
	if err := guard.Enforce(ctx, guard.OpReviewManualPaymentProof, schoolID); err != nil {
		return nil, err
	}
	if err := helper.Validate.Struct(req); err != nil {
		return nil, apperr.ValidationFields(helper.ValidationErrors(err))
	}
	reviewer := guard.FromContext(ctx).ActorID()
	now := s.now()
	approved := req.Status == model.ProofApproved

	var out dto.ReviewResponse
	err := s.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var proof model.ManualPaymentProof
		if err := tx.Where("manual_payment_proof_school_id = ? AND manual_payment_proof_id = ?", schoolID, proofID).
			First(&proof).Error; err != nil {
			return apperr.FromDB(err, "manual payment proof")
		}
		if proof.ManualPaymentProofStatus != model.ProofSubmitted {
			return apperr.Conflict("proof already " + strings.ToLower(string(proof.ManualPaymentProofStatus)))
		}

		res := tx.Model(&model.ManualPaymentProof{}).
			Where("manual_payment_proof_id = ? AND manual_payment_proof_status = ?", proofID, model.ProofSubmitted).
			Updates(map[string]any{
				"manual_payment_proof_status":      req.Status,
				"manual_payment_proof_reviewed_by": reviewer,
				"manual_payment_proof_reviewed_at": now,
				"manual_payment_proof_notes":       req.Notes,
			})
		if res.Error != nil {
			return apperr.FromDB(res.Error, "manual payment proof")
		}
		if res.RowsAffected == 0 {
			return apperr.Conflict("proof was reviewed concurrently")
		}
		proof.ManualPaymentProofStatus = req.Status
		proof.ManualPaymentProofReviewedBy = reviewer
		proof.ManualPaymentProofReviewedAt = &now
		proof.ManualPaymentProofNotes = req.Notes
		out.Proof = proof

		var txn model.PaymentTransaction
		if err := tx.Where("payment_transaction_school_id = ? AND payment_transaction_id = ?", schoolID, proof.ManualPaymentProofTransactionID).
			First(&txn).Error; err != nil {
			return apperr.FromDB(err, "payment transaction")
		}

		if !approved {
			// tidak menyentuh receipt counter
			if err := reverseTransaction(tx, &txn, now); err != nil {
				return err
			}
			out.Transaction = txn
			return nil
		}

		if err := confirmTransaction(tx, &txn, now); err != nil {
			return err
		}
		out.Transaction = txn
		out.ReceiptNo = *txn.PaymentTransactionReceiptNo
		return nil
	})
	if err != nil {
		return nil, err
	}

	action := constants.AuditManualPaymentRejected
	if approved {
		action = constants.AuditManualPaymentApproved
	}
	s.Audit.Record(ctx, auditService.Entry{
		SchoolID: schoolID, Action: action,
		EntityType: "manual_payment_proof", EntityID: proofID.String(),
		Snapshot: out,
	})
	if approved {
		s.publishConfirmed(ctx, out.Transaction, model.ProviderManual)
	}
	return &out, nil
}

/* =========================================================
   Transaction transitions (inside tx)
========================================================= */

// confirmTransaction: PENDING → CONFIRMED with a receipt number. receipt_no is
// only written while NULL.
func confirmTransaction(tx *gorm.DB, txn *model.PaymentTransaction, now time.Time) error {
	if txn.PaymentTransactionStatus != model.TransactionPending {
		return apperr.Conflict("transaction is " + string(txn.PaymentTransactionStatus))
	}
	no, err := receiptService.Issue(tx, receiptService.IssueInput{
		SchoolID:      txn.PaymentTransactionSchoolID,
		InvoiceID:     txn.PaymentTransactionInvoiceID,
		TransactionID: txn.PaymentTransactionID,
		Amount:        txn.PaymentTransactionAmount,
		Currency:      txn.PaymentTransactionCurrency,
		Existing:      txn.PaymentTransactionReceiptNo,
		IssuedAt:      now,
	})
	if err != nil {
		return err
	}

	res := tx.Model(&model.PaymentTransaction{}).
		Where("payment_transaction_id = ? AND payment_transaction_status = ?", txn.PaymentTransactionID, model.TransactionPending).
		Updates(map[string]any{
			"payment_transaction_status":       model.TransactionConfirmed,
			"payment_transaction_confirmed_at": now,
			"payment_transaction_receipt_no":   gorm.Expr("COALESCE(payment_transaction_receipt_no, ?)", no),
		})
	if res.Error != nil {
		return apperr.FromDB(res.Error, "payment transaction")
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("transaction changed concurrently")
	}
	if txn.PaymentTransactionReceiptNo == nil {
		txn.PaymentTransactionReceiptNo = &no
	}
	txn.PaymentTransactionStatus = model.TransactionConfirmed
	txn.PaymentTransactionConfirmedAt = &now
	return nil
}

func reverseTransaction(tx *gorm.DB, txn *model.PaymentTransaction, now time.Time) error {
	if txn.PaymentTransactionStatus != model.TransactionPending {
		return apperr.Conflict("transaction is " + string(txn.PaymentTransactionStatus))
	}
	res := tx.Model(&model.PaymentTransaction{}).
		Where("payment_transaction_id = ? AND payment_transaction_status = ?", txn.PaymentTransactionID, model.TransactionPending).
		Updates(map[string]any{
			"payment_transaction_status":      model.TransactionReversed,
			"payment_transaction_reversed_at": now,
		})
	if res.Error != nil {
		return apperr.FromDB(res.Error, "payment transaction")
	}
	if res.RowsAffected == 0 {
		return apperr.Conflict("transaction changed concurrently")
	}
	txn.PaymentTransactionStatus = model.TransactionReversed
	txn.PaymentTransactionReversedAt = &now
	return nil
}
