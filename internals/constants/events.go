package constants

// Event sources
const (
	SourceBilling   = "billing"
	SourcePayments  = "payments"
	SourceAcademics = "academics"
)

// Event detail types
const (
	EventInvoiceGenerated = "invoice.generated"
	EventInvoiceOverdue   = "invoice.overdue"
	EventPaymentConfirmed = "payment.confirmed"
	EventResultReady      = "result.ready"
	EventImportRequested  = "import.requested"
)

// invoice.generated reasons
const (
	ReasonGenerated       = "GENERATED"
	ReasonSelectionUpdate = "SELECTION_UPDATE"
	ReasonAdjustment      = "ADJUSTMENT"
)

// Queue names
const (
	QueueMessaging = "messaging"
	QueueInvoicing = "invoicing"
	QueueReceipts  = "receipts"
)

// Audit actions
const (
	AuditInvoiceCreated          = "INVOICE_CREATED"
	AuditInvoiceSelectionUpdated = "INVOICE_SELECTION_UPDATED"
	AuditFeeAdjustmentCreated    = "FEE_ADJUSTMENT_CREATED"
	AuditInstallmentPlanCreated  = "INSTALLMENT_PLAN_CREATED"
	AuditPaymentIntentCreated    = "PAYMENT_INTENT_CREATED"
	AuditManualPaymentSubmitted  = "MANUAL_PAYMENT_SUBMITTED"
	AuditManualPaymentApproved   = "MANUAL_PAYMENT_APPROVED"
	AuditManualPaymentRejected   = "MANUAL_PAYMENT_REJECTED"
	AuditGatewayPaymentConfirmed = "GATEWAY_PAYMENT_CONFIRMED"
	AuditGatewayPaymentReversed  = "GATEWAY_PAYMENT_REVERSED"
	AuditReceiptURLAttached      = "RECEIPT_URL_ATTACHED"
	AuditResultViewBlocked       = "RESULT_VIEW_BLOCKED"
	AuditResultsPublished        = "RESULTS_PUBLISHED"
	AuditReportCardUpserted      = "REPORT_CARD_UPSERTED"
	AuditReleasePolicyUpdated    = "RELEASE_POLICY_UPDATED"
	AuditFeeItemUpserted         = "FEE_ITEM_UPSERTED"
	AuditFeeItemDeleted          = "FEE_ITEM_DELETED"
	AuditFeeScheduleCreated      = "FEE_SCHEDULE_CREATED"
	AuditFeeScheduleUpdated      = "FEE_SCHEDULE_UPDATED"
	AuditBillingPolicyUpdated    = "BILLING_POLICY_UPDATED"
)
