package guard

import "schoolku_backend/internals/constants"

type Op string

// Mutation surface
const (
	OpCreateInvoice            Op = "createInvoice"
	OpGenerateClassInvoices    Op = "generateClassInvoices"
	OpSelectOptionalItems      Op = "selectInvoiceOptionalItems"
	OpCreatePaymentIntent      Op = "createPaymentIntent"
	OpSubmitManualPaymentProof Op = "submitManualPaymentProof"
	OpReviewManualPaymentProof Op = "reviewManualPaymentProof"
	OpCreateFeeAdjustment      Op = "createFeeAdjustment"
	OpAttachReceiptURL         Op = "attachReceiptUrl"
	OpCreateInstallmentPlan    Op = "createInstallmentPlan"
	OpUpsertFeeItem            Op = "upsertFeeItem"
	OpDeleteFeeItem            Op = "deleteFeeItem"
	OpCreateFeeSchedule        Op = "createFeeSchedule"
	OpUpdateFeeSchedule        Op = "updateFeeSchedule"
	OpUpsertBillingPolicy      Op = "upsertBillingPolicy"
	OpUpsertReleasePolicy      Op = "upsertReleasePolicy"
	OpUpsertReportCard         Op = "upsertReportCard"
	OpPublishResults           Op = "publishResults"
)

// Internal mutations driven by workers and gateway webhooks
const (
	OpMaterializeInvoiceLines Op = "materializeInvoiceLines"
	OpApplyConfirmedPayment   Op = "applyConfirmedPayment"
	OpConfirmGatewayPayment   Op = "confirmGatewayPayment"
)

// Query surface
const (
	OpInvoicesByStudent        Op = "invoicesByStudent"
	OpInvoiceByNumber          Op = "invoiceByNumber"
	OpDefaultersByClass        Op = "defaultersByClass"
	OpPaymentsByInvoice        Op = "paymentsByInvoice"
	OpReceiptByNumber          Op = "receiptByNumber"
	OpReportCardsByStudentTerm Op = "reportCardsByStudentTerm"
	OpListFeeItems             Op = "listFeeItems"
	OpGetFeeSchedule           Op = "getFeeSchedule"
	OpInstallmentPlanByInvoice Op = "installmentPlanByInvoice"
	OpReceiptSequence          Op = "receiptSequence"
	OpListAuditEvents          Op = "listAuditEvents"
	OpListManualPaymentProofs  Op = "listManualPaymentProofs"
)

// Policy is the declarative rule for one operation. An empty Roles list
// means any caller, including anonymous readers.
type Policy struct {
	Mutation bool
	Roles    []string
}

var staffOrSystem = []string{constants.RoleAdmin, constants.RoleBursar, constants.RoleSystem}

var Policies = map[Op]Policy{
	OpCreateInvoice:            {Mutation: true, Roles: constants.BillingStaff},
	OpGenerateClassInvoices:    {Mutation: true, Roles: staffOrSystem},
	OpCreateFeeAdjustment:      {Mutation: true, Roles: constants.BillingStaff},
	OpCreateInstallmentPlan:    {Mutation: true, Roles: constants.BillingStaff},
	OpReviewManualPaymentProof: {Mutation: true, Roles: constants.BillingStaff},
	OpUpsertFeeItem:            {Mutation: true, Roles: constants.BillingStaff},
	OpDeleteFeeItem:            {Mutation: true, Roles: constants.BillingStaff},
	OpCreateFeeSchedule:        {Mutation: true, Roles: constants.BillingStaff},
	OpUpdateFeeSchedule:        {Mutation: true, Roles: constants.BillingStaff},
	OpUpsertBillingPolicy:      {Mutation: true, Roles: constants.BillingStaff},
	OpUpsertReleasePolicy:      {Mutation: true, Roles: constants.BillingStaff},
	OpAttachReceiptURL:         {Mutation: true, Roles: staffOrSystem},

	OpSelectOptionalItems:      {Mutation: true, Roles: constants.Payers},
	OpCreatePaymentIntent:      {Mutation: true, Roles: constants.Payers},
	OpSubmitManualPaymentProof: {Mutation: true, Roles: constants.Payers},

	OpUpsertReportCard: {Mutation: true, Roles: constants.AcademicStaff},
	OpPublishResults:   {Mutation: true, Roles: constants.AcademicStaff},

	OpMaterializeInvoiceLines: {Mutation: true, Roles: staffOrSystem},
	OpApplyConfirmedPayment:   {Mutation: true, Roles: constants.SystemOnly},
	OpConfirmGatewayPayment:   {Mutation: true, Roles: constants.SystemOnly},

	OpInvoicesByStudent:        {Roles: constants.Payers},
	OpInvoiceByNumber:          {Roles: constants.Payers},
	OpPaymentsByInvoice:        {Roles: constants.Payers},
	OpInstallmentPlanByInvoice: {Roles: constants.Payers},
	OpDefaultersByClass:        {Roles: constants.BillingStaff},
	OpListManualPaymentProofs:  {Roles: constants.BillingStaff},
	OpReceiptSequence:          {Roles: constants.BillingStaff},
	OpListAuditEvents:          {Roles: []string{constants.RoleAdmin}},
	OpListFeeItems:             {Roles: constants.Payers},
	OpGetFeeSchedule:           {Roles: constants.Payers},
	OpReportCardsByStudentTerm: {Roles: constants.ReportCardReaders},
	OpReceiptByNumber:          {},
}
