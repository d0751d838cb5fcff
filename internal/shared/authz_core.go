package shared

// Billing permissions.
const (
	PermAdmin = "admin"

	PermDocumentsView    = "billing.documents.view"
	PermDocumentsEdit    = "billing.documents.edit"
	PermDocumentsConvert = "billing.documents.convert"

	PermPaymentsEdit = "billing.payments.edit"
	PermReceiptsEdit = "billing.receipts.edit"

	PermCreditNotesEdit  = "billing.credit_notes.edit"
	PermDeleteCreditNote = "delete_credit_note"

	PermStockView = "billing.stock.view"
)

// BillingScopes lists all permissions related to billing.
func BillingScopes() []string {
	return []string{
		PermAdmin,
		PermDocumentsView,
		PermDocumentsEdit,
		PermDocumentsConvert,
		PermPaymentsEdit,
		PermReceiptsEdit,
		PermCreditNotesEdit,
		PermDeleteCreditNote,
		PermStockView,
	}
}
