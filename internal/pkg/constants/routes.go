package constants

// Static route constants
const (
	APIRoute      = "/api"
	InvoicesRoute = "/api/v1/invoices"
	// Transactions path prefix for URL construction
	TransactionsRoute = "/api/v1/transactions"
)
