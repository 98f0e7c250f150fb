package invoices

import (
	"time"

	"github.com/google/uuid"
)

// PaymentStatus enumerates invoice payment states.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "PENDING"
	PaymentPartial PaymentStatus = "PARTIAL"
	PaymentPaid    PaymentStatus = "PAID"
	PaymentOverdue PaymentStatus = "OVERDUE"
)

// PaymentMethod enumerates how the customer paid.
type PaymentMethod string

const (
	MethodCash     PaymentMethod = "CASH"
	MethodCredit   PaymentMethod = "CREDIT"
	MethodTransfer PaymentMethod = "TRANSFER"
	MethodCheque   PaymentMethod = "CHEQUE"
)

// Invoice is a sale transaction. ClientRef is assigned on the field device at
// creation time, before any network contact, and is the deduplication key for
// offline delivery.
type Invoice struct {
	ID             int64
	Number         string
	ClientRef      uuid.UUID
	AgentID        int64
	CustomerID     int64
	Subtotal       float64
	Discount       float64
	VAT            float64
	Total          float64
	PaymentStatus  PaymentStatus
	PaymentMethod  PaymentMethod
	AmountPaid     float64
	OfflineCreated bool
	IsSynced       bool
	SyncedAt       *time.Time
	// NeedsReview marks invoices whose sale exceeded the agent's held stock at
	// sync time. The sale stands; reconciliation review sorts it out.
	NeedsReview bool
	CreatedAt   time.Time
}

// Item is one product line of an invoice.
type Item struct {
	ID        int64
	InvoiceID int64
	ProductID int64
	Qty       float64
	UnitPrice float64
	LineTotal float64
}

// ListFilter narrows invoice listings.
type ListFilter struct {
	AgentID       int64
	PaymentStatus PaymentStatus
	NeedsReview   bool
	From          time.Time
	To            time.Time
	Limit         int
	Offset        int
}
