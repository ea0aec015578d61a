package models

import "time"

// InvoiceStatus is derived from amount_paid versus amount.
type InvoiceStatus string

const (
	InvoiceStatusUnpaid  InvoiceStatus = "unpaid"
	InvoiceStatusPartial InvoiceStatus = "partial"
	InvoiceStatusPaid    InvoiceStatus = "paid"
)

// Invoice represents a fee invoice raised against a student.
type Invoice struct {
	ID         string    `db:"id" json:"id"`
	StudentID  string    `db:"student_id" json:"student_id"`
	Amount     float64   `db:"amount" json:"amount"`
	AmountPaid float64   `db:"amount_paid" json:"amount_paid"`
	DueDate    time.Time `db:"due_date" json:"due_date"`
	CreatedAt  time.Time `db:"created_at" json:"created_at"`
}

// Status derives the payment state from the recorded amounts.
func (i Invoice) Status() InvoiceStatus {
	switch {
	case i.AmountPaid >= i.Amount:
		return InvoiceStatusPaid
	case i.AmountPaid > 0:
		return InvoiceStatusPartial
	default:
		return InvoiceStatusUnpaid
	}
}

// Outstanding returns the unpaid balance, never negative.
func (i Invoice) Outstanding() float64 {
	if balance := i.Amount - i.AmountPaid; balance > 0 {
		return balance
	}
	return 0
}

// DaysOverdue returns how many whole days past due the invoice is at the
// given date. Paid invoices are never overdue.
func (i Invoice) DaysOverdue(asOf time.Time) int {
	if i.Status() == InvoiceStatusPaid {
		return 0
	}
	days := int(asOf.Sub(i.DueDate).Hours() / 24)
	if days < 0 {
		return 0
	}
	return days
}
