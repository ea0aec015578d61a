package repository

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-risk-api/internal/models"
)

// InvoiceRepository reads fee invoices for metric evaluation.
type InvoiceRepository struct {
	db *sqlx.DB
}

// NewInvoiceRepository constructs an InvoiceRepository.
func NewInvoiceRepository(db *sqlx.DB) *InvoiceRepository {
	return &InvoiceRepository{db: db}
}

// OutstandingByStudent returns invoices that are not fully paid. Payment
// status is derived from the amounts, so the filter is on amount_paid.
func (r *InvoiceRepository) OutstandingByStudent(ctx context.Context, studentID string) ([]models.Invoice, error) {
	const query = `SELECT id, student_id, amount, amount_paid, due_date, created_at
        FROM invoices WHERE student_id = $1 AND amount_paid < amount
        ORDER BY due_date ASC`
	var invoices []models.Invoice
	if err := r.db.SelectContext(ctx, &invoices, query, studentID); err != nil {
		return nil, fmt.Errorf("list outstanding invoices: %w", err)
	}
	return invoices, nil
}
