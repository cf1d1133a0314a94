package postgres

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/RodrigoSola/corrafer-fiscal/internal/application/billing"
	"github.com/RodrigoSola/corrafer-fiscal/internal/domain/fiscal"
)

// Querier abstrae pool y tx para los repos.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

var _ billing.InvoiceStore = (*InvoiceRepo)(nil)

// InvoiceRepo persiste los comprobantes emitidos (aprobados y rechazados).
type InvoiceRepo struct {
	q Querier
}

// NewInvoiceRepository construye el adaptador. Pasar pool o tx (Querier).
func NewInvoiceRepository(q Querier) *InvoiceRepo {
	return &InvoiceRepo{q: q}
}

// Save inserta el comprobante. La serie (tipo, punto de venta, número) tiene
// constraint único: un duplicado indica doble emisión y se reporta como tal.
func (r *InvoiceRepo) Save(ctx context.Context, inv *billing.IssuedInvoice) error {
	obs, err := json.Marshal(inv.Observations)
	if err != nil {
		return fmt.Errorf("serializar observaciones: %w", err)
	}
	query := `
		INSERT INTO issued_invoices (id, document_type, point_of_sale, number, issue_date,
		                             buyer_name, buyer_tax_id, buyer_category,
		                             net, tax_amount, gross, status, cae, cae_expiry,
		                             observations, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)`
	_, err = r.q.Exec(ctx, query,
		inv.ID, string(inv.DocumentType), inv.PointOfSale, inv.Number, inv.IssueDate,
		inv.BuyerName, nullIfEmpty(inv.BuyerTaxID), nullIfEmpty(inv.BuyerCategory),
		inv.Net, inv.TaxAmount, inv.Gross, inv.Status, nullIfEmpty(inv.CAE), nullIfZero(inv.CAEExpiry),
		obs, inv.CreatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("comprobante %s %d-%d ya registrado: %w", inv.DocumentType, inv.PointOfSale, inv.Number, err)
		}
		return fmt.Errorf("insert comprobante: %w", err)
	}
	return nil
}

// GetBySeries busca un comprobante por su identidad fiscal.
// Devuelve nil sin error si no existe.
func (r *InvoiceRepo) GetBySeries(ctx context.Context, docType fiscal.DocumentType, pointOfSale int, number int64) (*billing.IssuedInvoice, error) {
	query := `
		SELECT id, document_type, point_of_sale, number, issue_date,
		       buyer_name, buyer_tax_id, buyer_category,
		       net, tax_amount, gross, status, cae, cae_expiry,
		       observations, created_at
		FROM issued_invoices
		WHERE document_type = $1 AND point_of_sale = $2 AND number = $3`
	row := r.q.QueryRow(ctx, query, string(docType), pointOfSale, number)
	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, fmt.Errorf("get comprobante: %w", err)
	}
	return inv, nil
}

// ListRecent devuelve los últimos comprobantes emitidos, más nuevos primero.
func (r *InvoiceRepo) ListRecent(ctx context.Context, limit int) ([]*billing.IssuedInvoice, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	query := `
		SELECT id, document_type, point_of_sale, number, issue_date,
		       buyer_name, buyer_tax_id, buyer_category,
		       net, tax_amount, gross, status, cae, cae_expiry,
		       observations, created_at
		FROM issued_invoices
		ORDER BY created_at DESC
		LIMIT $1`
	rows, err := r.q.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("listar comprobantes: %w", err)
	}
	defer rows.Close()

	var out []*billing.IssuedInvoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("scan comprobante: %w", err)
		}
		out = append(out, inv)
	}
	return out, rows.Err()
}

func scanInvoice(row pgx.Row) (*billing.IssuedInvoice, error) {
	var inv billing.IssuedInvoice
	var docType string
	var taxID, category, cae *string
	var caeExpiry *time.Time
	var obs []byte
	err := row.Scan(
		&inv.ID, &docType, &inv.PointOfSale, &inv.Number, &inv.IssueDate,
		&inv.BuyerName, &taxID, &category,
		&inv.Net, &inv.TaxAmount, &inv.Gross, &inv.Status, &cae, &caeExpiry,
		&obs, &inv.CreatedAt,
	)
	if err != nil {
		return nil, err
	}
	inv.DocumentType = fiscal.DocumentType(docType)
	inv.BuyerTaxID = deref(taxID)
	inv.BuyerCategory = deref(category)
	inv.CAE = deref(cae)
	if caeExpiry != nil {
		inv.CAEExpiry = *caeExpiry
	}
	if len(obs) > 0 {
		if err := json.Unmarshal(obs, &inv.Observations); err != nil {
			return nil, fmt.Errorf("deserializar observaciones: %w", err)
		}
	}
	return &inv, nil
}

func deref(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}

func nullIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func nullIfZero(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

// isUniqueViolation verifica si un error es una violación de constraint único (23505).
func isUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == "23505" // unique_violation
	}
	return strings.Contains(err.Error(), "23505")
}
