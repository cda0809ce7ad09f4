package store

import (
	"context"
	"database/sql"
	"fmt"

	"shopify-sync/internal/models"

	"github.com/jmoiron/sqlx"
)

// docName formats a document name from its naming series and row id,
// e.g. "SO-SPF-" + 42 -> "SO-SPF-00042".
func docName(series string, id int64) string {
	return fmt.Sprintf("%s%05d", series, id)
}

// GetOpenSalesOrderByShopifyID retrieves the non-cancelled Sales Order for a
// Shopify order id. Returns nil without error when none exists.
func (s *Store) GetOpenSalesOrderByShopifyID(ctx context.Context, shopifyOrderID int64) (*models.SalesOrder, error) {
	var so models.SalesOrder
	err := s.db.GetContext(ctx, &so,
		"SELECT * FROM sales_orders WHERE shopify_order_id = $1 AND docstatus < 2", shopifyOrderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &so, nil
}

// GetSubmittedSalesOrderByShopifyID retrieves the submitted Sales Order for a
// Shopify order id, or nil.
func (s *Store) GetSubmittedSalesOrderByShopifyID(ctx context.Context, shopifyOrderID int64) (*models.SalesOrder, error) {
	var so models.SalesOrder
	err := s.db.GetContext(ctx, &so,
		"SELECT * FROM sales_orders WHERE shopify_order_id = $1 AND docstatus = 1", shopifyOrderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &so, nil
}

// CreateSalesOrder inserts a Sales Order with its items and charges in one
// transaction and assigns its name from the naming series.
func (s *Store) CreateSalesOrder(ctx context.Context, series string, so *models.SalesOrder, items []models.SalesOrderItem, charges []models.DocumentCharge) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO sales_orders (name, shopify_order_id, shopify_order_number, customer_name,
				company, selling_price_list, transaction_date, delivery_date, discount_amount,
				net_total, total_taxes, grand_total, per_billed, docstatus)
			VALUES ('', $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0, 0)
			RETURNING id, created_at, updated_at`

		if err := tx.GetContext(ctx, so, query,
			so.ShopifyOrderID, so.ShopifyOrderNumber, so.CustomerName, so.Company,
			so.SellingPriceList, so.TransactionDate, so.DeliveryDate, so.DiscountAmount,
			so.NetTotal, so.TotalTaxes, so.GrandTotal); err != nil {
			return fmt.Errorf("failed to insert sales order: %w", err)
		}

		so.Name = docName(series, so.ID)
		if _, err := tx.ExecContext(ctx,
			"UPDATE sales_orders SET name = $1 WHERE id = $2", so.Name, so.ID); err != nil {
			return fmt.Errorf("failed to name sales order: %w", err)
		}

		for i := range items {
			items[i].SalesOrderID = so.ID
			if err := tx.GetContext(ctx, &items[i].ID, `
				INSERT INTO sales_order_items (sales_order_id, item_code, item_name, qty, rate,
					amount, stock_uom, warehouse, delivery_date)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
				RETURNING id`,
				items[i].SalesOrderID, items[i].ItemCode, items[i].ItemName, items[i].Qty,
				items[i].Rate, items[i].Amount, items[i].StockUOM, items[i].Warehouse,
				items[i].DeliveryDate); err != nil {
				return fmt.Errorf("failed to insert sales order item: %w", err)
			}
		}

		return s.insertCharges(ctx, tx, models.ParentSalesOrder, so.ID, charges)
	})
}

// SubmitSalesOrder moves a draft Sales Order to submitted
func (s *Store) SubmitSalesOrder(ctx context.Context, id int64) error {
	return s.submit(ctx, "sales_orders", id)
}

// CancelSalesOrder cancels a submitted Sales Order
func (s *Store) CancelSalesOrder(ctx context.Context, id int64) error {
	return s.cancel(ctx, "sales_orders", id)
}

// GetSalesOrderItems retrieves all lines of a Sales Order
func (s *Store) GetSalesOrderItems(ctx context.Context, salesOrderID int64) ([]models.SalesOrderItem, error) {
	var items []models.SalesOrderItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM sales_order_items WHERE sales_order_id = $1 ORDER BY id", salesOrderID)
	return items, err
}

// GetDocumentCharges retrieves the tax and shipping charges of a document
func (s *Store) GetDocumentCharges(ctx context.Context, parentType string, parentID int64) ([]models.DocumentCharge, error) {
	var charges []models.DocumentCharge
	err := s.db.SelectContext(ctx, &charges,
		"SELECT * FROM document_charges WHERE parent_type = $1 AND parent_id = $2 ORDER BY id",
		parentType, parentID)
	return charges, err
}

// SetSalesOrderPerBilled updates the billed percentage of a Sales Order
func (s *Store) SetSalesOrderPerBilled(ctx context.Context, id int64, perBilled float64) error {
	_, err := s.db.ExecContext(ctx,
		"UPDATE sales_orders SET per_billed = $1, updated_at = NOW() WHERE id = $2", perBilled, id)
	return err
}

// GetSalesInvoiceByShopifyOrderID retrieves the non-cancelled, non-return
// Sales Invoice for a Shopify order id, or nil.
func (s *Store) GetSalesInvoiceByShopifyOrderID(ctx context.Context, shopifyOrderID int64) (*models.SalesInvoice, error) {
	var si models.SalesInvoice
	err := s.db.GetContext(ctx, &si,
		"SELECT * FROM sales_invoices WHERE shopify_order_id = $1 AND is_return = FALSE AND docstatus < 2",
		shopifyOrderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &si, nil
}

// GetSubmittedSalesInvoiceByShopifyOrderID retrieves the submitted non-return
// invoice for a Shopify order id, or nil.
func (s *Store) GetSubmittedSalesInvoiceByShopifyOrderID(ctx context.Context, shopifyOrderID int64) (*models.SalesInvoice, error) {
	var si models.SalesInvoice
	err := s.db.GetContext(ctx, &si,
		"SELECT * FROM sales_invoices WHERE shopify_order_id = $1 AND is_return = FALSE AND docstatus = 1",
		shopifyOrderID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &si, nil
}

// CreateSalesInvoice inserts a Sales Invoice with its items and charges in
// one transaction and assigns its name from the naming series.
func (s *Store) CreateSalesInvoice(ctx context.Context, series string, si *models.SalesInvoice, items []models.SalesInvoiceItem, charges []models.DocumentCharge) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO sales_invoices (name, sales_order_id, shopify_order_id, shopify_order_number,
				customer_name, company, posting_date, is_return, return_against,
				net_total, total_taxes, grand_total, docstatus)
			VALUES ('', $1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, 0)
			RETURNING id, created_at, updated_at`

		if err := tx.GetContext(ctx, si, query,
			si.SalesOrderID, si.ShopifyOrderID, si.ShopifyOrderNumber, si.CustomerName,
			si.Company, si.PostingDate, si.IsReturn, si.ReturnAgainst,
			si.NetTotal, si.TotalTaxes, si.GrandTotal); err != nil {
			return fmt.Errorf("failed to insert sales invoice: %w", err)
		}

		si.Name = docName(series, si.ID)
		if _, err := tx.ExecContext(ctx,
			"UPDATE sales_invoices SET name = $1 WHERE id = $2", si.Name, si.ID); err != nil {
			return fmt.Errorf("failed to name sales invoice: %w", err)
		}

		for i := range items {
			items[i].SalesInvoiceID = si.ID
			if err := tx.GetContext(ctx, &items[i].ID, `
				INSERT INTO sales_invoice_items (sales_invoice_id, item_code, item_name, qty, rate, amount, cost_center)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id`,
				items[i].SalesInvoiceID, items[i].ItemCode, items[i].ItemName, items[i].Qty,
				items[i].Rate, items[i].Amount, items[i].CostCenter); err != nil {
				return fmt.Errorf("failed to insert sales invoice item: %w", err)
			}
		}

		return s.insertCharges(ctx, tx, models.ParentSalesInvoice, si.ID, charges)
	})
}

// SubmitSalesInvoice moves a draft Sales Invoice to submitted
func (s *Store) SubmitSalesInvoice(ctx context.Context, id int64) error {
	return s.submit(ctx, "sales_invoices", id)
}

// CancelSalesInvoice cancels a submitted Sales Invoice. Cancellation fails
// when a submitted Payment Entry still references the invoice.
func (s *Store) CancelSalesInvoice(ctx context.Context, id int64) error {
	var reconciled bool
	err := s.db.GetContext(ctx, &reconciled,
		"SELECT EXISTS(SELECT 1 FROM payment_entries WHERE sales_invoice_id = $1 AND docstatus = 1)", id)
	if err != nil {
		return err
	}
	if reconciled {
		return fmt.Errorf("sales invoice %d has a submitted payment entry", id)
	}
	return s.cancel(ctx, "sales_invoices", id)
}

// GetSalesInvoiceItems retrieves all lines of a Sales Invoice
func (s *Store) GetSalesInvoiceItems(ctx context.Context, salesInvoiceID int64) ([]models.SalesInvoiceItem, error) {
	var items []models.SalesInvoiceItem
	err := s.db.SelectContext(ctx, &items,
		"SELECT * FROM sales_invoice_items WHERE sales_invoice_id = $1 ORDER BY id", salesInvoiceID)
	return items, err
}

// GetDeliveryNoteByFulfillmentID retrieves the non-cancelled Delivery Note
// for a Shopify fulfillment id, or nil.
func (s *Store) GetDeliveryNoteByFulfillmentID(ctx context.Context, fulfillmentID int64) (*models.DeliveryNote, error) {
	var dn models.DeliveryNote
	err := s.db.GetContext(ctx, &dn,
		"SELECT * FROM delivery_notes WHERE shopify_fulfillment_id = $1 AND docstatus < 2", fulfillmentID)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &dn, nil
}

// GetSubmittedDeliveryNotesByShopifyOrderID retrieves all submitted Delivery
// Notes for a Shopify order id.
func (s *Store) GetSubmittedDeliveryNotesByShopifyOrderID(ctx context.Context, shopifyOrderID int64) ([]models.DeliveryNote, error) {
	var notes []models.DeliveryNote
	err := s.db.SelectContext(ctx, &notes,
		"SELECT * FROM delivery_notes WHERE shopify_order_id = $1 AND docstatus = 1 ORDER BY id",
		shopifyOrderID)
	return notes, err
}

// CreateDeliveryNote inserts a Delivery Note with its items in one
// transaction and assigns its name from the naming series.
func (s *Store) CreateDeliveryNote(ctx context.Context, series string, dn *models.DeliveryNote, items []models.DeliveryNoteItem) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO delivery_notes (name, sales_order_id, shopify_order_id, shopify_order_number,
				shopify_fulfillment_id, customer_name, posting_date, docstatus)
			VALUES ('', $1, $2, $3, $4, $5, $6, 0)
			RETURNING id, created_at, updated_at`

		if err := tx.GetContext(ctx, dn, query,
			dn.SalesOrderID, dn.ShopifyOrderID, dn.ShopifyOrderNumber,
			dn.ShopifyFulfillmentID, dn.CustomerName, dn.PostingDate); err != nil {
			return fmt.Errorf("failed to insert delivery note: %w", err)
		}

		dn.Name = docName(series, dn.ID)
		if _, err := tx.ExecContext(ctx,
			"UPDATE delivery_notes SET name = $1 WHERE id = $2", dn.Name, dn.ID); err != nil {
			return fmt.Errorf("failed to name delivery note: %w", err)
		}

		for i := range items {
			items[i].DeliveryNoteID = dn.ID
			if err := tx.GetContext(ctx, &items[i].ID, `
				INSERT INTO delivery_note_items (delivery_note_id, item_code, item_name, qty, rate,
					warehouse, allow_zero_valuation_rate)
				VALUES ($1, $2, $3, $4, $5, $6, $7)
				RETURNING id`,
				items[i].DeliveryNoteID, items[i].ItemCode, items[i].ItemName, items[i].Qty,
				items[i].Rate, items[i].Warehouse, items[i].AllowZeroValuationRate); err != nil {
				return fmt.Errorf("failed to insert delivery note item: %w", err)
			}
		}

		return nil
	})
}

// SubmitDeliveryNote moves a draft Delivery Note to submitted
func (s *Store) SubmitDeliveryNote(ctx context.Context, id int64) error {
	return s.submit(ctx, "delivery_notes", id)
}

// CancelDeliveryNote cancels a submitted Delivery Note
func (s *Store) CancelDeliveryNote(ctx context.Context, id int64) error {
	return s.cancel(ctx, "delivery_notes", id)
}

// CreatePaymentEntry inserts and names a Payment Entry
func (s *Store) CreatePaymentEntry(ctx context.Context, series string, pe *models.PaymentEntry) error {
	return s.withTx(ctx, func(tx *sqlx.Tx) error {
		query := `
			INSERT INTO payment_entries (name, sales_invoice_id, paid_amount, account,
				reference_no, reference_date, docstatus)
			VALUES ('', $1, $2, $3, $4, $5, 0)
			RETURNING id, created_at`

		if err := tx.GetContext(ctx, pe, query,
			pe.SalesInvoiceID, pe.PaidAmount, pe.Account, pe.ReferenceNo, pe.ReferenceDate); err != nil {
			return fmt.Errorf("failed to insert payment entry: %w", err)
		}

		pe.Name = docName(series, pe.ID)
		if _, err := tx.ExecContext(ctx,
			"UPDATE payment_entries SET name = $1 WHERE id = $2", pe.Name, pe.ID); err != nil {
			return fmt.Errorf("failed to name payment entry: %w", err)
		}
		return nil
	})
}

// SubmitPaymentEntry moves a draft Payment Entry to submitted
func (s *Store) SubmitPaymentEntry(ctx context.Context, id int64) error {
	return s.submit(ctx, "payment_entries", id)
}

// submittable tables, guard against interpolating arbitrary names
var docTables = map[string]bool{
	"sales_orders":    true,
	"sales_invoices":  true,
	"delivery_notes":  true,
	"payment_entries": true,
}

func (s *Store) submit(ctx context.Context, table string, id int64) error {
	if !docTables[table] {
		return fmt.Errorf("unknown document table: %s", table)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET docstatus = 1 WHERE id = $1 AND docstatus = 0", table), id)
	if err != nil {
		return fmt.Errorf("failed to submit %s %d: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d is not a draft", table, id)
	}
	return nil
}

func (s *Store) cancel(ctx context.Context, table string, id int64) error {
	if !docTables[table] {
		return fmt.Errorf("unknown document table: %s", table)
	}
	res, err := s.db.ExecContext(ctx,
		fmt.Sprintf("UPDATE %s SET docstatus = 2 WHERE id = $1 AND docstatus = 1", table), id)
	if err != nil {
		return fmt.Errorf("failed to cancel %s %d: %w", table, id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("%s %d is not submitted", table, id)
	}
	return nil
}

func (s *Store) insertCharges(ctx context.Context, tx *sqlx.Tx, parentType string, parentID int64, charges []models.DocumentCharge) error {
	for i := range charges {
		charges[i].ParentType = parentType
		charges[i].ParentID = parentID
		if err := tx.GetContext(ctx, &charges[i].ID, `
			INSERT INTO document_charges (parent_type, parent_id, charge_type, account_head,
				description, rate, tax_amount, included_in_print_rate, cost_center)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
			RETURNING id`,
			charges[i].ParentType, charges[i].ParentID, charges[i].ChargeType,
			charges[i].AccountHead, charges[i].Description, charges[i].Rate,
			charges[i].TaxAmount, charges[i].IncludedInPrintRate, charges[i].CostCenter); err != nil {
			return fmt.Errorf("failed to insert document charge: %w", err)
		}
	}
	return nil
}

func (s *Store) withTx(ctx context.Context, fn func(tx *sqlx.Tx) error) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}
	return tx.Commit()
}
