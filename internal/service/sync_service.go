package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"shopify-sync/internal/models"
	"shopify-sync/internal/util"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// Pipeline stage names used in logs, metrics, and failure events
const (
	StageParse        = "parse"
	StageSalesOrder   = "sales_order"
	StageSalesInvoice = "sales_invoice"
	StageDeliveryNote = "delivery_note"
	StageCancellation = "cancellation"
)

const orderLockTTL = 30 * time.Second

// DocumentStore is the document persistence surface the orchestrator
// depends on. *store.Store satisfies it.
type DocumentStore interface {
	LoadSettings(ctx context.Context) (*models.SyncSettings, error)

	GetOpenSalesOrderByShopifyID(ctx context.Context, shopifyOrderID int64) (*models.SalesOrder, error)
	GetSubmittedSalesOrderByShopifyID(ctx context.Context, shopifyOrderID int64) (*models.SalesOrder, error)
	CreateSalesOrder(ctx context.Context, series string, so *models.SalesOrder, items []models.SalesOrderItem, charges []models.DocumentCharge) error
	SubmitSalesOrder(ctx context.Context, id int64) error
	CancelSalesOrder(ctx context.Context, id int64) error
	GetSalesOrderItems(ctx context.Context, salesOrderID int64) ([]models.SalesOrderItem, error)
	GetDocumentCharges(ctx context.Context, parentType string, parentID int64) ([]models.DocumentCharge, error)
	SetSalesOrderPerBilled(ctx context.Context, id int64, perBilled float64) error

	GetSalesInvoiceByShopifyOrderID(ctx context.Context, shopifyOrderID int64) (*models.SalesInvoice, error)
	GetSubmittedSalesInvoiceByShopifyOrderID(ctx context.Context, shopifyOrderID int64) (*models.SalesInvoice, error)
	CreateSalesInvoice(ctx context.Context, series string, si *models.SalesInvoice, items []models.SalesInvoiceItem, charges []models.DocumentCharge) error
	SubmitSalesInvoice(ctx context.Context, id int64) error
	CancelSalesInvoice(ctx context.Context, id int64) error
	GetSalesInvoiceItems(ctx context.Context, salesInvoiceID int64) ([]models.SalesInvoiceItem, error)

	GetDeliveryNoteByFulfillmentID(ctx context.Context, fulfillmentID int64) (*models.DeliveryNote, error)
	GetSubmittedDeliveryNotesByShopifyOrderID(ctx context.Context, shopifyOrderID int64) ([]models.DeliveryNote, error)
	CreateDeliveryNote(ctx context.Context, series string, dn *models.DeliveryNote, items []models.DeliveryNoteItem) error
	SubmitDeliveryNote(ctx context.Context, id int64) error
	CancelDeliveryNote(ctx context.Context, id int64) error

	CreatePaymentEntry(ctx context.Context, series string, pe *models.PaymentEntry) error
	SubmitPaymentEntry(ctx context.Context, id int64) error
}

// SyncLogStore is the audit-log surface. *store.Store satisfies it.
type SyncLogStore interface {
	GetSyncLog(ctx context.Context, id string) (*models.SyncLog, error)
	MarkSyncLogSuccess(ctx context.Context, id string) error
	MarkSyncLogError(ctx context.Context, id, detail string) error
	SetSyncLogOrder(ctx context.Context, id string, shopifyOrderID int64) error
	RequeueSyncLog(ctx context.Context, id string) error
}

// Locker serializes concurrent webhook deliveries for the same order.
// *redisclient.Client satisfies it.
type Locker interface {
	AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error)
	ReleaseLock(ctx context.Context, key string) error
}

// Events publishes sync outcomes. *broker.EventPublisher satisfies it.
type Events interface {
	PublishOrderSynced(ctx context.Context, event *models.OrderSyncedEvent) error
	PublishInvoiceCreated(ctx context.Context, event *models.InvoiceCreatedEvent) error
	PublishDeliveryCreated(ctx context.Context, event *models.DeliveryCreatedEvent) error
	PublishOrderCancelled(ctx context.Context, event *models.OrderCancelledEvent) error
	PublishSyncFailed(ctx context.Context, event *models.SyncFailedEvent) error
}

// SyncService orchestrates the document chain for one webhook delivery:
// Sales Order, then Sales Invoice with Payment Entry (and return invoice
// on refunds), then one Delivery Note per fulfillment. Each stage is
// independently guarded; a failed stage is logged and halts only itself.
type SyncService struct {
	docs      DocumentStore
	logs      SyncLogStore
	customers CustomerResolver
	items     ItemResolver
	taxes     TaxAccountResolver
	locks     Locker
	events    Events
	logger    *zap.Logger
}

// NewSyncService creates the order sync orchestrator
func NewSyncService(
	docs DocumentStore,
	logs SyncLogStore,
	customers CustomerResolver,
	items ItemResolver,
	taxes TaxAccountResolver,
	locks Locker,
	events Events,
) *SyncService {
	return &SyncService{
		docs:      docs,
		logs:      logs,
		customers: customers,
		items:     items,
		taxes:     taxes,
		locks:     locks,
		events:    events,
		logger:    util.GetLogger(),
	}
}

// Dispatch parses a stored payload and routes it by webhook topic. It is
// shared by the HTTP receiver and the replay worker.
func (s *SyncService) Dispatch(ctx context.Context, topic string, payload []byte, logID string) error {
	var order models.ShopifyOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		s.failStage(ctx, logID, StageParse, 0, fmt.Errorf("failed to parse order payload for topic %s: %w", topic, err))
		return err
	}

	if logID != "" && order.ID != 0 {
		if err := s.logs.SetSyncLogOrder(ctx, logID, order.ID); err != nil {
			s.logger.Error("Failed to attach order id to sync log", zap.Error(err))
		}
	}

	switch topic {
	case models.TopicOrdersCreate, models.TopicOrdersUpdated:
		s.SyncOrder(ctx, &order, logID)
	case models.TopicOrdersPaid:
		s.PrepareSalesInvoice(ctx, &order, logID)
	case models.TopicOrdersFulfilled:
		s.PrepareDeliveryNote(ctx, &order, logID)
	case models.TopicOrdersCancelled:
		s.CancelOrder(ctx, &order, logID)
	default:
		s.logger.Warn("Unhandled webhook topic, payload stored only",
			zap.String("topic", topic),
			zap.Int64("shopify_order_id", order.ID))
		if err := s.logs.MarkSyncLogSuccess(ctx, logID); err != nil {
			s.logger.Error("Failed to mark sync log", zap.Error(err))
		}
	}
	return nil
}

// SyncOrder runs the full pipeline for an order payload: Sales Order,
// then invoice, then deliveries. Prior stages stay committed when a later
// stage fails.
func (s *SyncService) SyncOrder(ctx context.Context, order *models.ShopifyOrder, logID string) {
	ctx, span := util.StartSpan(ctx, "SyncService.SyncOrder")
	defer span.End()

	release, ok := s.lockOrder(ctx, order.ID, logID, StageSalesOrder)
	if !ok {
		return
	}
	defer release()

	settings, err := s.docs.LoadSettings(ctx)
	if err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return
	}

	so := s.ensureSalesOrder(ctx, order, settings, logID)
	if so == nil {
		return
	}

	s.ensureSalesInvoice(ctx, order, so, settings, logID)
	s.ensureDeliveryNotes(ctx, order, so, settings, logID)

	if err := s.logs.MarkSyncLogSuccess(ctx, logID); err != nil {
		s.logger.Error("Failed to mark sync log", zap.Error(err))
	}
}

// PrepareSalesInvoice runs only the invoice stage, for orders/paid
// deliveries arriving after the order was synced.
func (s *SyncService) PrepareSalesInvoice(ctx context.Context, order *models.ShopifyOrder, logID string) {
	ctx, span := util.StartSpan(ctx, "SyncService.PrepareSalesInvoice")
	defer span.End()

	release, ok := s.lockOrder(ctx, order.ID, logID, StageSalesInvoice)
	if !ok {
		return
	}
	defer release()

	settings, err := s.docs.LoadSettings(ctx)
	if err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}

	so, err := s.docs.GetOpenSalesOrderByShopifyID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}
	if so != nil {
		s.ensureSalesInvoice(ctx, order, so, settings, logID)
	}

	if err := s.logs.MarkSyncLogSuccess(ctx, logID); err != nil {
		s.logger.Error("Failed to mark sync log", zap.Error(err))
	}
}

// PrepareDeliveryNote runs only the delivery stage, for orders/fulfilled
// deliveries arriving after the order was synced.
func (s *SyncService) PrepareDeliveryNote(ctx context.Context, order *models.ShopifyOrder, logID string) {
	ctx, span := util.StartSpan(ctx, "SyncService.PrepareDeliveryNote")
	defer span.End()

	release, ok := s.lockOrder(ctx, order.ID, logID, StageDeliveryNote)
	if !ok {
		return
	}
	defer release()

	settings, err := s.docs.LoadSettings(ctx)
	if err != nil {
		s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
		return
	}

	so, err := s.docs.GetOpenSalesOrderByShopifyID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
		return
	}
	if so != nil {
		s.ensureDeliveryNotes(ctx, order, so, settings, logID)
	}

	if err := s.logs.MarkSyncLogSuccess(ctx, logID); err != nil {
		s.logger.Error("Failed to mark sync log", zap.Error(err))
	}
}

// CancelOrder cancels the submitted Delivery Notes, Sales Invoice, and
// Sales Order for an order, in that dependency order. A failure on one
// document is logged and does not block the others.
func (s *SyncService) CancelOrder(ctx context.Context, order *models.ShopifyOrder, logID string) {
	ctx, span := util.StartSpan(ctx, "SyncService.CancelOrder")
	defer span.End()

	release, ok := s.lockOrder(ctx, order.ID, logID, StageCancellation)
	if !ok {
		return
	}
	defer release()

	var cancelled []string

	notes, err := s.docs.GetSubmittedDeliveryNotesByShopifyOrderID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageCancellation, order.ID, err)
	}
	for _, dn := range notes {
		if err := s.docs.CancelDeliveryNote(ctx, dn.ID); err != nil {
			s.failStage(ctx, logID, StageCancellation, order.ID,
				fmt.Errorf("delivery note %s: %w", dn.Name, err))
			continue
		}
		cancelled = append(cancelled, dn.Name)
	}

	si, err := s.docs.GetSubmittedSalesInvoiceByShopifyOrderID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageCancellation, order.ID, err)
	} else if si != nil {
		if err := s.docs.CancelSalesInvoice(ctx, si.ID); err != nil {
			s.failStage(ctx, logID, StageCancellation, order.ID,
				fmt.Errorf("sales invoice %s: %w", si.Name, err))
		} else {
			cancelled = append(cancelled, si.Name)
		}
	}

	so, err := s.docs.GetSubmittedSalesOrderByShopifyID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageCancellation, order.ID, err)
	} else if so != nil {
		if err := s.docs.CancelSalesOrder(ctx, so.ID); err != nil {
			s.failStage(ctx, logID, StageCancellation, order.ID,
				fmt.Errorf("sales order %s: %w", so.Name, err))
		} else {
			cancelled = append(cancelled, so.Name)
		}
	}

	util.OrdersCancelledTotal.Inc()
	s.logger.Info("Order cancellation processed",
		zap.Int64("shopify_order_id", order.ID),
		zap.Strings("cancelled", cancelled))

	if err := s.logs.MarkSyncLogSuccess(ctx, logID); err != nil {
		s.logger.Error("Failed to mark sync log", zap.Error(err))
	}

	event := &models.OrderCancelledEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderCancelled),
		ShopifyOrderID: order.ID,
		Cancelled:      cancelled,
	}
	if err := s.events.PublishOrderCancelled(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderCancelled event", zap.Error(err))
	}
}

// ensureSalesOrder resolves or creates the Sales Order for the payload.
// Returns nil after recording the failure when the stage cannot complete.
func (s *SyncService) ensureSalesOrder(ctx context.Context, order *models.ShopifyOrder, settings *models.SyncSettings, logID string) *models.SalesOrder {
	ctx, span := util.StartSpan(ctx, "SyncService.ensureSalesOrder")
	defer span.End()

	start := time.Now()
	defer func() {
		util.SyncStageLatency.WithLabelValues(StageSalesOrder).Observe(time.Since(start).Seconds())
	}()

	existing, err := s.docs.GetOpenSalesOrderByShopifyID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return nil
	}
	if existing != nil {
		s.logger.Info("Sales order already exists, reusing",
			zap.Int64("shopify_order_id", order.ID),
			zap.String("sales_order", existing.Name))
		return existing
	}

	customer, err := s.customers.ResolveCustomer(ctx, order.Customer)
	if err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return nil
	}
	if customer == "" {
		customer = settings.DefaultCustomer
	}

	if err := s.items.EnsureItems(ctx, settings.Warehouse, order.LineItems); err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return nil
	}

	now := time.Now()
	netTotal := decimal.Zero
	lines := make([]models.SalesOrderItem, 0, len(order.LineItems))
	for i := range order.LineItems {
		li := &order.LineItems[i]
		code, err := s.items.ResolveItemCode(ctx, li)
		if err != nil {
			s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
			return nil
		}

		amount := li.Price.Mul(decimal.NewFromInt(int64(li.Quantity)))
		netTotal = netTotal.Add(amount)
		lines = append(lines, models.SalesOrderItem{
			ItemCode:     code,
			ItemName:     li.Title,
			Qty:          li.Quantity,
			Rate:         li.Price,
			Amount:       amount,
			StockUOM:     "Nos",
			Warehouse:    settings.Warehouse,
			DeliveryDate: now,
		})
	}

	charges, err := BuildOrderCharges(ctx, s.taxes, order, settings)
	if err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return nil
	}

	taxTotal := OrderTaxTotal(order)
	discount := order.DiscountAmount()

	so := &models.SalesOrder{
		ShopifyOrderID:     order.ID,
		ShopifyOrderNumber: order.Name,
		CustomerName:       customer,
		Company:            settings.Company,
		SellingPriceList:   settings.PriceList,
		TransactionDate:    now,
		DeliveryDate:       now,
		DiscountAmount:     discount,
		NetTotal:           netTotal,
		TotalTaxes:         taxTotal,
		GrandTotal:         netTotal.Add(taxTotal).Sub(discount),
	}

	if err := s.docs.CreateSalesOrder(ctx, settings.SalesOrderSeries, so, lines, charges); err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return nil
	}
	if err := s.docs.SubmitSalesOrder(ctx, so.ID); err != nil {
		s.failStage(ctx, logID, StageSalesOrder, order.ID, err)
		return nil
	}
	so.Docstatus = models.DocstatusSubmitted

	util.OrdersSyncedTotal.Inc()
	s.logger.Info("Sales order created",
		zap.Int64("shopify_order_id", order.ID),
		zap.String("sales_order", so.Name),
		zap.String("customer", customer))

	event := &models.OrderSyncedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeOrderSynced),
		ShopifyOrderID: order.ID,
		SalesOrder:     so.Name,
		Customer:       customer,
		GrandTotal:     so.GrandTotal.String(),
	}
	if err := s.events.PublishOrderSynced(ctx, event); err != nil {
		s.logger.Error("Failed to publish OrderSynced event", zap.Error(err))
	}

	return so
}

// ensureSalesInvoice creates the invoice, its payment entry, and the
// return invoice on refunds. Skipped when the order is not paid or
// refunded, when invoice sync is disabled, or when an invoice already
// exists for this Shopify order id.
func (s *SyncService) ensureSalesInvoice(ctx context.Context, order *models.ShopifyOrder, so *models.SalesOrder, settings *models.SyncSettings, logID string) {
	ctx, span := util.StartSpan(ctx, "SyncService.ensureSalesInvoice")
	defer span.End()

	if !order.IsPaidOrRefunded() || !settings.SyncSalesInvoice {
		return
	}

	start := time.Now()
	defer func() {
		util.SyncStageLatency.WithLabelValues(StageSalesInvoice).Observe(time.Since(start).Seconds())
	}()

	existing, err := s.docs.GetSalesInvoiceByShopifyOrderID(ctx, order.ID)
	if err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}
	if existing != nil {
		return
	}

	if so.Docstatus != models.DocstatusSubmitted || so.PerBilled.GreaterThan(decimal.Zero) {
		return
	}

	soItems, err := s.docs.GetSalesOrderItems(ctx, so.ID)
	if err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}
	charges, err := s.docs.GetDocumentCharges(ctx, models.ParentSalesOrder, so.ID)
	if err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}

	items := make([]models.SalesInvoiceItem, 0, len(soItems))
	for _, line := range soItems {
		items = append(items, models.SalesInvoiceItem{
			ItemCode:   line.ItemCode,
			ItemName:   line.ItemName,
			Qty:        line.Qty,
			Rate:       line.Rate,
			Amount:     line.Amount,
			CostCenter: settings.CostCenter,
		})
	}

	si := &models.SalesInvoice{
		SalesOrderID:       so.ID,
		ShopifyOrderID:     order.ID,
		ShopifyOrderNumber: order.Name,
		CustomerName:       so.CustomerName,
		Company:            so.Company,
		PostingDate:        order.CreatedAt,
		NetTotal:           so.NetTotal,
		TotalTaxes:         so.TotalTaxes,
		GrandTotal:         so.GrandTotal,
	}

	if err := s.docs.CreateSalesInvoice(ctx, settings.SalesInvoiceSeries, si, items, copyCharges(charges)); err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}
	if err := s.docs.SubmitSalesInvoice(ctx, si.ID); err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}
	si.Docstatus = models.DocstatusSubmitted

	if err := s.docs.SetSalesOrderPerBilled(ctx, so.ID, 100); err != nil {
		s.logger.Error("Failed to update billed percentage", zap.Error(err))
	}
	so.PerBilled = decimal.NewFromInt(100)

	util.InvoicesCreatedTotal.Inc()
	s.logger.Info("Sales invoice created",
		zap.Int64("shopify_order_id", order.ID),
		zap.String("sales_invoice", si.Name))

	s.createPaymentEntry(ctx, si, settings, logID)

	event := &models.InvoiceCreatedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeInvoiceCreated),
		ShopifyOrderID: order.ID,
		SalesInvoice:   si.Name,
	}
	if err := s.events.PublishInvoiceCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish InvoiceCreated event", zap.Error(err))
	}

	if order.FinancialStatus == models.FinancialStatusRefunded {
		s.createSalesReturn(ctx, order, si, items, charges, settings, logID)
	}
}

// createPaymentEntry settles the invoice against the configured cash or
// bank account.
func (s *SyncService) createPaymentEntry(ctx context.Context, si *models.SalesInvoice, settings *models.SyncSettings, logID string) {
	pe := &models.PaymentEntry{
		SalesInvoiceID: si.ID,
		PaidAmount:     si.GrandTotal,
		Account:        settings.CashBankAccount,
		ReferenceNo:    si.Name,
		ReferenceDate:  time.Now(),
	}

	if err := s.docs.CreatePaymentEntry(ctx, settings.PaymentEntrySeries, pe); err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, si.ShopifyOrderID, err)
		return
	}
	if err := s.docs.SubmitPaymentEntry(ctx, pe.ID); err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, si.ShopifyOrderID, err)
		return
	}

	util.PaymentEntriesCreatedTotal.Inc()
	s.logger.Info("Payment entry created",
		zap.String("sales_invoice", si.Name),
		zap.String("payment_entry", pe.Name))
}

// createSalesReturn creates and submits a return invoice referencing the
// original, with negated quantities and amounts.
func (s *SyncService) createSalesReturn(ctx context.Context, order *models.ShopifyOrder, si *models.SalesInvoice, items []models.SalesInvoiceItem, charges []models.DocumentCharge, settings *models.SyncSettings, logID string) {
	returnItems := make([]models.SalesInvoiceItem, 0, len(items))
	for _, item := range items {
		item.ID = 0
		item.Qty = -item.Qty
		item.Amount = item.Amount.Neg()
		returnItems = append(returnItems, item)
	}

	returnCharges := copyCharges(charges)
	for i := range returnCharges {
		returnCharges[i].TaxAmount = returnCharges[i].TaxAmount.Neg()
	}

	ret := &models.SalesInvoice{
		SalesOrderID:       si.SalesOrderID,
		ShopifyOrderID:     si.ShopifyOrderID,
		ShopifyOrderNumber: si.ShopifyOrderNumber,
		CustomerName:       si.CustomerName,
		Company:            si.Company,
		PostingDate:        order.CreatedAt,
		IsReturn:           true,
		ReturnAgainst:      sql.NullInt64{Int64: si.ID, Valid: true},
		NetTotal:           si.NetTotal.Neg(),
		TotalTaxes:         si.TotalTaxes.Neg(),
		GrandTotal:         si.GrandTotal.Neg(),
	}

	if err := s.docs.CreateSalesInvoice(ctx, settings.SalesInvoiceSeries, ret, returnItems, returnCharges); err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}
	if err := s.docs.SubmitSalesInvoice(ctx, ret.ID); err != nil {
		s.failStage(ctx, logID, StageSalesInvoice, order.ID, err)
		return
	}

	s.logger.Info("Return invoice created",
		zap.String("sales_invoice", si.Name),
		zap.String("return_invoice", ret.Name))

	event := &models.InvoiceCreatedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeInvoiceCreated),
		ShopifyOrderID: order.ID,
		SalesInvoice:   ret.Name,
		IsReturn:       true,
	}
	if err := s.events.PublishInvoiceCreated(ctx, event); err != nil {
		s.logger.Error("Failed to publish InvoiceCreated event", zap.Error(err))
	}
}

// ensureDeliveryNotes creates one Delivery Note per fulfillment that has
// none yet. Quantities come from the fulfillment lines; valuation is
// overridden to zero since value was recognized at invoice time.
func (s *SyncService) ensureDeliveryNotes(ctx context.Context, order *models.ShopifyOrder, so *models.SalesOrder, settings *models.SyncSettings, logID string) {
	ctx, span := util.StartSpan(ctx, "SyncService.ensureDeliveryNotes")
	defer span.End()

	if !settings.SyncDeliveryNote || len(order.Fulfillments) == 0 {
		return
	}
	if so.Docstatus != models.DocstatusSubmitted {
		return
	}

	start := time.Now()
	defer func() {
		util.SyncStageLatency.WithLabelValues(StageDeliveryNote).Observe(time.Since(start).Seconds())
	}()

	soItems, err := s.docs.GetSalesOrderItems(ctx, so.ID)
	if err != nil {
		s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
		return
	}
	byCode := make(map[string]*models.SalesOrderItem, len(soItems))
	for i := range soItems {
		byCode[soItems[i].ItemCode] = &soItems[i]
	}

	for i := range order.Fulfillments {
		fulfillment := &order.Fulfillments[i]

		existing, err := s.docs.GetDeliveryNoteByFulfillmentID(ctx, fulfillment.ID)
		if err != nil {
			s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
			return
		}
		if existing != nil {
			continue
		}

		items := make([]models.DeliveryNoteItem, 0, len(fulfillment.LineItems))
		for j := range fulfillment.LineItems {
			li := &fulfillment.LineItems[j]
			code, err := s.items.ResolveItemCode(ctx, li)
			if err != nil {
				s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
				return
			}

			rate := li.Price
			if soLine, ok := byCode[code]; ok {
				rate = soLine.Rate
			}
			items = append(items, models.DeliveryNoteItem{
				ItemCode:               code,
				ItemName:               li.Title,
				Qty:                    li.Quantity,
				Rate:                   rate,
				Warehouse:              settings.Warehouse,
				AllowZeroValuationRate: true,
			})
		}

		dn := &models.DeliveryNote{
			SalesOrderID:         so.ID,
			ShopifyOrderID:       order.ID,
			ShopifyOrderNumber:   order.Name,
			ShopifyFulfillmentID: fulfillment.ID,
			CustomerName:         so.CustomerName,
			PostingDate:          fulfillment.CreatedAt,
		}

		if err := s.docs.CreateDeliveryNote(ctx, settings.DeliveryNoteSeries, dn, items); err != nil {
			s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
			return
		}
		if err := s.docs.SubmitDeliveryNote(ctx, dn.ID); err != nil {
			s.failStage(ctx, logID, StageDeliveryNote, order.ID, err)
			return
		}

		util.DeliveryNotesCreatedTotal.Inc()
		s.logger.Info("Delivery note created",
			zap.Int64("shopify_order_id", order.ID),
			zap.Int64("shopify_fulfillment_id", fulfillment.ID),
			zap.String("delivery_note", dn.Name))

		event := &models.DeliveryCreatedEvent{
			BaseEvent:            newBaseEvent(models.EventTypeDeliveryCreated),
			ShopifyOrderID:       order.ID,
			ShopifyFulfillmentID: fulfillment.ID,
			DeliveryNote:         dn.Name,
		}
		if err := s.events.PublishDeliveryCreated(ctx, event); err != nil {
			s.logger.Error("Failed to publish DeliveryCreated event", zap.Error(err))
		}
	}
}

// lockOrder serializes processing per Shopify order id. A lock failure
// from the backend is tolerated; a held lock records an error and skips
// this attempt so the stored payload can be replayed.
func (s *SyncService) lockOrder(ctx context.Context, shopifyOrderID int64, logID, stage string) (func(), bool) {
	key := fmt.Sprintf("shopify:order:%d", shopifyOrderID)

	acquired, err := s.locks.AcquireLock(ctx, key, orderLockTTL)
	if err != nil {
		s.logger.Warn("Lock backend unavailable, proceeding without lock",
			zap.Int64("shopify_order_id", shopifyOrderID),
			zap.Error(err))
		return func() {}, true
	}
	if !acquired {
		s.failStage(ctx, logID, stage, shopifyOrderID,
			fmt.Errorf("another sync for order %d is in progress", shopifyOrderID))
		return nil, false
	}

	return func() {
		if err := s.locks.ReleaseLock(context.Background(), key); err != nil {
			s.logger.Error("Failed to release order lock", zap.Error(err))
		}
	}, true
}

// failStage records a stage failure on the audit log, the metrics, and
// the event stream. The error never propagates past the stage.
func (s *SyncService) failStage(ctx context.Context, logID, stage string, shopifyOrderID int64, err error) {
	s.logger.Error("Sync stage failed",
		zap.String("stage", stage),
		zap.Int64("shopify_order_id", shopifyOrderID),
		zap.String("sync_log_id", logID),
		zap.Error(err))

	util.SyncStagesFailedTotal.WithLabelValues(stage).Inc()

	if logID != "" {
		if logErr := s.logs.MarkSyncLogError(ctx, logID, fmt.Sprintf("%s: %v", stage, err)); logErr != nil {
			s.logger.Error("Failed to record sync error", zap.Error(logErr))
		}
	}

	event := &models.SyncFailedEvent{
		BaseEvent:      newBaseEvent(models.EventTypeSyncFailed),
		ShopifyOrderID: shopifyOrderID,
		SyncLogID:      logID,
		Stage:          stage,
		Reason:         err.Error(),
	}
	if pubErr := s.events.PublishSyncFailed(ctx, event); pubErr != nil {
		s.logger.Error("Failed to publish SyncFailed event", zap.Error(pubErr))
	}
}

func copyCharges(charges []models.DocumentCharge) []models.DocumentCharge {
	copied := make([]models.DocumentCharge, len(charges))
	copy(copied, charges)
	for i := range copied {
		copied[i].ID = 0
		copied[i].ParentID = 0
		copied[i].ParentType = ""
	}
	return copied
}
