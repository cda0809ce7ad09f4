package service

import (
	"context"
	"fmt"
	"testing"

	"shopify-sync/internal/models"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mapTaxResolver map[string]string

func (m mapTaxResolver) ResolveTaxAccount(_ context.Context, title string) (string, error) {
	account, ok := m[title]
	if !ok {
		return "", fmt.Errorf("tax account not mapped: %q", title)
	}
	return account, nil
}

func testSettings() *models.SyncSettings {
	return &models.SyncSettings{
		DefaultCustomer:    "Shopify Guest",
		Company:            "Acme Retail",
		PriceList:          "Standard Selling",
		Warehouse:          "Main Store",
		CostCenter:         "Main - AR",
		CashBankAccount:    "Cash - AR",
		SalesOrderSeries:   "SO-SPF-",
		SalesInvoiceSeries: "SI-SPF-",
		DeliveryNoteSeries: "DN-SPF-",
		PaymentEntrySeries: "PE-SPF-",
		SyncSalesInvoice:   true,
		SyncDeliveryNote:   true,
	}
}

func TestBuildOrderCharges(t *testing.T) {
	resolver := mapTaxResolver{
		"VAT":          "VAT - AR",
		"Shipping Tax": "Shipping Tax - AR",
	}

	order := &models.ShopifyOrder{
		ID:            1001,
		TaxesIncluded: false,
		TaxLines: []models.ShopifyTaxLine{
			{Title: "VAT", Price: decimal.RequireFromString("6.00"), Rate: 0.06},
		},
		ShippingLines: []models.ShopifyShippingLine{
			{
				Title: "Standard Shipping",
				Price: decimal.RequireFromString("10.00"),
				TaxLines: []models.ShopifyTaxLine{
					{Title: "Shipping Tax", Price: decimal.RequireFromString("0.60"), Rate: 0.06},
				},
			},
		},
	}

	charges, err := BuildOrderCharges(context.Background(), resolver, order, testSettings())
	require.NoError(t, err)
	require.Len(t, charges, 2)

	assert.Equal(t, models.ChargeTypeOnNetTotal, charges[0].ChargeType)
	assert.Equal(t, "VAT - AR", charges[0].AccountHead)
	assert.Equal(t, "VAT - 6%", charges[0].Description)
	assert.True(t, charges[0].Rate.Equal(decimal.RequireFromString("6")))
	assert.False(t, charges[0].IncludedInPrintRate)
	assert.Equal(t, "Main - AR", charges[0].CostCenter)

	assert.Equal(t, models.ChargeTypeActual, charges[1].ChargeType)
	assert.Equal(t, "Shipping Tax - AR", charges[1].AccountHead)
	assert.True(t, charges[1].TaxAmount.Equal(decimal.RequireFromString("0.60")))
}

func TestBuildOrderChargesShippingWithoutTaxLines(t *testing.T) {
	// A shipping charge without nested tax lines becomes one actual
	// charge for the shipping amount itself.
	resolver := mapTaxResolver{"Standard Shipping": "Freight - AR"}

	order := &models.ShopifyOrder{
		ID: 1002,
		ShippingLines: []models.ShopifyShippingLine{
			{Title: "Standard Shipping", Price: decimal.RequireFromString("10.00")},
		},
	}

	charges, err := BuildOrderCharges(context.Background(), resolver, order, testSettings())
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.Equal(t, models.ChargeTypeActual, charges[0].ChargeType)
	assert.Equal(t, "Freight - AR", charges[0].AccountHead)
	assert.Equal(t, "Standard Shipping", charges[0].Description)
	assert.True(t, charges[0].TaxAmount.Equal(decimal.RequireFromString("10.00")))
}

func TestBuildOrderChargesUnmappedTaxIsFatal(t *testing.T) {
	order := &models.ShopifyOrder{
		ID: 1003,
		TaxLines: []models.ShopifyTaxLine{
			{Title: "Mystery Tax", Price: decimal.RequireFromString("1.00"), Rate: 0.01},
		},
	}

	_, err := BuildOrderCharges(context.Background(), mapTaxResolver{}, order, testSettings())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Mystery Tax")
}

func TestBuildOrderChargesTaxesIncluded(t *testing.T) {
	resolver := mapTaxResolver{"VAT": "VAT - AR"}

	order := &models.ShopifyOrder{
		ID:            1004,
		TaxesIncluded: true,
		TaxLines: []models.ShopifyTaxLine{
			{Title: "VAT", Price: decimal.RequireFromString("6.00"), Rate: 0.06},
		},
	}

	charges, err := BuildOrderCharges(context.Background(), resolver, order, testSettings())
	require.NoError(t, err)
	require.Len(t, charges, 1)
	assert.True(t, charges[0].IncludedInPrintRate)
}

func TestOrderTaxTotal(t *testing.T) {
	order := &models.ShopifyOrder{
		TaxLines: []models.ShopifyTaxLine{
			{Title: "VAT", Price: decimal.RequireFromString("6.00"), Rate: 0.06},
		},
		ShippingLines: []models.ShopifyShippingLine{
			{
				Title: "Standard Shipping",
				Price: decimal.RequireFromString("10.00"),
				TaxLines: []models.ShopifyTaxLine{
					{Title: "Shipping Tax", Price: decimal.RequireFromString("0.60")},
				},
			},
			{Title: "Express Surcharge", Price: decimal.RequireFromString("5.00")},
		},
	}

	// 6.00 order tax + 0.60 shipping tax + 5.00 express fallback
	assert.True(t, OrderTaxTotal(order).Equal(decimal.RequireFromString("11.60")))

	order.TaxesIncluded = true
	assert.True(t, OrderTaxTotal(order).Equal(decimal.RequireFromString("5.60")))
}

func TestDiscountAmount(t *testing.T) {
	order := &models.ShopifyOrder{
		DiscountCodes: []models.ShopifyDiscountCode{
			{Code: "WELCOME10", Amount: decimal.RequireFromString("10.00")},
			{Code: "LOYALTY5", Amount: decimal.RequireFromString("5.50")},
		},
	}

	assert.True(t, order.DiscountAmount().Equal(decimal.RequireFromString("15.50")))
}
