package service

import (
	"context"
	"fmt"
	"strconv"

	"shopify-sync/internal/models"

	"github.com/shopspring/decimal"
)

// BuildOrderCharges translates the order's tax lines and shipping lines
// into document charge rows. Tax lines become percentage charges on the
// net total; shipping lines become actual-amount charges, one per nested
// tax line, or one for the whole shipping charge when it carries no tax
// lines of its own.
func BuildOrderCharges(ctx context.Context, taxes TaxAccountResolver, order *models.ShopifyOrder, settings *models.SyncSettings) ([]models.DocumentCharge, error) {
	charges := make([]models.DocumentCharge, 0, len(order.TaxLines)+len(order.ShippingLines))

	for _, tax := range order.TaxLines {
		account, err := taxes.ResolveTaxAccount(ctx, tax.Title)
		if err != nil {
			return nil, err
		}

		pct := tax.Rate * 100.0
		charges = append(charges, models.DocumentCharge{
			ChargeType:          models.ChargeTypeOnNetTotal,
			AccountHead:         account,
			Description:         fmt.Sprintf("%s - %s%%", tax.Title, strconv.FormatFloat(pct, 'f', -1, 64)),
			Rate:                decimal.NewFromFloat(pct),
			IncludedInPrintRate: order.TaxesIncluded,
			CostCenter:          settings.CostCenter,
		})
	}

	for _, shipping := range order.ShippingLines {
		taxLines := shipping.TaxLines
		if len(taxLines) == 0 {
			taxLines = []models.ShopifyTaxLine{{Title: shipping.Title, Price: shipping.Price}}
		}

		for _, tax := range taxLines {
			account, err := taxes.ResolveTaxAccount(ctx, tax.Title)
			if err != nil {
				return nil, err
			}

			charges = append(charges, models.DocumentCharge{
				ChargeType:  models.ChargeTypeActual,
				AccountHead: account,
				Description: tax.Title,
				TaxAmount:   tax.Price,
				CostCenter:  settings.CostCenter,
			})
		}
	}

	return charges, nil
}

// OrderTaxTotal sums the tax and shipping amounts that contribute to the
// grand total, mirroring the charge composition above. Order-level taxes
// are excluded when prices already include them.
func OrderTaxTotal(order *models.ShopifyOrder) decimal.Decimal {
	total := decimal.Zero

	if !order.TaxesIncluded {
		for _, tax := range order.TaxLines {
			total = total.Add(tax.Price)
		}
	}

	for _, shipping := range order.ShippingLines {
		if len(shipping.TaxLines) == 0 {
			total = total.Add(shipping.Price)
			continue
		}
		for _, tax := range shipping.TaxLines {
			total = total.Add(tax.Price)
		}
	}

	return total
}
