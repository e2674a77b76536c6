// Package invoice вычисляет итоги счёта с разбивкой НДС по категориям строк.
package invoice

import (
	"github.com/shopspring/decimal"
	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/mmeshcher/depannfroid-reports/internal/model"
)

// Calculator вычисляет итоги счёта по фиксированным ставкам.
type Calculator struct {
	rates model.TaxRates
}

// NewCalculator создаёт калькулятор с указанными ставками.
func NewCalculator(rates model.TaxRates) *Calculator {
	return &Calculator{rates: rates}
}

// Compute возвращает итоги для последовательности строк.
// НДС округляется до целого франка по каждой категории, суммы HT не округляются.
// Некорректные и отрицательные количества и цены считаются нулём, строка без категории считается услугой.
func (c *Calculator) Compute(lines []model.InvoiceLine) model.InvoiceSummary {
	htSupplies := decimal.Zero
	htServices := decimal.Zero

	for _, l := range lines {
		amount := nonNegative(l.Quantity).Mul(nonNegative(l.UnitPrice))
		if l.Category.IsSupply() {
			htSupplies = htSupplies.Add(amount)
		} else {
			htServices = htServices.Add(amount)
		}
	}

	vatSupplies := htSupplies.Mul(c.rates.Supply).Round(0)
	vatServices := htServices.Mul(c.rates.Service).Round(0)

	totalHT := htSupplies.Add(htServices)
	totalVAT := vatSupplies.Add(vatServices)

	return model.InvoiceSummary{
		HTSupplies:  htSupplies,
		VATSupplies: vatSupplies,
		HTServices:  htServices,
		VATServices: vatServices,
		TotalHT:     totalHT,
		TotalVAT:    totalVAT,
		TotalTTC:    totalHT.Add(totalVAT),
	}
}

func nonNegative(n model.Number) decimal.Decimal {
	v := n.OrZero()
	if v.IsNegative() {
		return decimal.Zero
	}
	return v
}

var printer = message.NewPrinter(language.French)

// FormatXPF форматирует сумму для показа: округление до франка и разделители разрядов fr-FR.
func FormatXPF(amount decimal.Decimal) string {
	rounded := amount.Round(0)
	if n := rounded.BigInt(); n.IsInt64() {
		return printer.Sprintf("%d XPF", n.Int64())
	}
	return rounded.String() + " XPF"
}
