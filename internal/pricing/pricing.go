// Package pricing рассчитывает суммы по позициям заказа.
package pricing

import (
	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
)

// Точность денежных сумм: две цифры после запятой (пайсы)
const MinorUnits = 2

// Точность количества: три цифры после запятой (граммы)
const QuantityUnits = 3

// MaxAmount - наибольшая сумма, которую вмещает колонка итога
var MaxAmount = decimal.RequireFromString("999999999999.99")

type Line struct {
	Material model.Material
	Quantity decimal.Decimal
}

// UnitPrice - цена материала с точностью до пайсы, как она хранится в заказе
func UnitPrice(material model.Material) decimal.Decimal {
	return material.Price.Round(MinorUnits)
}

// Price фиксирует цену материала на момент заказа и считает итоги.
// Округление half-up; для неотрицательных сумм decimal.Round ведёт себя так же.
func Price(lines []Line) ([]model.OrderLineItem, decimal.Decimal) {
	items := make([]model.OrderLineItem, 0, len(lines))
	for _, line := range lines {
		unitPrice := UnitPrice(line.Material)
		items = append(items, model.OrderLineItem{
			MaterialID:   line.Material.ID,
			MaterialName: line.Material.Name,
			Unit:         line.Material.Unit,
			Quantity:     line.Quantity,
			UnitPrice:    unitPrice,
			LineTotal:    lineTotal(unitPrice, line.Quantity),
		})
	}
	return items, Total(items)
}

// Total пересчитывает итог по уже зафиксированным позициям
func Total(items []model.OrderLineItem) decimal.Decimal {
	total := decimal.Zero
	for _, item := range items {
		total = total.Add(lineTotal(item.UnitPrice, item.Quantity))
	}
	return total
}

func lineTotal(unitPrice, quantity decimal.Decimal) decimal.Decimal {
	return unitPrice.Mul(quantity).Round(MinorUnits)
}
