package pricing

import (
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/iurnickita/scrapmart/internal/model"
)

func TestPriceCopper(t *testing.T) {
	copper := model.Material{ID: "copper", Name: "Copper", Unit: model.UnitKg,
		Price: decimal.NewFromInt(450), MinQuantity: decimal.NewFromInt(2), Active: true}

	items, total := Price([]Line{{Material: copper, Quantity: decimal.NewFromInt(5)}})

	require.Len(t, items, 1)
	require.True(t, total.Equal(decimal.NewFromInt(2250)), total.String())
	require.True(t, items[0].UnitPrice.Equal(decimal.NewFromInt(450)))
	require.Equal(t, "Copper", items[0].MaterialName)
	require.Equal(t, model.UnitKg, items[0].Unit)
}

func TestPriceRoundsHalfUp(t *testing.T) {
	paper := model.Material{ID: "paper", Price: decimal.RequireFromString("12.5"), Unit: model.UnitKg}
	tin := model.Material{ID: "tin", Price: decimal.RequireFromString("0.333"), Unit: model.UnitKg}

	items, total := Price([]Line{
		{Material: paper, Quantity: decimal.RequireFromString("1.001")}, // 12.5125 -> 12.51
		{Material: tin, Quantity: decimal.RequireFromString("1.5")},     // 0.33 * 1.5 = 0.495 -> 0.50
	})

	require.Equal(t, "0.33", items[1].UnitPrice.String())
	require.Equal(t, "12.51", items[0].LineTotal.StringFixed(2))
	require.Equal(t, "0.50", items[1].LineTotal.StringFixed(2))
	require.Equal(t, "13.01", total.StringFixed(2))
}

func TestTotalMatchesPrice(t *testing.T) {
	lines := []Line{
		{Material: model.Material{ID: "a", Price: decimal.RequireFromString("18.75")}, Quantity: decimal.RequireFromString("3.3")},
		{Material: model.Material{ID: "b", Price: decimal.RequireFromString("450")}, Quantity: decimal.RequireFromString("2.25")},
		{Material: model.Material{ID: "c", Price: decimal.Zero}, Quantity: decimal.NewFromInt(40)},
	}
	items, total := Price(lines)
	require.True(t, total.Equal(Total(items)))
}

// Сохранённые цена и количество с точностью колонок дают ту же сумму
func TestPriceMatchesStoredScale(t *testing.T) {
	items, total := Price([]Line{
		{Material: model.Material{ID: "a", Price: decimal.RequireFromString("10.005")}, Quantity: decimal.RequireFromString("3.333")},
		{Material: model.Material{ID: "b", Price: decimal.RequireFromString("7.4449")}, Quantity: decimal.RequireFromString("0.125")},
	})

	sum := decimal.Zero
	for _, item := range items {
		require.True(t, item.UnitPrice.Equal(item.UnitPrice.Truncate(MinorUnits)), item.UnitPrice.String())
		stored := item.UnitPrice.Mul(item.Quantity.Truncate(QuantityUnits)).Round(MinorUnits)
		require.True(t, stored.Equal(item.LineTotal), "%s != %s", stored, item.LineTotal)
		sum = sum.Add(item.LineTotal)
	}
	require.True(t, sum.Equal(total))
	require.Equal(t, "10.01", items[0].UnitPrice.String())
}
