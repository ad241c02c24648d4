// Package catalog отдаёт актуальный снимок каталога вторсырья.
package catalog

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/iurnickita/scrapmart/internal/model"
	"github.com/iurnickita/scrapmart/internal/store"
)

type Gateway interface {
	ActiveMaterials(ctx context.Context) ([]model.Material, error)
}

type storeGateway struct {
	store store.Store
}

func NewStoreGateway(store store.Store) Gateway {
	return &storeGateway{store: store}
}

func (g *storeGateway) ActiveMaterials(ctx context.Context) ([]model.Material, error) {
	return g.store.MaterialGetActive(ctx)
}

// Static - фиксированный каталог, удобен в тестах
type Static []model.Material

func (s Static) ActiveMaterials(_ context.Context) ([]model.Material, error) {
	return Active(s), nil
}

func Active(materials []model.Material) []model.Material {
	active := make([]model.Material, 0, len(materials))
	for _, m := range materials {
		if m.Active {
			active = append(active, m)
		}
	}
	return active
}

// Seed заполняет пустой каталог стартовым прайсом
func Seed(ctx context.Context, s store.Store) (int, error) {
	existing, err := s.MaterialGetActive(ctx)
	if err != nil {
		return 0, err
	}
	if len(existing) > 0 {
		return 0, nil
	}
	materials := DefaultMaterials()
	for _, m := range materials {
		if err := s.MaterialPut(ctx, m); err != nil {
			return 0, err
		}
	}
	return len(materials), nil
}

func DefaultMaterials() []model.Material {
	kg := func(id, name, category string, price, minQty string) model.Material {
		return model.Material{
			ID:          id,
			Name:        name,
			Category:    category,
			Price:       decimal.RequireFromString(price),
			Unit:        model.UnitKg,
			MinQuantity: decimal.RequireFromString(minQty),
			Active:      true,
		}
	}
	return []model.Material{
		kg("newspaper", "Newspaper", "paper", "14", "5"),
		kg("cardboard", "Cardboard", "paper", "8", "5"),
		kg("books", "Books & Copies", "paper", "12", "5"),
		kg("plastic", "Plastic", "plastic", "10", "3"),
		kg("iron", "Iron", "metal", "30", "5"),
		kg("steel", "Steel", "metal", "40", "3"),
		kg("aluminium", "Aluminium", "metal", "110", "2"),
		kg("brass", "Brass", "metal", "300", "1"),
		kg("copper", "Copper", "metal", "450", "2"),
		kg("e-waste", "E-Waste", "electronics", "25", "2"),
	}
}
