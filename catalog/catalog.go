// Package catalog holds the purchasable products of the storefront.
package catalog

import (
	"fmt"

	"github.com/vitwit/storefront/types"
	"github.com/vitwit/storefront/utils"
)

// Catalog is an immutable, ordered product list.
type Catalog struct {
	items []types.CatalogItem
	byID  map[string]int
}

// New validates items and indexes them by id.
func New(items []types.CatalogItem) (*Catalog, error) {
	c := &Catalog{
		items: make([]types.CatalogItem, 0, len(items)),
		byID:  make(map[string]int, len(items)),
	}

	for _, item := range items {
		if err := utils.ValidateStruct(&item); err != nil {
			return nil, fmt.Errorf("catalog item %q: %w", item.ID, err)
		}
		if !item.PriceUSD.IsPositive() {
			return nil, fmt.Errorf("catalog item %q: price must be positive", item.ID)
		}
		if _, dup := c.byID[item.ID]; dup {
			return nil, fmt.Errorf("duplicate catalog item %q", item.ID)
		}
		c.byID[item.ID] = len(c.items)
		c.items = append(c.items, item)
	}

	return c, nil
}

// Items returns the products in configuration order.
func (c *Catalog) Items() []types.CatalogItem {
	return append([]types.CatalogItem(nil), c.items...)
}

// Lookup finds a product by id.
func (c *Catalog) Lookup(id string) (types.CatalogItem, error) {
	i, ok := c.byID[id]
	if !ok {
		return types.CatalogItem{}, types.NewError(types.ErrUnknownItem, fmt.Sprintf("no catalog item %q", id), nil)
	}
	return c.items[i], nil
}

func (c *Catalog) Len() int { return len(c.items) }
