package catalog

import (
	"fmt"
	"sort"

	"github.com/propgate/propgate/pkg/errors"
)

// Catalog is a run-scoped, read-only snapshot of items grouped by category.
// It is built once at run start and passed explicitly to every component.
type Catalog struct {
	items      map[ItemID]Item
	categories map[string][]ItemID
}

// New creates a catalog from the given items.
func New(items ...Item) (*Catalog, error) {
	c := &Catalog{
		items:      make(map[ItemID]Item),
		categories: make(map[string][]ItemID),
	}
	for _, item := range items {
		if err := c.Add(item); err != nil {
			return nil, err
		}
	}
	return c, nil
}

// MustNew is New for static fixtures; it panics on duplicate items.
func MustNew(items ...Item) *Catalog {
	c, err := New(items...)
	if err != nil {
		panic(err)
	}
	return c
}

// Add inserts an item. Duplicate identities are rejected.
func (c *Catalog) Add(item Item) error {
	if item.Category == "" || item.Name == "" {
		return errors.NewValidationError("item", item.Path, "category and name are required")
	}
	id := item.ID()
	if _, exists := c.items[id]; exists {
		return errors.NewValidationError("item", id, fmt.Sprintf("duplicate item %s", id))
	}
	c.items[id] = item
	ids := append(c.categories[item.Category], id)
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	c.categories[item.Category] = ids
	return nil
}

// Len returns the number of items.
func (c *Catalog) Len() int {
	return len(c.items)
}

// Get returns an item by id.
func (c *Catalog) Get(id ItemID) (Item, bool) {
	item, ok := c.items[id]
	return item, ok
}

// HasCategory reports whether any item belongs to category.
func (c *Catalog) HasCategory(category string) bool {
	return len(c.categories[category]) > 0
}

// Categories returns category names in sorted order.
func (c *Catalog) Categories() []string {
	names := make([]string, 0, len(c.categories))
	for name := range c.categories {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Items returns the items of a category sorted by id.
func (c *Catalog) Items(category string) []Item {
	ids := c.categories[category]
	items := make([]Item, 0, len(ids))
	for _, id := range ids {
		items = append(items, c.items[id])
	}
	return items
}

// All returns every item sorted by category then id.
func (c *Catalog) All() []Item {
	var items []Item
	for _, category := range c.Categories() {
		items = append(items, c.Items(category)...)
	}
	return items
}

// Properties returns the sorted set of property names used in a category.
func (c *Catalog) Properties(category string) []string {
	seen := make(map[string]bool)
	for _, id := range c.categories[category] {
		for name := range c.items[id].Properties {
			seen[name] = true
		}
	}
	names := make([]string, 0, len(seen))
	for name := range seen {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Values returns the numeric values of property across a category, in item order.
func (c *Catalog) Values(category, property string) []float64 {
	var values []float64
	for _, id := range c.categories[category] {
		if v, ok := c.items[id].Number(property); ok {
			values = append(values, v)
		}
	}
	return values
}

// Filter returns a catalog limited to the given categories.
func (c *Catalog) Filter(categories ...string) *Catalog {
	if len(categories) == 0 {
		return c
	}
	out := MustNew()
	for _, category := range categories {
		for _, item := range c.Items(category) {
			_ = out.Add(item)
		}
	}
	return out
}
