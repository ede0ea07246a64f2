package payments

import (
	"github.com/watchcoin/backend/internal/config"
)

// Catalog is the fixed list of purchasable coin packages.
type Catalog struct {
	order []config.Package
	byID  map[string]config.Package
}

func NewCatalog(pkgs []config.Package) *Catalog {
	c := &Catalog{byID: make(map[string]config.Package, len(pkgs))}
	for _, p := range pkgs {
		c.order = append(c.order, p)
		c.byID[p.ID] = p
	}
	return c
}

func (c *Catalog) Get(id string) (config.Package, bool) {
	p, ok := c.byID[id]
	return p, ok
}

func (c *Catalog) List() []config.Package {
	out := make([]config.Package, len(c.order))
	copy(out, c.order)
	return out
}
