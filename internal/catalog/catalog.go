// Package catalog loads seed catalogs written in CUE: the shop allow-list
// and, optionally, starting products and stock.
//
// A catalog is validated against an embedded #Catalog schema before it is
// decoded, so a bad file is reported with its CUE position.
package catalog

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/errors"
	"cuelang.org/go/cue/token"
	"github.com/shopspring/decimal"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

//go:embed schema.cue
var schemaCUE string

//go:embed default.cue
var defaultCUE []byte

// Catalog is decoded seed data.
type Catalog struct {
	Stores   []model.Store
	Products []Product
}

// Product is a seeded product. Its ID is shared with the server, so it is
// both the local and the canonical id.
type Product struct {
	ID             string
	ItemNo         int64
	Name           string
	Cost           decimal.Decimal
	Price          decimal.Decimal
	WarehouseStock int64
	RestockLevel   int64
	// Stock is the initial shop stock keyed by store id.
	Stock map[string]int64
}

// rawCatalog mirrors #Catalog; money stays text until validated.
type rawCatalog struct {
	Stores []struct {
		ID   string `json:"id"`
		Name string `json:"name"`
	} `json:"stores"`
	Products []struct {
		ID             string           `json:"id"`
		ItemNo         int64            `json:"itemNo"`
		Name           string           `json:"name"`
		Cost           string           `json:"cost"`
		Price          string           `json:"price"`
		WarehouseStock int64            `json:"warehouseStock"`
		RestockLevel   int64            `json:"restockLevel"`
		Stock          map[string]int64 `json:"stock"`
	} `json:"products"`
}

// Error is a catalog problem, with the CUE position when one is known.
type Error struct {
	Field   string
	Message string
	Pos     token.Pos
}

func (e *Error) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s",
			e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(),
			e.Field, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// Default returns the built-in shop allow-list.
func Default() (*Catalog, error) {
	return Parse("default.cue", defaultCUE)
}

// Load reads and parses a catalog file.
func Load(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog: %w", err)
	}
	return Parse(filepath.Base(path), data)
}

// Parse validates src against #Catalog and decodes it.
func Parse(name string, src []byte) (*Catalog, error) {
	ctx := cuecontext.New()

	schema := ctx.CompileString(schemaCUE, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile catalog schema: %w", err)
	}

	data := ctx.CompileBytes(src, cue.Filename(name))
	if err := data.Err(); err != nil {
		return nil, formatCUEError(err)
	}

	v := schema.LookupPath(cue.ParsePath("#Catalog")).Unify(data)
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, formatCUEError(err)
	}

	var raw rawCatalog
	if err := v.Decode(&raw); err != nil {
		return nil, formatCUEError(err)
	}
	return convert(raw, v)
}

func convert(raw rawCatalog, v cue.Value) (*Catalog, error) {
	cat := &Catalog{
		Stores:   make([]model.Store, 0, len(raw.Stores)),
		Products: make([]Product, 0, len(raw.Products)),
	}

	storeIDs := make(map[string]bool, len(raw.Stores))
	for _, s := range raw.Stores {
		if storeIDs[s.ID] {
			return nil, &Error{Field: "stores", Message: fmt.Sprintf("duplicate store id %q", s.ID), Pos: v.Pos()}
		}
		storeIDs[s.ID] = true
		cat.Stores = append(cat.Stores, model.Store{ID: s.ID, Name: s.Name})
	}

	productIDs := make(map[string]bool, len(raw.Products))
	names := make(map[string]bool, len(raw.Products))
	for i, p := range raw.Products {
		field := fmt.Sprintf("products[%d]", i)
		if productIDs[p.ID] {
			return nil, &Error{Field: field, Message: fmt.Sprintf("duplicate product id %q", p.ID)}
		}
		if names[p.Name] {
			return nil, &Error{Field: field, Message: fmt.Sprintf("duplicate product name %q", p.Name)}
		}
		productIDs[p.ID] = true
		names[p.Name] = true

		for storeID := range p.Stock {
			if !storeIDs[storeID] {
				return nil, &Error{Field: field + ".stock", Message: fmt.Sprintf("unknown store %q", storeID)}
			}
		}

		// #Money already guarantees these parse.
		cost, err := decimal.NewFromString(p.Cost)
		if err != nil {
			return nil, &Error{Field: field + ".cost", Message: err.Error()}
		}
		price, err := decimal.NewFromString(p.Price)
		if err != nil {
			return nil, &Error{Field: field + ".price", Message: err.Error()}
		}

		stock := p.Stock
		if stock == nil {
			stock = map[string]int64{}
		}
		cat.Products = append(cat.Products, Product{
			ID:             p.ID,
			ItemNo:         p.ItemNo,
			Name:           p.Name,
			Cost:           cost,
			Price:          price,
			WarehouseStock: p.WarehouseStock,
			RestockLevel:   p.RestockLevel,
			Stock:          stock,
		})
	}

	return cat, nil
}

// formatCUEError extracts position info from CUE errors.
func formatCUEError(err error) error {
	if err == nil {
		return nil
	}

	errs := errors.Errors(err)
	if len(errs) == 0 {
		return err
	}

	first := errs[0]
	if positions := errors.Positions(first); len(positions) > 0 {
		return &Error{
			Field:   "cue",
			Message: first.Error(),
			Pos:     positions[0],
		}
	}
	return err
}
