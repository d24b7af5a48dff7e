package cli

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
)

// itemArg is a PRODUCT:QTY[@PRICE] argument.
type itemArg struct {
	ProductID string
	Qty       int64
	Price     *decimal.Decimal
}

func parseItem(s string) (itemArg, error) {
	var item itemArg
	head, price, hasPrice := strings.Cut(s, "@")
	id, qty, ok := strings.Cut(head, ":")
	if !ok || id == "" {
		return item, fmt.Errorf("item %q: want PRODUCT:QTY", s)
	}
	n, err := strconv.ParseInt(qty, 10, 64)
	if err != nil {
		return item, fmt.Errorf("item %q: bad quantity: %w", s, err)
	}
	item.ProductID, item.Qty = id, n
	if hasPrice {
		d, err := decimal.NewFromString(price)
		if err != nil {
			return item, fmt.Errorf("item %q: bad price: %w", s, err)
		}
		item.Price = &d
	}
	return item, nil
}

func parseItems(args []string) ([]itemArg, error) {
	items := make([]itemArg, 0, len(args))
	for _, a := range args {
		item, err := parseItem(a)
		if err != nil {
			return nil, WrapExitError(ExitCommandError, "invalid item", err)
		}
		items = append(items, item)
	}
	return items, nil
}

func parseMoney(flag, value string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(value)
	if err != nil {
		return d, WrapExitError(ExitCommandError, fmt.Sprintf("invalid --%s", flag), err)
	}
	return d, nil
}

// parseOptionalMoney returns nil for an empty value.
func parseOptionalMoney(flag, value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := parseMoney(flag, value)
	if err != nil {
		return nil, err
	}
	return &d, nil
}
