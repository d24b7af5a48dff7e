package harness

import (
	"context"
	"fmt"
	"reflect"
	"regexp"
	"sort"
	"strings"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

// validIdentifier matches valid SQL identifiers (table/column names).
// Identifiers are interpolated into SQL, so nothing else is accepted.
var validIdentifier = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

// AssertionError is returned when an assertion fails.
// It includes detailed context to help debug the failure.
type AssertionError struct {
	Type     string       // Assertion type for categorization
	Expected string       // Human-readable expected outcome
	Actual   string       // Human-readable actual outcome
	Trace    []TraceEvent // Requests for context, when relevant
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s\n", e.Type)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Trace) > 0 {
		fmt.Fprintf(&buf, "\nRequests:\n")
		for _, event := range e.Trace {
			fmt.Fprintf(&buf, "  [%d] %s\n", event.Seq, event)
		}
	}

	return buf.String()
}

// assertRequestOrder checks that the requests appear in order. Other
// requests may come in between.
func assertRequestOrder(trace []TraceEvent, assertion Assertion) error {
	next := 0
	for _, event := range trace {
		if next < len(assertion.Requests) && event.matches(assertion.Requests[next]) {
			next++
		}
	}
	if next == len(assertion.Requests) {
		return nil
	}
	return &AssertionError{
		Type:     AssertRequestOrder,
		Expected: fmt.Sprintf("requests in order: %v", assertion.Requests),
		Actual:   fmt.Sprintf("no %q after the first %d", assertion.Requests[next], next),
		Trace:    trace,
	}
}

// assertRequestCount checks that a request appears exactly Count times.
func assertRequestCount(trace []TraceEvent, assertion Assertion) error {
	count := 0
	for _, event := range trace {
		if event.matches(assertion.Request) {
			count++
		}
	}
	if count != assertion.Count {
		return &AssertionError{
			Type:     AssertRequestCount,
			Expected: fmt.Sprintf("%d occurrences of %s", assertion.Count, assertion.Request),
			Actual:   fmt.Sprintf("%d occurrences", count),
			Trace:    trace,
		}
	}
	return nil
}

// assertFinalState checks one device row with subset semantics: only the
// columns in Expect are compared, and exactly one row must match Where.
func (h *Harness) assertFinalState(ctx context.Context, assertion Assertion) error {
	if !validIdentifier.MatchString(assertion.Table) {
		return fmt.Errorf("invalid table name %q: must match pattern %s", assertion.Table, validIdentifier.String())
	}

	where := make(map[string]any, len(assertion.Where))
	for k, v := range assertion.Where {
		if s, ok := v.(string); ok {
			v = h.resolve(s)
		}
		where[k] = v
	}
	whereSQL, whereArgs, err := buildWhereClause(where)
	if err != nil {
		return err
	}

	query := fmt.Sprintf("SELECT * FROM %s", assertion.Table)
	if whereSQL != "" {
		query += " WHERE " + whereSQL
	}

	rows, err := h.st.Query(ctx, query, whereArgs...)
	if err != nil {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("query table %s", assertion.Table),
			Actual:   fmt.Sprintf("query error: %v", err),
		}
	}
	defer rows.Close()

	if !rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "row not found",
		}
	}
	actualRow := make(map[string]any)
	if err := rows.MapScan(actualRow); err != nil {
		return fmt.Errorf("scan row: %w", err)
	}
	if rows.Next() {
		return &AssertionError{
			Type:     AssertFinalState,
			Expected: fmt.Sprintf("exactly one row in %s where %s", assertion.Table, formatWhereClause(where)),
			Actual:   "multiple rows matched (assertion is ambiguous)",
		}
	}

	keys := make([]string, 0, len(assertion.Expect))
	for k := range assertion.Expect {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, key := range keys {
		expectedValue := assertion.Expect[key]
		actualValue, exists := actualRow[key]
		if !exists {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q to exist", key),
				Actual:   fmt.Sprintf("field %q not present in %s", key, assertion.Table),
			}
		}
		if !stateValuesEqual(expectedValue, actualValue) {
			return &AssertionError{
				Type:     AssertFinalState,
				Expected: fmt.Sprintf("field %q = %v (type %T)", key, expectedValue, expectedValue),
				Actual:   fmt.Sprintf("field %q = %v (type %T)", key, actualValue, actualValue),
			}
		}
	}
	return nil
}

// assertServerStock checks the server's stock of a product. The warehouse
// is the product's warehouse stock; a missing shop row counts as zero.
func (h *Harness) assertServerStock(ctx context.Context, assertion Assertion) error {
	productID := h.resolve(assertion.Product)
	if p, err := h.st.Product(ctx, productID); err == nil && p.CanonicalID != nil {
		productID = *p.CanonicalID
	}

	snap := h.ledger.Snapshot()
	var stock int64
	found := false
	if assertion.Store == model.WarehouseID {
		for _, p := range snap.Products {
			if p.ID == productID {
				stock, found = p.WarehouseStock, true
			}
		}
	} else {
		found = true
		for _, inv := range snap.Inventory {
			if inv.StoreID == assertion.Store && inv.ProductID == productID {
				stock = inv.Stock
			}
		}
	}

	if !found || stock != assertion.Stock {
		actual := fmt.Sprintf("%d", stock)
		if !found {
			actual = "unknown product"
		}
		return &AssertionError{
			Type:     AssertServerStock,
			Expected: fmt.Sprintf("server stock of %s in %s = %d", productID, assertion.Store, assertion.Stock),
			Actual:   actual,
		}
	}
	return nil
}

// assertQueue checks the device's unsynced and held entry counts.
func (h *Harness) assertQueue(ctx context.Context, assertion Assertion) error {
	count, err := h.st.QueueCount(ctx)
	if err != nil {
		return err
	}
	attention, err := h.st.AttentionCount(ctx)
	if err != nil {
		return err
	}
	if count != int64(assertion.Count) || attention != int64(assertion.Attention) {
		return &AssertionError{
			Type:     AssertQueue,
			Expected: fmt.Sprintf("%d queued, %d needing attention", assertion.Count, assertion.Attention),
			Actual:   fmt.Sprintf("%d queued, %d needing attention", count, attention),
		}
	}
	return nil
}

// buildWhereClause constructs a parameterized WHERE clause.
// Returns SQL fragment, arguments slice, and error. Keys are sorted for determinism.
func buildWhereClause(where map[string]any) (string, []any, error) {
	if len(where) == 0 {
		return "", nil, nil
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	clauses := make([]string, 0, len(keys))
	args := make([]any, 0, len(keys))
	for _, key := range keys {
		if !validIdentifier.MatchString(key) {
			return "", nil, fmt.Errorf("invalid column name %q in where clause: must match pattern %s", key, validIdentifier.String())
		}
		clauses = append(clauses, fmt.Sprintf("%s = ?", key))
		args = append(args, toSQLValue(where[key]))
	}

	return strings.Join(clauses, " AND "), args, nil
}

// toSQLValue converts a YAML value to a SQL argument.
func toSQLValue(v any) any {
	switch val := v.(type) {
	case string, int, int64, bool:
		return val
	default:
		return fmt.Sprintf("%v", val)
	}
}

// formatWhereClause formats the where map for error messages.
func formatWhereClause(where map[string]any) string {
	if len(where) == 0 {
		return "(no conditions)"
	}

	keys := make([]string, 0, len(where))
	for k := range where {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, where[k]))
	}
	return strings.Join(parts, ", ")
}

// stateValuesEqual compares a YAML value with a SQLite column value.
// SQLite hands back int64 for integers, 0/1 for booleans, and sometimes
// []byte for text.
func stateValuesEqual(expected, actual any) bool {
	if expected == nil || actual == nil {
		return expected == nil && actual == nil
	}
	if b, ok := actual.([]byte); ok {
		actual = string(b)
	}

	switch exp := expected.(type) {
	case string:
		actualStr, ok := actual.(string)
		return ok && exp == actualStr
	case int:
		return intEqual(int64(exp), actual)
	case int64:
		return intEqual(exp, actual)
	case bool:
		if actualBool, ok := actual.(bool); ok {
			return exp == actualBool
		}
		if actualInt, ok := actual.(int64); ok {
			return exp == (actualInt != 0)
		}
		return false
	}

	return reflect.DeepEqual(expected, actual)
}

func intEqual(exp int64, actual any) bool {
	switch a := actual.(type) {
	case int64:
		return exp == a
	case int:
		return exp == int64(a)
	}
	return false
}

// evaluate runs every assertion and returns the failure messages.
func (h *Harness) evaluate(ctx context.Context, assertions []Assertion) []string {
	var errors []string

	for i, assertion := range assertions {
		var err error

		switch assertion.Type {
		case AssertRequestOrder:
			err = assertRequestOrder(h.result.Trace, assertion)
		case AssertRequestCount:
			err = assertRequestCount(h.result.Trace, assertion)
		case AssertFinalState:
			err = h.assertFinalState(ctx, assertion)
		case AssertServerStock:
			err = h.assertServerStock(ctx, assertion)
		case AssertQueue:
			err = h.assertQueue(ctx, assertion)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}

	return errors
}
