package harness

import (
	"bytes"
	"fmt"
	"os"
	"slices"

	"gopkg.in/yaml.v3"
)

// Scenario defines a device run and what must hold afterwards.
type Scenario struct {
	// Name uniquely identifies this scenario and names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Catalog is CUE source seeding both the device and the server. Empty
	// uses DefaultCatalog.
	Catalog string `yaml:"catalog,omitempty"`

	// TaxRate makes the server check sale tax at this rate.
	TaxRate string `yaml:"tax_rate,omitempty"`

	// Refresh pulls the server snapshot after every drain that empties the
	// queue.
	Refresh bool `yaml:"refresh,omitempty"`

	Steps      []Step      `yaml:"steps"`
	Assertions []Assertion `yaml:"assertions"`
}

// Step is one device action. Which fields apply depends on Op.
type Step struct {
	Op string `yaml:"op"`

	// As names the record the step creates.
	As string `yaml:"as,omitempty"`

	// Target is the record a transition or edit applies to: a scenario
	// name or a literal id.
	Target string `yaml:"target,omitempty"`

	Store     string `yaml:"store,omitempty"`
	To        string `yaml:"to,omitempty"`
	Product   string `yaml:"product,omitempty"`
	Name      string `yaml:"name,omitempty"`
	Cost      string `yaml:"cost,omitempty"`
	Price     string `yaml:"price,omitempty"`
	Stock     int64  `yaml:"stock,omitempty"`
	Type      string `yaml:"type,omitempty"`
	Qty       int64  `yaml:"qty,omitempty"`
	Reason    string `yaml:"reason,omitempty"`
	Reference string `yaml:"reference,omitempty"`
	Items     []Item `yaml:"items,omitempty"`

	Expect *Expect `yaml:"expect,omitempty"`
}

// Item is one line of a sale, stock-in or transfer.
type Item struct {
	Product string `yaml:"product"`
	Qty     int64  `yaml:"qty"`
	Price   string `yaml:"price,omitempty"`
}

// Expect describes a step's outcome.
type Expect struct {
	// Error is "rejected" when the recorder must refuse the step.
	Error string `yaml:"error,omitempty"`

	// State, Synced and Remaining check the drain run by sync and online.
	State     string `yaml:"state,omitempty"`
	Synced    *int64 `yaml:"synced,omitempty"`
	Remaining *int64 `yaml:"remaining,omitempty"`
}

// Step operations.
const (
	OpAddProduct = "add_product"
	OpPrice      = "price"
	OpDelete     = "delete"
	OpStockIn    = "stock_in"
	OpSell       = "sell"
	OpTransfer   = "transfer"
	OpConfirm    = "confirm"
	OpCancel     = "cancel"
	OpRequest    = "request"
	OpApprove    = "approve"
	OpReject     = "reject"
	OpComplete   = "complete"
	OpOffline    = "offline"
	OpOnline     = "online"
	OpSync       = "sync"
	OpRetry      = "retry"
	OpDiscard    = "discard"
)

var knownOps = []string{
	OpAddProduct, OpPrice, OpDelete, OpStockIn, OpSell, OpTransfer, OpConfirm, OpCancel,
	OpRequest, OpApprove, OpReject, OpComplete, OpOffline, OpOnline, OpSync, OpRetry, OpDiscard,
}

// targetOps need a Target.
var targetOps = []string{OpPrice, OpDelete, OpConfirm, OpCancel, OpApprove, OpReject, OpComplete}

// Assertion validates the requests sent or the final state.
type Assertion struct {
	// Type is one of request_order, request_count, final_state,
	// server_stock or queue.
	Type string `yaml:"type"`

	// Requests is the expected request order (request_order).
	Requests []string `yaml:"requests,omitempty"`

	// Request is the counted request (request_count).
	Request string `yaml:"request,omitempty"`

	// Count is the expected number of requests (request_count) or queue
	// entries (queue).
	Count int `yaml:"count"`

	// Table, Where and Expect select and check a device row (final_state).
	Table  string         `yaml:"table,omitempty"`
	Where  map[string]any `yaml:"where,omitempty"`
	Expect map[string]any `yaml:"expect,omitempty"`

	// Store, Product and Stock check server stock (server_stock).
	Store   string `yaml:"store,omitempty"`
	Product string `yaml:"product,omitempty"`
	Stock   int64  `yaml:"stock"`

	// Attention is the expected number of held entries (queue).
	Attention int `yaml:"attention"`
}

// Assertion type constants.
const (
	AssertRequestOrder = "request_order"
	AssertRequestCount = "request_count"
	AssertFinalState   = "final_state"
	AssertServerStock  = "server_stock"
	AssertQueue        = "queue"
)

// LoadScenario reads and parses a scenario YAML file.
// Returns an error if the file doesn't exist, is malformed,
// contains unknown fields (typos), or is missing required fields.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}
	return ParseScenario(data)
}

// ParseScenario parses scenario YAML.
func ParseScenario(data []byte) (*Scenario, error) {
	// Strict fields catch typos like "assertion:" for "assertions:".
	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	names := make(map[string]bool)
	for i, step := range s.Steps {
		if !slices.Contains(knownOps, step.Op) {
			return fmt.Errorf("steps[%d]: unknown op %q", i, step.Op)
		}
		if slices.Contains(targetOps, step.Op) && step.Target == "" {
			return fmt.Errorf("steps[%d]: target is required for %s", i, step.Op)
		}
		if step.As != "" {
			if names[step.As] {
				return fmt.Errorf("steps[%d]: name %q is already used", i, step.As)
			}
			names[step.As] = true
		}
		if step.Expect != nil && step.Expect.Error != "" && step.Expect.Error != "rejected" {
			return fmt.Errorf("steps[%d].expect: error must be \"rejected\"", i)
		}
	}

	for i := range s.Assertions {
		if err := validateAssertion(i, &s.Assertions[i]); err != nil {
			return err
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}

	switch a.Type {
	case AssertRequestOrder:
		if len(a.Requests) == 0 {
			return fmt.Errorf("assertions[%d]: requests list is required for request_order", index)
		}
	case AssertRequestCount:
		if a.Request == "" {
			return fmt.Errorf("assertions[%d]: request is required for request_count", index)
		}
		if a.Count < 0 {
			return fmt.Errorf("assertions[%d]: count must be non-negative for request_count", index)
		}
	case AssertFinalState:
		if a.Table == "" {
			return fmt.Errorf("assertions[%d]: table is required for final_state", index)
		}
		if len(a.Expect) == 0 {
			return fmt.Errorf("assertions[%d]: expect is required for final_state", index)
		}
	case AssertServerStock:
		if a.Store == "" || a.Product == "" {
			return fmt.Errorf("assertions[%d]: store and product are required for server_stock", index)
		}
	case AssertQueue:
		if a.Count < 0 || a.Attention < 0 {
			return fmt.Errorf("assertions[%d]: counts must be non-negative for queue", index)
		}
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}
