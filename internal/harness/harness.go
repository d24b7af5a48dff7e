package harness

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/connectivity"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/live"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/remote"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/server"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/store"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/syncer"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/testutil"
)

// DefaultCatalog seeds scenarios that bring no catalog of their own.
const DefaultCatalog = `
stores: [
	{id: "store-a", name: "Store A"},
	{id: "store-b", name: "Store B"},
]
products: [
	{id: "soap", itemNo: 1, name: "Soap", cost: "1.00", price: "2.50", warehouseStock: 20, restockLevel: 2, stock: {"store-a": 5}},
	{id: "rice", itemNo: 2, name: "Rice", cost: "10.00", price: "14.00", warehouseStock: 50},
]
`

const (
	deviceID  = "harness-till"
	jwtSecret = "harness-secret"
)

// Harness is one device wired to one server for a scenario run.
type Harness struct {
	ledger  *server.Ledger
	st      *store.Store
	rec     *recorder.Recorder
	engine  *syncer.Engine
	monitor *connectivity.Monitor
	net     *switchTransport
	result  *Result
}

// Run executes a scenario on a fresh device and server and returns the
// result. The error is non-nil only when the run itself broke down; failed
// expectations are reported in the result.
func Run(ctx context.Context, scenario *Scenario) (*Result, error) {
	cat, err := scenarioCatalog(scenario)
	if err != nil {
		return nil, err
	}

	var ledgerOpts []server.LedgerOption
	if scenario.TaxRate != "" {
		rate, err := decimal.NewFromString(scenario.TaxRate)
		if err != nil {
			return nil, fmt.Errorf("tax_rate: %w", err)
		}
		ledgerOpts = append(ledgerOpts, server.WithTaxRate(rate))
	}
	ledger := server.NewLedger(ledgerOpts...)
	ledger.Seed(cat)

	trace := &requestLog{}
	ts := httptest.NewServer(trace.wrap(server.New(ledger, server.WithJWTSecret(jwtSecret)).Handler()))
	defer ts.Close()

	token, err := server.MintToken([]byte(jwtSecret), deviceID, time.Hour, time.Now())
	if err != nil {
		return nil, err
	}

	st, err := store.Open(":memory:")
	if err != nil {
		return nil, fmt.Errorf("failed to create in-memory store: %w", err)
	}
	defer st.Close()

	// Deterministic helpers keep record ids and timestamps stable.
	clock := testutil.NewFixedClock(time.Time{}, time.Second)
	ids := testutil.NewSequentialIDs("")

	rec := recorder.New(st, recorder.WithClock(clock), recorder.WithIDs(ids), recorder.WithDeviceID(deviceID))
	if err := rec.SeedCatalog(ctx, cat); err != nil {
		return nil, fmt.Errorf("seed device: %w", err)
	}

	sw := &switchTransport{base: http.DefaultTransport}
	client := remote.New(ts.URL,
		remote.WithHTTPClient(&http.Client{Transport: sw}),
		remote.WithToken(token),
		remote.WithDeviceID(deviceID))
	engine := syncer.New(st, client,
		syncer.WithClock(clock),
		syncer.WithIDs(ids.NewID),
		syncer.WithRefresh(scenario.Refresh))

	mon, err := connectivity.New(engine, client, live.NewHub(st, zap.NewNop()))
	if err != nil {
		return nil, err
	}
	defer mon.Close()

	h := &Harness{
		ledger:  ledger,
		st:      st,
		rec:     rec,
		engine:  engine,
		monitor: mon,
		net:     sw,
		result:  NewResult(),
	}

	for i, step := range scenario.Steps {
		if err := h.runStep(ctx, i, step); err != nil {
			return nil, fmt.Errorf("steps[%d] %s: %w", i, step.Op, err)
		}
	}

	h.result.Trace = trace.events(h.result.Captures)
	for _, msg := range h.evaluate(ctx, scenario.Assertions) {
		h.result.AddError(msg)
	}
	return h.result, nil
}

func scenarioCatalog(s *Scenario) (*catalog.Catalog, error) {
	src := s.Catalog
	if src == "" {
		src = DefaultCatalog
	}
	cat, err := catalog.Parse(s.Name+".cue", []byte(src))
	if err != nil {
		return nil, fmt.Errorf("catalog: %w", err)
	}
	return cat, nil
}

// resolve maps a scenario name to the local id it captured. Anything else
// is taken as a literal id.
func (h *Harness) resolve(name string) string {
	if id, ok := h.result.Captures[name]; ok {
		return id
	}
	return name
}

func (h *Harness) capture(step Step, id string) {
	if step.As != "" {
		h.result.Captures[step.As] = id
	}
}

// runStep performs one step. Expectation failures go into the result; the
// returned error means the device itself failed.
func (h *Harness) runStep(ctx context.Context, i int, step Step) error {
	switch step.Op {
	case OpOffline:
		h.net.set(true)
		h.monitor.SetOnline(ctx, false)
		return nil
	case OpOnline:
		h.net.set(false)
		h.monitor.SetOnline(ctx, true)
		if res := h.monitor.Status().LastResult; res != nil {
			h.checkDrain(i, step, *res)
		}
		return nil
	case OpSync:
		res, err := h.monitor.SyncNow(ctx)
		if err != nil {
			return err
		}
		h.checkDrain(i, step, res)
		return nil
	case OpRetry, OpDiscard:
		return h.release(ctx, i, step)
	}

	id, err := h.record(ctx, step)
	return h.checkRecord(i, step, id, err)
}

// record runs a recorder operation and returns the id of what it wrote.
func (h *Harness) record(ctx context.Context, step Step) (string, error) {
	switch step.Op {
	case OpAddProduct:
		cost, price, err := money(step.Cost, step.Price)
		if err != nil {
			return "", err
		}
		p, err := h.rec.AddProduct(ctx, recorder.ProductInput{
			Name: step.Name, Cost: cost, Price: price, WarehouseStock: step.Stock,
		})
		return p.ID, err

	case OpPrice:
		cost, price, err := money(step.Cost, step.Price)
		if err != nil {
			return "", err
		}
		p, err := h.rec.UpdatePricing(ctx, h.resolve(step.Target), cost, price)
		return p.ID, err

	case OpDelete:
		id := h.resolve(step.Target)
		return id, h.rec.DeleteProduct(ctx, id)

	case OpStockIn:
		in := recorder.AdditionInput{ReferenceID: step.Reference}
		for _, item := range step.Items {
			price, err := optionalMoney(item.Price)
			if err != nil {
				return "", err
			}
			in.Items = append(in.Items, recorder.AdditionLine{ProductID: h.resolve(item.Product), Qty: item.Qty, Price: price})
		}
		a, err := h.rec.AddInventoryBatch(ctx, in)
		return a.ID, err

	case OpSell:
		in := recorder.SaleInput{StoreID: step.Store}
		for _, item := range step.Items {
			price, err := optionalMoney(item.Price)
			if err != nil {
				return "", err
			}
			in.Lines = append(in.Lines, recorder.SaleLine{ProductID: h.resolve(item.Product), Qty: item.Qty, Price: price})
		}
		txn, err := h.rec.RecordSale(ctx, in)
		return txn.ID, err

	case OpTransfer:
		in := recorder.TransferInput{ToStoreID: step.To}
		for _, item := range step.Items {
			in.Items = append(in.Items, recorder.TransferLine{ProductID: h.resolve(item.Product), Qty: item.Qty})
		}
		t, err := h.rec.CreateTransfer(ctx, in)
		return t.ID, err

	case OpConfirm:
		t, err := h.rec.ConfirmTransfer(ctx, h.resolve(step.Target))
		return t.ID, err

	case OpCancel:
		t, err := h.rec.CancelTransfer(ctx, h.resolve(step.Target))
		return t.ID, err

	case OpRequest:
		newCost, err := optionalMoney(step.Cost)
		if err != nil {
			return "", err
		}
		newPrice, err := optionalMoney(step.Price)
		if err != nil {
			return "", err
		}
		c, err := h.rec.RequestChange(ctx, recorder.ChangeInput{
			StoreID:     step.Store,
			ProductID:   h.resolve(step.Product),
			Type:        model.ChangeType(step.Type),
			Qty:         step.Qty,
			Reason:      step.Reason,
			NewCost:     newCost,
			NewPrice:    newPrice,
			RequestedBy: "harness",
		})
		return c.ID, err

	case OpApprove:
		c, err := h.rec.ApproveChange(ctx, h.resolve(step.Target), "harness")
		return c.ID, err

	case OpReject:
		c, err := h.rec.RejectChange(ctx, h.resolve(step.Target), "harness")
		return c.ID, err

	case OpComplete:
		c, err := h.rec.CompleteReturn(ctx, h.resolve(step.Target))
		return c.ID, err
	}
	return "", fmt.Errorf("unknown op %q", step.Op)
}

func (h *Harness) checkRecord(i int, step Step, id string, err error) error {
	wantRejected := step.Expect != nil && step.Expect.Error == "rejected"
	switch {
	case err == nil && wantRejected:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: expected rejection, got success", i, step.Op))
	case err == nil:
		h.capture(step, id)
	case recorder.IsValidation(err) && !wantRejected:
		h.result.AddError(fmt.Sprintf("steps[%d] %s: unexpected rejection: %v", i, step.Op, err))
	case !recorder.IsValidation(err):
		return err
	}
	return nil
}

func (h *Harness) checkDrain(i int, step Step, res syncer.Result) {
	if step.Expect == nil {
		return
	}
	exp := step.Expect
	prefix := fmt.Sprintf("steps[%d] %s", i, step.Op)
	if exp.State != "" && string(res.State) != exp.State {
		h.result.AddError(fmt.Sprintf("%s: state %q, expected %q (%s)", prefix, res.State, exp.State, res.LastError))
	}
	if exp.Synced != nil && res.Synced != *exp.Synced {
		h.result.AddError(fmt.Sprintf("%s: synced %d, expected %d", prefix, res.Synced, *exp.Synced))
	}
	if exp.Remaining != nil && res.Remaining != *exp.Remaining {
		h.result.AddError(fmt.Sprintf("%s: remaining %d, expected %d", prefix, res.Remaining, *exp.Remaining))
	}
}

// release retries or discards the target entry, or the first held entry
// when the step names none.
func (h *Harness) release(ctx context.Context, i int, step Step) error {
	id := h.resolve(step.Target)
	if id == "" {
		entries, err := h.st.QueueEntries(ctx)
		if err != nil {
			return err
		}
		for _, e := range entries {
			if e.Status == model.QueueAttention {
				id = e.ID
				break
			}
		}
	}

	release := h.engine.Retry
	if step.Op == OpDiscard {
		release = h.engine.Discard
	}
	err := release(ctx, id)
	switch {
	case errors.Is(err, syncer.ErrEntryNotFound), errors.Is(err, syncer.ErrNotHeld):
		h.result.AddError(fmt.Sprintf("steps[%d] %s: %v", i, step.Op, err))
		return nil
	default:
		return err
	}
}

func money(cost, price string) (decimal.Decimal, decimal.Decimal, error) {
	c, err := decimal.NewFromString(cost)
	if err != nil {
		return c, c, fmt.Errorf("cost %q: %w", cost, err)
	}
	p, err := decimal.NewFromString(price)
	if err != nil {
		return c, p, fmt.Errorf("price %q: %w", price, err)
	}
	return c, p, nil
}

func optionalMoney(s string) (*decimal.Decimal, error) {
	if s == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("money %q: %w", s, err)
	}
	return &d, nil
}

// switchTransport fails every request while down, the way an unplugged
// network does.
type switchTransport struct {
	base http.RoundTripper

	mu   sync.Mutex
	down bool
}

var errNetworkDown = errors.New("network is down")

func (t *switchTransport) set(down bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.down = down
}

func (t *switchTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	t.mu.Lock()
	down := t.down
	t.mu.Unlock()
	if down {
		return nil, errNetworkDown
	}
	return t.base.RoundTrip(req)
}

// requestLog records what the server answered.
type requestLog struct {
	mu      sync.Mutex
	entries []TraceEvent
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func (l *requestLog) wrap(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)

		l.mu.Lock()
		defer l.mu.Unlock()
		l.entries = append(l.entries, TraceEvent{
			Seq:      len(l.entries) + 1,
			Method:   r.Method,
			Path:     r.URL.Path,
			Status:   sw.status,
			Replayed: sw.Header().Get("Idempotent-Replayed") == "true",
		})
	})
}

// events returns the log with captured ids in paths replaced by their
// scenario names in braces.
func (l *requestLog) events(captures map[string]string) []TraceEvent {
	names := make(map[string]string, len(captures))
	for name, id := range captures {
		names[id] = "{" + name + "}"
	}

	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]TraceEvent, len(l.entries))
	for i, e := range l.entries {
		segments := strings.Split(e.Path, "/")
		for j, seg := range segments {
			if name, ok := names[seg]; ok {
				segments[j] = name
			}
		}
		e.Path = strings.Join(segments, "/")
		out[i] = e
	}
	return out
}
