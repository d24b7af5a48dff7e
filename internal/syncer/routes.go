package syncer

import (
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
)

// Route is the server endpoint a queue entry is sent to. "{id}" in Path is
// replaced by the entry's record id (always the local id).
type Route struct {
	Method string
	Path   string
}

type routeKey struct{ table, action string }

var routes = map[routeKey]Route{
	{model.QueueProducts, model.ActionCreate}:           {http.MethodPost, "/api/products"},
	{model.QueueProducts, model.ActionImport}:           {http.MethodPost, "/api/products/bulk"},
	{model.QueueProducts, model.ActionUpdate}:           {http.MethodPut, "/api/products/{id}"},
	{model.QueueProducts, model.ActionDelete}:           {http.MethodDelete, "/api/products/{id}"},
	{model.QueueInventoryAdditions, model.ActionCreate}: {http.MethodPost, "/api/inventory/addition"},
	{model.QueueStockTransfers, model.ActionCreate}:     {http.MethodPost, "/api/transfer"},
	{model.QueueStockTransfers, model.ActionConfirm}:    {http.MethodPost, "/api/transfer/{id}/confirm"},
	{model.QueueStockTransfers, model.ActionCancel}:     {http.MethodPost, "/api/transfer/{id}/cancel"},
	{model.QueuePendingChanges, model.ActionCreate}:     {http.MethodPost, "/api/inventory/pending-changes"},
	{model.QueuePendingChanges, model.ActionApprove}:    {http.MethodPost, "/api/inventory/pending-changes/{id}/approve"},
	{model.QueuePendingChanges, model.ActionReject}:     {http.MethodPost, "/api/inventory/pending-changes/{id}/reject"},
	{model.QueuePendingChanges, model.ActionComplete}:   {http.MethodPost, "/api/inventory/pending-changes/{id}/complete"},
	{model.QueueTransactions, model.ActionCreate}:       {http.MethodPost, "/api/transactions"},
}

// Resolve returns the endpoint for a (table, action) pair with the record id
// substituted.
func Resolve(table, action, recordID string) (Route, error) {
	r, ok := routes[routeKey{table, action}]
	if !ok {
		return Route{}, fmt.Errorf("no route for %s/%s", table, action)
	}
	r.Path = strings.ReplaceAll(r.Path, "{id}", url.PathEscape(recordID))
	return r, nil
}
