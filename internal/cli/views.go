package cli

import (
	"fmt"
	"io"
	"time"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/syncer"
)

func itemNo(p model.Product) string {
	if p.ItemNoConfirmed {
		return fmt.Sprintf("%d", p.ItemNo)
	}
	return fmt.Sprintf("%d*", p.ItemNo)
}

func canonical(id *string) string {
	if id == nil {
		return "-"
	}
	return *id
}

type productList []model.Product

func (l productList) renderText(w io.Writer) error {
	fmt.Fprintln(w, "NO\tID\tNAME\tCOST\tPRICE\tWAREHOUSE\tRESTOCK")
	for _, p := range l {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%d\t%d\n",
			itemNo(p), p.ID, p.Name, p.Cost.StringFixed(2), p.Price.StringFixed(2), p.WarehouseStock, p.RestockLevel)
	}
	return nil
}

type productView model.Product

func (p productView) renderText(w io.Writer) error {
	return productList{model.Product(p)}.renderText(w)
}

type inventoryList []model.InventoryView

func (l inventoryList) renderText(w io.Writer) error {
	fmt.Fprintln(w, "NO\tPRODUCT\tNAME\tPRICE\tSTOCK\t")
	for _, v := range l {
		low := ""
		if v.LowStock {
			low = "low"
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%d\t%s\n", v.ItemNo, v.ProductID, v.ProductName, v.Price.StringFixed(2), v.Stock, low)
	}
	return nil
}

type saleView model.Transaction

func (s saleView) renderText(w io.Writer) error {
	fmt.Fprintf(w, "sale %s at %s\n", s.ID, s.StoreID)
	for _, item := range s.Items {
		fmt.Fprintf(w, "  %s\tx%d\t%s\n", item.ItemName, item.Qty, item.Price.StringFixed(2))
	}
	fmt.Fprintf(w, "  subtotal\t\t%s\n", s.Subtotal.StringFixed(2))
	fmt.Fprintf(w, "  tax\t\t%s\n", s.Tax.StringFixed(2))
	fmt.Fprintf(w, "  total\t\t%s\n", s.Total.StringFixed(2))
	return nil
}

type transferList []model.StockTransfer

func (l transferList) renderText(w io.Writer) error {
	fmt.Fprintln(w, "ID\tSERVER ID\tTO\tSTATUS\tITEMS\tCREATED")
	for _, t := range l {
		var qty int64
		for _, item := range t.Items {
			qty += item.Qty
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\n",
			t.ID, canonical(t.CanonicalID), t.ToStoreID, t.Status, qty, t.CreatedAt.Format(time.DateTime))
	}
	return nil
}

type changeList []model.PendingChange

func (l changeList) renderText(w io.Writer) error {
	fmt.Fprintln(w, "ID\tSTORE\tPRODUCT\tTYPE\tQTY\tSTATUS\tREQUESTED BY")
	for _, c := range l {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%s\t%s\n",
			c.ID, c.StoreID, c.ProductID, c.ChangeType, c.Qty, c.Status, c.RequestedBy)
	}
	return nil
}

type queueList []model.QueueEntry

func (l queueList) renderText(w io.Writer) error {
	fmt.Fprintln(w, "SEQ\tID\tTABLE\tACTION\tRECORD\tSTATUS\tATTEMPTS\tLAST ERROR")
	for _, e := range l {
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%d\t%s\n",
			e.Seq, e.ID, e.Table, e.Action, e.RecordID, e.Status, e.Attempts, e.LastError)
	}
	return nil
}

type syncView syncer.Result

func (r syncView) renderText(w io.Writer) error {
	fmt.Fprintf(w, "state:\t%s\n", r.State)
	fmt.Fprintf(w, "synced:\t%d\n", r.Synced)
	fmt.Fprintf(w, "remaining:\t%d\n", r.Remaining)
	if r.Attention > 0 {
		fmt.Fprintf(w, "needs attention:\t%d\n", r.Attention)
	}
	if r.Refreshed {
		fmt.Fprintln(w, "refreshed:\tyes")
	}
	if r.LastError != "" {
		fmt.Fprintf(w, "last error:\t%s\n", r.LastError)
	}
	return nil
}

// statusView is the output of `henscopos status`.
type statusView struct {
	Device    string         `json:"device"`
	Server    string         `json:"server"`
	Online    bool           `json:"online"`
	Unsynced  int64          `json:"unsynced"`
	Attention int64          `json:"attention"`
	LastSync  *model.SyncRun `json:"lastSync,omitempty"`
}

func (s statusView) renderText(w io.Writer) error {
	online := "offline"
	if s.Online {
		online = "online"
	}
	fmt.Fprintf(w, "device:\t%s\n", s.Device)
	fmt.Fprintf(w, "server:\t%s (%s)\n", s.Server, online)
	fmt.Fprintf(w, "unsynced:\t%d\n", s.Unsynced)
	fmt.Fprintf(w, "needs attention:\t%d\n", s.Attention)
	if s.LastSync != nil {
		fmt.Fprintf(w, "last sync:\t%s %s (%d synced)\n",
			s.LastSync.StartedAt.Format(time.DateTime), s.LastSync.State, s.LastSync.Synced)
	}
	return nil
}

type additionView model.InventoryAddition

func (v additionView) renderText(w io.Writer) error {
	ref := v.ReferenceID
	if ref == "" {
		ref = "-"
	}
	fmt.Fprintf(w, "stock-in %s (ref %s)\n", v.ID, ref)
	for _, item := range v.Items {
		fmt.Fprintf(w, "  %s\t%s\t+%d\n", item.ProductID, item.ItemName, item.Qty)
	}
	fmt.Fprintf(w, "  total cost\t\t%s\n", v.TotalCost.StringFixed(2))
	return nil
}

type movementList []model.StockMovement

func (l movementList) renderText(w io.Writer) error {
	fmt.Fprintln(w, "WHEN\tSTORE\tKIND\tDELTA\tBEFORE\tAFTER\tREF")
	for _, m := range l {
		fmt.Fprintf(w, "%s\t%s\t%s\t%+d\t%d\t%d\t%s %s\n",
			m.CreatedAt.Format(time.DateTime), m.StoreID, m.Kind, m.Delta, m.BeforeQty, m.AfterQty, m.RefTable, m.RefID)
	}
	return nil
}
