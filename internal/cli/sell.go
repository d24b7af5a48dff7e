package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
)

// NewSellCommand creates the sell command.
func NewSellCommand(rootOpts *RootOptions) *cobra.Command {
	var storeID string
	cmd := &cobra.Command{
		Use:   "sell PRODUCT:QTY[@PRICE]...",
		Short: "Record a sale at a shop",
		Long: `Record a checkout at a shop. Each item is a product id and quantity,
optionally followed by the unit price charged. Without a price the
product's current price is used.

Example:
  henscopos sell --store store-a soap:2 rice:1@13.50`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			items, err := parseItems(args)
			if err != nil {
				return err
			}
			lines := make([]recorder.SaleLine, 0, len(items))
			for _, item := range items {
				lines = append(lines, recorder.SaleLine{
					ProductID: item.ProductID,
					Qty:       item.Qty,
					Price:     item.Price,
				})
			}
			txn, err := a.rec.RecordSale(ctx, recorder.SaleInput{StoreID: storeID, Lines: lines})
			if err != nil {
				return recorderError("failed to record sale", err)
			}
			out.VerboseLog("queued sale %s", txn.ID)
			return out.Success(saleView(txn))
		}),
	}
	cmd.Flags().StringVar(&storeID, "store", "", "selling shop (required)")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
