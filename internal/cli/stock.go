package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
)

// NewStockCommand creates the stock command group.
func NewStockCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "stock",
		Short: "Receive stock into the warehouse",
	}
	cmd.AddCommand(newStockAddCommand(rootOpts))
	cmd.AddCommand(newStockHistoryCommand(rootOpts))
	return cmd
}

func newStockAddCommand(rootOpts *RootOptions) *cobra.Command {
	var ref string
	cmd := &cobra.Command{
		Use:   "add PRODUCT:QTY[@PRICE]...",
		Short: "Record a warehouse stock-in batch",
		Long: `Record a warehouse stock-in batch. A price after @ replaces the
product's selling price.

Example:
  henscopos stock add --ref INV-2031 soap:24 rice:10@15.00`,
		Args: cobra.MinimumNArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			items, err := parseItems(args)
			if err != nil {
				return err
			}
			lines := make([]recorder.AdditionLine, 0, len(items))
			for _, item := range items {
				lines = append(lines, recorder.AdditionLine{
					ProductID: item.ProductID,
					Qty:       item.Qty,
					Price:     item.Price,
				})
			}
			add, err := a.rec.AddInventoryBatch(ctx, recorder.AdditionInput{ReferenceID: ref, Items: lines})
			if err != nil {
				return recorderError("failed to record stock-in", err)
			}
			return out.Success(additionView(add))
		}),
	}
	cmd.Flags().StringVar(&ref, "ref", "", "supplier reference")
	return cmd
}

func newStockHistoryCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "history <product-id>",
		Short: "Show the stock movements of a product",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			moves, err := a.st.Movements(ctx, args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read movements", err)
			}
			return out.Success(movementList(moves))
		}),
	}
}
