package cli

import (
	"context"

	"github.com/spf13/cobra"
)

// NewInventoryCommand creates the inventory command.
func NewInventoryCommand(rootOpts *RootOptions) *cobra.Command {
	var storeID string
	cmd := &cobra.Command{
		Use:   "inventory",
		Short: "Show a shop's stock",
		Long: `Show a shop's stock with each product's price. Rows at or below the
product's restock level are marked low.`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			if _, err := a.st.Store(ctx, storeID); err != nil {
				return WrapExitError(ExitFailure, "unknown store", err)
			}
			rows, err := a.st.InventoryView(ctx, storeID)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to read inventory", err)
			}
			return out.Success(inventoryList(rows))
		}),
	}
	cmd.Flags().StringVar(&storeID, "store", "", "shop (required)")
	_ = cmd.MarkFlagRequired("store")
	return cmd
}
