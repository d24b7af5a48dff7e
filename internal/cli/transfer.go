package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
)

// NewTransferCommand creates the transfer command group.
func NewTransferCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "transfer",
		Short: "Move stock from the warehouse to a shop",
		Long: `Move stock from the warehouse to a shop.

A new transfer takes the stock out of the warehouse at once. Confirming it
puts the stock on the shop's shelf; cancelling it returns the stock to the
warehouse.`,
	}
	cmd.AddCommand(newTransferCreateCommand(rootOpts))
	cmd.AddCommand(newTransferFinishCommand(rootOpts, "confirm", "Confirm that a shop received a transfer"))
	cmd.AddCommand(newTransferFinishCommand(rootOpts, "cancel", "Cancel a pending transfer"))
	cmd.AddCommand(newTransferListCommand(rootOpts))
	return cmd
}

func newTransferCreateCommand(rootOpts *RootOptions) *cobra.Command {
	var to string
	cmd := &cobra.Command{
		Use:   "create PRODUCT:QTY...",
		Short: "Create a pending transfer",
		Args:  cobra.MinimumNArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			items, err := parseItems(args)
			if err != nil {
				return err
			}
			lines := make([]recorder.TransferLine, 0, len(items))
			for _, item := range items {
				lines = append(lines, recorder.TransferLine{ProductID: item.ProductID, Qty: item.Qty})
			}
			t, err := a.rec.CreateTransfer(ctx, recorder.TransferInput{ToStoreID: to, Items: lines})
			if err != nil {
				return recorderError("failed to create transfer", err)
			}
			return out.Success(transferList{t})
		}),
	}
	cmd.Flags().StringVar(&to, "to", "", "destination shop (required)")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func newTransferFinishCommand(rootOpts *RootOptions, verb, short string) *cobra.Command {
	return &cobra.Command{
		Use:   verb + " <transfer-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			finish := a.rec.ConfirmTransfer
			if verb == "cancel" {
				finish = a.rec.CancelTransfer
			}
			t, err := finish(ctx, args[0])
			if err != nil {
				return recorderError("failed to "+verb+" transfer", err)
			}
			return out.Success(transferList{t})
		}),
	}
}

func newTransferListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List transfers",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			transfers, err := a.st.Transfers(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list transfers", err)
			}
			return out.Success(transferList(transfers))
		}),
	}
}
