package cli

import (
	"context"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/model"
	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
)

// NewChangeCommand creates the change command group.
func NewChangeCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "change",
		Short: "Request and decide inventory changes",
		Long: `Request and decide inventory changes at a shop.

A change is one of add, remove, adjust, return or remove_product. Stock only
moves when a change is approved. An approved return is closed with
"change complete".`,
	}
	cmd.AddCommand(newChangeRequestCommand(rootOpts))
	cmd.AddCommand(newChangeDecideCommand(rootOpts, "approve", "Approve a pending change"))
	cmd.AddCommand(newChangeDecideCommand(rootOpts, "reject", "Reject a pending change"))
	cmd.AddCommand(newChangeCompleteCommand(rootOpts))
	cmd.AddCommand(newChangeListCommand(rootOpts))
	return cmd
}

type changeRequestOptions struct {
	store, product, kind string
	qty                  int64
	reason               string
	newCost, newPrice    string
	by                   string
}

func newChangeRequestCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &changeRequestOptions{}
	cmd := &cobra.Command{
		Use:   "request",
		Short: "Request an inventory change",
		Long: `Request an inventory change.

Example:
  henscopos change request --store store-a --product soap --type remove --qty 2 --reason damaged
  henscopos change request --store store-a --product soap --type adjust --qty 7 --price 2.75`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			newCost, err := parseOptionalMoney("cost", opts.newCost)
			if err != nil {
				return err
			}
			newPrice, err := parseOptionalMoney("price", opts.newPrice)
			if err != nil {
				return err
			}
			c, err := a.rec.RequestChange(ctx, recorder.ChangeInput{
				StoreID:     opts.store,
				ProductID:   opts.product,
				Type:        model.ChangeType(opts.kind),
				Qty:         opts.qty,
				Reason:      opts.reason,
				NewCost:     newCost,
				NewPrice:    newPrice,
				RequestedBy: opts.by,
			})
			if err != nil {
				return recorderError("failed to request change", err)
			}
			return out.Success(changeList{c})
		}),
	}
	cmd.Flags().StringVar(&opts.store, "store", "", "shop (required)")
	cmd.Flags().StringVar(&opts.product, "product", "", "product id (required)")
	cmd.Flags().StringVar(&opts.kind, "type", "", "add, remove, adjust, return or remove_product (required)")
	cmd.Flags().Int64Var(&opts.qty, "qty", 0, "quantity, or the counted stock for adjust")
	cmd.Flags().StringVar(&opts.reason, "reason", "", "reason for the change")
	cmd.Flags().StringVar(&opts.newCost, "cost", "", "new unit cost for adjust")
	cmd.Flags().StringVar(&opts.newPrice, "price", "", "new unit price for adjust")
	cmd.Flags().StringVar(&opts.by, "by", "", "who is asking")
	for _, name := range []string{"store", "product", "type"} {
		_ = cmd.MarkFlagRequired(name)
	}
	return cmd
}

func newChangeDecideCommand(rootOpts *RootOptions, verb, short string) *cobra.Command {
	var by string
	cmd := &cobra.Command{
		Use:   verb + " <change-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			decide := a.rec.ApproveChange
			if verb == "reject" {
				decide = a.rec.RejectChange
			}
			c, err := decide(ctx, args[0], by)
			if err != nil {
				return recorderError("failed to "+verb+" change", err)
			}
			return out.Success(changeList{c})
		}),
	}
	cmd.Flags().StringVar(&by, "by", "", "who decided")
	return cmd
}

func newChangeCompleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "complete <change-id>",
		Short: "Close an approved return",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			c, err := a.rec.CompleteReturn(ctx, args[0])
			if err != nil {
				return recorderError("failed to complete return", err)
			}
			return out.Success(changeList{c})
		}),
	}
}

func newChangeListCommand(rootOpts *RootOptions) *cobra.Command {
	var store, status string
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List inventory changes",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			changes, err := a.st.PendingChanges(ctx, store, model.ChangeStatus(status))
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list changes", err)
			}
			return out.Success(changeList(changes))
		}),
	}
	cmd.Flags().StringVar(&store, "store", "", "only this shop")
	cmd.Flags().StringVar(&status, "status", "", "only this status (pending, approved, rejected, completed)")
	return cmd
}

