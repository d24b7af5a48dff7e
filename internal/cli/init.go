package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/catalog"
)

type InitOptions struct {
	*RootOptions
	Catalog string
}

// NewInitCommand creates the init command.
func NewInitCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InitOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "init",
		Short: "Create the local database and seed stores and products",
		Long: `Create the local database and seed it from a CUE catalog.

Without --catalog the catalog.path setting is used, and without that the
built-in shop list. Seeding again leaves existing products alone.

Example:
  henscopos init
  henscopos init --catalog ./catalog.cue`,
		Args: cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			return runInit(ctx, opts, a, out)
		}),
	}
	cmd.Flags().StringVar(&opts.Catalog, "catalog", "", "CUE catalog file")
	return cmd
}

type initResult struct {
	Stores   int `json:"stores"`
	Products int `json:"products"`
}

func (r initResult) String() string {
	return fmt.Sprintf("seeded %d stores and %d products", r.Stores, r.Products)
}

func runInit(ctx context.Context, opts *InitOptions, a *app, out *OutputFormatter) error {
	path := opts.Catalog
	if path == "" {
		path = a.cfg.Catalog.Path
	}

	var (
		cat *catalog.Catalog
		err error
	)
	if path == "" {
		out.VerboseLog("using built-in catalog")
		cat, err = catalog.Default()
	} else {
		out.VerboseLog("loading catalog %s", path)
		cat, err = catalog.Load(path)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to load catalog", err)
	}

	if err := a.rec.SeedCatalog(ctx, cat); err != nil {
		return recorderError("failed to seed catalog", err)
	}
	return out.Success(initResult{Stores: len(cat.Stores), Products: len(cat.Products)})
}
