package cli

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Mcdamien/HenscoPOS-sub000/internal/recorder"
)

// NewProductCommand creates the product command group.
func NewProductCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "product",
		Short: "Manage the product catalog",
	}
	cmd.AddCommand(newProductAddCommand(rootOpts))
	cmd.AddCommand(newProductListCommand(rootOpts))
	cmd.AddCommand(newProductPriceCommand(rootOpts))
	cmd.AddCommand(newProductDeleteCommand(rootOpts))
	cmd.AddCommand(newProductImportCommand(rootOpts))
	return cmd
}

type productAddOptions struct {
	name           string
	cost, price    string
	warehouseStock int64
	restockLevel   int64
}

func newProductAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &productAddOptions{}
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Add a product with its opening warehouse stock",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			cost, err := parseMoney("cost", opts.cost)
			if err != nil {
				return err
			}
			price, err := parseMoney("price", opts.price)
			if err != nil {
				return err
			}
			p, err := a.rec.AddProduct(ctx, recorder.ProductInput{
				Name:           opts.name,
				Cost:           cost,
				Price:          price,
				WarehouseStock: opts.warehouseStock,
				RestockLevel:   opts.restockLevel,
			})
			if err != nil {
				return recorderError("failed to add product", err)
			}
			return out.Success(productView(p))
		}),
	}
	cmd.Flags().StringVar(&opts.name, "name", "", "product name (required)")
	cmd.Flags().StringVar(&opts.cost, "cost", "0", "unit cost")
	cmd.Flags().StringVar(&opts.price, "price", "0", "unit price")
	cmd.Flags().Int64Var(&opts.warehouseStock, "stock", 0, "opening warehouse stock")
	cmd.Flags().Int64Var(&opts.restockLevel, "restock", 0, "restock level")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func newProductListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List products",
		Args:  cobra.NoArgs,
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, _ []string) error {
			products, err := a.st.Products(ctx)
			if err != nil {
				return WrapExitError(ExitCommandError, "failed to list products", err)
			}
			return out.Success(productList(products))
		}),
	}
}

func newProductPriceCommand(rootOpts *RootOptions) *cobra.Command {
	var cost, price string
	cmd := &cobra.Command{
		Use:   "price <product-id>",
		Short: "Change a product's cost and price",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			c, err := parseMoney("cost", cost)
			if err != nil {
				return err
			}
			p, err := parseMoney("price", price)
			if err != nil {
				return err
			}
			updated, err := a.rec.UpdatePricing(ctx, args[0], c, p)
			if err != nil {
				return recorderError("failed to update pricing", err)
			}
			return out.Success(productView(updated))
		}),
	}
	cmd.Flags().StringVar(&cost, "cost", "", "unit cost (required)")
	cmd.Flags().StringVar(&price, "price", "", "unit price (required)")
	_ = cmd.MarkFlagRequired("cost")
	_ = cmd.MarkFlagRequired("price")
	return cmd
}

func newProductDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "delete <product-id>",
		Short: "Delete a product",
		Args:  cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			if err := a.rec.DeleteProduct(ctx, args[0]); err != nil {
				return recorderError("failed to delete product", err)
			}
			return out.Success(fmt.Sprintf("deleted %s", args[0]))
		}),
	}
}

// importRow is one product in an import file.
type importRow struct {
	Name           string `yaml:"name"`
	Cost           string `yaml:"cost"`
	Price          string `yaml:"price"`
	WarehouseStock int64  `yaml:"warehouseStock"`
	RestockLevel   int64  `yaml:"restockLevel"`
}

func readImportFile(path string) ([]recorder.ProductInput, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read import file", err)
	}
	var rows []importRow
	if err := yaml.Unmarshal(data, &rows); err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to parse import file", err)
	}
	inputs := make([]recorder.ProductInput, 0, len(rows))
	for i, row := range rows {
		cost, err := parseMoney(fmt.Sprintf("products[%d].cost", i), row.Cost)
		if err != nil {
			return nil, err
		}
		price, err := parseMoney(fmt.Sprintf("products[%d].price", i), row.Price)
		if err != nil {
			return nil, err
		}
		inputs = append(inputs, recorder.ProductInput{
			Name:           row.Name,
			Cost:           cost,
			Price:          price,
			WarehouseStock: row.WarehouseStock,
			RestockLevel:   row.RestockLevel,
		})
	}
	return inputs, nil
}

func newProductImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Create or update products from a YAML list",
		Long: `Create or update products from a YAML list. Products are matched by
name; a match has its prices replaced and the stock added to the warehouse.

Example file:
  - name: Soap
    cost: "1.20"
    price: "2.50"
    warehouseStock: 40
    restockLevel: 5`,
		Args: cobra.ExactArgs(1),
		RunE: withApp(rootOpts, func(ctx context.Context, a *app, out *OutputFormatter, args []string) error {
			inputs, err := readImportFile(args[0])
			if err != nil {
				return err
			}
			products, err := a.rec.ImportProducts(ctx, inputs)
			if err != nil {
				return recorderError("failed to import products", err)
			}
			return out.Success(productList(products))
		}),
	}
}
