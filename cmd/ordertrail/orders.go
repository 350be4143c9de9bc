package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ordertrail/internal/cli"
	"github.com/Veraticus/ordertrail/internal/model"
	"github.com/Veraticus/ordertrail/internal/service"
)

func ordersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "orders",
		Short: "Inspect aggregated orders",
	}

	cmd.AddCommand(listOrdersCmd())
	cmd.AddCommand(showOrderCmd())

	return cmd
}

func listOrdersCmd() *cobra.Command {
	var status string

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List all orders",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			orders, err := store.ListOrders(ctx)
			if err != nil {
				return fmt.Errorf("failed to list orders: %w", err)
			}

			if status != "" {
				filtered := orders[:0]
				for _, order := range orders {
					if strings.EqualFold(string(order.Status), status) {
						filtered = append(filtered, order)
					}
				}
				orders = filtered
			}

			if len(orders) == 0 {
				fmt.Println(cli.InfoStyle.Render("No orders found."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("ID"),
				cli.TableHeaderStyle.Render("Reference"),
				cli.TableHeaderStyle.Render("Retailer"),
				cli.TableHeaderStyle.Render("Date"),
				cli.TableHeaderStyle.Render("Total"),
				cli.TableHeaderStyle.Render("Status"))

			for _, order := range orders {
				date := ""
				if !order.OrderDate.IsZero() {
					date = order.OrderDate.Format("2006-01-02")
				}
				reference := order.Reference
				if order.Inferred {
					reference = cli.WarningStyle.Render(reference + " (inferred)")
				}
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%.2f\t%s\n",
					order.ID, reference, order.RetailerName, date, order.Total, order.Status)
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&status, "status", "", "Only show orders with this status")

	return cmd
}

func showOrderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <reference>",
		Short: "Show one order with its lines, shipments, and timeline",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			order, err := store.GetOrderByNormalizedReference(ctx, model.NormalizeReference(args[0]))
			if err != nil {
				return fmt.Errorf("failed to find order %q: %w", args[0], err)
			}

			return printOrder(ctx, store, order)
		},
	}
}

func printOrder(ctx context.Context, store service.Storage, order *model.Order) error {
	fmt.Println(cli.FormatTitle(fmt.Sprintf("Order %s", order.Reference)))
	fmt.Printf("  Retailer: %s\n", order.RetailerName)
	fmt.Printf("  Status:   %s\n", order.Status)
	if !order.OrderDate.IsZero() {
		fmt.Printf("  Date:     %s\n", order.OrderDate.Format("2006-01-02"))
	}
	if order.Total != 0 {
		fmt.Printf("  Total:    %.2f (subtotal %.2f, shipping %.2f, tax %.2f, discount %.2f)\n",
			order.Total, order.Subtotal, order.Shipping, order.Tax, order.Discount)
	}
	if order.Inferred {
		fmt.Println("  " + cli.WarningStyle.Render("Inferred from a non-confirmation message; details may be incomplete."))
	}

	lines, err := store.GetOrderLines(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(lines) > 0 {
		fmt.Println()
		fmt.Println(cli.TableHeaderStyle.Render("Lines"))
		for _, line := range lines {
			fmt.Printf("  %2d. %s ×%d @ %.2f  %s\n",
				line.LineNumber, line.ProductName, line.Quantity, line.UnitPrice,
				cli.SubtleStyle.Render(string(line.Status)))
		}
	}

	shipments, err := store.GetShipmentsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(shipments) > 0 {
		fmt.Println()
		fmt.Println(cli.TableHeaderStyle.Render("Shipments"))
		for _, shipment := range shipments {
			tracking := shipment.TrackingNumber
			if tracking == "" {
				tracking = cli.SubtleStyle.Render("(no tracking)")
			}
			fmt.Printf("  %s %s via %s  %s\n",
				tracking, cli.SubtleStyle.Render(string(shipment.Status)), shipment.Carrier,
				formatDate(shipment.ShippedAt))
		}
	}

	returns, err := store.GetReturnsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(returns) > 0 {
		fmt.Println()
		fmt.Println(cli.TableHeaderStyle.Render("Returns"))
		for _, ret := range returns {
			rma := ret.RMA
			if rma == "" {
				rma = cli.SubtleStyle.Render("(no RMA)")
			}
			fmt.Printf("  %s %s  %s\n", rma, cli.SubtleStyle.Render(string(ret.Status)), formatDate(ret.InitiatedAt))
		}
	}

	refunds, err := store.GetRefundsByOrder(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(refunds) > 0 {
		fmt.Println()
		fmt.Println(cli.TableHeaderStyle.Render("Refunds"))
		for _, refund := range refunds {
			fmt.Printf("  %.2f  %s\n", refund.Amount, formatDate(refund.IssuedAt))
		}
	}

	events, err := store.GetOrderEvents(ctx, order.ID)
	if err != nil {
		return err
	}
	if len(events) > 0 {
		fmt.Println()
		fmt.Println(cli.TableHeaderStyle.Render("Timeline"))
		for _, event := range events {
			fmt.Printf("  %s  %-20s %s\n",
				event.CreatedAt.Format("2006-01-02 15:04"),
				event.Type,
				cli.SubtleStyle.Render(event.Description))
		}
	}

	return nil
}

func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("2006-01-02")
}
