package main

import (
	"fmt"
	"log/slog"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/Veraticus/ordertrail/internal/cli"
	"github.com/Veraticus/ordertrail/internal/match"
	"github.com/Veraticus/ordertrail/internal/model"
)

func retailersCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "retailers",
		Short: "Manage known retailers and their sender domains",
		Long: `Retailers map sender email domains to merchant names. Matching labels
orders for display and gives the extractor a merchant hint; it never gates
processing.`,
	}

	cmd.AddCommand(listRetailersCmd())
	cmd.AddCommand(addRetailerCmd())
	cmd.AddCommand(refreshRetailersCmd())

	return cmd
}

func listRetailersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List known retailers",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			retailers, err := store.GetRetailers(ctx)
			if err != nil {
				return fmt.Errorf("failed to list retailers: %w", err)
			}

			if len(retailers) == 0 {
				fmt.Println(cli.InfoStyle.Render("No retailers found. Use 'ordertrail retailers add' to create one."))
				return nil
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			defer func() { _ = w.Flush() }()

			fmt.Fprintf(w, "%s\t%s\t%s\n",
				cli.TableHeaderStyle.Render("ID"),
				cli.TableHeaderStyle.Render("Name"),
				cli.TableHeaderStyle.Render("Domains"))

			for _, retailer := range retailers {
				fmt.Fprintf(w, "%d\t%s\t%s\n",
					retailer.ID, retailer.Name, strings.Join(retailer.Domains, ", "))
			}

			return nil
		},
	}
}

func addRetailerCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "add <name> <domain> [domain...]",
		Short: "Add a retailer with its sender domains",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			retailer := &model.Retailer{
				Name:    args[0],
				Domains: args[1:],
			}
			if err := store.CreateRetailer(ctx, retailer); err != nil {
				return fmt.Errorf("failed to create retailer: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Created retailer %q (ID: %d)", retailer.Name, retailer.ID)))
			return nil
		},
	}
}

func refreshRetailersCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "refresh",
		Short: "Reload the matcher's retailer cache from storage",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()

			store, err := initStorage(ctx)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()

			domains, err := match.New(store, slog.Default()).Reload(ctx)
			if err != nil {
				return fmt.Errorf("failed to refresh retailer cache: %w", err)
			}

			fmt.Println(cli.FormatSuccess(fmt.Sprintf("Retailer cache reloaded (%d domains)", domains)))
			return nil
		},
	}
}
