package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderflow/internal/domain"
	"orderflow/internal/engine"
)

func orderCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "order", Short: "Manage execution orders"}
	cmd.AddCommand(orderCreateCmd())
	cmd.AddCommand(orderListCmd())
	cmd.AddCommand(orderShowCmd())
	cmd.AddCommand(orderAssignCmd())
	cmd.AddCommand(orderStatusCmd())
	cmd.AddCommand(orderDepsCmd())
	cmd.AddCommand(orderDependentsCmd())
	cmd.AddCommand(orderAddDepCmd())
	cmd.AddCommand(orderEventsCmd())
	return cmd
}

// parseItem reads "description[:quantity]".
func parseItem(spec string) (engine.CreateItemOptions, error) {
	desc, qty, found := strings.Cut(spec, ":")
	it := engine.CreateItemOptions{Description: strings.TrimSpace(desc)}
	if found {
		n, err := strconv.Atoi(strings.TrimSpace(qty))
		if err != nil {
			return it, fmt.Errorf("item %q: quantity must be a number", spec)
		}
		it.Quantity = n
	}
	return it, nil
}

func orderCreateCmd() *cobra.Command {
	var opts engine.CreateOrderOptions
	var orderType string
	var items []string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create an execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.OrderType = domain.OrderType(orderType)
			opts.ActorID = viper.GetString("actor-id")
			for _, spec := range items {
				it, err := parseItem(spec)
				if err != nil {
					return err
				}
				opts.Items = append(opts.Items, it)
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.CreateOrder(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	cmd.Flags().StringVar(&opts.OpportunityID, "opportunity", "", "opportunity id")
	cmd.Flags().StringVar(&opts.ContractID, "contract", "", "contract id")
	cmd.Flags().StringVar(&opts.ParentOrderID, "parent", "", "parent order id")
	cmd.Flags().StringVar(&orderType, "type", string(domain.OrderTypeMain), "main|one_time|long_term|company_registration|visa_kitas")
	cmd.Flags().BoolVar(&opts.RequiresCompanyRegistration, "requires-registration", false, "gate the order on the opportunity's company registration")
	cmd.Flags().StringVar(&opts.Title, "title", "", "title")
	cmd.Flags().StringVar(&opts.Notes, "notes", "", "notes")
	cmd.Flags().StringVar(&opts.PlannedStartDate, "planned-start", "", "planned start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&opts.PlannedEndDate, "planned-end", "", "planned end date (YYYY-MM-DD)")
	cmd.Flags().StringArrayVar(&items, "item", nil, "line item as description[:quantity], repeatable")
	_ = cmd.MarkFlagRequired("opportunity")
	return cmd
}

func orderListCmd() *cobra.Command {
	var opts engine.ListOrdersOptions
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List execution orders",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				page, err := e.ListOrders(ctx, opts)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(page)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"Order No", "ID", "Type", "Status", "Assignee", "Title"})
				for _, o := range page.Orders {
					tw.AppendRow(table.Row{o.OrderNo, o.ID, o.OrderType, o.Status, deref(o.AssignedTo), o.Title})
				}
				tw.Render()
				if len(page.StatusCounts) > 0 {
					statuses := make([]string, 0, len(page.StatusCounts))
					for status, n := range page.StatusCounts {
						statuses = append(statuses, fmt.Sprintf("%s=%d", status, n))
					}
					sort.Strings(statuses)
					fmt.Println("totals:", strings.Join(statuses, " "))
				}
				if page.NextCursor != "" {
					fmt.Printf("more: --cursor '%s'\n", page.NextCursor)
				}
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&opts.OpportunityID, "opportunity", "", "opportunity filter")
	cmd.Flags().StringVar(&opts.Status, "status", "", "status filter")
	cmd.Flags().IntVar(&opts.Limit, "limit", 50, "page size")
	cmd.Flags().StringVar(&opts.Cursor, "cursor", "", "continue after this cursor")
	return cmd
}

func orderShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show an execution order with its items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.GetOrder(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
}

func orderAssignCmd() *cobra.Command {
	var to, team string
	cmd := &cobra.Command{
		Use:   "assign <order-id>",
		Short: "Assign an order and start work",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o, err := e.AssignOrder(ctx, engine.AssignOptions{
					OrderID:      args[0],
					AssignedTo:   to,
					AssignedTeam: team,
					ActorID:      viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	cmd.Flags().StringVar(&to, "to", "", "assignee")
	cmd.Flags().StringVar(&team, "team", "", "team")
	_ = cmd.MarkFlagRequired("to")
	return cmd
}

func orderStatusCmd() *cobra.Command {
	var endDate string
	cmd := &cobra.Command{
		Use:   "status <order-id> <status>",
		Short: "Change order status; completing releases dependents",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.UpdateStatus(ctx, engine.StatusUpdateOptions{
					OrderID:       args[0],
					Status:        args[1],
					ActualEndDate: endDate,
					ActorID:       viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
	cmd.Flags().StringVar(&endDate, "end-date", "", "actual end date when completing (YYYY-MM-DD, default today)")
	return cmd
}

func orderDepsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "deps <order-id>",
		Short: "Show the prerequisites of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				summary, err := e.CheckDependencies(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(summary)
				}
				printEdges(summary.Edges)
				fmt.Printf("%d of %d satisfied\n", summary.Total-summary.PendingCount, summary.Total)
				return nil
			})
		},
	}
}

func orderDependentsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "dependents <order-id>",
		Short: "Show the orders gated on an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edges, err := e.Dependents(ctx, args[0])
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(edges)
				}
				printEdges(edges)
				return nil
			})
		},
	}
}

func orderAddDepCmd() *cobra.Command {
	var depType string
	cmd := &cobra.Command{
		Use:   "add-dep <order-id> <prerequisite-order-id>",
		Short: "Gate an order on another one",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				edge, err := e.AddDependency(ctx, engine.AddDependencyOptions{
					OrderID:             args[0],
					PrerequisiteOrderID: args[1],
					DependencyType:      domain.DependencyType(depType),
					ActorID:             viper.GetString("actor-id"),
				})
				if err != nil {
					return err
				}
				return printJSON(edge)
			})
		},
	}
	cmd.Flags().StringVar(&depType, "type", string(domain.DependencyMaterialApproval), "company_registration|visa_kitas|sbu_quota|material_approval")
	return cmd
}

func orderEventsCmd() *cobra.Command {
	var n int
	cmd := &cobra.Command{
		Use:   "events <order-id>",
		Short: "Show the audit trail of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				evts, err := e.OrderEvents(ctx, args[0], n)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(evts)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "When", "Type", "Actor", "Payload"})
				for _, evt := range evts {
					tw.AppendRow(table.Row{evt.ID, evt.TS, evt.Type, evt.ActorID, evt.Payload})
				}
				tw.Render()
				return nil
			})
		},
	}
	cmd.Flags().IntVar(&n, "n", 20, "number of events")
	return cmd
}

func printEdges(edges []domain.ExecutionOrderDependency) {
	tw := table.NewWriter()
	tw.SetOutputMirror(os.Stdout)
	tw.AppendHeader(table.Row{"Order", "Prerequisite", "Type", "Status", "Satisfied"})
	for _, d := range edges {
		tw.AppendRow(table.Row{d.ExecutionOrderID, d.PrerequisiteOrderID, d.DependencyType, d.Status, deref(d.SatisfiedAt)})
	}
	tw.Render()
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
