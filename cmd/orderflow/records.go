package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderflow/internal/app"
	"orderflow/internal/domain"
	"orderflow/internal/engine"
	"orderflow/internal/migrate"
)

func printSchemaVersion(ctx context.Context, rt *app.Runtime) error {
	current, err := migrate.CurrentVersion(ctx, rt.DB)
	if err != nil {
		return err
	}
	latest, err := migrate.Latest()
	if err != nil {
		return err
	}
	fmt.Printf("schema version %d (latest %d)\n", current, latest)
	return nil
}

func opportunityCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "opportunity", Short: "Manage won opportunities that orders are created from"}
	cmd.AddCommand(opportunityCreateCmd())
	cmd.AddCommand(opportunityListCmd())
	return cmd
}

func opportunityCreateCmd() *cobra.Command {
	var id, name string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register an opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				o := domain.Opportunity{ID: id, Name: name, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
				if err := e.Repo.InsertOpportunity(ctx, o); err != nil {
					return err
				}
				return printJSON(o)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "opportunity id (generated when empty)")
	cmd.Flags().StringVar(&name, "name", "", "opportunity name")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}

func opportunityListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List opportunities",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListOpportunities(ctx)
				if err != nil {
					return err
				}
				if viper.GetBool("json") {
					return printJSON(items)
				}
				tw := table.NewWriter()
				tw.SetOutputMirror(os.Stdout)
				tw.AppendHeader(table.Row{"ID", "Name", "Created"})
				for _, o := range items {
					tw.AppendRow(table.Row{o.ID, o.Name, o.CreatedAt})
				}
				tw.Render()
				return nil
			})
		},
	}
}

func contractCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "contract", Short: "Manage contracts"}
	cmd.AddCommand(contractCreateCmd())
	return cmd
}

func contractCreateCmd() *cobra.Command {
	var id, opportunityID, title string
	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a contract for an opportunity",
		RunE: func(cmd *cobra.Command, args []string) error {
			if id == "" {
				id = uuid.NewString()
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				if _, err := e.Repo.GetOpportunity(ctx, opportunityID); err != nil {
					return err
				}
				c := domain.Contract{ID: id, OpportunityID: opportunityID, Title: title, CreatedAt: time.Now().UTC().Format(time.RFC3339)}
				if err := e.Repo.InsertContract(ctx, c); err != nil {
					return err
				}
				return printJSON(c)
			})
		},
	}
	cmd.Flags().StringVar(&id, "id", "", "contract id (generated when empty)")
	cmd.Flags().StringVar(&opportunityID, "opportunity", "", "opportunity id")
	cmd.Flags().StringVar(&title, "title", "", "contract title")
	_ = cmd.MarkFlagRequired("opportunity")
	return cmd
}
