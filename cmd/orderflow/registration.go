package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"orderflow/internal/engine"
	"orderflow/internal/server"
)

func registrationCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "registration", Short: "Manage company registration records"}
	cmd.AddCommand(registrationCreateCmd())
	cmd.AddCommand(registrationShowCmd())
	cmd.AddCommand(registrationCompleteCmd())
	return cmd
}

func registrationCreateCmd() *cobra.Command {
	var opts engine.RegistrationOptions
	cmd := &cobra.Command{
		Use:   "create <order-id>",
		Short: "Attach a registration record to a company_registration order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.OrderID = args[0]
			opts.ActorID = viper.GetString("actor-id")
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				info, err := e.CreateCompanyRegistrationInfo(ctx, opts)
				if err != nil {
					return err
				}
				return printJSON(info)
			})
		},
	}
	cmd.Flags().StringVar(&opts.CompanyName, "company", "", "company name")
	cmd.Flags().StringVar(&opts.NIB, "nib", "", "business identification number")
	cmd.Flags().StringVar(&opts.NPWP, "npwp", "", "tax number")
	cmd.Flags().StringVar(&opts.AktaNumber, "akta", "", "deed of establishment number")
	cmd.Flags().StringVar(&opts.SKKemenkumham, "sk", "", "ministry decree number")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func registrationShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <order-id>",
		Short: "Show the registration record of an order",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				info, err := e.GetCompanyRegistrationInfo(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSON(info)
			})
		},
	}
}

func registrationCompleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "complete <order-id>",
		Short: "Complete a registration and release the orders waiting on it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := e.CompleteCompanyRegistration(ctx, args[0], viper.GetString("actor-id"))
				if err != nil {
					return err
				}
				return printJSON(res)
			})
		},
	}
}

func tokenCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "token", Short: "Manage API bearer tokens"}
	cmd.AddCommand(tokenIssueCmd())
	return cmd
}

func tokenIssueCmd() *cobra.Command {
	var subject, secret string
	var roles []string
	var ttl time.Duration
	cmd := &cobra.Command{
		Use:   "issue",
		Short: "Sign an HS256 token for the API",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("ORDERFLOW_JWT_SECRET")
			}
			if subject == "" {
				subject = viper.GetString("actor-id")
			}
			token, err := server.IssueToken(secret, subject, roles, ttl)
			if err != nil {
				return err
			}
			fmt.Println(token)
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "actor id carried as the token subject (defaults to --actor-id)")
	cmd.Flags().StringVar(&secret, "secret", "", "signing secret (defaults to ORDERFLOW_JWT_SECRET)")
	cmd.Flags().StringSliceVar(&roles, "role", nil, "role claim, repeatable")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime; 0 for no expiry")
	return cmd
}
