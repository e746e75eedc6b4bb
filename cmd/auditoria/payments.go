package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/nexusai/auditoria/internal/client"
	"github.com/nexusai/auditoria/internal/config"
	"github.com/nexusai/auditoria/internal/database"
	"github.com/nexusai/auditoria/internal/flow"
	"github.com/nexusai/auditoria/internal/repository"
	"github.com/nexusai/auditoria/internal/signing"
)

func newSignCmd() *cobra.Command {
	var (
		params  []string
		secret  string
		explain bool
	)
	cmd := &cobra.Command{
		Use:   "sign --param key=value...",
		Short: "Compute the Flow signature for a parameter set",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				secret = os.Getenv("FLOW_SECRET_KEY")
			}
			if secret == "" {
				return errors.New("secret key required (--secret or FLOW_SECRET_KEY)")
			}
			set := make(map[string]string, len(params))
			for _, p := range params {
				k, v, ok := strings.Cut(p, "=")
				if !ok || k == "" {
					return fmt.Errorf("invalid --param %q, want key=value", p)
				}
				set[k] = v
			}
			out := cmd.OutOrStdout()
			if explain {
				fmt.Fprintf(out, "string to sign: %s\n", signing.Canonical(set))
			}
			fmt.Fprintln(out, signing.NewSigner([]byte(secret)).Sign(set))
			return nil
		},
	}
	cmd.Flags().StringArrayVarP(&params, "param", "p", nil, "Parameter as key=value (repeatable)")
	cmd.Flags().StringVar(&secret, "secret", "", "Flow secret key (defaults to FLOW_SECRET_KEY)")
	cmd.Flags().BoolVar(&explain, "explain", false, "Print the canonical string before the signature")
	return cmd
}

func newStatusCmd() *cobra.Command {
	var token string
	cmd := &cobra.Command{
		Use:   "status --token TOKEN",
		Short: "Query Flow directly for the status of a checkout",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}
			if err := cfg.FlowKeysReady(); err != nil {
				return err
			}
			raw, err := flow.New(cfg.Flow, &http.Client{Timeout: 30 * time.Second}).StatusRaw(cmd.Context(), token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%d %s\n", raw.StatusCode, strings.TrimSpace(string(raw.Body)))
			if !raw.OK() {
				return fmt.Errorf("flow answered %d", raw.StatusCode)
			}
			if cfg.DatabaseURL != "" {
				return printSession(cmd, cfg.DatabaseURL, token)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Checkout token returned by Flow")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

// printSession shows what the service recorded locally for token.
func printSession(cmd *cobra.Command, dsn, token string) error {
	pool, err := database.Connect(cmd.Context(), dsn)
	if err != nil {
		return err
	}
	defer pool.Close()
	session, err := repository.NewPaymentSessionRepository(pool).GetByToken(cmd.Context(), token)
	if errors.Is(err, repository.ErrSessionNotFound) {
		fmt.Fprintln(cmd.OutOrStdout(), "session: not recorded")
		return nil
	}
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "session: %s order=%s amount=%d %s updated=%s\n",
		session.State, session.OrderID, session.Amount, session.Currency, session.UpdatedAt.Format(time.RFC3339))
	if session.DeliveredAt != nil {
		fmt.Fprintf(out, "delivered: %s\n", session.DeliveredAt.Format(time.RFC3339))
	}
	return nil
}

func newResumeCmd() *cobra.Command {
	var (
		token     string
		serverURL string
	)
	cmd := &cobra.Command{
		Use:   "resume --token TOKEN",
		Short: "Check a returned checkout and collect the report once paid",
		RunE: func(cmd *cobra.Command, args []string) error {
			outcome, err := client.New(serverURL, nil).Resolve(cmd.Context(), token)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", outcome.State)
			if outcome.Message != "" {
				fmt.Fprintf(out, "message: %s\n", outcome.Message)
			}
			if outcome.ReportURL != "" {
				fmt.Fprintf(out, "report url: %s\n", outcome.ReportURL)
			}
			if outcome.Report != nil {
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				if err := enc.Encode(outcome.Report); err != nil {
					return err
				}
			}
			if outcome.State == client.StateError {
				return errors.New(outcome.Message)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&token, "token", "", "Token from the success redirect")
	cmd.Flags().StringVar(&serverURL, "server", "http://localhost:8080", "Base URL of the auditing server")
	return cmd
}
