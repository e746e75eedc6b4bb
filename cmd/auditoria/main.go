package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "auditoria: %v\n", err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "auditoria",
		Short: "Auditoria Legal operations CLI",
		Long: `auditoria helps operate the payment and delivery backend: it signs Flow parameters,
queries payment status and resumes a paid checkout from its return token.`,
		SilenceUsage: true,
	}
	cmd.AddCommand(
		newSignCmd(),
		newStatusCmd(),
		newResumeCmd(),
	)
	return cmd
}
