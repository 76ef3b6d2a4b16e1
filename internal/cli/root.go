package cli

import (
	stdcontext "context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/warden/internal/manager"
)

// exitKilled is the distinct status the hosting process reports when
// the hard-kill escalation ran.
const exitKilled = 2

// NewRootCmd builds the warden command tree.
func NewRootCmd() *cobra.Command {
	var manifest string

	root := &cobra.Command{
		Use:   "warden",
		Short: "Multi-process worker supervisor",
	}
	root.PersistentFlags().
		StringVarP(&manifest, "file", "f", "warden.yaml", "Path to the warden manifest")

	ctx := &commandContext{manifest: &manifest}
	root.AddCommand(newServeCmd(ctx))
	root.AddCommand(newValidateCmd(ctx))
	root.AddCommand(newStatusCmd(ctx))

	root.SilenceUsage = true
	root.SilenceErrors = true
	return root
}

// Execute runs the CLI entrypoint.
func Execute() {
	ctx, stop := signal.NotifyContext(stdcontext.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := NewRootCmd()
	root.SetContext(ctx)

	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		if errors.Is(err, manager.ErrServerKilled) {
			os.Exit(exitKilled)
		}
		os.Exit(1)
	}
}

type commandContext struct {
	manifest *string
}
