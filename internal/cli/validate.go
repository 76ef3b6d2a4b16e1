package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/Paintersrp/warden/internal/config"
)

func newValidateCmd(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate the warden manifest",
		RunE: func(cmd *cobra.Command, args []string) error {
			doc, err := config.Load(*ctx.manifest)
			if err != nil {
				return err
			}
			if err := doc.Validate(); err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Manifest %s is valid\n", *ctx.manifest)
			fmt.Fprintf(out, "  server workers: %d x %v\n", doc.Server.Count, doc.Server.Command)
			if len(doc.Auxiliary) > 0 {
				fmt.Fprintf(out, "  auxiliary workers: %d\n", len(doc.Auxiliary))
			}
			if doc.Watch != nil {
				fmt.Fprintf(out, "  watching: %v\n", doc.Watch.Paths)
			}
			return nil
		},
	}
}
