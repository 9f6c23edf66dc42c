package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check [schema]",
		Short: "Compile a schema and list its models",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var path string
			if len(args) == 1 {
				path = args[0]
			}
			e := envFrom(cmd)
			models, err := e.loadModels(path)
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, m := range models {
				unique := 0
				for _, idx := range m.Indices() {
					if idx.IsUnique() {
						unique++
					}
				}
				_, _ = fmt.Fprintf(out, "%s (%s): %d fields, primary [%s], %d indices (%d unique), %d relations\n",
					m.Name(), m.Table(), len(m.Fields()), strings.Join(m.Primary().Keys(), ", "),
					len(m.Indices()), unique, len(m.Relations()))
			}
			_, _ = fmt.Fprintf(out, "%d models ok\n", len(models))
			return nil
		},
	}
}
