package main

import (
	"fmt"
	"slices"

	"github.com/spf13/cobra"

	"github.com/born-ml/ggufrt/internal/envconfig"
)

func newEnvCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "env",
		Short: "List the environment variables and their current values",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			vars := envconfig.AsMap()
			keys := make([]string, 0, len(vars))
			for k := range vars {
				keys = append(keys, k)
			}
			slices.Sort(keys)

			table := newTable(cmd.OutOrStdout())
			table.SetHeader([]string{"NAME", "VALUE", "DESCRIPTION"})
			for _, k := range keys {
				v := vars[k]
				table.Append([]string{v.Name, fmt.Sprint(v.Value), v.Description})
			}
			table.Render()
			return nil
		},
	}
}
