package main

import (
	"fmt"
	"log/slog"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/born-ml/ggufrt/internal/backend/cpu"
	"github.com/born-ml/ggufrt/internal/cpuinfo"
	"github.com/born-ml/ggufrt/internal/envconfig"
	"github.com/born-ml/ggufrt/internal/logutil"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "v0.1.0-dev"

// NewCLI builds the root command.
func NewCLI() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "ggufrt",
		Short: "Inspect GGUF checkpoints and run llama-family models on the CPU",
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		PersistentPreRun: func(cmd *cobra.Command, _ []string) {
			cmd.SilenceUsage = true

			level := envconfig.LogLevel()
			if verbose, _ := cmd.Flags().GetCount("verbose"); verbose > 0 {
				level = min(level, slog.Level(-4*verbose))
			}
			slog.SetDefault(logutil.NewLogger(cmd.ErrOrStderr(), level))
		},
	}
	rootCmd.PersistentFlags().CountP("verbose", "v", "Increase log verbosity (-v debug, -vv trace)")

	cobra.EnableCommandSorting = false

	rootCmd.AddCommand(
		newInspectCmd(),
		newLoadCmd(),
		newEmbedCmd(),
		newRunCmd(),
		newEnvCmd(),
		newVersionCmd(),
	)
	return rootCmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			features := cpuinfo.Detect()
			backend := cpu.New(features)
			fmt.Fprintf(cmd.OutOrStdout(), "ggufrt %s (%s, %s/%s)\n", version, runtime.Version(), runtime.GOOS, runtime.GOARCH)
			fmt.Fprintf(cmd.OutOrStdout(), "cpu: %s, kernels: %s\n", features, backend.Variant())
			return nil
		},
	}
}
