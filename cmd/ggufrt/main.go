// Command ggufrt inspects GGUF checkpoints and runs llama-family models on the CPU.
package main

import (
	"context"

	"github.com/spf13/cobra"
)

func main() {
	cobra.CheckErr(NewCLI().ExecuteContext(context.Background()))
}
