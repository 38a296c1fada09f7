package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/born-ml/ggufrt/internal/errdefs"
	"github.com/born-ml/ggufrt/internal/loader"
)

func newLoadCmd() *cobra.Command {
	var names []string
	cmd := &cobra.Command{
		Use:   "load FILE",
		Short: "Decode every tensor, or only the named ones, and report the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loader.Open(args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			start := time.Now()
			if len(names) == 0 {
				if err := st.LoadAll(); err != nil {
					return err
				}
			}
			for _, name := range names {
				if _, err := st.LoadOne(name); err != nil {
					return withSuggestion(st, name, err)
				}
			}

			table := newTable(cmd.OutOrStdout())
			table.SetHeader([]string{"NAME", "KIND", "SHAPE", "ELEMENTS"})
			for _, info := range st.Directory() {
				t, ok := st.Get(info.Name)
				if !ok {
					continue
				}
				table.Append([]string{t.Name, t.Kind().String(), shape(t.Dims), strconv.Itoa(t.N)})
			}
			table.Render()
			fmt.Fprintf(cmd.OutOrStdout(), "\ndecoded %d of %d tensors in %s\n", st.Len(), st.NumTensors(), time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringSliceVar(&names, "tensor", nil, "Decode only these tensors (repeatable)")
	return cmd
}

func newEmbedCmd() *cobra.Command {
	var tableName string
	cmd := &cobra.Command{
		Use:   "embed FILE ID...",
		Short: "Print the embedding rows of token ids",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ids := make([]uint32, len(args)-1)
			for i, arg := range args[1:] {
				id, err := strconv.ParseUint(arg, 10, 32)
				if err != nil {
					return fmt.Errorf("token id %q: %w", arg, err)
				}
				ids[i] = uint32(id)
			}

			st, err := loader.Open(args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			var rows [][]float32
			if tableName != "" {
				rows, err = st.EmbedFrom(tableName, ids)
				err = withSuggestion(st, tableName, err)
			} else {
				rows, err = st.Embed(ids)
			}
			if err != nil {
				return err
			}

			for i, row := range rows {
				parts := make([]string, len(row))
				for j, v := range row {
					parts[j] = strconv.FormatFloat(float64(v), 'g', 6, 32)
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d: %s\n", ids[i], strings.Join(parts, " "))
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&tableName, "table", "", "Embedding tensor name (default: token_embd.weight or an alias)")
	return cmd
}

// withSuggestion adds the closest tensor name to a not-found error.
func withSuggestion(st *loader.Store, name string, err error) error {
	if !errors.Is(err, errdefs.ErrNotFound) {
		return err
	}
	if s := st.Suggest(name); s != "" {
		return fmt.Errorf("%w (did you mean %q?)", err, s)
	}
	return err
}
