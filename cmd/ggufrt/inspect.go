package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"

	"github.com/born-ml/ggufrt/internal/gguf"
	"github.com/born-ml/ggufrt/internal/loader"
)

func newInspectCmd() *cobra.Command {
	var showMetadata, showTensors bool
	cmd := &cobra.Command{
		Use:   "inspect FILE",
		Short: "Print the header, metadata and tensor directory of a checkpoint",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := loader.Open(args[0])
			if err != nil {
				return err
			}
			defer st.Close()

			out := cmd.OutOrStdout()
			f := st.File()
			printHeader(out, f)
			if showMetadata {
				fmt.Fprintln(out)
				printMetadata(out, f)
			}
			if showTensors {
				fmt.Fprintln(out)
				printTensors(out, f.Tensors)
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showMetadata, "metadata", true, "Print metadata entries")
	cmd.Flags().BoolVar(&showTensors, "tensors", true, "Print the tensor directory")
	return cmd
}

func newTable(out io.Writer) *tablewriter.Table {
	table := tablewriter.NewWriter(out)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAutoWrapText(false)
	table.SetAutoFormatHeaders(true)
	table.SetHeaderLine(false)
	table.SetBorder(false)
	table.SetNoWhiteSpace(true)
	table.SetTablePadding("    ")
	return table
}

func printHeader(out io.Writer, f *gguf.File) {
	table := newTable(out)
	table.SetTablePadding(" ")
	rows := [][]string{
		{"File:", f.FilePath},
		{"Size:", strconv.FormatInt(f.FileSize, 10)},
		{"Version:", strconv.FormatUint(uint64(f.Header.Version), 10)},
		{"Architecture:", f.Architecture()},
		{"Name:", f.Name()},
		{"Metadata:", strconv.FormatUint(f.Header.MetadataCount, 10)},
		{"Tensors:", strconv.FormatUint(f.Header.TensorCount, 10)},
		{"Alignment:", strconv.FormatUint(f.Alignment, 10)},
		{"Data offset:", strconv.FormatInt(f.DataOffset, 10)},
	}
	table.AppendBulk(rows)
	table.Render()
}

func printMetadata(out io.Writer, f *gguf.File) {
	table := newTable(out)
	table.SetHeader([]string{"KEY", "TYPE", "VALUE"})
	for pair := f.Metadata.Oldest(); pair != nil; pair = pair.Next() {
		table.Append([]string{pair.Key, typeName(pair.Value), pair.Value.String()})
	}
	table.Render()
}

func typeName(v gguf.Value) string {
	if elem, items, ok := v.Array(); ok {
		return fmt.Sprintf("[%d]%s", len(items), elem)
	}
	return v.Type().String()
}

func printTensors(out io.Writer, tensors []gguf.TensorInfo) {
	table := newTable(out)
	table.SetHeader([]string{"NAME", "KIND", "SHAPE", "ELEMENTS", "OFFSET", "BYTES"})
	for _, t := range tensors {
		size := "?"
		if n, ok := t.Size(); ok {
			size = strconv.FormatUint(n, 10)
		}
		table.Append([]string{
			t.Name,
			t.Kind.String(),
			shape(t.Dimensions),
			strconv.FormatUint(t.NumElements(), 10),
			strconv.FormatUint(t.Offset, 10),
			size,
		})
	}
	table.Render()
}

func shape(dims []uint64) string {
	parts := make([]string, len(dims))
	for i, d := range dims {
		parts[i] = strconv.FormatUint(d, 10)
	}
	return "[" + strings.Join(parts, " ") + "]"
}
