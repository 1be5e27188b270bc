package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"novelstream/internal/sse"
)

func newDecodeCmd() *cobra.Command {
	var asText bool
	cmd := &cobra.Command{
		Use:   "decode [file]",
		Short: "Decode a captured stream body into one message per line",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var r io.Reader = cmd.InOrStdin()
			if len(args) == 1 && args[0] != "-" {
				f, err := os.Open(args[0])
				if err != nil {
					return err
				}
				defer f.Close()
				r = f
			}
			return decode(cmd.OutOrStdout(), r, asText)
		},
	}
	cmd.Flags().BoolVar(&asText, "text", false, "print only the assembled assistant text")
	return cmd
}

func decode(w io.Writer, r io.Reader, asText bool) error {
	res, err := sse.Collect(r)
	if asText {
		fmt.Fprintln(w, res.Text)
		return err
	}
	enc := json.NewEncoder(w)
	for _, m := range res.Messages {
		line := map[string]any{"kind": m.Kind.String(), "value": m.Value()}
		if encErr := enc.Encode(line); encErr != nil {
			return encErr
		}
	}
	return err
}
