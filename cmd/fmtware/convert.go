package main

import (
	"encoding/json"
	"errors"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/bjaus/fmtware"
)

func newConvertCmd() *cobra.Command {
	var (
		opts   options
		to     string
		output string
	)
	cmd := &cobra.Command{
		Use:   "convert --to <format> [file]",
		Short: "encode a JSON file (or stdin) in another format",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var (
				data []byte
				err  error
			)
			if len(args) == 0 || args[0] == "-" {
				data, err = io.ReadAll(cmd.InOrStdin())
			} else {
				data, err = os.ReadFile(args[0])
			}
			if err != nil {
				return err
			}
			if !json.Valid(data) {
				return errors.New("input is not valid JSON")
			}

			fw, err := opts.formatter(opts.logger())
			if err != nil {
				return err
			}
			body, _, err := fw.Encode(cmd.Context(), to, json.RawMessage(data))
			if err != nil {
				return err
			}

			if output == "" || output == "-" {
				_, err = cmd.OutOrStdout().Write(body)
				return err
			}
			return os.WriteFile(output, body, 0o644)
		},
	}
	fs := cmd.Flags()
	opts.addFlags(fs)
	fs.StringVarP(&to, "to", "t", fmtware.JSON, "output format")
	fs.StringVarP(&output, "output", "o", "", "write to this file instead of stdout")
	return cmd
}
