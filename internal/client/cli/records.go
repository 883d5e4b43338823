package cli

import (
	"bytes"
	"encoding/json"

	"github.com/spf13/cobra"

	"github.com/iudanet/chartsync/internal/validation"
)

func (c *Cli) newRecordsCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "records <table> [id]",
		Short: "Print cached records as JSON",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			table, err := validation.ValidateTable(args[0])
			if err != nil {
				return err
			}
			return c.withAPI(cmd.Context(), func(s syncAPI) error {
				var out any
				if len(args) == 2 {
					record, err := s.Record(cmd.Context(), table, args[1])
					if err != nil {
						return err
					}
					out = record
				} else {
					records, err := s.Records(cmd.Context(), table)
					if err != nil {
						return err
					}
					if records == nil {
						records = []json.RawMessage{}
					}
					out = records
				}
				return c.printJSON(out)
			})
		},
	}
}

func (c *Cli) printJSON(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, data, "", "  "); err != nil {
		return err
	}
	buf.WriteByte('\n')
	_, err = c.io.Write(buf.Bytes())
	return err
}
