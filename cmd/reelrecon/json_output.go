package main

import (
	"io"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"
)

// addJSONFlag registers the --json switch shared by listing commands.
func addJSONFlag(cmd *cobra.Command, target *bool) {
	cmd.Flags().BoolVar(target, "json", false, "Output as JSON")
}

// writeJSON encodes v as indented JSON to the command's stdout. Captions and
// reel URLs are left unescaped so "&" and "<" survive piping into jq.
func writeJSON(cmd *cobra.Command, v any) error {
	enc := newJSONEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// jsonLines returns a writer that emits one compact document per call, for
// streams such as the event log.
func jsonLines(out io.Writer) func(v any) error {
	enc := newJSONEncoder(out)
	return enc.Encode
}

func newJSONEncoder(out io.Writer) *json.Encoder {
	enc := json.NewEncoder(out)
	enc.SetEscapeHTML(false)
	return enc
}
