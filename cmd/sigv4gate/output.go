package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/sagarc03/sigv4gate"
)

// keyFormatter renders keys subcommand results.
type keyFormatter interface {
	FormatCreated(w io.Writer, record sigv4gate.KeyRecord) error
	FormatList(w io.Writer, result sigv4gate.KeyListResult) error
}

func newKeyFormatter(jsonOutput bool) keyFormatter {
	if jsonOutput {
		return jsonKeyFormatter{}
	}
	return humanKeyFormatter{}
}

type humanKeyFormatter struct{}

func (humanKeyFormatter) FormatCreated(w io.Writer, record sigv4gate.KeyRecord) error {
	_, _ = fmt.Fprintf(w, "Access Key: %s\n", record.AccessKey)
	_, _ = fmt.Fprintf(w, "Secret Key: %s\n", record.SecretKey)
	_, _ = fmt.Fprintf(w, "Principal:  %s\n", record.Principal.String())
	_, _ = fmt.Fprintln(w, "\nStore the secret now, it cannot be shown again.")
	return nil
}

func (humanKeyFormatter) FormatList(w io.Writer, result sigv4gate.KeyListResult) error {
	if len(result.Items) == 0 {
		_, _ = fmt.Fprintln(w, "No keys found")
		return nil
	}

	maxKeyLen := len("ACCESS KEY")
	for i := range result.Items {
		maxKeyLen = max(maxKeyLen, len(result.Items[i].AccessKey))
	}

	_, _ = fmt.Fprintf(w, "%-*s  %-8s  %-19s  %s\n", maxKeyLen, "ACCESS KEY", "STATUS", "CREATED", "PRINCIPAL")
	_, _ = fmt.Fprintf(w, "%s  %s  %s  %s\n", strings.Repeat("-", maxKeyLen), strings.Repeat("-", 8), strings.Repeat("-", 19), strings.Repeat("-", 9))

	for i := range result.Items {
		item := &result.Items[i]
		status := "active"
		if !item.Active() {
			status = "disabled"
		}
		_, _ = fmt.Fprintf(w, "%-*s  %-8s  %s  %s\n",
			maxKeyLen,
			item.AccessKey,
			status,
			item.CreatedAt.Format("2006-01-02 15:04:05"),
			item.Principal.String(),
		)
	}

	_, _ = fmt.Fprintf(w, "\n%d key(s)\n", len(result.Items))

	if result.NextCursor != "" {
		_, _ = fmt.Fprintf(w, "Next page: use --page --cursor %q\n", result.NextCursor)
	}

	return nil
}

type jsonKeyFormatter struct{}

func (jsonKeyFormatter) FormatCreated(w io.Writer, record sigv4gate.KeyRecord) error {
	// SecretKey is hidden from KeyRecord's JSON form.
	return writeJSON(w, struct {
		sigv4gate.KeyRecord
		SecretKey string `json:"secret_key"`
	}{record, record.SecretKey})
}

func (jsonKeyFormatter) FormatList(w io.Writer, result sigv4gate.KeyListResult) error {
	return writeJSON(w, result)
}

// writeJSON writes a value as indented JSON.
func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
