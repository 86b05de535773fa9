package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/devilmonastery/tessera/internal/pkg/timeutil"
)

const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	}
	return fmt.Errorf("unknown output format %q (want table, json or yaml)", format)
}

// render prints v in the selected output format. table draws the
// human-readable form.
func (c *CliContext) render(v any, table func(w *tabwriter.Writer)) error {
	switch c.Output {
	case outputJSON:
		enc := json.NewEncoder(c.Out)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	case outputYAML:
		enc := yaml.NewEncoder(c.Out)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return err
		}
		return enc.Close()
	}

	w := tabwriter.NewWriter(c.Out, 0, 0, 3, ' ', 0)
	table(w)
	return w.Flush()
}

// renderDocument prints an opaque JSON document returned by the service.
// The table format shows it as indented JSON.
func (c *CliContext) renderDocument(doc json.RawMessage) error {
	if c.Output == outputYAML {
		var v any
		if err := json.Unmarshal(doc, &v); err != nil {
			return fmt.Errorf("decode response: %w", err)
		}
		return c.render(v, nil)
	}
	pretty, err := prettyJSON(doc)
	if err != nil {
		return err
	}
	_, err = c.Out.Write(pretty)
	return err
}

func prettyJSON(doc json.RawMessage) ([]byte, error) {
	if len(bytes.TrimSpace(doc)) == 0 {
		return []byte("{}\n"), nil
	}
	var buf bytes.Buffer
	if err := json.Indent(&buf, doc, "", "  "); err != nil {
		return nil, fmt.Errorf("format response: %w", err)
	}
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// writeDocument writes an opaque JSON document to path as indented JSON.
func writeDocument(path string, doc json.RawMessage) error {
	pretty, err := prettyJSON(doc)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, pretty, 0o644); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return "-"
	}
	return timeutil.FormatLocal(*t, os.Getenv("TZ"))
}

func formatBytes(n int64) string {
	const unit = 1024
	if n < unit {
		return fmt.Sprintf("%d B", n)
	}
	div, exp := int64(unit), 0
	for m := n / unit; m >= unit; m /= unit {
		div *= unit
		exp++
	}
	return fmt.Sprintf("%.1f %ciB", float64(n)/float64(div), "KMGTPE"[exp])
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func joinOrDash(items []string) string {
	if len(items) == 0 {
		return "-"
	}
	return strings.Join(items, ",")
}
