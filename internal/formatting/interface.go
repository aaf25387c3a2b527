// Package formatting renders DatabaseUpdate listings for the CLI.
//
// The same rows can be printed as a go-pretty table, JSON or YAML.
package formatting

import (
	"fmt"
	"io"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// OutputFormat represents the desired output format
type OutputFormat string

const (
	FormatTable OutputFormat = "table" // Rich table output
	FormatJSON  OutputFormat = "json"  // JSON output
	FormatYAML  OutputFormat = "yaml"  // YAML output
)

// Formats lists the accepted values of ParseFormat.
var Formats = []OutputFormat{FormatTable, FormatJSON, FormatYAML}

// Options configures the formatter behavior
type Options struct {
	Format OutputFormat
	Color  bool // Enable colored output
}

// Formatter writes DatabaseUpdates to w.
type Formatter interface {
	FormatDatabaseUpdates(w io.Writer, items []dbupdatev1.DatabaseUpdate) error
}

// ParseFormat validates s as an output format.
func ParseFormat(s string) (OutputFormat, error) {
	for _, f := range Formats {
		if string(f) == s {
			return f, nil
		}
	}
	return "", fmt.Errorf("unknown output format %q, expected one of %v", s, Formats)
}

// NewFormatter creates the formatter for options.Format. Unknown formats
// fall back to the table.
func NewFormatter(options Options) Formatter {
	switch options.Format {
	case FormatJSON:
		return &JSONFormatter{}
	case FormatYAML:
		return &YAMLFormatter{}
	default:
		return &TableFormatter{options: options}
	}
}
