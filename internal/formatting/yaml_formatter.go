package formatting

import (
	"io"

	"gopkg.in/yaml.v3"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// YAMLFormatter writes the rows as a YAML sequence.
type YAMLFormatter struct{}

func (f *YAMLFormatter) FormatDatabaseUpdates(w io.Writer, items []dbupdatev1.DatabaseUpdate) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(Rows(items)); err != nil {
		return err
	}
	return enc.Close()
}
