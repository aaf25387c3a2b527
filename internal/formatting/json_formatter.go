package formatting

import (
	"fmt"
	"io"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// JSONFormatter writes the rows as an indented JSON array.
type JSONFormatter struct{}

func (f *JSONFormatter) FormatDatabaseUpdates(w io.Writer, items []dbupdatev1.DatabaseUpdate) error {
	_, err := fmt.Fprintln(w, PrettyJSON(Rows(items)))
	return err
}
