package formatting

import (
	"encoding/json"
	"fmt"
	"sort"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

// Row is the printed summary of one DatabaseUpdate.
type Row struct {
	Namespace string `json:"namespace" yaml:"namespace"`
	Name      string `json:"name" yaml:"name"`
	Desired   string `json:"desired" yaml:"desired"`
	Current   string `json:"current,omitempty" yaml:"current,omitempty"`
	Phase     string `json:"phase,omitempty" yaml:"phase,omitempty"`
	Task      string `json:"task,omitempty" yaml:"task,omitempty"`
	LastError string `json:"lastError,omitempty" yaml:"lastError,omitempty"`
}

// Rows summarizes items ordered by namespace and name.
func Rows(items []dbupdatev1.DatabaseUpdate) []Row {
	rows := make([]Row, 0, len(items))
	for _, item := range items {
		rows = append(rows, Row{
			Namespace: item.Namespace,
			Name:      item.Name,
			Desired:   item.Spec.Version,
			Current:   item.Status.CurrentVersion,
			Phase:     string(item.Status.Phase),
			Task:      item.Status.TaskName,
			LastError: item.Status.LastError,
		})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].Namespace != rows[j].Namespace {
			return rows[i].Namespace < rows[j].Namespace
		}
		return rows[i].Name < rows[j].Name
	})
	return rows
}

// PrettyJSON formats any value as indented JSON, falling back to %v when
// it cannot be marshaled.
func PrettyJSON(v interface{}) string {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(b)
}

// truncate shortens s to max runes, marking the cut with "...".
func truncate(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
