package formatting

import (
	"testing"

	"github.com/stretchr/testify/assert"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	dbupdatev1 "dbupdater/pkg/apis/dbupdate/v1"
)

func databaseUpdate(namespace, name, desired, current string, phase dbupdatev1.DatabaseUpdatePhase) dbupdatev1.DatabaseUpdate {
	return dbupdatev1.DatabaseUpdate{
		ObjectMeta: metav1.ObjectMeta{Namespace: namespace, Name: name},
		Spec:       dbupdatev1.DatabaseUpdateSpec{Version: desired},
		Status:     dbupdatev1.DatabaseUpdateStatus{CurrentVersion: current, Phase: phase},
	}
}

func TestPrettyJSON(t *testing.T) {
	tests := []struct {
		name     string
		input    interface{}
		expected string
	}{
		{
			name:     "simple object",
			input:    map[string]interface{}{"name": "test", "value": 42},
			expected: "{\n  \"name\": \"test\",\n  \"value\": 42\n}",
		},
		{
			name:     "array",
			input:    []string{"a", "b"},
			expected: "[\n  \"a\",\n  \"b\"\n]",
		},
		{
			name:     "nil",
			input:    nil,
			expected: "null",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := PrettyJSON(tt.input); got != tt.expected {
				t.Errorf("PrettyJSON() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestPrettyJSONWithInvalidData(t *testing.T) {
	result := PrettyJSON(make(chan int))
	if len(result) < 5 {
		t.Errorf("PrettyJSON() fallback should provide meaningful output, got %q", result)
	}
}

func TestRows_SortedByNamespaceAndName(t *testing.T) {
	rows := Rows([]dbupdatev1.DatabaseUpdate{
		databaseUpdate("shop", "users-db", "2.0.0", "", ""),
		databaseUpdate("billing", "ledger-db", "1.0.0", "1.0.0", dbupdatev1.PhaseConverged),
		databaseUpdate("shop", "orders-db", "1.2.0", "1.1.0", dbupdatev1.PhaseMigrating),
	})

	assert.Equal(t, []string{"ledger-db", "orders-db", "users-db"}, []string{rows[0].Name, rows[1].Name, rows[2].Name})
	assert.Equal(t, "1.2.0", rows[1].Desired)
	assert.Equal(t, "1.1.0", rows[1].Current)
	assert.Equal(t, "Migrating", rows[1].Phase)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcdefg...", truncate("abcdefghijklmnop", 10))
	assert.Equal(t, "ab", truncate("abcdef", 2))
}
