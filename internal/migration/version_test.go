package migration

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNeedsMigration(t *testing.T) {
	tests := []struct {
		desired, current string
		want             bool
	}{
		{"1.2.0", "1.2.0", false},
		{"", "", false},
		{"1.2.0", "", true},
		{"1.2.0", "1.1.0", true},
		{"1.0.0", "2.0.0", true},
		{"v1.2.0", "1.2.0", true},
		{"1.2.0 ", "1.2.0", true},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, NeedsMigration(tt.desired, tt.current), "NeedsMigration(%q, %q)", tt.desired, tt.current)
	}
}

func TestDirection(t *testing.T) {
	tests := []struct {
		desired, current string
		want             VersionChange
	}{
		{"1.2.0", "1.2.0", ChangeNone},
		{"1.2.0", "", ChangeInitial},
		{"1.2.0", "1.1.0", ChangeUpgrade},
		{"v2", "v1", ChangeUpgrade},
		{"1.0.0", "2.0.0", ChangeDowngrade},
		{"latest", "1.0.0", ChangeLateral},
		{"v1.2.0", "1.2.0", ChangeLateral},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, Direction(tt.desired, tt.current), "Direction(%q, %q)", tt.desired, tt.current)
	}
}
