package reconciler

import (
	"strings"
	"testing"
)

func TestIsValidResourceType(t *testing.T) {
	tests := []struct {
		name         string
		resourceType string
		want         bool
	}{
		{"valid DatabaseUpdate", "DatabaseUpdate", true},
		{"invalid empty string", "", false},
		{"invalid type", "Deployment", false},
		{"case sensitive - lowercase", "databaseupdate", false},
		{"path traversal attempt", "../../../etc/passwd", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := IsValidResourceType(tt.resourceType); got != tt.want {
				t.Errorf("IsValidResourceType(%q) = %v, want %v", tt.resourceType, got, tt.want)
			}
		})
	}
}

func TestSanitizeErrorMessage(t *testing.T) {
	tests := []struct {
		name    string
		errMsg  string
		wantNot []string // must not appear in output
		want    string   // exact output when set
	}{
		{
			name:   "empty string",
			errMsg: "",
			want:   "",
		},
		{
			name:    "absolute file path",
			errMsg:  "failed to read file /home/user/secrets/config.yaml",
			wantNot: []string{"/home/user/secrets/"},
		},
		{
			name:    "multiple paths",
			errMsg:  "error: /var/lib/dbupdater/state.json not found, also check /etc/dbupdater/config",
			wantNot: []string{"/var/lib/dbupdater/", "/etc/dbupdater/"},
		},
		{
			name:    "bearer token",
			errMsg:  "auth failed with bearer eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9.eyJzdWIiOiIxMjM0NTY3ODkwIn0",
			wantNot: []string{"eyJhbGciOiJIUzI1NiIsInR5cCI6IkpXVCJ9"},
		},
		{
			name:    "password in error",
			errMsg:  "migration failed: password=supersecret123 host=postgres",
			wantNot: []string{"supersecret123"},
		},
		{
			name:    "apikey in error",
			errMsg:  "API call failed: apikey=sk_live_abcdef123456789",
			wantNot: []string{"sk_live_abcdef123456789"},
		},
		{
			name:   "job error unchanged",
			errMsg: "task orders-db-1-2-0-1a2b3c4d: migration task failed",
			want:   "task orders-db-1-2-0-1a2b3c4d: migration task failed",
		},
		{
			name:   "kubernetes style error",
			errMsg: "deployments.apps \"orders-api\" not found",
			want:   "deployments.apps \"orders-api\" not found",
		},
		{
			name:    "long base64 string",
			errMsg:  "failed with data: aVeryLongBase64EncodedSecretValueThatShouldBeRedactedBecauseItMightBeASensitiveToken==",
			wantNot: []string{"aVeryLongBase64EncodedSecretValueThatShouldBeRedactedBecauseItMightBeASensitiveToken"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := SanitizeErrorMessage(tt.errMsg)

			if tt.want != "" && got != tt.want {
				t.Errorf("SanitizeErrorMessage() = %q, want %q", got, tt.want)
			}
			for _, notWant := range tt.wantNot {
				if strings.Contains(got, notWant) {
					t.Errorf("SanitizeErrorMessage() = %q, should not contain %q", got, notWant)
				}
			}
		})
	}
}

func TestSanitizeErrorMessage_Truncates(t *testing.T) {
	got := SanitizeErrorMessage(strings.Repeat("job failed ", 100))

	if len(got) != maxErrorMessageLength {
		t.Errorf("len = %d, want %d", len(got), maxErrorMessageLength)
	}
	if !strings.HasSuffix(got, "...") {
		t.Errorf("expected truncation marker, got %q", got[len(got)-10:])
	}
}
