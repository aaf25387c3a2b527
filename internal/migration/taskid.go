package migration

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

const (
	maxTaskIDLength = 63
	taskIDHashLen   = 8
)

// TaskID derives the task identifier for an object and target version.
//
// The id is a DNS-1123 label of the form <name>-<version>-<hash>, where hash
// covers namespace, name and version so that ids never collide across
// versions even after the readable prefix is truncated.
func TaskID(obj ObjectRef, version string) string {
	sum := sha256.Sum256([]byte(obj.Namespace + "/" + obj.Name + "@" + version))
	suffix := hex.EncodeToString(sum[:])[:taskIDHashLen]

	base := sanitizeLabel(obj.Name)
	if v := sanitizeLabel(version); v != "" {
		if base != "" {
			base += "-"
		}
		base += v
	}

	limit := maxTaskIDLength - taskIDHashLen - 1
	if len(base) > limit {
		base = strings.TrimRight(base[:limit], "-")
	}
	if base == "" {
		base = "migration"
	}
	return base + "-" + suffix
}

// sanitizeLabel lowercases s and replaces runs of characters outside
// [a-z0-9] with a single '-'.
func sanitizeLabel(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	dash := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimRight(b.String(), "-")
}
