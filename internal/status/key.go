package status

import (
	"crypto/sha256"
	"encoding/hex"
	"strings"
)

// Key returns the storage key shared by a scope's status record, index
// files and manifest within one environment:
//
//	<env>.<scope>-<hash8>
//
// Both parts are lowercased and every run of characters outside [a-z0-9-]
// becomes a single underscore. The hash is taken over the raw values, so
// "Products" and "products!" normalize alike but keep distinct keys.
func Key(scope, environment string) string {
	sum := sha256.Sum256([]byte(environment + "\x00" + scope))
	return sanitize(environment) + "." + sanitize(scope) + "-" + hex.EncodeToString(sum[:])[:8]
}

// LockKey returns the lock resource name for a scope.
func LockKey(scope, environment string) string {
	return Key(scope, environment) + ".lock"
}

func sanitize(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	inRun := false
	for _, r := range strings.ToLower(s) {
		if (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9') || r == '-' {
			b.WriteRune(r)
			inRun = false
			continue
		}
		if !inRun {
			b.WriteByte('_')
			inRun = true
		}
	}
	return b.String()
}
