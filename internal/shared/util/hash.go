package util

import (
	"crypto/sha256"
	"encoding/hex"
	"path"
	"strings"
)

// HashUserKey returns a filesystem-safe identifier for a user ID.
func HashUserKey(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// OwnsKey reports whether a storage key sits under the user's hashed namespace.
func OwnsKey(userID, key string) bool {
	if strings.TrimSpace(userID) == "" {
		return false
	}
	clean := path.Clean("/" + strings.ReplaceAll(key, "\\", "/"))
	return strings.HasPrefix(clean, "/"+HashUserKey(userID)+"/")
}
