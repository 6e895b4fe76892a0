// Package hashid derives the stable content-addressed identities used to
// route control-bus messages and to detect template/configuration drift.
package hashid

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// ContentHash returns the hex-encoded SHA-256 digest of data, used both as
// a template's templateHash and as a persisted configuration's
// configurationHash.
func ContentHash(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// StationHashID derives the stable hashId for a station from its template
// path, its 1-based index within that template, and the template's content
// hash. Two stations spawned from the same template path and index are the
// same logical station only while the template content hash is unchanged.
func StationHashID(templatePath string, index int, templateHash string) string {
	seed := fmt.Sprintf("%s#%d#%s", templatePath, index, templateHash)
	return ContentHash([]byte(seed))
}
