package cache

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"strings"

	"github.com/amishk599/autoapply/internal/model"
)

// Normalize collapses runs of whitespace and trims the ends, so inputs that
// differ only in formatting share a fingerprint.
func Normalize(input string) string {
	return strings.Join(strings.Fields(input), " ")
}

// Fingerprint hashes (task, normalized input, level, model version). Each
// field is length-prefixed, so no two distinct tuples produce the same
// byte stream.
func Fingerprint(task model.TaskType, input string, level model.TailoringLevel, modelVersion string) string {
	h := sha256.New()
	for _, field := range []string{string(task), Normalize(input), string(level), modelVersion} {
		var n [8]byte
		binary.BigEndian.PutUint64(n[:], uint64(len(field)))
		h.Write(n[:])
		h.Write([]byte(field))
	}
	return hex.EncodeToString(h.Sum(nil))
}
