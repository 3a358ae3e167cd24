package tool

import (
	"encoding/hex"
	"strings"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
	"github.com/zeebo/blake3"
)

// GenerateRandomUUID returns a v4 UUID (122 random bits), used for session ids.
func GenerateRandomUUID() string {
	return uuid.New().String()
}

// GenerateULID returns a sortable id for connections and outbound messages.
func GenerateULID() string {
	return ulid.Make().String()
}

// GenerateSecret returns a random hex secret built from two v4 UUIDs.
func GenerateSecret() string {
	return strings.ReplaceAll(GenerateRandomUUID()+GenerateRandomUUID(), "-", "")
}

// ContentHash returns the hex blake3 digest of content.
func ContentHash(content string) string {
	sum := blake3.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}
