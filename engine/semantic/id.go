package semantic

import "github.com/google/uuid"

// PointID derives the stable Qdrant point ID for a chunk ID. The same chunk ID
// always maps to the same UUIDv5.
func PointID(chunkID string) string {
	return uuid.NewSHA1(uuid.NameSpaceURL, []byte(chunkID)).String()
}
