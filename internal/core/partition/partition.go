package partition

import "github.com/cespare/xxhash/v2"

// DefaultShards is the shard count used when configuration leaves it unset.
const DefaultShards = 64

// For returns the shard index for a group ID in [0, shards).
// Stable and deterministic: the same group maps to the same shard at every
// granularity level, which is what lets cascades lock shard k level by level.
func For(groupID string, shards int) int {
	if shards <= 1 {
		return 0
	}
	return int(xxhash.Sum64String(groupID) % uint64(shards))
}
