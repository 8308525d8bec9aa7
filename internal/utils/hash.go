package utils

import "hash/fnv"

func HashStringToUint64(s string) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(s))
	return h.Sum64()
}

// ShardFor maps key onto one of n shards.
func ShardFor(key string, n int) int {
	if n <= 1 {
		return 0
	}
	return int(HashStringToUint64(key) % uint64(n))
}
