package mapreduce

import (
	"errors"
	"hash/fnv"

	"DistMR/internal/types"
)

// ErrNoReducers is returned when a partition is requested over zero buckets.
var ErrNoReducers = errors.New("number of reduce buckets must be positive")

// Bucket returns the reduce bucket for key. The hash is FNV-1a 64-bit, so
// every worker process routes a key to the same bucket.
func Bucket(key string, n int) int {
	h := fnv.New64a()
	h.Write([]byte(key))
	return int(h.Sum64() % uint64(n))
}

// Partition splits entries into n buckets by Bucket(key, n), keeping input
// order within each bucket.
func Partition(entries []types.KeyValue, n int) ([][]types.KeyValue, error) {
	if n <= 0 {
		return nil, ErrNoReducers
	}

	buckets := make([][]types.KeyValue, n)
	for i := range buckets {
		buckets[i] = make([]types.KeyValue, 0, len(entries)/n)
	}

	for _, kv := range entries {
		b := Bucket(kv.Key, n)
		buckets[b] = append(buckets[b], kv)
	}

	return buckets, nil
}
