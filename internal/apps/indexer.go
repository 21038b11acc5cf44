package apps

import (
	"fmt"
	"sort"
	"strings"

	"DistMR/internal/types"
)

// indexerMap emits (word, document) once per distinct word.
func indexerMap(filename string, contents string) []types.KeyValue {
	seen := make(map[string]struct{})
	var kvs []types.KeyValue
	for _, w := range words(contents) {
		if _, ok := seen[w]; ok {
			continue
		}
		seen[w] = struct{}{}
		kvs = append(kvs, types.KeyValue{Key: w, Value: filename})
	}
	return kvs
}

func indexerReduce(_ string, values []string) string {
	docs := append([]string(nil), values...)
	sort.Strings(docs)
	return fmt.Sprintf("%d %s", len(docs), strings.Join(docs, ","))
}
