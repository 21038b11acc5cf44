package apps

import (
	"strconv"
	"strings"
	"unicode"

	"DistMR/internal/types"
)

func isASCIILetter(r rune) bool {
	return r < unicode.MaxASCII && unicode.IsLetter(r)
}

func words(contents string) []string {
	return strings.FieldsFunc(contents, func(r rune) bool { return !isASCIILetter(r) })
}

func wcMap(_ string, contents string) []types.KeyValue {
	ws := words(contents)
	kvs := make([]types.KeyValue, 0, len(ws))
	for _, w := range ws {
		kvs = append(kvs, types.KeyValue{Key: w, Value: "1"})
	}
	return kvs
}

func wcReduce(_ string, values []string) string {
	return strconv.Itoa(len(values))
}
