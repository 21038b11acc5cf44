package apps

import (
	"math/rand"
	"os"
	"sort"
	"strconv"
	"strings"
	"time"

	"DistMR/internal/types"
)

// maybeCrash kills the process a third of the time and stalls for up to
// ten seconds another third, to exercise lease reclaim.
func maybeCrash() {
	if rand.Intn(1000) < 330 {
		os.Exit(1)
	}
	if rand.Intn(1000) < 660 {
		time.Sleep(time.Duration(rand.Intn(10000)) * time.Millisecond)
	}
}

func crashMap(filename string, contents string) []types.KeyValue {
	maybeCrash()
	return nocrashMap(filename, contents)
}

func crashReduce(key string, values []string) string {
	maybeCrash()
	return nocrashReduce(key, values)
}

func nocrashMap(filename string, contents string) []types.KeyValue {
	return []types.KeyValue{
		{Key: "a", Value: filename},
		{Key: "b", Value: strconv.Itoa(len(filename))},
		{Key: "c", Value: strconv.Itoa(len(contents))},
		{Key: "d", Value: "xyzzy"},
	}
}

func nocrashReduce(key string, values []string) string {
	return sortedJoinReduce(key, values)
}

func sortedJoinReduce(_ string, values []string) string {
	vs := append([]string(nil), values...)
	sort.Strings(vs)
	return strings.Join(vs, " ")
}
