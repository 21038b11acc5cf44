// Package apps holds the MapReduce applications a worker can run, looked up
// by name at startup.
package apps

import (
	"errors"
	"fmt"
	"sort"

	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// ErrUnknownApp is returned by Lookup for names with no registered app.
var ErrUnknownApp = errors.New("unknown application")

type builder func() (mapreduce.App, error)

var registry = map[string]builder{
	"wc":       funcs(wcMap, wcReduce),
	"indexer":  funcs(indexerMap, indexerReduce),
	"crash":    funcs(crashMap, crashReduce),
	"nocrash":  funcs(nocrashMap, nocrashReduce),
	"jobcount": newJobCountApp,
	"mtiming":  funcs(mtimingMap, sortedJoinReduce),
	"rtiming":  funcs(rtimingMap, rtimingReduce),
	"grep":     newGrepFromEnv,
}

// funcs builds a stateless app from a map and a reduce function.
func funcs(mapf func(string, string) []types.KeyValue, reducef func(string, []string) string) builder {
	return func() (mapreduce.App, error) {
		return mapreduce.Funcs{MapFunc: mapf, ReduceFunc: reducef}, nil
	}
}

func newJobCountApp() (mapreduce.App, error) {
	return newJobCount(), nil
}

// Lookup resolves an application name to its map/reduce pair.
func Lookup(name string) (mapreduce.App, error) {
	build, ok := registry[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownApp, name)
	}
	return build()
}

// Names lists the registered applications in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
