package apps

import (
	"errors"
	"reflect"
	"sort"
	"testing"

	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

func reduceAll(app mapreduce.App, kvs []types.KeyValue) map[string]string {
	out := make(map[string]string)
	for k, vs := range mapreduce.Group(kvs) {
		out[k] = app.Reduce(k, vs)
	}
	return out
}

func TestWordCount(t *testing.T) {
	app, err := Lookup("wc")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	kvs := app.Map("_", "abc def8ghi  jkl!!mn0-op \nqrstuv=\r\twxyz abc abc def")
	var keys []string
	for _, kv := range kvs {
		keys = append(keys, kv.Key)
	}
	want := []string{"abc", "def", "ghi", "jkl", "mn", "op", "qrstuv", "wxyz", "abc", "abc", "def"}
	if !reflect.DeepEqual(keys, want) {
		t.Fatalf("Unexpected map output: %v", keys)
	}

	got := reduceAll(app, kvs)
	if got["abc"] != "3" || got["def"] != "2" || got["wxyz"] != "1" {
		t.Fatalf("Unexpected reduce output: %v", got)
	}
}

func TestIndexer(t *testing.T) {
	app, err := Lookup("indexer")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	kvs := append(app.Map("file1", "abc def8ghi abc abc"), app.Map("file2", "def abc")...)
	got := reduceAll(app, kvs)

	want := map[string]string{
		"abc": "2 file1,file2",
		"def": "2 file1,file2",
		"ghi": "1 file1",
	}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("Unexpected index: %v", got)
	}
}

func TestNoCrash(t *testing.T) {
	app, err := Lookup("nocrash")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	kvs := app.Map("in.txt", "hello")
	got := reduceAll(app, kvs)
	if got["a"] != "in.txt" || got["b"] != "6" || got["c"] != "5" || got["d"] != "xyzzy" {
		t.Fatalf("Unexpected nocrash output: %v", got)
	}
}

func TestGrepFromEnv(t *testing.T) {
	t.Setenv(GrepPatternEnv, "")
	if _, err := Lookup("grep"); err == nil {
		t.Fatalf("Expected error without pattern")
	}

	t.Setenv(GrepPatternEnv, "err(or)?")
	app, err := Lookup("grep")
	if err != nil {
		t.Fatalf("Lookup failed: %v", err)
	}

	kvs := append(app.Map("a.log", "ok\nerror here\nfine"), app.Map("b.log", "error here\nerr")...)
	got := reduceAll(app, kvs)
	if got["error here"] != "[a.log, b.log]" {
		t.Fatalf("Unexpected grep result: %v", got)
	}
	if got["err"] != "[b.log]" {
		t.Fatalf("Unexpected grep result: %v", got)
	}
}

func TestLookupUnknown(t *testing.T) {
	_, err := Lookup("nope")
	if !errors.Is(err, ErrUnknownApp) {
		t.Fatalf("Expected ErrUnknownApp, got %v", err)
	}

	names := Names()
	if !sort.StringsAreSorted(names) || len(names) != len(registry) {
		t.Fatalf("Unexpected names: %v", names)
	}
}

func TestEveryRegisteredAppBuilds(t *testing.T) {
	t.Setenv(GrepPatternEnv, "x")
	for _, name := range Names() {
		app, err := Lookup(name)
		if err != nil || app == nil {
			t.Fatalf("Lookup(%q) failed: %v", name, err)
		}
	}
	if len(Names()) != 8 {
		t.Fatalf("Expected 8 registered apps, got %v", Names())
	}
}
