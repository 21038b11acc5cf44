package mapreduce

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"DistMR/internal/types"
)

// ErrNoInputFiles is returned when input discovery finds nothing to map.
var ErrNoInputFiles = errors.New("no input files found")

// IntermediateName is the file holding bucket's share of a map task's output.
func IntermediateName(mapTask, bucket int) string {
	return fmt.Sprintf("mr-out-%d-%d", mapTask, bucket)
}

// OutputName is the final output file of a reduce bucket.
func OutputName(bucket int) string {
	return fmt.Sprintf("mr-out-%d", bucket)
}

// WriteIntermediate persists each bucket of a map task under dir.
// Files appear atomically; a crashed writer leaves only temp files behind.
func WriteIntermediate(dir string, mapTask int, buckets [][]types.KeyValue) error {
	for i, part := range buckets {
		if part == nil {
			part = []types.KeyValue{}
		}
		data, err := json.Marshal(part)
		if err != nil {
			return fmt.Errorf("failed to encode bucket %d: %w", i, err)
		}
		path := filepath.Join(dir, IntermediateName(mapTask, i))
		if err := writeAtomic(path, data); err != nil {
			return err
		}
	}
	return nil
}

// ReadIntermediate decodes one intermediate file.
func ReadIntermediate(path string) ([]types.KeyValue, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read intermediate file %s: %w", path, err)
	}

	var kvs []types.KeyValue
	if err := json.Unmarshal(data, &kvs); err != nil {
		return nil, fmt.Errorf("failed to decode intermediate file %s: %w", path, err)
	}
	return kvs, nil
}

// WriteOutput writes one "key value" line per key, keys in sorted order.
func WriteOutput(path string, result map[string]string) error {
	keys := make([]string, 0, len(result))
	for k := range result {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var buf bytes.Buffer
	for _, k := range keys {
		fmt.Fprintf(&buf, "%s %s\n", k, result[k])
	}
	return writeAtomic(path, buf.Bytes())
}

func writeAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), filepath.Base(path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temp file for %s: %w", path, err)
	}
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close %s: %w", path, err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to rename %s: %w", path, err)
	}
	return nil
}

// CollectFiles recursively collects all files from paths (files and
// directories). A file reached twice, e.g. through "dir" and "dir/x", is
// returned once.
func CollectFiles(paths []string) ([]string, error) {
	var files []string
	seen := make(map[string]bool)
	add := func(p string) {
		p = filepath.Clean(p)
		if !seen[p] {
			seen[p] = true
			files = append(files, p)
		}
	}

	for _, path := range paths {
		info, err := os.Stat(path)
		if err != nil {
			return nil, fmt.Errorf("failed to stat %s: %w", path, err)
		}

		if !info.IsDir() {
			add(path)
			continue
		}

		err = filepath.Walk(path, func(p string, f os.FileInfo, err error) error {
			if err != nil {
				return err
			}
			if f.IsDir() {
				return nil
			}
			add(p)
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("failed to walk directory %s: %w", path, err)
		}
	}

	if len(files) == 0 {
		return nil, ErrNoInputFiles
	}

	return files, nil
}
