package mapreduce

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"DistMR/internal/logger"
	"DistMR/internal/types"
)

// Mapper defines the map function interface.
type Mapper interface {
	Map(filename, contents string) []types.KeyValue
}

// Reducer defines the reduce function interface. values arrive in no
// particular order.
type Reducer interface {
	Reduce(key string, values []string) string
}

// App is a complete MapReduce application.
type App interface {
	Mapper
	Reducer
}

// Funcs adapts a pair of plain functions to App.
type Funcs struct {
	MapFunc    func(filename, contents string) []types.KeyValue
	ReduceFunc func(key string, values []string) string
}

func (f Funcs) Map(filename, contents string) []types.KeyValue {
	return f.MapFunc(filename, contents)
}

func (f Funcs) Reduce(key string, values []string) string {
	return f.ReduceFunc(key, values)
}

// Group collects values by key, preserving the order values were seen.
func Group(kvs []types.KeyValue) map[string][]string {
	grouped := make(map[string][]string)
	for _, kv := range kvs {
		grouped[kv.Key] = append(grouped[kv.Key], kv.Value)
	}
	return grouped
}

// Engine runs a whole job inside one process with no scheduling. It is the
// reference the distributed mode is checked against.
type Engine struct {
	outputDir string
	logger    *logger.Logger
}

// NewEngine creates a sequential engine writing mr-out-0 into outputDir.
func NewEngine(outputDir string, lg *logger.Logger) *Engine {
	if lg == nil {
		lg = logger.NewComponent("INFO", "sequential")
	}
	return &Engine{
		outputDir: outputDir,
		logger:    lg,
	}
}

// Execute runs the MapReduce job on the given input files and returns the
// reduced result keyed by intermediate key.
func (e *Engine) Execute(files []string, app App) (map[string]string, error) {
	intermediates, err := e.mapPhase(files, app)
	if err != nil {
		return nil, err
	}

	grouped := Group(intermediates)

	result := make(map[string]string, len(grouped))
	for key, values := range grouped {
		result[key] = app.Reduce(key, values)
	}

	e.logger.Info("Sequential job finished: files=%d keys=%d", len(files), len(result))
	return result, nil
}

// Run executes the job and writes the result to mr-out-0.
func (e *Engine) Run(files []string, app App) (string, error) {
	result, err := e.Execute(files, app)
	if err != nil {
		return "", err
	}

	if err := os.MkdirAll(e.outputDir, 0755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	path := filepath.Join(e.outputDir, OutputName(0))
	if err := WriteOutput(path, result); err != nil {
		return "", err
	}
	return path, nil
}

// mapPhase maps every file in parallel. Any unreadable input aborts the job.
func (e *Engine) mapPhase(files []string, app App) ([]types.KeyValue, error) {
	var wg sync.WaitGroup
	var mu sync.Mutex
	var firstErr error
	intermediates := []types.KeyValue{}

	for _, file := range files {
		wg.Add(1)
		go func(f string) {
			defer wg.Done()

			contents, err := os.ReadFile(f)
			if err != nil {
				mu.Lock()
				if firstErr == nil {
					firstErr = fmt.Errorf("failed to read input %s: %w", f, err)
				}
				mu.Unlock()
				return
			}

			kvs := app.Map(f, string(contents))

			mu.Lock()
			intermediates = append(intermediates, kvs...)
			mu.Unlock()
		}(file)
	}

	wg.Wait()
	if firstErr != nil {
		return nil, firstErr
	}
	return intermediates, nil
}
