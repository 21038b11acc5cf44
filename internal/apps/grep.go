package apps

import (
	"bufio"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"DistMR/internal/mapreduce"
	"DistMR/internal/types"
)

// GrepPatternEnv names the environment variable holding the grep pattern.
const GrepPatternEnv = "DISTMR_GREP_PATTERN"

// DistributedGrep finds lines matching a pattern across all input files.
type DistributedGrep struct {
	pattern string
	regex   *regexp.Regexp
}

// NewDistributedGrep creates a new DistributedGrep instance.
func NewDistributedGrep(pattern string) (*DistributedGrep, error) {
	regex, err := regexp.Compile(pattern)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}

	return &DistributedGrep{
		pattern: pattern,
		regex:   regex,
	}, nil
}

func newGrepFromEnv() (mapreduce.App, error) {
	pattern := os.Getenv(GrepPatternEnv)
	if pattern == "" {
		return nil, fmt.Errorf("grep needs a pattern in %s", GrepPatternEnv)
	}
	return NewDistributedGrep(pattern)
}

// Map emits (line, filename) for every matching line.
func (dg *DistributedGrep) Map(filename string, contents string) []types.KeyValue {
	var results []types.KeyValue

	scanner := bufio.NewScanner(strings.NewReader(contents))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Text()
		if dg.regex.MatchString(line) {
			results = append(results, types.KeyValue{
				Key:   line,
				Value: filename,
			})
		}
	}

	return results
}

// Reduce lists the distinct files a matched line was found in.
func (dg *DistributedGrep) Reduce(_ string, values []string) string {
	seen := make(map[string]struct{}, len(values))
	files := make([]string, 0, len(values))
	for _, v := range values {
		if _, ok := seen[v]; ok {
			continue
		}
		seen[v] = struct{}{}
		files = append(files, v)
	}
	sort.Strings(files)

	return fmt.Sprintf("[%s]", strings.Join(files, ", "))
}
