package harness

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"strings"
)

// ScenarioNotFoundError is returned when a scenario path doesn't exist.
type ScenarioNotFoundError struct {
	Path string
}

// Error implements the error interface.
func (e *ScenarioNotFoundError) Error() string {
	return fmt.Sprintf("scenario path %q does not exist", e.Path)
}

// DiscoverScenarios expands paths into scenario files. A directory
// contributes every *.yaml and *.yml file below it; a file is taken as is.
// The result is sorted and free of duplicates.
func DiscoverScenarios(paths ...string) ([]string, error) {
	var files []string
	for _, path := range paths {
		info, err := os.Stat(path)
		if os.IsNotExist(err) {
			return nil, &ScenarioNotFoundError{Path: path}
		}
		if err != nil {
			return nil, err
		}

		if !info.IsDir() {
			files = append(files, path)
			continue
		}

		err = filepath.WalkDir(path, func(p string, d os.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			switch strings.ToLower(filepath.Ext(p)) {
			case ".yaml", ".yml":
				files = append(files, p)
			}
			return nil
		})
		if err != nil {
			return nil, fmt.Errorf("walk %s: %w", path, err)
		}
	}

	slices.Sort(files)
	return slices.Compact(files), nil
}

// SuiteResult summarizes a batch of scenario runs.
type SuiteResult struct {
	Total    int               `json:"total"`
	Passed   int               `json:"passed"`
	Failed   int               `json:"failed"`
	Results  []ScenarioOutcome `json:"results"`
	Failures []ScenarioFailure `json:"failures,omitempty"`
}

// ScenarioOutcome is the per-file entry of a suite run.
type ScenarioOutcome struct {
	Path      string `json:"path"`
	Name      string `json:"name,omitempty"`
	Pass      bool   `json:"pass"`
	Commits   int    `json:"commits"`
	StateHash string `json:"state_hash,omitempty"`
}

// ScenarioFailure represents a failed scenario.
type ScenarioFailure struct {
	Path   string   `json:"path"`
	Name   string   `json:"name,omitempty"`
	Errors []string `json:"errors"`
}

// OK reports whether every scenario passed.
func (r *SuiteResult) OK() bool {
	return r.Failed == 0
}

func (r *SuiteResult) fail(path, name string, errs ...string) {
	r.Failed++
	r.Results = append(r.Results, ScenarioOutcome{Path: path, Name: name})
	r.Failures = append(r.Failures, ScenarioFailure{Path: path, Name: name, Errors: errs})
}

// RunSuite loads and runs each scenario file in order. Load and setup
// errors count as failures; RunSuite itself only fails when ctx is done.
func RunSuite(ctx context.Context, files []string, opts ...Option) (*SuiteResult, error) {
	result := &SuiteResult{}

	for _, path := range files {
		if err := ctx.Err(); err != nil {
			return result, err
		}
		result.Total++

		scenario, err := LoadScenario(path)
		if err != nil {
			result.fail(path, "", fmt.Sprintf("failed to load scenario: %v", err))
			continue
		}

		runResult, err := Run(ctx, scenario, opts...)
		if err != nil {
			result.fail(path, scenario.Name, fmt.Sprintf("scenario execution failed: %v", err))
			continue
		}

		outcome := ScenarioOutcome{
			Path:      path,
			Name:      scenario.Name,
			Pass:      runResult.Pass,
			Commits:   len(runResult.Trace),
			StateHash: runResult.StateHash,
		}
		if !runResult.Pass {
			result.Failed++
			result.Results = append(result.Results, outcome)
			result.Failures = append(result.Failures, ScenarioFailure{
				Path:   path,
				Name:   scenario.Name,
				Errors: runResult.Errors,
			})
			continue
		}

		result.Passed++
		result.Results = append(result.Results, outcome)
	}

	return result, nil
}
