package cli

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"github.com/roach88/relay/internal/config"
	"github.com/roach88/relay/internal/harness"
)

// ValidationError is one invalid input.
type ValidationError struct {
	Path    string `json:"path"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Scenarios int               `json:"scenarios"`
	Errors    []ValidationError `json:"errors,omitempty"`
}

// ValidateOptions holds flags for the validate command.
type ValidateOptions struct {
	*RootOptions
	ConfigPath string
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ValidateOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "validate <scenario-file-or-dir>...",
		Short: "Validate scenarios without running them",
		Long: `Parse and validate scenario files without running them.

Checks for unknown fields, unknown apps and thunks, malformed steps and
assertions. With --config, the configuration file is validated as well.`,
		Args:          cobra.MinimumNArgs(1),
		SilenceUsage:  true, // Don't print usage on errors
		SilenceErrors: true, // Don't print errors - we handle our own error output
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(opts, args, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "also validate this config file (.cue or .toml)")

	return cmd
}

func runValidate(opts *ValidateOptions, paths []string, cmd *cobra.Command) error {
	formatter := newFormatter(opts.RootOptions, cmd)

	files, err := harness.DiscoverScenarios(paths...)
	if err != nil {
		return outputValidateError(formatter, ErrCodeNotFound, err.Error(), nil)
	}

	formatter.Verbosef("Found %d scenario file(s)", len(files))

	result := ValidationResult{Scenarios: len(files)}
	for _, path := range files {
		formatter.Verbosef("Validating scenario: %s", path)
		if _, err := harness.LoadScenario(path); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Path:    path,
				Code:    ErrCodeScenario,
				Message: err.Error(),
			})
		}
	}

	if opts.ConfigPath != "" {
		formatter.Verbosef("Validating config: %s", opts.ConfigPath)
		if _, err := os.Stat(opts.ConfigPath); err != nil {
			return outputValidateError(formatter, ErrCodeNotFound, fmt.Sprintf("config not found: %s", opts.ConfigPath), nil)
		}
		if _, err := config.Load(opts.ConfigPath); err != nil {
			result.Errors = append(result.Errors, ValidationError{
				Path:    opts.ConfigPath,
				Code:    ErrCodeConfig,
				Message: err.Error(),
			})
		}
	}

	if len(files) == 0 && len(result.Errors) == 0 {
		return outputValidateError(formatter, ErrCodeNotFound, "no scenario files found", nil)
	}

	if len(result.Errors) > 0 {
		return outputValidationErrors(formatter, result)
	}

	result.Valid = true
	return outputValidateSuccess(formatter, result)
}

// outputValidateSuccess outputs successful validation results.
func outputValidateSuccess(formatter *OutputFormatter, result ValidationResult) error {
	return formatter.Report(result, nil, func(w io.Writer) {
		fmt.Fprintf(w, "✓ %d scenario(s) valid\n", result.Scenarios)
	})
}

// outputValidateError reports a missing input, which is a command error.
func outputValidateError(formatter *OutputFormatter, code, message string, details any) error {
	_ = formatter.Fail(code, message, details)
	return NewExitError(ExitCommandError, fmt.Sprintf("%s: %s", code, message))
}

// outputValidationErrors reports every invalid input. The JSON error
// carries the first one; data lists them all.
func outputValidationErrors(formatter *OutputFormatter, result ValidationResult) error {
	errs := result.Errors
	first := &CLIError{Code: errs[0].Code, Message: errs[0].Message}

	err := formatter.Report(result, first, func(w io.Writer) {
		fmt.Fprintln(w, "✗ Validation failed")
		fmt.Fprintln(w)
		for _, e := range errs {
			fmt.Fprintf(w, "%s\n  %s: %s\n\n", e.Path, e.Code, e.Message)
		}
	})
	if err != nil {
		return err
	}
	return NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(errs)))
}
