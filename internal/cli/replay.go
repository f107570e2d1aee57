package cli

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/relay/internal/apps"
	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/journal"
)

// ReplayOptions holds flags for the replay command.
type ReplayOptions struct {
	*RootOptions
	Database string
	Apps     []string // empty means every app
}

// ReplayResult holds the overall replay result.
type ReplayResult struct {
	Entries       int         `json:"entries"`
	Flows         int         `json:"flows"`
	LastSeq       int64       `json:"last_seq"`
	Deterministic bool        `json:"deterministic"`
	StateHash     string      `json:"state_hash,omitempty"`
	State         ir.IRObject `json:"state,omitempty"`
	Divergence    string      `json:"divergence,omitempty"`
}

// NewReplayCommand creates the replay command.
func NewReplayCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ReplayOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "replay",
		Short: "Rebuild state from the journal and verify every state hash",
		Long: `Replay the journal through the app reducers and verify determinism.

Every recorded action is reduced in seq order starting from the initial
tree; the tree after each action must hash to the recorded state hash.

Exit codes:
  0 - Every hash matched
  1 - Replay diverged from the journal
  2 - Command error (database not found, etc.)

Examples:
  relay replay --db ./relay.db
  relay replay --db ./relay.db --apps songs,auth
  relay replay --db ./relay.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReplay(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringSliceVar(&opts.Apps, "apps", nil, "apps whose slices make up the tree (default: all)")

	return cmd
}

func runReplay(opts *ReplayOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if err := requireFile(opts.Database); err != nil {
		return err
	}

	root, err := apps.Root(opts.Apps...)
	if err != nil {
		return WrapExitError(ExitCommandError, "invalid --apps", err)
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	replayed, err := j.Replay(ctx, root)
	var mismatch *journal.HashMismatchError
	switch {
	case errors.As(err, &mismatch):
		return outputReplay(cmd, opts, ReplayResult{Divergence: mismatch.Error()})
	case err != nil:
		return WrapExitError(ExitCommandError, "failed to replay journal", err)
	}

	hash, err := ir.StateHash(replayed.State)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to hash replayed state", err)
	}

	return outputReplay(cmd, opts, ReplayResult{
		Entries:       replayed.Entries,
		Flows:         replayed.Flows,
		LastSeq:       replayed.LastSeq,
		Deterministic: true,
		StateHash:     hash,
		State:         replayed.State,
	})
}

func outputReplay(cmd *cobra.Command, opts *ReplayOptions, result ReplayResult) error {
	if opts.Format == "json" {
		return outputReplayJSON(newFormatter(opts.RootOptions, cmd), result)
	}
	return outputReplayText(cmd, result, opts.Verbose)
}

// outputReplayJSON outputs the replay result as JSON.
func outputReplayJSON(formatter *OutputFormatter, result ReplayResult) error {
	var failure *CLIError
	if !result.Deterministic {
		failure = &CLIError{
			Code:    ErrCodeDeterminism,
			Message: result.Divergence,
		}
	}

	if err := formatter.Respond(result, failure); err != nil {
		return err
	}

	if !result.Deterministic {
		// Determinism failure = exit code 1
		return NewExitError(ExitFailure, "determinism verification failed")
	}
	return nil
}

// outputReplayText outputs the replay result as text.
func outputReplayText(cmd *cobra.Command, result ReplayResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if !result.Deterministic {
		fmt.Fprintf(w, "✗ %s\n", result.Divergence)
		return NewExitError(ExitFailure, "determinism verification failed")
	}

	fmt.Fprintf(w, "Replay Summary: %d entr(ies) across %d flow(s), last seq %d\n",
		result.Entries, result.Flows, result.LastSeq)
	fmt.Fprintf(w, "State hash: %s\n", result.StateHash)
	if verbose {
		state, err := ir.MarshalCanonical(result.State)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "State: %s\n", state)
	}

	fmt.Fprintln(w, "✓ All state hashes verified")
	return nil
}
