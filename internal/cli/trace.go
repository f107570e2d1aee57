package cli

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/spf13/cobra"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/journal"
)

// TraceOptions holds flags for the trace command.
type TraceOptions struct {
	*RootOptions
	Database  string
	FlowToken string // optional - specific flow only
	Action    string // optional - filter to specific action type
}

// TraceEvent represents a single entry in the trace timeline.
type TraceEvent struct {
	Seq       int64  `json:"seq"`
	ID        string `json:"id"`
	FlowToken string `json:"flow_token"`
	Type      string `json:"type"`
	Payload   any    `json:"payload"`
	StateHash string `json:"state_hash"`
	Changed   bool   `json:"changed"`
}

// TraceResult holds the complete trace output.
type TraceResult struct {
	FlowToken string                `json:"flow_token,omitempty"`
	Timeline  []TraceEvent          `json:"timeline"`
	Flows     []journal.FlowSummary `json:"flows"`
	Stats     TraceStats            `json:"stats"`
}

// TraceStats holds summary statistics for the trace.
type TraceStats struct {
	TotalEntries int            `json:"total_entries"`
	Flows        int            `json:"flows"`
	Unchanged    int            `json:"unchanged"`
	ByType       map[string]int `json:"by_type"`
}

// NewTraceCommand creates the trace command.
func NewTraceCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &TraceOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "trace",
		Short: "List journaled commits",
		Long: `List the committed actions recorded in a journal.

The output includes:
- Timeline: every commit in seq order with its flow token and state hash
- Flows: one summary line per flow token
- Stats: counts per action type

Examples:
  relay trace --db ./relay.db
  relay trace --db ./relay.db --flow 0190b6b2-...
  relay trace --db ./relay.db --action FETCH_USER
  relay trace --db ./relay.db --format json`,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTrace(opts, cmd)
		},
	}

	cmd.Flags().StringVar(&opts.Database, "db", "", "path to SQLite journal (required)")
	_ = cmd.MarkFlagRequired("db")
	cmd.Flags().StringVar(&opts.FlowToken, "flow", "", "flow token to trace")
	cmd.Flags().StringVar(&opts.Action, "action", "", "filter to specific action type")

	return cmd
}

func runTrace(opts *TraceOptions, cmd *cobra.Command) error {
	ctx := cmd.Context()

	if err := requireFile(opts.Database); err != nil {
		return err
	}

	j, err := journal.Open(opts.Database)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to open journal", err)
	}
	defer j.Close()

	var entries []journal.Entry
	if opts.FlowToken != "" {
		entries, err = j.ReadFlow(ctx, opts.FlowToken)
	} else {
		entries, err = j.Entries(ctx)
	}
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to read journal", err)
	}

	flows, err := j.Flows(ctx)
	if err != nil {
		return WrapExitError(ExitCommandError, "failed to summarize flows", err)
	}
	if opts.FlowToken != "" {
		flows = filterFlows(flows, opts.FlowToken)
	}

	timeline := buildTimeline(entries, opts.Action)
	result := TraceResult{
		FlowToken: opts.FlowToken,
		Timeline:  timeline,
		Flows:     flows,
		Stats:     buildStats(timeline),
	}

	if opts.Format == "json" {
		return newFormatter(opts.RootOptions, cmd).Respond(result, nil)
	}

	if len(entries) == 0 && opts.FlowToken != "" {
		fmt.Fprintf(cmd.OutOrStdout(), "No entries found for flow: %s\n", opts.FlowToken)
		return nil
	}
	return outputTraceText(cmd, result, opts.Verbose)
}

// buildTimeline converts journal entries to timeline events, keeping only
// entries of actionFilter when it is set.
func buildTimeline(entries []journal.Entry, actionFilter string) []TraceEvent {
	timeline := make([]TraceEvent, 0, len(entries))
	for _, e := range entries {
		if actionFilter != "" && e.ActionType != actionFilter {
			continue
		}
		timeline = append(timeline, TraceEvent{
			Seq:       e.Seq,
			ID:        e.ID,
			FlowToken: e.FlowToken,
			Type:      e.ActionType,
			Payload:   ir.ToGo(e.Payload),
			StateHash: e.StateHash,
			Changed:   e.Changed,
		})
	}
	return timeline
}

func buildStats(timeline []TraceEvent) TraceStats {
	stats := TraceStats{
		TotalEntries: len(timeline),
		ByType:       make(map[string]int),
	}
	flows := make(map[string]struct{})
	for _, ev := range timeline {
		stats.ByType[ev.Type]++
		flows[ev.FlowToken] = struct{}{}
		if !ev.Changed {
			stats.Unchanged++
		}
	}
	stats.Flows = len(flows)
	return stats
}

func filterFlows(flows []journal.FlowSummary, token string) []journal.FlowSummary {
	out := []journal.FlowSummary{}
	for _, f := range flows {
		if f.FlowToken == token {
			out = append(out, f)
		}
	}
	return out
}

// outputTraceText outputs the trace result as text.
func outputTraceText(cmd *cobra.Command, result TraceResult, verbose bool) error {
	w := cmd.OutOrStdout()

	if result.FlowToken != "" {
		fmt.Fprintf(w, "Trace for Flow: %s\n", result.FlowToken)
		fmt.Fprintln(w)
	}

	fmt.Fprintln(w, "=== Timeline ===")
	if len(result.Timeline) == 0 {
		fmt.Fprintln(w, "  (no entries)")
	} else {
		for _, event := range result.Timeline {
			formatTimelineEvent(w, event, verbose)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Flows ===")
	if len(result.Flows) == 0 {
		fmt.Fprintln(w, "  (no flows)")
	} else {
		for _, f := range result.Flows {
			fmt.Fprintf(w, "  %s  seq %d..%d  (%d entries)\n", truncateID(f.FlowToken), f.FirstSeq, f.LastSeq, f.Count)
		}
	}
	fmt.Fprintln(w)

	fmt.Fprintln(w, "=== Stats ===")
	fmt.Fprintf(w, "  Total Entries: %d\n", result.Stats.TotalEntries)
	fmt.Fprintf(w, "  Flows:         %d\n", result.Stats.Flows)
	fmt.Fprintf(w, "  Unchanged:     %d\n", result.Stats.Unchanged)
	types := make([]string, 0, len(result.Stats.ByType))
	for t := range result.Stats.ByType {
		types = append(types, t)
	}
	sort.Strings(types)
	for _, t := range types {
		fmt.Fprintf(w, "  %-14s %d\n", t+":", result.Stats.ByType[t])
	}

	return nil
}

// formatTimelineEvent formats a single timeline event for text output.
func formatTimelineEvent(w io.Writer, event TraceEvent, verbose bool) {
	marker := ""
	if !event.Changed {
		marker = " (unchanged)"
	}
	fmt.Fprintf(w, "  [%d] %s %s%s\n", event.Seq, truncateID(event.FlowToken), event.Type, marker)
	if verbose {
		fmt.Fprintf(w, "       Payload: %s\n", formatValue(event.Payload))
		fmt.Fprintf(w, "       State: %s\n", truncateID(event.StateHash))
		fmt.Fprintf(w, "       ID: %s\n", truncateID(event.ID))
	}
}

// formatArgs formats a map for display.
// Uses sorted keys to ensure deterministic output.
func formatArgs(args map[string]any) string {
	if len(args) == 0 {
		return "{}"
	}

	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%s", k, formatValue(args[k])))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// formatValue formats a single value for display, handling nested structures deterministically.
func formatValue(v any) string {
	switch val := v.(type) {
	case nil:
		return "null"
	case map[string]any:
		return formatArgs(val)
	case []any:
		parts := make([]string, len(val))
		for i, elem := range val {
			parts[i] = formatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case string:
		return val
	default:
		return fmt.Sprintf("%v", v)
	}
}

// truncateID truncates a long ID for display.
func truncateID(id string) string {
	if len(id) <= 16 {
		return id
	}
	return id[:8] + "..." + id[len(id)-8:]
}
