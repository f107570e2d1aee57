package journal

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Entry is one journaled commit.
type Entry struct {
	Seq          int64      `json:"seq"`
	ID           string     `json:"id"`
	FlowToken    string     `json:"flow_token"`
	ActionType   string     `json:"type"`
	Payload      ir.IRValue `json:"payload"`
	StateHash    string     `json:"state_hash"`
	Changed      bool       `json:"changed"`
	StoreVersion string     `json:"store_version"`
	IRVersion    string     `json:"ir_version"`
}

// Action rebuilds the store action the entry recorded.
func (e Entry) Action() store.Action {
	return store.NewAction(e.ActionType, e.Payload)
}

// FlowSummary aggregates the entries of one flow.
type FlowSummary struct {
	FlowToken string `json:"flow_token"`
	FirstSeq  int64  `json:"first_seq"`
	LastSeq   int64  `json:"last_seq"`
	Count     int    `json:"count"`
}

const entryColumns = `seq, id, flow_token, action_type, payload, state_hash, changed, store_version, ir_version`

// Entries returns every entry in seq order.
//
// Returns an empty slice (not nil) if the journal is empty.
func (j *Journal) Entries(ctx context.Context) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM commits
		ORDER BY seq ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query entries: %w", err)
	}
	return collectEntries(rows)
}

// ReadFlow returns the entries of one flow in seq order.
//
// Returns an empty slice (not nil) if no records exist for the flow token.
func (j *Journal) ReadFlow(ctx context.Context, flowToken string) ([]Entry, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT `+entryColumns+`
		FROM commits
		WHERE flow_token = ?
		ORDER BY seq ASC
	`, flowToken)
	if err != nil {
		return nil, fmt.Errorf("query flow %s: %w", flowToken, err)
	}
	return collectEntries(rows)
}

// ReadEntry retrieves a single entry by seq.
// Returns sql.ErrNoRows if not found.
func (j *Journal) ReadEntry(ctx context.Context, seq int64) (Entry, error) {
	row := j.db.QueryRowContext(ctx, `
		SELECT `+entryColumns+`
		FROM commits
		WHERE seq = ?
	`, seq)
	return scanEntry(row)
}

// Flows returns one summary per flow, ordered by first seq.
func (j *Journal) Flows(ctx context.Context) ([]FlowSummary, error) {
	rows, err := j.db.QueryContext(ctx, `
		SELECT flow_token, MIN(seq), MAX(seq), COUNT(*)
		FROM commits
		GROUP BY flow_token
		ORDER BY MIN(seq) ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("query flows: %w", err)
	}
	defer rows.Close()

	flows := []FlowSummary{}
	for rows.Next() {
		var f FlowSummary
		if err := rows.Scan(&f.FlowToken, &f.FirstSeq, &f.LastSeq, &f.Count); err != nil {
			return nil, fmt.Errorf("scan flow: %w", err)
		}
		flows = append(flows, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate flows: %w", err)
	}
	return flows, nil
}

// LastSeq returns the highest recorded seq, or 0 for an empty journal.
// Used with store.NewClockAt to continue numbering.
func (j *Journal) LastSeq(ctx context.Context) (int64, error) {
	var seq int64
	err := j.db.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(seq), 0) FROM commits
	`).Scan(&seq)
	if err != nil {
		return 0, fmt.Errorf("get last seq: %w", err)
	}
	return seq, nil
}

// scanner is satisfied by *sql.Row and *sql.Rows.
type scanner interface {
	Scan(dest ...any) error
}

func scanEntry(row scanner) (Entry, error) {
	var e Entry
	var payloadJSON string
	var changed int

	if err := row.Scan(
		&e.Seq, &e.ID, &e.FlowToken, &e.ActionType, &payloadJSON,
		&e.StateHash, &changed, &e.StoreVersion, &e.IRVersion,
	); err != nil {
		return Entry{}, err
	}

	payload, err := unmarshalPayload(payloadJSON)
	if err != nil {
		return Entry{}, fmt.Errorf("entry %d: %w", e.Seq, err)
	}
	e.Payload = payload
	e.Changed = changed == 1

	return e, nil
}

func collectEntries(rows *sql.Rows) ([]Entry, error) {
	defer rows.Close()

	entries := []Entry{}
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, fmt.Errorf("scan entry: %w", err)
		}
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate entries: %w", err)
	}
	return entries, nil
}
