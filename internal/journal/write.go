package journal

import (
	"context"
	"fmt"

	"github.com/roach88/relay/internal/ir"
	"github.com/roach88/relay/internal/store"
)

// Record appends a commit. It has the store.CommitHook signature:
//
//	s, err := store.New(root, store.WithCommitHook(j.Record))
//
// Uses ON CONFLICT(seq) DO NOTHING for idempotency - re-recording the same
// commit is silently ignored.
func (j *Journal) Record(ctx context.Context, c store.Commit) error {
	payloadJSON, err := marshalPayload(c.Action.PayloadOrNull())
	if err != nil {
		return fmt.Errorf("record commit %d: %w", c.Seq, err)
	}

	stateHash, err := ir.StateHash(c.State)
	if err != nil {
		return fmt.Errorf("record commit %d: %w", c.Seq, err)
	}

	id, err := ir.ActionID(c.Flow, c.Action.Type, c.Action.PayloadOrNull(), c.Seq)
	if err != nil {
		return fmt.Errorf("record commit %d: %w", c.Seq, err)
	}

	_, err = j.db.ExecContext(ctx, `
		INSERT INTO commits
		(seq, id, flow_token, action_type, payload, state_hash, changed, store_version, ir_version)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(seq) DO NOTHING
	`,
		c.Seq,
		id,
		c.Flow,
		c.Action.Type,
		payloadJSON,
		stateHash,
		boolToInt(c.Changed),
		ir.StoreVersion,
		ir.IRVersion,
	)
	if err != nil {
		return fmt.Errorf("record commit %d: %w", c.Seq, err)
	}

	return nil
}

// Hook returns Record as a store.CommitHook.
func (j *Journal) Hook() store.CommitHook {
	return j.Record
}
