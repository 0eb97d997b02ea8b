package syncer

import (
	"context"
	"fmt"
	"time"
)

// Resolution is the answer to a blocked export: which side of the conflict
// wins, or neither.
type Resolution string

const (
	// KeepLocal proceeds with the export, overwriting the remote page.
	KeepLocal Resolution = "keep-local"
	// KeepRemote pulls the remote content over the local document and skips
	// the export.
	KeepRemote Resolution = "keep-remote"
	// Cancel aborts the export with no changes on either side.
	Cancel Resolution = "cancel"
)

// Conflict describes an export blocked by a remote edit newer than the local
// watermark. Timestamps are best-effort orderings, not linearizable clocks.
type Conflict struct {
	Path           string
	PageID         string
	LocalWatermark time.Time
	RemoteEdited   time.Time
}

// Resolver answers the conflict decision point. Implementations may be fixed
// policies or interactive prompts; the orchestrator suspends until an answer
// arrives.
type Resolver interface {
	Resolve(ctx context.Context, c Conflict) (Resolution, error)
}

// Policy is a fixed-answer resolver, so headless runs never hang on a
// conflict.
type Policy Resolution

// Resolve returns the configured answer unconditionally.
func (p Policy) Resolve(context.Context, Conflict) (Resolution, error) {
	return Resolution(p), nil
}

// NewResolver maps a configured strategy name to a policy resolver.
func NewResolver(strategy string) (Resolver, error) {
	switch Resolution(strategy) {
	case KeepLocal, KeepRemote, Cancel:
		return Policy(strategy), nil
	}
	return nil, fmt.Errorf("syncer: unknown conflict strategy %q", strategy)
}
