package sheets

import (
	"context"
	"time"

	"splitledger/internal/core"
)

// SnapshotWriter is the outbound port for balance exports. Implementations
// append one row per group member and return a reference to the written
// range.
type SnapshotWriter interface {
	AppendSnapshot(ctx context.Context, group core.Group, balances []core.MemberBalance, takenAt time.Time) (rowRef string, err error)
}
