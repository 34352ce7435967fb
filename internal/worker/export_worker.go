// Package worker exports balance snapshots in response to expense events,
// with a periodic full sweep as a safety net for lost messages.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"splitledger/internal/amqp"
	"splitledger/internal/core"
	applog "splitledger/internal/log"
	"splitledger/internal/services"
	"splitledger/internal/sheets"
	"splitledger/internal/storage"
)

// ExportWorker writes group balance snapshots to a snapshot sink whenever an
// expense changes.
type ExportWorker struct {
	store    storage.Store
	balances *services.BalanceService
	writer   sheets.SnapshotWriter
	logger   *applog.StructuredLogger
}

func NewExportWorker(store storage.Store, balances *services.BalanceService, writer sheets.SnapshotWriter) *ExportWorker {
	return &ExportWorker{
		store:    store,
		balances: balances,
		writer:   writer,
		logger: applog.NewStructuredLogger(applog.New(applog.Config{
			Component: applog.ComponentWorker,
			Handler:   slog.Default().Handler(),
		})),
	}
}

// HandleExpenseEvent exports the affected group's balances. A group that no
// longer exists is skipped, the deletion already removed its ledger rows.
func (w *ExportWorker) HandleExpenseEvent(ctx context.Context, msg *amqp.ExpenseEventMessage) error {
	slog.InfoContext(ctx, "Processing expense event",
		"event", msg.Event,
		"expense_id", msg.ExpenseID,
		"group_id", msg.GroupID)

	w.balances.Invalidate(msg.GroupID)

	ref, err := w.exportGroup(ctx, msg.GroupID)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			slog.WarnContext(ctx, "Group gone, skipping export", "group_id", msg.GroupID)
			return nil
		}
		return fmt.Errorf("export group %d: %w", msg.GroupID, err)
	}

	w.logger.LogSnapshotExported(ctx, msg.GroupID, ref)
	return nil
}

// ExportAllGroups sweeps every group. Used as a periodic catch-up in case
// events were lost.
func (w *ExportWorker) ExportAllGroups(ctx context.Context) error {
	groups, err := w.store.ListGroups(ctx)
	if err != nil {
		return fmt.Errorf("list groups: %w", err)
	}

	var failed int
	for _, g := range groups {
		if _, err := w.exportGroup(ctx, g.ID); err != nil {
			slog.ErrorContext(ctx, "Failed to export group",
				"group_id", g.ID, "error", err)
			failed++
		}
	}
	if failed > 0 {
		return fmt.Errorf("failed to export %d of %d groups", failed, len(groups))
	}

	slog.InfoContext(ctx, "Completed full export sweep", "groups", len(groups))
	return nil
}

func (w *ExportWorker) exportGroup(ctx context.Context, groupID int64) (string, error) {
	snapshot, err := w.balances.Snapshot(ctx, groupID)
	if err != nil {
		return "", err
	}
	if len(snapshot.Balances) == 0 {
		return "", nil
	}
	return w.writer.AppendSnapshot(ctx, snapshot.Group, snapshot.Balances, snapshot.TakenAt)
}

// Run consumes expense events and runs the periodic sweep until ctx is done.
func (w *ExportWorker) Run(ctx context.Context, client *amqp.Client, sweepInterval time.Duration) error {
	if sweepInterval > 0 {
		go w.sweepLoop(ctx, sweepInterval)
	}

	return client.ConsumeExpenseEvents(ctx, func(msg *amqp.ExpenseEventMessage) error {
		return w.HandleExpenseEvent(ctx, msg)
	})
}

func (w *ExportWorker) sweepLoop(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ExportAllGroups(ctx); err != nil {
				slog.ErrorContext(ctx, "Export sweep failed", "error", err)
			}
		}
	}
}
