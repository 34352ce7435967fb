package log

import (
	"context"
	"log/slog"
	"net/http"
)

// StructuredLogger provides canonical log lines for the ledger's main
// events, built from the shared field names in fields.go.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogHTTPEnd logs the completion of an HTTP request. 4xx responses log at
// warn, 5xx at error.
func (sl *StructuredLogger) LogHTTPEnd(ctx context.Context, r *http.Request, statusCode int, durationMs int64, clientIP string) {
	level := slog.LevelInfo
	if statusCode >= 500 {
		level = slog.LevelError
	} else if statusCode >= 400 {
		level = slog.LevelWarn
	}

	fields := NewFields().
		WithHTTPRequest(r.Method, r.URL.Path, r.URL.RawQuery, "", "").
		WithHTTPResponse(statusCode, durationMs, statusCode < 400).
		WithClientIP(clientIP).
		WithComponent(ComponentHTTP)

	sl.logger.Logger.Log(ctx, level, "HTTP request completed", fields.ToSlice()...)
}

// LogExpenseCreated logs a successfully recorded expense.
func (sl *StructuredLogger) LogExpenseCreated(ctx context.Context, expenseID, groupID int64, desc string, amount float64) {
	fields := NewFields().
		WithExpense(expenseID, groupID, desc, amount).
		WithOperation(OpCreate).
		WithComponent(ComponentLedger)

	sl.logger.InfoContext(ctx, "Expense recorded", fields.ToSlice()...)
}

// LogSnapshotExported logs a balance snapshot written to the export sink.
func (sl *StructuredLogger) LogSnapshotExported(ctx context.Context, groupID int64, ref string) {
	fields := NewFields().
		WithComponent(ComponentWorker).
		WithOperation(OpExport)
	fields[FieldGroupID] = groupID
	fields[FieldSheetsRef] = ref

	sl.logger.InfoContext(ctx, "Balance snapshot exported", fields.ToSlice()...)
}

// LogError logs an error with component and operation context.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, fields LogFields) {
	if fields == nil {
		fields = NewFields()
	}
	all := fields.
		WithError(err).
		WithOperation(operation).
		WithComponent(component)

	sl.logger.ErrorContext(ctx, msg, all.ToSlice()...)
}
