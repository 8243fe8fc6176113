package rolemanager

import (
	"context"
	"database/sql"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

// Level orders log severities from quietest to loudest:
// debug < info < notice < warning < error < critical < alert < fatal.
// log/slog only has four native levels, so Notice/Critical/Alert/Fatal are
// mapped onto slog's nearest level (see slogLevel) purely for console
// formatting; the ordering used by SetConsoleLevel/SetDBLevel and force_db
// filtering is this package's own, not slog's.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelNotice
	LevelWarning
	LevelError
	LevelCritical
	LevelAlert
	LevelFatal
)

var levelNames = [...]string{"DEBUG", "INFO", "NOTICE", "WARNING", "ERROR", "CRITICAL", "ALERT", "FATAL"}

func (l Level) String() string {
	if l < LevelDebug || l > LevelFatal {
		return "UNKNOWN"
	}
	return levelNames[l]
}

func (l Level) slogLevel() slog.Level {
	switch {
	case l <= LevelDebug:
		return slog.LevelDebug
	case l <= LevelNotice:
		return slog.LevelInfo
	case l <= LevelWarning:
		return slog.LevelWarn
	default:
		return slog.LevelError
	}
}

// Logger is the logging contract: independent
// console and database thresholds, with a force_db escape hatch that
// bypasses the database threshold for one call, and a second sink
// (role_manager_logs) for records that must survive past the console.
type Logger struct {
	console      *slog.Logger
	consoleLevel Level
	db           *sql.DB
	dbLevel      Level
}

// NewLogger builds a Logger writing to console at INFO and above. Database
// persistence is disabled until SetDBLevel is called with a non-nil *sql.DB.
func NewLogger(console *slog.Logger) *Logger {
	if console == nil {
		console = slog.Default()
	}
	return &Logger{console: console, consoleLevel: LevelInfo, dbLevel: LevelError}
}

// SetConsoleLevel sets the minimum level written to the console logger.
func (l *Logger) SetConsoleLevel(level Level) {
	l.consoleLevel = level
}

// SetDBLevel sets the minimum level persisted to role_manager_logs, and the
// *sql.DB to persist through. Pass a nil db to disable DB logging.
func (l *Logger) SetDBLevel(db *sql.DB, level Level) {
	l.db = db
	l.dbLevel = level
}

// Log writes msg at level, generating a correlation id if ctx doesn't
// already carry one (see CorrelationID/withCorrelationID), and optionally
// bypassing the database threshold when forceDB is true. A log-write
// failure never propagates to the caller: it degrades to an
// console-level error line.
func (l *Logger) Log(ctx context.Context, level Level, msg string, forceDB bool, args ...any) {
	correlationID := CorrelationID(ctx)
	if level >= l.consoleLevel {
		l.console.Log(ctx, level.slogLevel(), msg, append([]any{"correlation_id", correlationID}, args...)...)
	}
	if l.db != nil && (forceDB || level >= l.dbLevel) {
		l.writeDB(ctx, level, correlationID, msg)
	}
}

func (l *Logger) writeDB(ctx context.Context, level Level, correlationID, msg string) {
	const q = `INSERT INTO role_manager_logs (occurred_at, level, message, correlation_id) VALUES ($1, $2, $3, $4)`
	if _, err := l.db.ExecContext(ctx, q, time.Now(), level.String(), msg, correlationID); err != nil {
		l.console.Error("failed to persist log record", "error", err)
	}
}

func (l *Logger) Debug(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelDebug, msg, false, args...)
}

func (l *Logger) Info(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelInfo, msg, false, args...)
}

func (l *Logger) Notice(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelNotice, msg, false, args...)
}

func (l *Logger) Warn(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelWarning, msg, false, args...)
}

func (l *Logger) Error(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelError, msg, false, args...)
}

func (l *Logger) Critical(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelCritical, msg, true, args...)
}

func (l *Logger) Alert(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelAlert, msg, true, args...)
}

func (l *Logger) Fatal(ctx context.Context, msg string, args ...any) {
	l.Log(ctx, LevelFatal, msg, true, args...)
}

// correlationIDKeyType/CorrelationID thread a per-call-chain uuid through
// the log lines written via Logger, so multiple log records produced by one
// hasRight invocation can be joined; explainRight's trace carries no id
// (grounded on the pack's pervasive use of github.com/google/uuid for
// request correlation, e.g. mvaleed-aegis/internal/domain/uuid.go).
type correlationIDKeyType struct{}

var correlationIDKey correlationIDKeyType

// WithCorrelationID attaches a fixed correlation id to ctx, overriding the
// id CorrelationID would otherwise generate. Useful for callers that
// already have a request id and want log lines to share it.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationIDKey, id)
}

// CorrelationID returns ctx's correlation id, or a freshly generated uuid
// on every call if none has been set. Since context.Context is immutable, the
// generated id is not attached back to ctx; callers that need every
// downstream log line to share one id should call WithCorrelationID once
// at the top of the request, as WithRequestScope's callers are expected to.
func CorrelationID(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDKey).(string); ok && id != "" {
		return id
	}
	return uuid.NewString()
}
