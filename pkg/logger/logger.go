package logger

import (
	"context"
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	pkgerrors "github.com/angelmondragon/incentives-backend/pkg/errors"
)

type Options struct {
	ServiceName string
	Level       zerolog.Level
	WarnStack   bool
	// Format is "json" (default) or "console".
	Format string
	Output io.Writer
}

// Logger writes structured entries. Fields added with the With* helpers travel in the
// context (zerolog's own context slot), so every layer logs with the run it serves.
type Logger struct {
	base      zerolog.Logger
	warnStack bool
}

func New(opts Options) *Logger {
	level := opts.Level
	if level == zerolog.NoLevel {
		level = zerolog.InfoLevel
	}

	out := opts.Output
	if out == nil {
		out = os.Stdout
	}
	if strings.EqualFold(strings.TrimSpace(opts.Format), "console") {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.TimeOnly}
	}

	zerolog.TimeFieldFormat = time.RFC3339Nano
	return &Logger{
		base:      zerolog.New(out).Level(level).With().Timestamp().Str("service", opts.ServiceName).Logger(),
		warnStack: opts.WarnStack,
	}
}

// ParseLevel falls back to info for empty or unknown values.
func ParseLevel(value string) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(value)))
	if err != nil || lvl == zerolog.NoLevel {
		return zerolog.InfoLevel
	}
	return lvl
}

func (l *Logger) from(ctx context.Context) *zerolog.Logger {
	if ctx != nil {
		if entry := zerolog.Ctx(ctx); entry.GetLevel() != zerolog.Disabled {
			return entry
		}
	}
	return &l.base
}

func (l *Logger) WithField(ctx context.Context, key string, value any) context.Context {
	return l.from(ctx).With().Interface(key, value).Logger().WithContext(ctx)
}

func (l *Logger) WithFields(ctx context.Context, fields map[string]any) context.Context {
	return l.from(ctx).With().Fields(fields).Logger().WithContext(ctx)
}

func (l *Logger) WithSettlementRunID(ctx context.Context, runID uuid.UUID) context.Context {
	return l.WithField(ctx, "settlement_run_id", runID.String())
}

func (l *Logger) WithSupplierID(ctx context.Context, supplierID uuid.UUID) context.Context {
	return l.WithField(ctx, "supplier_id", supplierID.String())
}

// WithPeriod tags entries with the settlement period as YYYY-MM.
func (l *Logger) WithPeriod(ctx context.Context, month, year int) context.Context {
	return l.WithField(ctx, "period", fmt.Sprintf("%04d-%02d", year, month))
}

func (l *Logger) WithJob(ctx context.Context, job string) context.Context {
	return l.WithField(ctx, "job", job)
}

func (l *Logger) Debug(ctx context.Context, msg string) {
	l.from(ctx).Debug().Msg(msg)
}

func (l *Logger) Info(ctx context.Context, msg string) {
	l.from(ctx).Info().Msg(msg)
}

func (l *Logger) Warn(ctx context.Context, msg string) {
	event := l.from(ctx).Warn()
	if l.warnStack {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

// Error logs err with its typed code and, where the code allows it, its details. Stacks are
// attached only to untyped, internal and dependency failures, so expected outcomes such as
// RUN_IN_PROGRESS stay terse.
func (l *Logger) Error(ctx context.Context, msg string, err error) {
	event := l.from(ctx).Error()
	if err == nil {
		event.Str("stack", stackTrace()).Msg(msg)
		return
	}
	event = event.Err(err)

	typed := pkgerrors.As(err)
	if typed == nil {
		event.Str("stack", stackTrace()).Msg(msg)
		return
	}
	code := typed.Code()
	event = event.Str("error_code", string(code))
	if details := typed.Details(); details != nil && pkgerrors.MetadataFor(code).DetailsAllowed {
		event = event.Interface("error_details", details)
	}
	if dump := pkgerrors.Dump(err); dump.PGCode != "" {
		event = event.Str("pg_code", dump.PGCode).Str("pg_constraint", dump.PGConstraint)
	}
	if code == pkgerrors.CodeInternal || code == pkgerrors.CodeDependency {
		event = event.Str("stack", stackTrace())
	}
	event.Msg(msg)
}

func stackTrace() string {
	return strings.TrimSpace(string(debug.Stack()))
}
