package errors

import (
	stdErrors "errors"
	"fmt"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestDumpCapturesPgxDetails(t *testing.T) {
	pgErr := &pgconn.PgError{Code: "23505", ConstraintName: "ux_settlement_runs_key_version", TableName: "settlement_runs"}
	err := Wrap(CodeConflict, fmt.Errorf("insert run: %w", pgErr), "create settlement run")

	d := Dump(err)
	if d.Code != CodeConflict {
		t.Fatalf("expected conflict code, got %s", d.Code)
	}
	if d.PGCode != "23505" || d.PGConstraint != "ux_settlement_runs_key_version" {
		t.Fatalf("pg details missing: %+v", d)
	}
	if len(d.Chain) != 3 {
		t.Fatalf("expected 3 chain entries, got %d", len(d.Chain))
	}
}

func TestFailureReasonFormatsAndTruncates(t *testing.T) {
	if FailureReason(nil) != "" {
		t.Fatal("nil error should render empty reason")
	}

	reason := FailureReason(New(CodeAmbiguousConfig, "two rules"))
	if reason != "[AMBIGUOUS_CONFIGURATION] two rules" {
		t.Fatalf("unexpected reason %q", reason)
	}

	long := stdErrors.New(strings.Repeat("x", 4096))
	if got := FailureReason(long); len(got) != maxFailureReasonLen {
		t.Fatalf("expected truncation to %d, got %d", maxFailureReasonLen, len(got))
	}
}

func TestFailureReasonKeepsMultibyteRunesWhole(t *testing.T) {
	// the leading byte puts a two-byte rune across the limit
	long := stdErrors.New("x" + strings.Repeat("ج", 2048))

	got := FailureReason(long)
	if !utf8.ValidString(got) {
		t.Fatalf("truncated reason is not valid UTF-8")
	}
	if len(got) != maxFailureReasonLen-1 {
		t.Fatalf("expected truncation to %d bytes, got %d", maxFailureReasonLen-1, len(got))
	}
	if !strings.HasSuffix(got, "ج") {
		t.Fatalf("expected reason to end on a whole rune")
	}
}
