package errors

import (
	"errors"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

const maxFailureReasonLen = 1024

type ErrorDump struct {
	TopMessage string `json:"top_message"`
	Code       Code   `json:"code,omitempty"`

	Chain []string `json:"chain,omitempty"`

	PGCode       string `json:"pg_code,omitempty"`
	PGConstraint string `json:"pg_constraint,omitempty"`
	PGTable      string `json:"pg_table,omitempty"`
	PGDetail     string `json:"pg_detail,omitempty"`
	PGMessage    string `json:"pg_message,omitempty"`
}

func Dump(err error) ErrorDump {
	if err == nil {
		return ErrorDump{}
	}

	d := ErrorDump{
		TopMessage: err.Error(),
	}

	if te := As(err); te != nil {
		d.Code = te.Code()
	}

	for e := err; e != nil; e = errors.Unwrap(e) {
		d.Chain = append(d.Chain, fmt.Sprintf("%T: %v", e, e))
	}

	var pgxErr *pgconn.PgError
	if errors.As(err, &pgxErr) {
		d.PGCode = pgxErr.Code
		d.PGConstraint = pgxErr.ConstraintName
		d.PGTable = pgxErr.TableName
		d.PGDetail = pgxErr.Detail
		d.PGMessage = pgxErr.Message
		return d
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		d.PGCode = string(pqErr.Code)
		d.PGConstraint = pqErr.Constraint
		d.PGTable = pqErr.Table
		d.PGDetail = pqErr.Detail
		d.PGMessage = pqErr.Message
		return d
	}

	return d
}

// FailureReason renders err as the single line stored on a stalled settlement run.
func FailureReason(err error) string {
	if err == nil {
		return ""
	}
	d := Dump(err)
	var b strings.Builder
	msg := d.TopMessage
	if d.Code != "" {
		b.WriteString("[")
		b.WriteString(string(d.Code))
		b.WriteString("] ")
		msg = strings.TrimPrefix(msg, string(d.Code)+": ")
	}
	b.WriteString(msg)
	if d.PGCode != "" {
		fmt.Fprintf(&b, " (pg %s", d.PGCode)
		if d.PGConstraint != "" {
			fmt.Fprintf(&b, " constraint=%s", d.PGConstraint)
		}
		b.WriteString(")")
	}
	reason := b.String()
	if len(reason) <= maxFailureReasonLen {
		return reason
	}
	// cut on a rune boundary; text columns reject invalid UTF-8
	n := maxFailureReasonLen
	for n > 0 && !utf8.RuneStart(reason[n]) {
		n--
	}
	return reason[:n]
}
