package models

import "github.com/google/uuid"

// ensureID assigns a fresh identifier when the caller left it zero. Postgres
// also defaults the column, but sqlite smoke runs rely on the hook.
func ensureID(id *uuid.UUID) {
	if *id == uuid.Nil {
		*id = uuid.New()
	}
}
