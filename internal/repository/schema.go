package repository

import (
	"context"
	_ "embed"
	"fmt"
)

// Schema is the core DDL, embedded so migrations and schema-per-test setups
// run from the same source.
//
//go:embed schema.sql
var Schema string

// ApplySchema executes the embedded DDL. Statements are idempotent
// (IF NOT EXISTS), so repeated application is safe.
func ApplySchema(ctx context.Context, db DBTX) error {
	if _, err := db.Exec(ctx, Schema); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}
	return nil
}
