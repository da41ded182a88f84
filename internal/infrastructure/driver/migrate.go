package driver

import (
	"context"
	"fmt"
)

// Migrate executes idempotent DDL statements (CREATE ... IF NOT EXISTS) in order
func Migrate(ctx context.Context, conn ITransactionalDB, statements ...string) error {
	for i, stmt := range statements {
		if _, err := conn.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("migration statement #%d: %w", i+1, err)
		}
	}
	return nil
}
