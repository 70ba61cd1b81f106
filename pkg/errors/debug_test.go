package errors

import (
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"
)

func TestDumpCollectsCodeFieldsAndChain(t *testing.T) {
	err := fmt.Errorf("create reimbursement: %w", ValidationKey("already_reimbursed", "item already reimbursed"))
	d := Dump(err)
	if d.Code != CodeValidation || d.Retryable {
		t.Fatalf("expected non-retryable validation code, got %s retryable=%v", d.Code, d.Retryable)
	}
	if len(d.Fields) != 1 || d.Fields[0].Key != "already_reimbursed" {
		t.Fatalf("unexpected fields %+v", d.Fields)
	}
	if len(d.Chain) != 2 {
		t.Fatalf("expected 2 chain entries, got %d", len(d.Chain))
	}
	if Dump(nil).TopMessage != "" {
		t.Fatalf("nil error should dump empty")
	}
}

func TestDumpSurfacesPostgresConstraint(t *testing.T) {
	pgxErr := &pgconn.PgError{Code: "23505", ConstraintName: "idx_return_items_authorization_unit", TableName: "return_items"}
	d := Dump(Wrap(CodeConflict, pgxErr, "insert return item"))
	if d.Code != CodeConflict || d.Retryable {
		t.Fatalf("expected non-retryable conflict, got %s retryable=%v", d.Code, d.Retryable)
	}
	if d.PGCode != "23505" || d.PGConstraint != "idx_return_items_authorization_unit" || d.PGTable != "return_items" {
		t.Fatalf("unexpected pgx dump %+v", d)
	}

	pqErr := &pq.Error{Code: "23503", Constraint: "fk_refunds_payment", Table: "refunds"}
	d = Dump(fmt.Errorf("insert refund: %w", pqErr))
	if d.PGCode != "23503" || d.PGConstraint != "fk_refunds_payment" {
		t.Fatalf("unexpected pq dump %+v", d)
	}
}
