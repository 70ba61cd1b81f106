package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/multierr"

	"github.com/angelmondragon/orderflow/pkg/migrate"
)

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", "*_"+suffix+".sql"))
	require.NoError(t, err)
	require.Len(t, matches, 1, "migration %s", suffix)
	data, err := os.ReadFile(matches[0])
	require.NoError(t, err)
	return string(data)
}

func TestMigrationsDirIsValid(t *testing.T) {
	require.NoError(t, migrate.ValidateDir("migrations"))
}

func TestStockMigrationKeepsOneItemPerLocationVariant(t *testing.T) {
	content := readMigration(t, "create_catalog_and_stock")
	for _, sub := range []string{
		"CREATE TABLE IF NOT EXISTS stock_items",
		"CREATE UNIQUE INDEX IF NOT EXISTS idx_stock_items_location_variant ON stock_items (stock_location_id, variant_id)",
		"DROP TABLE IF EXISTS variants",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestReturnsMigrationConstrainsStatuses(t *testing.T) {
	content := readMigration(t, "create_returns")
	for _, sub := range []string{
		"CHECK (reception_status IN ('awaiting','received','cancelled','given_to_customer'))",
		"CHECK (acceptance_status IN ('pending','accepted','rejected','manual_intervention_required'))",
		"CHECK (reimbursement_status IN ('pending','errored','reimbursed'))",
		"idx_return_items_authorization_unit ON return_items (return_authorization_id, inventory_unit_id)",
		"pre_tax_amount numeric(12,4)",
		"FOREIGN KEY (reimbursement_id) REFERENCES reimbursements(id) ON DELETE SET NULL",
		"DROP TABLE IF EXISTS return_items",
	} {
		assert.Contains(t, content, sub)
	}
}

func TestOutboxMigrationIndexesUnpublished(t *testing.T) {
	content := readMigration(t, "create_ledger_and_outbox")
	assert.Contains(t, content, "WHERE published_at IS NULL")
	assert.Contains(t, content, "DROP TABLE IF EXISTS outbox_events")
}

func TestCreateSQLMigrationSanitizesName(t *testing.T) {
	dir := t.TempDir()
	now := time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)
	path, err := migrate.CreateSQLMigration(dir, "Add Return Reasons!", now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "20260302103000_add_return_reasons.sql"), path)
	require.NoError(t, migrate.ValidateDir(dir))

	_, err = migrate.CreateSQLMigration(dir, "add return reasons", now)
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "already exists"))

	_, err = migrate.CreateSQLMigration(dir, "!!!", now)
	assert.Error(t, err)
}

func TestParseVersion(t *testing.T) {
	v, err := migrate.ParseVersion("20260301090200")
	require.NoError(t, err)
	assert.Equal(t, int64(20260301090200), v)

	_, err = migrate.ParseVersion("42")
	assert.Error(t, err)
	_, err = migrate.ParseVersion("2026030109020x")
	assert.Error(t, err)
}

func TestValidateDirRejectsBadNames(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "001_init.sql"), []byte("-- +goose Up\n-- +goose Down\n"), 0o644))
	assert.Error(t, migrate.ValidateDir(dir))
}

func TestValidateDirReportsEveryProblem(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644))
	}
	write("20260301090000_no_down.sql", "-- +goose Up\nSELECT 1;\n")
	write("20260301090100_unbalanced.sql", "-- +goose Up\n-- +goose StatementBegin\n-- +goose Down\n")
	write("20260301090100_duplicate.sql", "-- +goose Up\n-- +goose Down\n")

	err := migrate.ValidateDir(dir)
	require.Error(t, err)
	assert.Len(t, multierr.Errors(err), 3)
}
