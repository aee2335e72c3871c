package migrations

import (
	"io"
	"strings"
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrationsParse(t *testing.T) {
	src, err := iofs.New(Files, ".")
	require.NoError(t, err)
	defer src.Close()

	first, err := src.First()
	require.NoError(t, err)
	require.Equal(t, uint(1), first)

	up, _, err := src.ReadUp(first)
	require.NoError(t, err)
	body, err := io.ReadAll(up)
	require.NoError(t, err)
	require.NoError(t, up.Close())
	for _, table := range []string{"inventory_items", "inventory_transactions", "inventory_requisition_fills", "audit_logs", "idempotency_keys"} {
		require.Truef(t, strings.Contains(string(body), "CREATE TABLE IF NOT EXISTS "+table), "missing %s", table)
	}

	down, _, err := src.ReadDown(first)
	require.NoError(t, err)
	require.NoError(t, down.Close())
}
