package auditstore

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/ocppsim/simulator/pkg/contracts"
)

// These exercise PostgresDriver against a real database and only run when
// OCPPSIM_TEST_DATABASE_URL is set, since no Postgres instance is assumed to
// be available in every environment that runs this package's tests.
func TestPostgresDriverRecordCommandAndHealthCheck(t *testing.T) {
	dsn := os.Getenv("OCPPSIM_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("OCPPSIM_TEST_DATABASE_URL not set")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	driver, err := NewPostgresDriver(ctx, dsn)
	require.NoError(t, err)
	defer driver.Close()

	require.NoError(t, driver.HealthCheck(ctx))
	require.Equal(t, "postgres", driver.Kind())

	record := contracts.AuditRecord{
		Procedure:    "startTransaction",
		HashIDs:      []string{"CP-1"},
		Succeeded:    []string{"CP-1"},
		DispatchedAt: time.Now().UTC(),
	}
	require.NoError(t, driver.RecordCommand(ctx, record))
}
