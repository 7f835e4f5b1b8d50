package binlog

import (
	"database/sql"
	"flag"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/require"
)

// integration tests need a running mysql server with binary logging on.

var mysqlDSN = flag.String("mysql", "", "mysql DSN used for integration tests, e.g. root:password@tcp(localhost:3306)/test")

const skipReason = "SKIPPED: pass -mysql with a DSN to run this test"

func TestMain(m *testing.M) {
	flag.Parse()
	os.Exit(m.Run())
}

func integrationDB(t *testing.T) *sql.DB {
	t.Helper()
	if *mysqlDSN == "" {
		t.Skip(skipReason)
	}
	db, err := sql.Open("mysql", *mysqlDSN)
	require.NoError(t, err)
	require.NoError(t, db.Ping())
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestDBQueryer_schemaLookup(t *testing.T) {
	db := integrationDB(t)
	q := DBQueryer{DB: db}

	rows, err := q.Query(`SELECT COLUMN_NAME, COLLATION_NAME, CHARACTER_SET_NAME,
			COLUMN_COMMENT, COLUMN_TYPE, COLUMN_KEY
		FROM information_schema.columns
		WHERE table_schema = 'information_schema' AND table_name = 'COLUMNS'
		ORDER BY ORDINAL_POSITION`)
	require.NoError(t, err)
	require.NotEmpty(t, rows)
	for _, row := range rows {
		require.Len(t, row, 6)
		require.NotEmpty(t, row[0])
	}
}

func TestDBQueryer_masterStatus(t *testing.T) {
	db := integrationDB(t)
	q := DBQueryer{DB: db}

	rows, err := q.Query("SHOW MASTER STATUS")
	require.NoError(t, err)
	if len(rows) == 0 {
		t.Skip("binary logging not enabled on test server")
	}
	require.GreaterOrEqual(t, len(rows[0]), 2)
	require.NotEmpty(t, rows[0][0]) // current file name
}

func TestGtidExecuted_parses(t *testing.T) {
	db := integrationDB(t)

	var executed string
	require.NoError(t, db.QueryRow("SELECT @@global.gtid_executed").Scan(&executed))
	if executed == "" {
		t.Skip("no gtids executed on test server")
	}
	set, err := ParseGtidSet(executed)
	require.NoError(t, err)
	require.NotEmpty(t, set.Gtids())

	// the server's own set must round trip through the binary codec
	got, err := DecodeGtidSet(set.Encode())
	require.NoError(t, err)
	require.Equal(t, set.String(), got.String())
}
