package session

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"strings"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakePostgres answers the three statements PostgresStore issues.
type fakePostgres struct {
	mu         sync.Mutex
	failSchema int
	ddlCalls   int
	rows       map[string]string
}

func (f *fakePostgres) Connect(context.Context) (driver.Conn, error) { return fakeConn{f}, nil }
func (f *fakePostgres) Driver() driver.Driver                        { return fakeDriver{f} }

type fakeDriver struct{ pg *fakePostgres }

func (d fakeDriver) Open(string) (driver.Conn, error) { return fakeConn(d), nil }

type fakeConn struct{ pg *fakePostgres }

func (fakeConn) Prepare(string) (driver.Stmt, error) { return nil, errors.New("prepare not supported") }
func (fakeConn) Close() error                        { return nil }
func (fakeConn) Begin() (driver.Tx, error)           { return nil, errors.New("transactions not supported") }

func (c fakeConn) ExecContext(_ context.Context, query string, args []driver.NamedValue) (driver.Result, error) {
	pg := c.pg
	pg.mu.Lock()
	defer pg.mu.Unlock()

	switch {
	case strings.Contains(query, "CREATE TABLE"):
		pg.ddlCalls++
		if pg.ddlCalls <= pg.failSchema {
			return nil, errors.New("connection refused")
		}
	case strings.Contains(query, "INSERT INTO reading_sessions"):
		pg.rows[args[0].Value.(string)] = args[1].Value.(string)
	default:
		return nil, errors.New("unexpected statement: " + query)
	}
	return driver.RowsAffected(1), nil
}

func (c fakeConn) QueryContext(_ context.Context, query string, args []driver.NamedValue) (driver.Rows, error) {
	pg := c.pg
	pg.mu.Lock()
	defer pg.mu.Unlock()

	if !strings.Contains(query, "SELECT payload FROM reading_sessions") {
		return nil, errors.New("unexpected query: " + query)
	}
	rows := &fakeRows{}
	if payload, ok := pg.rows[args[0].Value.(string)]; ok {
		rows.values = append(rows.values, []byte(payload))
	}
	return rows, nil
}

type fakeRows struct {
	values [][]byte
}

func (r *fakeRows) Columns() []string { return []string{"payload"} }
func (r *fakeRows) Close() error      { return nil }

func (r *fakeRows) Next(dest []driver.Value) error {
	if len(r.values) == 0 {
		return io.EOF
	}
	dest[0] = r.values[0]
	r.values = r.values[1:]
	return nil
}

func newFakePostgresStore(t *testing.T, failSchema int) (*PostgresStore, *fakePostgres) {
	t.Helper()
	pg := &fakePostgres{failSchema: failSchema, rows: map[string]string{}}
	db := sql.OpenDB(pg)
	t.Cleanup(func() { _ = db.Close() })
	return newPostgresStore(db), pg
}

func TestPostgresStore(t *testing.T) {
	store, _ := newFakePostgresStore(t, 0)
	exerciseStore(t, store)
}

func TestPostgresStoreRetriesSchemaUntilItSucceeds(t *testing.T) {
	store, pg := newFakePostgresStore(t, 1)
	id := uuid.NewString()
	snap := Capture(sampleLog(), map[string]any{"total_tokens_used": 3})

	cancelled, cancel := context.WithCancel(context.Background())
	cancel()
	err := store.Save(cancelled, id, snap)
	assert.ErrorIs(t, err, context.Canceled)

	err = store.Save(context.Background(), id, snap)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ensure schema")

	require.NoError(t, store.Save(context.Background(), id, snap))
	got, err := store.Load(context.Background(), id)
	require.NoError(t, err)
	assert.Equal(t, float64(3), got.State["total_tokens_used"])

	pg.mu.Lock()
	defer pg.mu.Unlock()
	assert.Equal(t, 2, pg.ddlCalls)
}
