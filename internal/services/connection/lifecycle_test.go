package connection

import (
	"context"
	"testing"
	"time"

	"github.com/crosslink-io/crosslink/internal/services/user"
	"github.com/crosslink-io/crosslink/pkg/logger"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

// fakeDirectory serves a fixed set of users for party lookups
type fakeDirectory struct {
	users []*user.User
}

func (d *fakeDirectory) GetByIDs(ctx context.Context, userIDs []string) ([]*user.User, error) {
	return d.users, nil
}

// stubRow satisfies pgx.Row with a canned Scan
type stubRow struct {
	scan func(dest ...any) error
}

func (r stubRow) Scan(dest ...any) error { return r.scan(dest...) }

// requestRow produces a row in connection_requests column order
func requestRow(requestID int64, requesterID, requesterUsername, receiverID, receiverUsername string, status RequestStatus) pgx.Row {
	return stubRow{scan: func(dest ...any) error {
		*dest[0].(*int64) = requestID
		*dest[1].(*string) = requesterID
		*dest[2].(**string) = strPtr(requesterUsername)
		*dest[6].(*string) = receiverID
		*dest[7].(**string) = strPtr(receiverUsername)
		*dest[12].(*RequestStatus) = status
		*dest[13].(*time.Time) = time.UnixMilli(1000)
		return nil
	}}
}

// stubTx records the statements the state machine runs inside the accept
// transaction. Rollback after Commit reports ErrTxClosed like a real tx.
type stubTx struct {
	queryRowFn func(sql string, args []any) pgx.Row
	execErr    error
	execSQL    []string
	execArgs   [][]any
	committed  bool
	rolledBack bool
}

func (t *stubTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return t.queryRowFn(sql, args)
}

func (t *stubTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if t.execErr != nil {
		return pgconn.CommandTag{}, t.execErr
	}
	t.execSQL = append(t.execSQL, sql)
	t.execArgs = append(t.execArgs, args)
	return pgconn.CommandTag{}, nil
}

func (t *stubTx) Commit(ctx context.Context) error {
	t.committed = true
	return nil
}

func (t *stubTx) Rollback(ctx context.Context) error {
	if t.committed {
		return pgx.ErrTxClosed
	}
	t.rolledBack = true
	return nil
}

func (t *stubTx) Begin(ctx context.Context) (pgx.Tx, error) { return t, nil }

func (t *stubTx) CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error) {
	panic("not implemented")
}

func (t *stubTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	panic("not implemented")
}

func (t *stubTx) LargeObjects() pgx.LargeObjects { return pgx.LargeObjects{} }

func (t *stubTx) Prepare(ctx context.Context, name, sql string) (*pgconn.StatementDescription, error) {
	panic("not implemented")
}

func (t *stubTx) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (t *stubTx) Conn() *pgx.Conn { return nil }

// stubExecutor hands out one transaction; the non-transactional surface is
// unused by the accept path.
type stubExecutor struct {
	tx *stubTx
}

func (e *stubExecutor) Begin(ctx context.Context) (pgx.Tx, error) { return e.tx, nil }

func (e *stubExecutor) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	panic("not implemented")
}

func (e *stubExecutor) Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error) {
	panic("not implemented")
}

func (e *stubExecutor) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	panic("not implemented")
}

func TestCreateRequestSelf(t *testing.T) {
	// The guard fires before any directory lookup or query runs
	s := &Service{}

	req, err := s.CreateRequest(context.Background(), "user_a", "user_a", nil)
	assert.ErrorIs(t, err, ErrSelfRequest)
	assert.Nil(t, req)
}

func TestCreateRequestPartyNotFound(t *testing.T) {
	// Only one of the two parties exists; no query may run
	s := &Service{
		users:  &fakeDirectory{users: []*user.User{{ID: "user_a"}}},
		logger: logger.Nop(),
	}

	req, err := s.CreateRequest(context.Background(), "user_a", "user_missing", nil)
	assert.ErrorIs(t, err, ErrPartyNotFound)
	assert.Nil(t, req)
}

func TestAcceptRequestCreatesCanonicalConnection(t *testing.T) {
	// Requester sorts after receiver, so the receiver takes slot one
	tx := &stubTx{
		queryRowFn: func(sql string, args []any) pgx.Row {
			return requestRow(7, "user_z", "zed", "user_a", "amy", StatusAccepted)
		},
	}
	s := &Service{pool: &stubExecutor{tx: tx}, logger: logger.Nop()}

	req, err := s.AcceptRequest(context.Background(), 7, "user_a")
	require.NoError(t, err)
	assert.Equal(t, StatusAccepted, req.Status)

	require.Len(t, tx.execArgs, 1)
	args := tx.execArgs[0]
	require.Len(t, args, 10)
	assert.Equal(t, "user_a", args[0])
	assert.Equal(t, "amy", *args[1].(*string))
	assert.Equal(t, "user_z", args[5])
	assert.Equal(t, "zed", *args[6].(*string))

	assert.True(t, tx.committed)
	assert.False(t, tx.rolledBack)
}

func TestAcceptRequestAlreadyOrderedPair(t *testing.T) {
	tx := &stubTx{
		queryRowFn: func(sql string, args []any) pgx.Row {
			return requestRow(8, "user_a", "amy", "user_z", "zed", StatusAccepted)
		},
	}
	s := &Service{pool: &stubExecutor{tx: tx}, logger: logger.Nop()}

	_, err := s.AcceptRequest(context.Background(), 8, "user_z")
	require.NoError(t, err)

	require.Len(t, tx.execArgs, 1)
	assert.Equal(t, "user_a", tx.execArgs[0][0])
	assert.Equal(t, "user_z", tx.execArgs[0][5])
}

func TestAcceptRequestNotActionable(t *testing.T) {
	// The conditional update matched nothing: wrong actor or not pending
	tx := &stubTx{
		queryRowFn: func(sql string, args []any) pgx.Row {
			return stubRow{scan: func(dest ...any) error { return pgx.ErrNoRows }}
		},
	}
	s := &Service{pool: &stubExecutor{tx: tx}, logger: logger.Nop()}

	req, err := s.AcceptRequest(context.Background(), 7, "user_b")
	assert.ErrorIs(t, err, ErrRequestNotActionable)
	assert.Nil(t, req)

	assert.Empty(t, tx.execSQL)
	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}

func TestAcceptRequestInsertFailureRollsBack(t *testing.T) {
	// The acceptance must not survive a failed connection insert
	tx := &stubTx{
		queryRowFn: func(sql string, args []any) pgx.Row {
			return requestRow(7, "user_z", "zed", "user_a", "amy", StatusAccepted)
		},
		execErr: &pgconn.PgError{Code: "23505", ConstraintName: "uq_connections_pair"},
	}
	s := &Service{pool: &stubExecutor{tx: tx}, logger: logger.Nop()}

	req, err := s.AcceptRequest(context.Background(), 7, "user_a")
	assert.Error(t, err)
	assert.Nil(t, req)

	assert.False(t, tx.committed)
	assert.True(t, tx.rolledBack)
}
