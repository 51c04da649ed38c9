package repositories

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newMockDB(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock) {
	t.Helper()
	raw, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { raw.Close() })
	return sqlx.NewDb(raw, "postgres"), mock
}

var messageColumns = []string{"id", "seq", "sender_id", "receiver_id", "content", "read", "created_at"}

func TestCreateMessage(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO messages (sender_id, receiver_id, content) VALUES ($1, $2, $3)`)).
		WithArgs("a", "b", "hi").
		WillReturnRows(sqlmock.NewRows(messageColumns).AddRow("m1", 1, "a", "b", "hi", false, created))

	msg, err := repo.CreateMessage(context.Background(), "a", "b", "hi")
	require.NoError(t, err)
	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, int64(1), msg.Seq)
	assert.Equal(t, created, msg.CreatedAt)
	assert.False(t, msg.Read)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListConversation(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	mock.ExpectQuery(`ORDER BY created_at ASC, seq ASC`).
		WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows(messageColumns).
			AddRow("m1", 1, "a", "b", "one", true, created).
			AddRow("m2", 2, "b", "a", "two", false, created))

	msgs, err := repo.ListConversation(context.Background(), "a", "b")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, "two", msgs[1].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestMarkConversationRead(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)

	mock.ExpectExec(regexp.QuoteMeta(`UPDATE messages SET read = TRUE WHERE sender_id=$1 AND receiver_id=$2 AND read = FALSE`)).
		WithArgs("b", "a").
		WillReturnResult(sqlmock.NewResult(0, 3))

	n, err := repo.MarkConversationRead(context.Background(), "b", "a")
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestListChats(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewMessageRepo(db)
	created := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	columns := append([]string{"counterpart_id", "unread_count"}, messageColumns...)
	mock.ExpectQuery(`DISTINCT ON \(counterpart_id\)`).
		WithArgs("a").
		WillReturnRows(sqlmock.NewRows(columns).AddRow("b", 2, "m5", 5, "b", "a", "latest", false, created))

	rows, err := repo.ListChats(context.Background(), "a")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "b", rows[0].CounterpartID)
	assert.Equal(t, 2, rows[0].UnreadCount)
	assert.Equal(t, "latest", rows[0].Content)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestCountMessages(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(regexp.QuoteMeta(`SELECT COUNT(*) FROM messages`)).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(7))

	n, err := NewMessageRepo(db).CountMessages(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(7), n)
}

var userColumns = []string{"id", "username", "first_name", "last_name", "profile_img", "created_at"}

func TestFindByID(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	mock.ExpectQuery(`FROM users WHERE id = \$1$`).WithArgs("u1").
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "one", "User", "One", "", time.Now()))
	mock.ExpectQuery(`FROM users WHERE id = \$1$`).WithArgs("ghost").WillReturnError(sql.ErrNoRows)

	user, err := repo.FindByID(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, "one", user.Username)

	_, err = repo.FindByID(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestBulkUsers(t *testing.T) {
	db, mock := newMockDB(t)
	repo := NewUserRepo(db)

	users, err := repo.BulkUsers(context.Background(), nil)
	require.NoError(t, err)
	assert.Empty(t, users)

	mock.ExpectQuery(`FROM users WHERE id = ANY\(\$1\)$`).WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows(userColumns).AddRow("u1", "one", "", "", "", time.Now()))

	users, err = repo.BulkUsers(context.Background(), []string{"u1", "ghost"})
	require.NoError(t, err)
	require.Len(t, users, 1)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestAreMutualFollowers(t *testing.T) {
	db, mock := newMockDB(t)
	mock.ExpectQuery(`FROM follows WHERE follower_id = \$1 AND following_id = \$2\)\s+AND EXISTS\(SELECT 1 FROM follows WHERE follower_id = \$2 AND following_id = \$1\)`).WithArgs("a", "b").
		WillReturnRows(sqlmock.NewRows([]string{"?column?"}).AddRow(true))

	mutual, err := NewUserRepo(db).AreMutualFollowers(context.Background(), "a", "b")
	require.NoError(t, err)
	assert.True(t, mutual)
}
