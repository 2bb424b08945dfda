package users

import (
	"database/sql"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/stargiver/internal/repos/users"
)

func newMock(t *testing.T) (*usersRepo, sqlmock.Sqlmock) {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	return New(db), mock
}

func TestUsers_AddAttempts_SQL(t *testing.T) {
	t.Parallel()

	addSQL := regexp.QuoteMeta("UPDATE users SET attempts = attempts + $2 WHERE id = $1 AND attempts + $2 >= 0 RETURNING attempts")
	existsSQL := regexp.QuoteMeta("SELECT EXISTS(SELECT 1 FROM users WHERE id = $1)")

	tests := []struct {
		name    string
		setup   func(m sqlmock.Sqlmock)
		delta   int64
		want    int64
		wantErr error
	}{
		{
			name: "credit",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(addSQL).WithArgs(int64(7), int64(5)).
					WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(8))
			},
			delta: 5,
			want:  8,
		},
		{
			name: "debit_below_zero_rejected",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(addSQL).WithArgs(int64(7), int64(-1)).WillReturnError(sql.ErrNoRows)
				m.ExpectQuery(existsSQL).WithArgs(int64(7)).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(true))
			},
			delta:   -1,
			wantErr: users.ErrInsufficientAttempts,
		},
		{
			name: "missing_user",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(addSQL).WithArgs(int64(7), int64(-1)).WillReturnError(sql.ErrNoRows)
				m.ExpectQuery(existsSQL).WithArgs(int64(7)).
					WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))
			},
			delta:   -1,
			wantErr: users.ErrUserNotFound,
		},
		{
			name: "driver_error_wrapped",
			setup: func(m sqlmock.Sqlmock) {
				m.ExpectQuery(addSQL).WithArgs(int64(7), int64(1)).WillReturnError(errors.New("conn reset"))
			},
			delta:   1,
			wantErr: errors.New("conn reset"),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			repo, mock := newMock(t)
			tt.setup(mock)

			got, err := repo.AddAttempts(t.Context(), 7, tt.delta)

			switch {
			case tt.wantErr == nil:
				require.NoError(t, err)
				assert.Equal(t, tt.want, got)
			case errors.Is(tt.wantErr, users.ErrInsufficientAttempts), errors.Is(tt.wantErr, users.ErrUserNotFound):
				require.ErrorIs(t, err, tt.wantErr)
			default:
				require.ErrorContains(t, err, tt.wantErr.Error())
			}

			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestUsers_ClaimDaily_SQL(t *testing.T) {
	t.Parallel()

	claimSQL := regexp.QuoteMeta("UPDATE users SET attempts = attempts + $2, last_daily_claim = $3 WHERE id = $1 AND (last_daily_claim IS NULL OR last_daily_claim <= $4)")
	getSQL := regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE id = $1")

	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	notAfter := now.Add(-24 * time.Hour)
	cols := []string{"id", "username", "attempts", "star_balance", "last_daily_claim", "invited_by", "subscribed", "created_at"}

	t.Run("granted", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMock(t)
		mock.ExpectQuery(claimSQL).WithArgs(int64(1), int64(2), now, notAfter).
			WillReturnRows(sqlmock.NewRows([]string{"attempts"}).AddRow(5))

		bal, granted, err := repo.ClaimDaily(t.Context(), 1, 2, now, notAfter)
		require.NoError(t, err)
		assert.True(t, granted)
		assert.EqualValues(t, 5, bal)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("cooldown_reports_current_balance", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMock(t)
		mock.ExpectQuery(claimSQL).WithArgs(int64(1), int64(2), now, notAfter).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(getSQL).WithArgs(int64(1)).
			WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(1), "alice", int64(3), int64(0), now.Add(-time.Hour), nil, false, now))

		bal, granted, err := repo.ClaimDaily(t.Context(), 1, 2, now, notAfter)
		require.NoError(t, err)
		assert.False(t, granted)
		assert.EqualValues(t, 3, bal)
		require.NoError(t, mock.ExpectationsWereMet())
	})

	t.Run("missing_user", func(t *testing.T) {
		t.Parallel()

		repo, mock := newMock(t)
		mock.ExpectQuery(claimSQL).WithArgs(int64(1), int64(2), now, notAfter).WillReturnError(sql.ErrNoRows)
		mock.ExpectQuery(getSQL).WithArgs(int64(1)).WillReturnError(sql.ErrNoRows)

		_, _, err := repo.ClaimDaily(t.Context(), 1, 2, now, notAfter)
		require.ErrorIs(t, err, users.ErrUserNotFound)
	})
}

func TestUsers_Create_SQL(t *testing.T) {
	t.Parallel()

	insertSQL := regexp.QuoteMeta("INSERT INTO users (id, username, attempts, star_balance, invited_by, subscribed, created_at)")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	repo, mock := newMock(t)
	mock.ExpectExec(insertSQL).WithArgs(int64(9), "neo", int64(3), int64(0), nil, false, now).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertSQL).WithArgs(int64(9), "neo", int64(3), int64(0), nil, false, now).
		WillReturnResult(sqlmock.NewResult(0, 0))

	u := users.User{ID: 9, Username: "neo", Attempts: 3, CreatedAt: now}

	created, err := repo.Create(t.Context(), u)
	require.NoError(t, err)
	assert.True(t, created)

	created, err = repo.Create(t.Context(), u)
	require.NoError(t, err)
	assert.False(t, created, "second insert must be a no-op")

	require.NoError(t, mock.ExpectationsWereMet())
}

func TestUsers_Get_ScansNullables(t *testing.T) {
	t.Parallel()

	getSQL := regexp.QuoteMeta("SELECT " + userColumns + " FROM users WHERE id = $1")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)
	cols := []string{"id", "username", "attempts", "star_balance", "last_daily_claim", "invited_by", "subscribed", "created_at"}

	repo, mock := newMock(t)
	mock.ExpectQuery(getSQL).WithArgs(int64(2)).
		WillReturnRows(sqlmock.NewRows(cols).AddRow(int64(2), "bob", int64(4), int64(15), now, int64(1), true, now))
	mock.ExpectQuery(getSQL).WithArgs(int64(3)).WillReturnError(sql.ErrNoRows)

	u, err := repo.Get(t.Context(), 2)
	require.NoError(t, err)
	require.NotNil(t, u.LastDailyClaim)
	require.NotNil(t, u.InvitedBy)
	assert.Equal(t, int64(1), *u.InvitedBy)
	assert.True(t, u.Subscribed)
	assert.EqualValues(t, 15, u.StarBalance)

	_, err = repo.Get(t.Context(), 3)
	require.ErrorIs(t, err, users.ErrUserNotFound)
}

func TestUsers_SetSubscribed_MissingUser(t *testing.T) {
	t.Parallel()

	repo, mock := newMock(t)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE users SET subscribed = $2 WHERE id = $1")).
		WithArgs(int64(5), true).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT EXISTS")).WithArgs(int64(5)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(false))

	err := repo.SetSubscribed(t.Context(), 5, true)
	require.ErrorIs(t, err, users.ErrUserNotFound)
	require.NoError(t, mock.ExpectationsWereMet())
}
