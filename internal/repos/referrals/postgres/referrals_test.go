package referrals

import (
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fastprodman/stargiver/internal/repos/referrals"
)

func TestReferrals_Insert(t *testing.T) {
	t.Parallel()

	insertSQL := regexp.QuoteMeta("INSERT INTO referrals (referrer_id, referred_id, created_at)")
	now := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectExec(insertSQL).WithArgs(int64(1), int64(2), now).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(insertSQL).WithArgs(int64(3), int64(2), now).WillReturnResult(sqlmock.NewResult(0, 0))

	repo := New(db)

	err = repo.Insert(t.Context(), referrals.Referral{ReferrerID: 1, ReferredID: 2, CreatedAt: now})
	require.NoError(t, err)

	err = repo.Insert(t.Context(), referrals.Referral{ReferrerID: 3, ReferredID: 2, CreatedAt: now})
	require.ErrorIs(t, err, referrals.ErrDuplicateReferral)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestReferrals_CountByReferrer(t *testing.T) {
	t.Parallel()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM referrals WHERE referrer_id = $1")).
		WithArgs(int64(1)).WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(4))

	n, err := New(db).CountByReferrer(t.Context(), 1)
	require.NoError(t, err)
	assert.EqualValues(t, 4, n)
}
