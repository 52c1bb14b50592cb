package postgres

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"regexp"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pashagolub/pgxmock/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aradsms/ims_service/internal/ims_service/domain"
)

var subscriberColumns = []string{"phone_number", "username", "password", "domain", "status", "features"}

func ptr[T any](v T) *T { return &v }

func newTestRepo(t *testing.T) (*PgSubscriberRepository, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool()
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewPgSubscriberRepository(mockPool, logger), mockPool
}

func TestPgSubscriberRepository_ListAll(t *testing.T) {
	t.Run("ReturnsRows", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		rows := mockPool.NewRows(subscriberColumns).
			AddRow("11111111111", ptr("alice"), ptr("pw"), ptr("ims.example.com"), ptr(true), []byte(`{"volte":true}`)).
			AddRow("22222222222", ptr("bob"), nil, nil, ptr(false), nil)
		mockPool.ExpectQuery(regexp.QuoteMeta(listSubscribersQuery)).WillReturnRows(rows)

		subs, err := repo.ListAll(context.Background())
		require.NoError(t, err)
		require.Len(t, subs, 2)

		assert.Equal(t, "11111111111", subs[0].PhoneNumber)
		assert.Equal(t, "alice", *subs[0].Username)
		assert.JSONEq(t, `{"volte":true}`, string(subs[0].Features))

		assert.Equal(t, "22222222222", subs[1].PhoneNumber)
		assert.Nil(t, subs[1].Password)
		assert.Nil(t, subs[1].Domain)
		assert.Nil(t, subs[1].Features)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("EmptyTableIsNotFound", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		mockPool.ExpectQuery(regexp.QuoteMeta(listSubscribersQuery)).WillReturnRows(mockPool.NewRows(subscriberColumns))

		subs, err := repo.ListAll(context.Background())
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Nil(t, subs)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		dbErr := errors.New("connection refused")
		mockPool.ExpectQuery(regexp.QuoteMeta(listSubscribersQuery)).WillReturnError(dbErr)

		_, err := repo.ListAll(context.Background())
		require.Error(t, err)
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSubscriberRepository_GetByNumber(t *testing.T) {
	t.Run("Found", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		rows := mockPool.NewRows(subscriberColumns).
			AddRow("11111111111", ptr("alice"), ptr("pw"), ptr("ims.example.com"), ptr(true), nil)
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs("11111111111").WillReturnRows(rows)

		s, err := repo.GetByNumber(context.Background(), "11111111111")
		require.NoError(t, err)
		assert.Equal(t, "11111111111", s.PhoneNumber)
		assert.Equal(t, "ims.example.com", *s.Domain)
		assert.True(t, *s.Status)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("NotFound", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs("33333333333").WillReturnError(pgx.ErrNoRows)

		s, err := repo.GetByNumber(context.Background(), "33333333333")
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Nil(t, s)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("QueryError", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		dbErr := errors.New("DB error")
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs("33333333333").WillReturnError(dbErr)

		_, err := repo.GetByNumber(context.Background(), "33333333333")
		assert.ErrorIs(t, err, dbErr)
		assert.Contains(t, err.Error(), "33333333333")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSubscriberRepository_Upsert(t *testing.T) {
	const current = "11111111111"

	t.Run("PartialUpdateSetsOnlyPresentColumns", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		patch := &domain.SubscriberPatch{Username: ptr("alice"), Status: ptr(false)}
		mockPool.ExpectExec(regexp.QuoteMeta(
			`INSERT INTO "ims" ("phone_number", "username", "status") VALUES ($1, $2, $3) ` +
				`ON CONFLICT ("phone_number") DO UPDATE SET "username" = EXCLUDED."username", "status" = EXCLUDED."status", "phone_number" = $4`)).
			WithArgs(current, "alice", false, current).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		s, err := repo.Upsert(context.Background(), current, patch)
		require.NoError(t, err)
		assert.Equal(t, current, s.PhoneNumber)
		assert.Equal(t, "alice", *s.Username)
		assert.Nil(t, s.Password)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("SameNumberInPayloadIsNotARename", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		patch := &domain.SubscriberPatch{PhoneNumber: ptr(current), Features: []byte(`{"sms":{"enabled":true}}`)}
		mockPool.ExpectExec(regexp.QuoteMeta(
			`INSERT INTO "ims" ("phone_number", "features") VALUES ($1, $2) ` +
				`ON CONFLICT ("phone_number") DO UPDATE SET "features" = EXCLUDED."features", "phone_number" = $3`)).
			WithArgs(current, `{"sms":{"enabled":true}}`, current).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		_, err := repo.Upsert(context.Background(), current, patch)
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("IdenticalPayloadProducesIdenticalStatement", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		patch := &domain.SubscriberPatch{Domain: ptr("ims.example.com")}
		stmt := regexp.QuoteMeta(`INSERT INTO "ims" ("phone_number", "domain") VALUES ($1, $2) ` +
			`ON CONFLICT ("phone_number") DO UPDATE SET "domain" = EXCLUDED."domain", "phone_number" = $3`)
		for i := 0; i < 2; i++ {
			mockPool.ExpectExec(stmt).
				WithArgs(current, "ims.example.com", current).
				WillReturnResult(pgxmock.NewResult("INSERT", 1))
		}

		first, err := repo.Upsert(context.Background(), current, patch)
		require.NoError(t, err)
		second, err := repo.Upsert(context.Background(), current, patch)
		require.NoError(t, err)
		assert.Equal(t, first, second)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("EmptyPayloadOnlyTouchesKey", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		mockPool.ExpectExec(regexp.QuoteMeta(
			`INSERT INTO "ims" ("phone_number") VALUES ($1) ON CONFLICT ("phone_number") DO UPDATE SET "phone_number" = $2`)).
			WithArgs(current, current).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		_, err := repo.Upsert(context.Background(), current, &domain.SubscriberPatch{})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("RenameSucceeds", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)
		const renamed = "44444444444"

		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(renamed).WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectExec(regexp.QuoteMeta(
			`INSERT INTO "ims" ("phone_number", "password") VALUES ($1, $2) ` +
				`ON CONFLICT ("phone_number") DO UPDATE SET "password" = EXCLUDED."password", "phone_number" = $3`)).
			WithArgs(current, "new-secret", renamed).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))

		s, err := repo.Upsert(context.Background(), current, &domain.SubscriberPatch{PhoneNumber: ptr(renamed), Password: ptr("new-secret")})
		require.NoError(t, err)
		assert.Equal(t, renamed, s.PhoneNumber)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("RenameOntoExistingNumberConflictsWithoutWriting", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)
		const taken = "22222222222"

		rows := mockPool.NewRows(subscriberColumns).AddRow(taken, ptr("bob"), nil, nil, nil, nil)
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(taken).WillReturnRows(rows)

		s, err := repo.Upsert(context.Background(), current, &domain.SubscriberPatch{PhoneNumber: ptr(taken), Username: ptr("alice")})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.Nil(t, s)
		// No Exec was expected: the statement must not run.
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("UniqueViolationRaceIsConflict", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)
		const renamed = "55555555555"

		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(renamed).WillReturnError(pgx.ErrNoRows)
		mockPool.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ims"`)).
			WithArgs(current, renamed).
			WillReturnError(&pgconn.PgError{Code: "23505", ConstraintName: "ims_pkey"})

		_, err := repo.Upsert(context.Background(), current, &domain.SubscriberPatch{PhoneNumber: ptr(renamed)})
		assert.ErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("PrecheckErrorPropagates", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)
		const renamed = "66666666666"

		dbErr := errors.New("DB error")
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(renamed).WillReturnError(dbErr)

		_, err := repo.Upsert(context.Background(), current, &domain.SubscriberPatch{PhoneNumber: ptr(renamed)})
		assert.ErrorIs(t, err, dbErr)
		assert.NotErrorIs(t, err, domain.ErrConflict)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("ExecErrorPropagates", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		dbErr := &pgconn.PgError{Code: "42P01", Message: `relation "ims" does not exist`}
		mockPool.ExpectExec(regexp.QuoteMeta(`INSERT INTO "ims"`)).WithArgs(current, current).WillReturnError(dbErr)

		_, err := repo.Upsert(context.Background(), current, &domain.SubscriberPatch{})
		require.Error(t, err)
		assert.NotErrorIs(t, err, domain.ErrConflict)
		assert.Contains(t, err.Error(), "does not exist")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPgSubscriberRepository_Delete(t *testing.T) {
	const number = "11111111111"

	t.Run("DeleteThenGet", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		rows := mockPool.NewRows(subscriberColumns).AddRow(number, ptr("alice"), nil, nil, nil, nil)
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(number).WillReturnRows(rows)
		mockPool.ExpectExec(regexp.QuoteMeta(deleteSubscriberSQL)).WithArgs(number).WillReturnResult(pgxmock.NewResult("DELETE", 1))
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(number).WillReturnError(pgx.ErrNoRows)

		deleted, err := repo.Delete(context.Background(), number)
		require.NoError(t, err)
		assert.Equal(t, number, deleted)

		_, err = repo.GetByNumber(context.Background(), number)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("MissingDoesNotDelete", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(number).WillReturnError(pgx.ErrNoRows)

		deleted, err := repo.Delete(context.Background(), number)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.Empty(t, deleted)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("ConcurrentlyRemovedIsNotFound", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		rows := mockPool.NewRows(subscriberColumns).AddRow(number, nil, nil, nil, nil, nil)
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(number).WillReturnRows(rows)
		mockPool.ExpectExec(regexp.QuoteMeta(deleteSubscriberSQL)).WithArgs(number).WillReturnResult(pgxmock.NewResult("DELETE", 0))

		_, err := repo.Delete(context.Background(), number)
		assert.ErrorIs(t, err, domain.ErrNotFound)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("ExecError", func(t *testing.T) {
		repo, mockPool := newTestRepo(t)

		rows := mockPool.NewRows(subscriberColumns).AddRow(number, nil, nil, nil, nil, nil)
		mockPool.ExpectQuery(regexp.QuoteMeta(getSubscriberQuery)).WithArgs(number).WillReturnRows(rows)
		dbErr := errors.New("DB error")
		mockPool.ExpectExec(regexp.QuoteMeta(deleteSubscriberSQL)).WithArgs(number).WillReturnError(dbErr)

		_, err := repo.Delete(context.Background(), number)
		assert.ErrorIs(t, err, dbErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestBuildUpsert_QuotesIdentifiersAndBindsValues(t *testing.T) {
	hostile := `x'); DROP TABLE ims; --`
	query, args := buildUpsert("11111111111", "11111111111", &domain.SubscriberPatch{Username: &hostile})

	assert.NotContains(t, query, hostile)
	assert.Equal(t, []any{"11111111111", hostile, "11111111111"}, args)
}
