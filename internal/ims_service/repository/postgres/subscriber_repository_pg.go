package postgres

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/aradsms/ims_service/internal/ims_service/domain"
	"github.com/aradsms/ims_service/internal/ims_service/repository"
)

const uniqueViolation = "23505"

const (
	listSubscribersQuery = `SELECT phone_number, username, password, domain, status, features FROM ims ORDER BY phone_number`
	getSubscriberQuery   = `SELECT phone_number, username, password, domain, status, features FROM ims WHERE phone_number = $1`
	deleteSubscriberSQL  = `DELETE FROM ims WHERE phone_number = $1`
)

type PgSubscriberRepository struct {
	db     repository.Querier
	logger *slog.Logger
}

func NewPgSubscriberRepository(db repository.Querier, logger *slog.Logger) *PgSubscriberRepository {
	return &PgSubscriberRepository{db: db, logger: logger.With("component", "subscriber_repository_pg")}
}

var _ domain.SubscriberRepository = (*PgSubscriberRepository)(nil)

func (r *PgSubscriberRepository) ListAll(ctx context.Context) (subs []*domain.Subscriber, err error) {
	defer func(start time.Time) { observe("list_all", start, err) }(time.Now())

	rows, err := r.db.Query(ctx, listSubscribersQuery)
	if err != nil {
		return nil, fmt.Errorf("listing subscribers: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSubscriber(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning subscriber row: %w", err)
		}
		subs = append(subs, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating subscriber rows: %w", err)
	}

	if len(subs) == 0 {
		r.logger.DebugContext(ctx, "No subscribers stored")
		return nil, domain.ErrNotFound
	}
	return subs, nil
}

func (r *PgSubscriberRepository) GetByNumber(ctx context.Context, phoneNumber string) (s *domain.Subscriber, err error) {
	defer func(start time.Time) { observe("get_by_number", start, err) }(time.Now())

	s, err = scanSubscriber(r.db.QueryRow(ctx, getSubscriberQuery, phoneNumber))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.DebugContext(ctx, "Subscriber not found", "phone_number", phoneNumber)
			return nil, domain.ErrNotFound
		}
		return nil, fmt.Errorf("getting subscriber %s: %w", phoneNumber, err)
	}
	return s, nil
}

// Upsert writes patch at currentPhoneNumber with a single INSERT ... ON CONFLICT
// statement. Only the columns present in patch are set on conflict, so absent
// fields keep their stored values. A rename is checked against existing records
// first; the unique constraint on phone_number still decides concurrent races.
func (r *PgSubscriberRepository) Upsert(ctx context.Context, currentPhoneNumber string, patch *domain.SubscriberPatch) (s *domain.Subscriber, err error) {
	defer func(start time.Time) { observe("upsert", start, err) }(time.Now())

	target, rename := patch.RenameTarget(currentPhoneNumber)
	if rename {
		_, err := r.GetByNumber(ctx, target)
		switch {
		case err == nil:
			r.logger.WarnContext(ctx, "Rename target already exists", "phone_number", currentPhoneNumber, "new_phone_number", target)
			return nil, domain.ErrConflict
		case !errors.Is(err, domain.ErrNotFound):
			return nil, fmt.Errorf("checking rename target %s: %w", target, err)
		}
	}

	query, args := buildUpsert(currentPhoneNumber, target, patch)
	if _, err := r.db.Exec(ctx, query, args...); err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolation {
			r.logger.WarnContext(ctx, "Unique violation on upsert", "phone_number", currentPhoneNumber, "new_phone_number", target, "constraint", pgErr.ConstraintName)
			return nil, domain.ErrConflict
		}
		return nil, fmt.Errorf("upserting subscriber %s: %w", currentPhoneNumber, err)
	}

	r.logger.InfoContext(ctx, "Inserted or updated subscriber", "phone_number", currentPhoneNumber, "renamed", rename, "new_phone_number", target)
	return patch.Subscriber(currentPhoneNumber), nil
}

func (r *PgSubscriberRepository) Delete(ctx context.Context, phoneNumber string) (deleted string, err error) {
	defer func(start time.Time) { observe("delete", start, err) }(time.Now())

	if _, err := r.GetByNumber(ctx, phoneNumber); err != nil {
		return "", err
	}

	tag, err := r.db.Exec(ctx, deleteSubscriberSQL, phoneNumber)
	if err != nil {
		return "", fmt.Errorf("deleting subscriber %s: %w", phoneNumber, err)
	}
	if tag.RowsAffected() == 0 {
		// Removed by someone else between the check and the delete.
		return "", domain.ErrNotFound
	}

	r.logger.InfoContext(ctx, "Deleted subscriber", "phone_number", phoneNumber)
	return phoneNumber, nil
}

// buildUpsert renders the upsert statement. Identifiers come from the fixed
// field table and are quoted; every value is a bind parameter.
func buildUpsert(currentPhoneNumber, target string, patch *domain.SubscriberPatch) (string, []any) {
	key := pgx.Identifier{domain.KeyColumn}.Sanitize()

	columns := []string{key}
	placeholders := []string{"$1"}
	args := []any{currentPhoneNumber}
	var sets []string

	for _, cv := range patch.Columns() {
		col := pgx.Identifier{cv.Column}.Sanitize()
		args = append(args, cv.Value)
		columns = append(columns, col)
		placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", col, col))
	}

	args = append(args, target)
	sets = append(sets, fmt.Sprintf("%s = $%d", key, len(args)))

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s) ON CONFLICT (%s) DO UPDATE SET %s",
		pgx.Identifier{domain.TableName}.Sanitize(),
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		key,
		strings.Join(sets, ", "),
	)
	return query, args
}

func scanSubscriber(row pgx.Row) (*domain.Subscriber, error) {
	s := &domain.Subscriber{}
	var features []byte
	if err := row.Scan(&s.PhoneNumber, &s.Username, &s.Password, &s.Domain, &s.Status, &features); err != nil {
		return nil, err
	}
	if features != nil {
		s.Features = features
	}
	return s, nil
}
