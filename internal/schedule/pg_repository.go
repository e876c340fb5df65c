package schedule

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/hackgods/provider-slot-booking/internal/db"
)

type PgRepository struct {
	pool *pgxpool.Pool
}

func NewPgRepository(pool *pgxpool.Pool) *PgRepository {
	return &PgRepository{pool: pool}
}

const calendarColumns = `id, provider_id, schedule_date, slots, created_at, updated_at`

func scanCalendar(row pgx.Row) (*Calendar, error) {
	var c Calendar

	err := row.Scan(
		&c.ID,
		&c.ProviderID,
		&c.ScheduleDate,
		&c.Slots,
		&c.CreatedAt,
		&c.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrScheduleNotFound
		}
		return nil, err
	}

	if c.Slots == nil {
		c.Slots = map[string]bool{}
	}
	return &c, nil
}

func (r *PgRepository) CreateCalendar(ctx context.Context, cal Calendar) (*Calendar, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		INSERT INTO provider_time_slots (provider_id, schedule_date, slots, created_at, updated_at)
		VALUES ($1, $2::date, $3, now(), now())
		RETURNING `+calendarColumns,
		cal.ProviderID, cal.ScheduleDate.Format(DateLayout), cal.Slots)

	created, err := scanCalendar(row)
	if err != nil {
		if db.IsUniqueViolation(err) {
			return nil, ErrDuplicateSchedule
		}
		return nil, fmt.Errorf("insert calendar: %w", err)
	}
	return created, nil
}

func (r *PgRepository) GetCalendar(ctx context.Context, providerID int64, date time.Time) (*Calendar, error) {
	row := db.Conn(ctx, r.pool).QueryRow(ctx, `
		SELECT `+calendarColumns+`
		FROM provider_time_slots
		WHERE provider_id = $1
		  AND schedule_date = $2::date
	`, providerID, date.Format(DateLayout))
	return scanCalendar(row)
}

func (r *PgRepository) ListCalendarsFrom(ctx context.Context, providerID int64, from time.Time) ([]Calendar, error) {
	rows, err := db.Conn(ctx, r.pool).Query(ctx, `
		SELECT `+calendarColumns+`
		FROM provider_time_slots
		WHERE provider_id = $1
		  AND schedule_date >= $2::date
		ORDER BY schedule_date
	`, providerID, from.Format(DateLayout))
	if err != nil {
		return nil, fmt.Errorf("list calendars: %w", err)
	}
	defer rows.Close()

	result := []Calendar{}
	for rows.Next() {
		c, err := scanCalendar(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, *c)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return result, nil
}

// CompareAndSetSlot relies on the row lock taken by UPDATE: a concurrent
// writer blocks, then re-evaluates the WHERE clause against the committed
// value, so two reservations can never both match.
func (r *PgRepository) CompareAndSetSlot(ctx context.Context, providerID int64, date time.Time, key string, expected *bool, available bool) (bool, error) {
	tag, err := db.Conn(ctx, r.pool).Exec(ctx, `
		UPDATE provider_time_slots
		SET slots = jsonb_set(slots, ARRAY[$3::text], to_jsonb($4::boolean)),
		    updated_at = now()
		WHERE provider_id = $1
		  AND schedule_date = $2::date
		  AND slots ? $3::text
		  AND ($5::boolean IS NULL OR (slots ->> $3::text)::boolean = $5::boolean)
	`, providerID, date.Format(DateLayout), key, available, expected)
	if err != nil {
		return false, fmt.Errorf("update slot %s: %w", key, err)
	}

	return tag.RowsAffected() == 1, nil
}
