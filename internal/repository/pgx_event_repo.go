package repository

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pkg/errors"
	"github.com/stephenafamo/bob"
	"github.com/stephenafamo/bob/dialect/psql"
	"github.com/stephenafamo/bob/dialect/psql/dialect"
	"github.com/stephenafamo/bob/dialect/psql/sm"

	"github.com/dkoval/eventhub/internal/db"
)

// Event mirrors the slice of the event directory this service reads. Events
// are owned by another component; nothing here writes them.
type Event struct {
	ID                string    `db:"id"`
	Title             string    `db:"title"`
	RegistrationStart time.Time `db:"registration_start"`
	RegistrationEnd   time.Time `db:"registration_end"`
	MaxParticipants   *int      `db:"max_participants"`
	MaxTeamSize       int       `db:"max_team_size"`
	IsPublic          bool      `db:"is_public"`
}

type EventRepository interface {
	Get(ctx context.Context, eventID string) (*Event, error)
	// GetForUpdate locks the event row. Registration takes this lock before
	// counting participants so two registrations at max_participants-1 cannot
	// both pass the capacity check.
	GetForUpdate(ctx context.Context, eventID string) (*Event, error)
}

type pgxEventRepository struct {
	pool *pgxpool.Pool
}

func NewPgxEventRepository(pool *pgxpool.Pool) EventRepository {
	return &pgxEventRepository{pool: pool}
}

func (p *pgxEventRepository) Get(ctx context.Context, eventID string) (*Event, error) {
	return p.get(ctx, eventID, false)
}

func (p *pgxEventRepository) GetForUpdate(ctx context.Context, eventID string) (*Event, error) {
	return p.get(ctx, eventID, true)
}

func (p *pgxEventRepository) get(ctx context.Context, eventID string, forUpdate bool) (*Event, error) {
	e := db.GetPgxExecutorFromContext(ctx, p.pool)

	mods := []bob.Mod[*dialect.SelectQuery]{
		sm.Columns("id", "title", "registration_start", "registration_end", "max_participants", "max_team_size", "is_public"),
		sm.From("events"),
		sm.Where(psql.Quote("id").EQ(psql.Arg(eventID))),
	}
	if forUpdate {
		mods = append(mods, sm.ForUpdate())
	}

	q := psql.Select(mods...)

	sql, args, err := q.Build(ctx)
	if err != nil {
		return nil, err
	}

	event := &Event{}
	if err = e.QueryRow(ctx, sql, args...).Scan(
		&event.ID, &event.Title, &event.RegistrationStart, &event.RegistrationEnd,
		&event.MaxParticipants, &event.MaxTeamSize, &event.IsPublic,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return event, nil
}
