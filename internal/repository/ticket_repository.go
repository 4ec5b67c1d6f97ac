package repository

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/modmail-bridge/internal/domain"
)

// ErrOpenTicketExists signals that the partial unique index rejected a second
// open ticket for the same (user, guild) pair. Callers refetch and reuse the
// winning row.
var ErrOpenTicketExists = errors.New("an open ticket already exists for this user and guild")

// TicketFilter captures dashboard search parameters.
type TicketFilter struct {
	UserID   *string
	GuildIDs []string
	Statuses []domain.TicketStatus
	Limit    int
	Offset   int
}

// TicketStats aggregates dashboard counters.
type TicketStats struct {
	Total        int64
	Open         int64
	Closed       int64
	CreatedToday int64
	CreatedWeek  int64
}

// TicketRepository encapsulates ticket persistence.
type TicketRepository interface {
	Create(ctx context.Context, ticket *domain.Ticket) error
	Update(ctx context.Context, ticket *domain.Ticket) error
	Delete(ctx context.Context, id string) error
	GetByID(ctx context.Context, id string) (*domain.Ticket, error)
	GetOpenByPair(ctx context.Context, userID, guildID string) (*domain.Ticket, error)
	GetOpenByChannel(ctx context.Context, channelID string) (*domain.Ticket, error)
	ListOpenByUser(ctx context.Context, userID string) ([]domain.Ticket, error)
	ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error)
	Stats(ctx context.Context, guildIDs []string) (*TicketStats, error)
}

type ticketRepository struct {
	pool *pgxpool.Pool
}

// NewTicketRepository instantiates repository.
func NewTicketRepository(pool *pgxpool.Pool) TicketRepository {
	return &ticketRepository{pool: pool}
}

const ticketColumns = `id, user_id, guild_id, channel_id, status, priority, category,
       claimed_by, claimed_at, closed_by, closed_at, notes, created_at`

func (r *ticketRepository) Create(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        INSERT INTO tickets (user_id, guild_id, channel_id, status, priority, category, notes)
        VALUES ($1,$2,$3,$4,$5,$6,$7)
        RETURNING id, created_at`
	notes := ticket.Notes
	if notes == nil {
		notes = []domain.TicketNote{}
	}
	err := r.pool.QueryRow(ctx, query,
		ticket.UserID,
		ticket.GuildID,
		ticket.ChannelID,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		notes,
	).Scan(&ticket.ID, &ticket.CreatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return ErrOpenTicketExists
		}
		return err
	}
	return nil
}

func (r *ticketRepository) Update(ctx context.Context, ticket *domain.Ticket) error {
	const query = `
        UPDATE tickets SET channel_id=$1, status=$2, priority=$3, category=$4,
            claimed_by=$5, claimed_at=$6, closed_by=$7, closed_at=$8, notes=$9
        WHERE id=$10`
	notes := ticket.Notes
	if notes == nil {
		notes = []domain.TicketNote{}
	}
	cmd, err := r.pool.Exec(ctx, query,
		ticket.ChannelID,
		ticket.Status,
		ticket.Priority,
		ticket.Category,
		ticket.ClaimedBy,
		ticket.ClaimedAt,
		ticket.ClosedBy,
		ticket.ClosedAt,
		notes,
		ticket.ID,
	)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) Delete(ctx context.Context, id string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM tickets WHERE id=$1`, id)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *ticketRepository) GetByID(ctx context.Context, id string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE id=$1`, ticketColumns)
	return r.fetchSingle(ctx, query, id)
}

func (r *ticketRepository) GetOpenByPair(ctx context.Context, userID, guildID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE user_id=$1 AND guild_id=$2 AND status='OPEN'`, ticketColumns)
	return r.fetchSingle(ctx, query, userID, guildID)
}

func (r *ticketRepository) GetOpenByChannel(ctx context.Context, channelID string) (*domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE channel_id=$1 AND status='OPEN'`, ticketColumns)
	return r.fetchSingle(ctx, query, channelID)
}

func (r *ticketRepository) ListOpenByUser(ctx context.Context, userID string) ([]domain.Ticket, error) {
	query := fmt.Sprintf(`SELECT %s FROM tickets WHERE user_id=$1 AND status='OPEN' ORDER BY created_at ASC`, ticketColumns)
	rows, err := r.pool.Query(ctx, query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.Ticket, error) {
	var ticket domain.Ticket
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&ticket.ID,
		&ticket.UserID,
		&ticket.GuildID,
		&ticket.ChannelID,
		&ticket.Status,
		&ticket.Priority,
		&ticket.Category,
		&ticket.ClaimedBy,
		&ticket.ClaimedAt,
		&ticket.ClosedBy,
		&ticket.ClosedAt,
		&ticket.Notes,
		&ticket.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &ticket, nil
}

func (r *ticketRepository) ListWithFilter(ctx context.Context, filter TicketFilter) ([]domain.Ticket, error) {
	base := fmt.Sprintf(`SELECT %s FROM tickets`, ticketColumns)
	clauses := []string{"1=1"}
	args := []any{}

	if filter.UserID != nil {
		args = append(args, *filter.UserID)
		clauses = append(clauses, fmt.Sprintf("user_id=$%d", len(args)))
	}
	if len(filter.GuildIDs) > 0 {
		args = append(args, filter.GuildIDs)
		clauses = append(clauses, fmt.Sprintf("guild_id=ANY($%d)", len(args)))
	}
	if len(filter.Statuses) > 0 {
		placeholders := make([]string, len(filter.Statuses))
		for i, status := range filter.Statuses {
			args = append(args, status)
			placeholders[i] = fmt.Sprintf("$%d", len(args))
		}
		clauses = append(clauses, fmt.Sprintf("status IN (%s)", strings.Join(placeholders, ",")))
	}

	limit := filter.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}

	query := fmt.Sprintf(`%s WHERE %s ORDER BY created_at DESC LIMIT %d OFFSET %d`,
		base, strings.Join(clauses, " AND "), limit, offset)

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanTickets(rows)
}

func (r *ticketRepository) Stats(ctx context.Context, guildIDs []string) (*TicketStats, error) {
	query := `
        SELECT COUNT(*),
               COUNT(*) FILTER (WHERE status='OPEN'),
               COUNT(*) FILTER (WHERE status='CLOSED'),
               COUNT(*) FILTER (WHERE created_at >= date_trunc('day', NOW())),
               COUNT(*) FILTER (WHERE created_at >= date_trunc('week', NOW()))
        FROM tickets`
	args := []any{}
	if len(guildIDs) > 0 {
		query += ` WHERE guild_id=ANY($1)`
		args = append(args, guildIDs)
	}

	var stats TicketStats
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&stats.Total,
		&stats.Open,
		&stats.Closed,
		&stats.CreatedToday,
		&stats.CreatedWeek,
	); err != nil {
		return nil, err
	}
	return &stats, nil
}

func scanTickets(rows pgx.Rows) ([]domain.Ticket, error) {
	var result []domain.Ticket
	for rows.Next() {
		var ticket domain.Ticket
		if err := rows.Scan(
			&ticket.ID,
			&ticket.UserID,
			&ticket.GuildID,
			&ticket.ChannelID,
			&ticket.Status,
			&ticket.Priority,
			&ticket.Category,
			&ticket.ClaimedBy,
			&ticket.ClaimedAt,
			&ticket.ClosedBy,
			&ticket.ClosedAt,
			&ticket.Notes,
			&ticket.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, ticket)
	}
	return result, rows.Err()
}
