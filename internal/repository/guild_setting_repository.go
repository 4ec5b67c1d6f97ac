package repository

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/spec-kit/modmail-bridge/internal/domain"
)

// GuildSettingRepository manages per-destination configuration.
type GuildSettingRepository interface {
	Upsert(ctx context.Context, setting *domain.GuildSetting) error
	GetByGuild(ctx context.Context, guildID string) (*domain.GuildSetting, error)
	GetDefault(ctx context.Context) (*domain.GuildSetting, error)
	List(ctx context.Context) ([]domain.GuildSetting, error)
	Delete(ctx context.Context, guildID string) error
	SetDefault(ctx context.Context, guildID string) error
}

type guildSettingRepository struct {
	pool *pgxpool.Pool
}

// NewGuildSettingRepository builds repository.
func NewGuildSettingRepository(pool *pgxpool.Pool) GuildSettingRepository {
	return &guildSettingRepository{pool: pool}
}

const guildSettingColumns = `guild_id, name, category_id, staff_role_id, log_channel_id, is_default, created_at`

func (r *guildSettingRepository) Upsert(ctx context.Context, setting *domain.GuildSetting) error {
	const query = `
        INSERT INTO guild_settings (guild_id, name, category_id, staff_role_id, log_channel_id, is_default)
        VALUES ($1,$2,$3,$4,$5,$6)
        ON CONFLICT (guild_id) DO UPDATE SET
            name=EXCLUDED.name,
            category_id=EXCLUDED.category_id,
            staff_role_id=EXCLUDED.staff_role_id,
            log_channel_id=EXCLUDED.log_channel_id
        RETURNING created_at`
	return r.pool.QueryRow(ctx, query,
		setting.GuildID,
		setting.Name,
		setting.CategoryID,
		setting.StaffRoleID,
		setting.LogChannelID,
		setting.IsDefault,
	).Scan(&setting.CreatedAt)
}

func (r *guildSettingRepository) GetByGuild(ctx context.Context, guildID string) (*domain.GuildSetting, error) {
	query := `SELECT ` + guildSettingColumns + ` FROM guild_settings WHERE guild_id=$1`
	return r.fetchSingle(ctx, query, guildID)
}

func (r *guildSettingRepository) GetDefault(ctx context.Context) (*domain.GuildSetting, error) {
	query := `SELECT ` + guildSettingColumns + ` FROM guild_settings WHERE is_default LIMIT 1`
	return r.fetchSingle(ctx, query)
}

func (r *guildSettingRepository) List(ctx context.Context) ([]domain.GuildSetting, error) {
	query := `SELECT ` + guildSettingColumns + ` FROM guild_settings ORDER BY created_at ASC`
	rows, err := r.pool.Query(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []domain.GuildSetting
	for rows.Next() {
		var setting domain.GuildSetting
		if err := rows.Scan(
			&setting.GuildID,
			&setting.Name,
			&setting.CategoryID,
			&setting.StaffRoleID,
			&setting.LogChannelID,
			&setting.IsDefault,
			&setting.CreatedAt,
		); err != nil {
			return nil, err
		}
		result = append(result, setting)
	}
	return result, rows.Err()
}

func (r *guildSettingRepository) Delete(ctx context.Context, guildID string) error {
	cmd, err := r.pool.Exec(ctx, `DELETE FROM guild_settings WHERE guild_id=$1`, guildID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

// SetDefault flips the default flag to the given guild, clearing the previous
// holder in the same transaction so the partial unique index never trips.
func (r *guildSettingRepository) SetDefault(ctx context.Context, guildID string) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, `UPDATE guild_settings SET is_default=FALSE WHERE is_default`); err != nil {
		return err
	}
	cmd, err := tx.Exec(ctx, `UPDATE guild_settings SET is_default=TRUE WHERE guild_id=$1`, guildID)
	if err != nil {
		return err
	}
	if cmd.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return tx.Commit(ctx)
}

func (r *guildSettingRepository) fetchSingle(ctx context.Context, query string, args ...any) (*domain.GuildSetting, error) {
	var setting domain.GuildSetting
	if err := r.pool.QueryRow(ctx, query, args...).Scan(
		&setting.GuildID,
		&setting.Name,
		&setting.CategoryID,
		&setting.StaffRoleID,
		&setting.LogChannelID,
		&setting.IsDefault,
		&setting.CreatedAt,
	); err != nil {
		return nil, err
	}
	return &setting, nil
}
