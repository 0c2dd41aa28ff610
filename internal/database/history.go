package database

import (
	"context"
	"database/sql"
	"time"
)

type Announcement struct {
	ID          int64
	GuildID     string
	Title       string
	AnnouncedAt time.Time
}

type HistoryRepository struct {
	db *sql.DB
}

func NewHistoryRepository() *HistoryRepository {
	return &HistoryRepository{db: GetDB()}
}

func NewHistoryRepositoryWithDB(db *sql.DB) *HistoryRepository {
	return &HistoryRepository{db: db}
}

func (r *HistoryRepository) Record(ctx context.Context, guildID, title string) error {
	if r == nil || r.db == nil || guildID == "" || title == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	const query = `
		INSERT INTO now_playing_history (guild_id, title, announced_at)
		VALUES ($1, $2, NOW())
	`

	_, err := r.db.ExecContext(ctx, query, guildID, title)
	return err
}

// Recent returns the latest announcements for guildID, newest first.
func (r *HistoryRepository) Recent(ctx context.Context, guildID string, limit int) ([]Announcement, error) {
	if r == nil || r.db == nil || guildID == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 10
	}

	ctx, cancel := context.WithTimeout(ctx, repoTimeout)
	defer cancel()

	const query = `
		SELECT id, guild_id, title, announced_at
		FROM now_playing_history
		WHERE guild_id = $1
		ORDER BY announced_at DESC, id DESC
		LIMIT $2
	`

	rows, err := r.db.QueryContext(ctx, query, guildID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Announcement
	for rows.Next() {
		var a Announcement
		if err := rows.Scan(&a.ID, &a.GuildID, &a.Title, &a.AnnouncedAt); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}
