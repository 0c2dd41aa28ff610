package database

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

const repoTimeout = 2 * time.Second

// Binding ties a guild to the voice channel the radio plays in and the
// text channel that receives now-playing announcements.
type Binding struct {
	GuildID        string
	VoiceChannelID string
	TextChannelID  string
	StreamURL      string
	UpdatedAt      time.Time
}

type BindingRepository struct {
	db *sql.DB
}

func NewBindingRepository() *BindingRepository {
	return &BindingRepository{db: GetDB()}
}

func NewBindingRepositoryWithDB(db *sql.DB) *BindingRepository {
	return &BindingRepository{db: db}
}

func (r *BindingRepository) Upsert(b Binding) error {
	if r == nil || r.db == nil {
		return nil
	}
	if b.GuildID == "" || b.VoiceChannelID == "" || b.TextChannelID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()

	const query = `
		INSERT INTO radio_bindings (guild_id, voice_channel_id, text_channel_id, stream_url, updated_at)
		VALUES ($1, $2, $3, $4, NOW())
		ON CONFLICT (guild_id)
		DO UPDATE SET
			voice_channel_id = EXCLUDED.voice_channel_id,
			text_channel_id = EXCLUDED.text_channel_id,
			stream_url = EXCLUDED.stream_url,
			updated_at = NOW();
	`

	_, err := r.db.ExecContext(ctx, query, b.GuildID, b.VoiceChannelID, b.TextChannelID, b.StreamURL)
	return err
}

func (r *BindingRepository) Get(guildID string) (Binding, bool, error) {
	if r == nil || r.db == nil || guildID == "" {
		return Binding{}, false, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()

	const query = `
		SELECT guild_id, voice_channel_id, text_channel_id, stream_url, updated_at
		FROM radio_bindings
		WHERE guild_id = $1
	`

	var b Binding
	err := r.db.QueryRowContext(ctx, query, guildID).
		Scan(&b.GuildID, &b.VoiceChannelID, &b.TextChannelID, &b.StreamURL, &b.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Binding{}, false, nil
		}
		return Binding{}, false, err
	}

	return b, true, nil
}

// List returns every binding, used to rejoin radio channels on start-up.
func (r *BindingRepository) List() ([]Binding, error) {
	if r == nil || r.db == nil {
		return nil, nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()

	const query = `
		SELECT guild_id, voice_channel_id, text_channel_id, stream_url, updated_at
		FROM radio_bindings
		ORDER BY guild_id
	`

	rows, err := r.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bindings []Binding
	for rows.Next() {
		var b Binding
		if err := rows.Scan(&b.GuildID, &b.VoiceChannelID, &b.TextChannelID, &b.StreamURL, &b.UpdatedAt); err != nil {
			return nil, err
		}
		bindings = append(bindings, b)
	}
	return bindings, rows.Err()
}

func (r *BindingRepository) Delete(guildID string) error {
	if r == nil || r.db == nil || guildID == "" {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), repoTimeout)
	defer cancel()

	_, err := r.db.ExecContext(ctx, `DELETE FROM radio_bindings WHERE guild_id = $1`, guildID)
	return err
}
