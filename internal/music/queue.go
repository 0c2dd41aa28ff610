package music

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	internalredis "github.com/hxnx/cardinal/internal/redis"
	redislib "github.com/redis/go-redis/v9"
)

var (
	ErrQueueEmpty    = errors.New("queue is empty")
	ErrGuildRequired = errors.New("guild id is required")
)

const (
	queueKeyPrefix    = "cardinal:queue:"
	settingsKeyPrefix = "cardinal:settings:"
	priorityWeight    = int64(1_000_000_000_000)
)

// QueueStore keeps per-guild queues as Redis sorted sets ordered by
// priority, then enqueue time.
type QueueStore struct {
	client        *redislib.Client
	defaultVolume int
}

func NewQueueStore(client *redislib.Client, defaultVolume int) *QueueStore {
	return &QueueStore{client: client, defaultVolume: defaultVolume}
}

func (q *QueueStore) ensureClient() error {
	if q.client != nil {
		return nil
	}

	q.client = internalredis.Client()
	if q.client == nil {
		return fmt.Errorf("redis client is nil")
	}

	return nil
}

func (q *QueueStore) prepare(guildID string) error {
	if err := q.ensureClient(); err != nil {
		return err
	}
	if guildID == "" {
		return ErrGuildRequired
	}
	return nil
}

func (q *QueueStore) Enqueue(ctx context.Context, guildID string, item QueueItem) error {
	if err := q.prepare(guildID); err != nil {
		return err
	}
	if item.EnqueuedAt.IsZero() {
		item.EnqueuedAt = time.Now().UTC()
	}

	payload, err := json.Marshal(item)
	if err != nil {
		return err
	}

	return q.client.ZAdd(ctx, queueKey(guildID), redislib.Z{
		Score:  buildScore(item.Priority, item.EnqueuedAt),
		Member: payload,
	}).Err()
}

func (q *QueueStore) Dequeue(ctx context.Context, guildID string) (*QueueItem, error) {
	if err := q.prepare(guildID); err != nil {
		return nil, err
	}

	results, err := q.client.ZPopMin(ctx, queueKey(guildID), 1).Result()
	if err != nil {
		return nil, err
	}
	if len(results) == 0 {
		return nil, ErrQueueEmpty
	}

	return decodeQueueItem(results[0].Member)
}

func (q *QueueStore) List(ctx context.Context, guildID string, limit int64) ([]QueueItem, error) {
	if err := q.prepare(guildID); err != nil {
		return nil, err
	}

	stop := int64(-1)
	if limit > 0 {
		stop = limit - 1
	}

	results, err := q.client.ZRange(ctx, queueKey(guildID), 0, stop).Result()
	if err != nil {
		return nil, err
	}

	items := make([]QueueItem, 0, len(results))
	for _, raw := range results {
		item, err := decodeQueueItem(raw)
		if err != nil {
			return nil, err
		}
		items = append(items, *item)
	}

	return items, nil
}

func (q *QueueStore) Size(ctx context.Context, guildID string) (int64, error) {
	if err := q.prepare(guildID); err != nil {
		return 0, err
	}

	return q.client.ZCard(ctx, queueKey(guildID)).Result()
}

func (q *QueueStore) Clear(ctx context.Context, guildID string) error {
	if err := q.prepare(guildID); err != nil {
		return err
	}

	return q.client.Del(ctx, queueKey(guildID)).Err()
}

func (q *QueueStore) GetSettings(ctx context.Context, guildID string) (QueueSettings, error) {
	if err := q.prepare(guildID); err != nil {
		return QueueSettings{}, err
	}

	data, err := q.client.HGetAll(ctx, settingsKey(guildID)).Result()
	if err != nil {
		return QueueSettings{}, err
	}

	return decodeSettings(data, q.defaultVolume), nil
}

func (q *QueueStore) SetSettings(ctx context.Context, guildID string, settings QueueSettings) error {
	if err := q.prepare(guildID); err != nil {
		return err
	}

	return q.client.HSet(ctx, settingsKey(guildID), encodeSettings(settings)).Err()
}

func decodeSettings(data map[string]string, defaultVolume int) QueueSettings {
	settings := QueueSettings{
		RepeatMode: RepeatModeNone,
		Volume:     defaultVolume,
	}

	if v, ok := data["repeat_mode"]; ok && v != "" {
		settings.RepeatMode = RepeatMode(v)
	}
	if v, ok := data["volume"]; ok && v != "" {
		if parsed, err := strconv.Atoi(v); err == nil {
			settings.Volume = ClampVolume(parsed)
		}
	}

	return settings
}

func encodeSettings(settings QueueSettings) map[string]interface{} {
	return map[string]interface{}{
		"repeat_mode": string(settings.RepeatMode),
		"volume":      strconv.Itoa(ClampVolume(settings.Volume)),
	}
}

// ClampVolume bounds a volume percentage to 0..100.
func ClampVolume(percent int) int {
	return max(0, min(100, percent))
}

func queueKey(guildID string) string {
	return queueKeyPrefix + guildID
}

func settingsKey(guildID string) string {
	return settingsKeyPrefix + guildID
}

func buildScore(priority int, enqueuedAt time.Time) float64 {
	if enqueuedAt.IsZero() {
		enqueuedAt = time.Now().UTC()
	}

	millis := enqueuedAt.UnixMilli()
	score := int64(priority)*priorityWeight + millis
	return float64(score)
}

func decodeQueueItem(raw interface{}) (*QueueItem, error) {
	var b []byte
	switch v := raw.(type) {
	case string:
		b = []byte(v)
	case []byte:
		b = v
	default:
		return nil, fmt.Errorf("unexpected queue payload type: %T", raw)
	}

	var item QueueItem
	if err := json.Unmarshal(b, &item); err != nil {
		return nil, err
	}

	return &item, nil
}
