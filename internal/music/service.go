package music

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrMissingInput  = errors.New("input is required")
	ErrResolverNil   = errors.New("resolver is not configured")
	ErrQueueStoreNil = errors.New("queue store is not configured")
	ErrQueueFull     = errors.New("queue is full")
)

// RequeuePriority puts an item ahead of everything enqueued normally.
const RequeuePriority = -1

type Resolver interface {
	Resolve(ctx context.Context, input string) (Record, error)
}

type Service struct {
	queue        *QueueStore
	resolver     Resolver
	maxQueueSize int64
}

func NewService(queue *QueueStore, resolver Resolver, maxQueueSize int) *Service {
	return &Service{
		queue:        queue,
		resolver:     resolver,
		maxQueueSize: int64(maxQueueSize),
	}
}

func (s *Service) Resolve(ctx context.Context, input string, ownerID string) (Record, error) {
	input = strings.TrimSpace(input)
	if input == "" {
		return Record{}, ErrMissingInput
	}
	if s.resolver == nil {
		return Record{}, ErrResolverNil
	}

	rec, err := s.resolver.Resolve(ctx, input)
	if err != nil {
		return Record{}, err
	}
	rec.OwnerID = ownerID
	return rec, nil
}

func (s *Service) Enqueue(ctx context.Context, guildID string, rec Record, priority int) (QueueItem, error) {
	if s.queue == nil {
		return QueueItem{}, ErrQueueStoreNil
	}

	if s.maxQueueSize > 0 && priority != RequeuePriority {
		size, err := s.queue.Size(ctx, guildID)
		if err != nil {
			return QueueItem{}, err
		}
		if size >= s.maxQueueSize {
			return QueueItem{}, fmt.Errorf("%w: %d items", ErrQueueFull, size)
		}
	}

	rec.GuildID = guildID
	item := QueueItem{
		Record:     rec,
		Priority:   priority,
		EnqueuedAt: time.Now().UTC(),
	}

	if err := s.queue.Enqueue(ctx, guildID, item); err != nil {
		return QueueItem{}, err
	}

	return item, nil
}

func (s *Service) Dequeue(ctx context.Context, guildID string) (*QueueItem, error) {
	if s.queue == nil {
		return nil, ErrQueueStoreNil
	}
	return s.queue.Dequeue(ctx, guildID)
}

func (s *Service) List(ctx context.Context, guildID string, limit int64) ([]QueueItem, error) {
	if s.queue == nil {
		return nil, ErrQueueStoreNil
	}
	return s.queue.List(ctx, guildID, limit)
}

func (s *Service) Clear(ctx context.Context, guildID string) error {
	if s.queue == nil {
		return ErrQueueStoreNil
	}
	return s.queue.Clear(ctx, guildID)
}

func (s *Service) GetSettings(ctx context.Context, guildID string) (QueueSettings, error) {
	if s.queue == nil {
		return QueueSettings{}, ErrQueueStoreNil
	}
	return s.queue.GetSettings(ctx, guildID)
}

func (s *Service) SetSettings(ctx context.Context, guildID string, settings QueueSettings) error {
	if s.queue == nil {
		return ErrQueueStoreNil
	}
	return s.queue.SetSettings(ctx, guildID, settings)
}

func (s *Service) Validate() error {
	if s.queue == nil {
		return ErrQueueStoreNil
	}
	if s.resolver == nil {
		return ErrResolverNil
	}
	return nil
}
