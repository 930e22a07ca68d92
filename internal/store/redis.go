package store

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/google/uuid"
	redis "github.com/redis/go-redis/v9"

	"github.com/amanullahtanweer/voicememo/internal/recording"
)

// Config holds Redis connection settings.
type Config struct {
	Addr      string
	Password  string
	DB        int
	KeyPrefix string // defaults to "voicememo:"
}

// RedisStore keeps one hash per recording plus a zset index scored by
// createdAt, so listing newest-first is a single ZREVRANGE.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// New connects to Redis and verifies the connection with a ping.
func New(cfg Config) (*RedisStore, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("redis connection failed: %w", err)
	}

	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "voicememo:"
	}
	return &RedisStore{client: client, prefix: prefix}, nil
}

// NewWithClient wraps an existing client. Used by tests.
func NewWithClient(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "voicememo:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Ping reports whether the backing Redis is reachable.
func (s *RedisStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// Close releases the underlying client.
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func (s *RedisStore) recKey(id string) string {
	return s.prefix + "rec:" + id
}

func (s *RedisStore) indexKey() string {
	return s.prefix + "recs"
}

func (s *RedisStore) Insert(ctx context.Context, r recording.Recording) (recording.Recording, error) {
	r.ID = uuid.NewString()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}

	pipe := s.client.TxPipeline()
	pipe.HSet(ctx, s.recKey(r.ID), fieldMap(r))
	pipe.ZAdd(ctx, s.indexKey(), redis.Z{
		Score:  float64(r.CreatedAt.UnixNano()),
		Member: r.ID,
	})
	if _, err := pipe.Exec(ctx); err != nil {
		return recording.Recording{}, fmt.Errorf("insert recording %s: %w", r.ID, err)
	}

	r.State = r.DeriveState()
	return r, nil
}

func (s *RedisStore) FindByID(ctx context.Context, id string) (recording.Recording, error) {
	vals, err := s.client.HGetAll(ctx, s.recKey(id)).Result()
	if err != nil {
		return recording.Recording{}, fmt.Errorf("find recording %s: %w", id, err)
	}
	if len(vals) == 0 {
		return recording.Recording{}, fmt.Errorf("find recording %s: %w", id, recording.ErrNotFound)
	}
	return fromFieldMap(id, vals), nil
}

func (s *RedisStore) ListAll(ctx context.Context) ([]recording.Recording, error) {
	ids, err := s.client.ZRevRange(ctx, s.indexKey(), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("list recordings: %w", err)
	}

	out := make([]recording.Recording, 0, len(ids))
	for _, id := range ids {
		rec, err := s.FindByID(ctx, id)
		if err != nil {
			// Index entry without a hash means a torn delete; skip it.
			if errors.Is(err, recording.ErrNotFound) {
				continue
			}
			return nil, err
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Update(ctx context.Context, id string, p recording.Patch) (recording.Recording, error) {
	if _, err := s.FindByID(ctx, id); err != nil {
		return recording.Recording{}, err
	}

	fields := map[string]any{}
	if p.Transcription != nil {
		fields["transcription"] = *p.Transcription
	}
	if p.LastError != nil {
		fields["last_error"] = *p.LastError
	}
	if len(fields) > 0 {
		if err := s.client.HSet(ctx, s.recKey(id), fields).Err(); err != nil {
			return recording.Recording{}, fmt.Errorf("update recording %s: %w", id, err)
		}
	}
	return s.FindByID(ctx, id)
}

func (s *RedisStore) DeleteByID(ctx context.Context, id string) error {
	if _, err := s.FindByID(ctx, id); err != nil {
		return err
	}

	pipe := s.client.TxPipeline()
	pipe.Del(ctx, s.recKey(id))
	pipe.ZRem(ctx, s.indexKey(), id)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("delete recording %s: %w", id, err)
	}
	return nil
}

func fieldMap(r recording.Recording) map[string]any {
	return map[string]any{
		"title":         r.Title,
		"audio_url":     r.AudioURL,
		"store_handle":  r.StoreHandle,
		"transcription": r.Transcription,
		"last_error":    r.LastError,
		"checksum":      r.Checksum,
		"size_bytes":    strconv.FormatInt(r.SizeBytes, 10),
		"content_type":  r.ContentType,
		"created_at":    r.CreatedAt.Format(time.RFC3339Nano),
	}
}

func fromFieldMap(id string, vals map[string]string) recording.Recording {
	size, _ := strconv.ParseInt(vals["size_bytes"], 10, 64)
	created, _ := time.Parse(time.RFC3339Nano, vals["created_at"])

	r := recording.Recording{
		ID:            id,
		Title:         vals["title"],
		AudioURL:      vals["audio_url"],
		StoreHandle:   vals["store_handle"],
		Transcription: vals["transcription"],
		LastError:     vals["last_error"],
		Checksum:      vals["checksum"],
		SizeBytes:     size,
		ContentType:   vals["content_type"],
		CreatedAt:     created,
	}
	r.State = r.DeriveState()
	return r
}
