package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// FileMarkerStore keeps the freshness marker as plain text in one file.
type FileMarkerStore struct {
	path string
}

func NewFileMarkerStore(path string) *FileMarkerStore {
	return &FileMarkerStore{path: path}
}

func (s *FileMarkerStore) Get(_ context.Context) (string, bool, error) {
	b, err := os.ReadFile(s.path)
	if errors.Is(err, os.ErrNotExist) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("marker: read %q: %w", s.path, err)
	}
	return strings.TrimSpace(string(b)), true, nil
}

// Set replaces the file through a rename so readers never see a partial value.
func (s *FileMarkerStore) Set(_ context.Context, marker string) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("marker: create dir: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".marker-*")
	if err != nil {
		return fmt.Errorf("marker: temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.WriteString(marker); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("marker: write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("marker: close: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("marker: rename: %w", err)
	}
	return nil
}

// RedisMarkerStore keeps the freshness marker under a single Redis key.
type RedisMarkerStore struct {
	client *redis.Client
	key    string
}

func NewRedisMarkerStore(client *redis.Client, key string) *RedisMarkerStore {
	return &RedisMarkerStore{client: client, key: key}
}

func (s *RedisMarkerStore) Get(ctx context.Context) (string, bool, error) {
	val, err := s.client.Get(ctx, s.key).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("marker: redis get: %w", err)
	}
	return val, true, nil
}

func (s *RedisMarkerStore) Set(ctx context.Context, marker string) error {
	if err := s.client.Set(ctx, s.key, marker, 0).Err(); err != nil {
		return fmt.Errorf("marker: redis set: %w", err)
	}
	return nil
}

// ConnectRedis parses url, applies default timeouts and pings the server.
func ConnectRedis(ctx context.Context, url string) (*redis.Client, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("redis: parse url: %w", err)
	}
	if opt.DialTimeout == 0 {
		opt.DialTimeout = 5 * time.Second
	}
	if opt.ReadTimeout == 0 {
		opt.ReadTimeout = 5 * time.Second
	}
	if opt.WriteTimeout == 0 {
		opt.WriteTimeout = 5 * time.Second
	}
	if opt.MaxRetries == 0 {
		opt.MaxRetries = 2
	}

	client := redis.NewClient(opt)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis: ping: %w", err)
	}
	return client, nil
}

// ErrLocked is returned by RedisLock.Acquire when another run holds the lock.
var ErrLocked = errors.New("ingestion run already in progress")

// RedisLock is a run-level mutex so two ingestion runs never overlap.
type RedisLock struct {
	client *redis.Client
	key    string
	ttl    time.Duration
	token  string
}

func NewRedisLock(client *redis.Client, key string, ttl time.Duration) *RedisLock {
	return &RedisLock{client: client, key: key, ttl: ttl, token: uuid.NewString()}
}

// Acquire takes the lock or returns ErrLocked.
func (l *RedisLock) Acquire(ctx context.Context) error {
	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return fmt.Errorf("lock: setnx: %w", err)
	}
	if !ok {
		return ErrLocked
	}
	return nil
}

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)

// Release drops the lock only if this holder still owns it.
func (l *RedisLock) Release(ctx context.Context) error {
	if err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err(); err != nil {
		return fmt.Errorf("lock: release: %w", err)
	}
	return nil
}
