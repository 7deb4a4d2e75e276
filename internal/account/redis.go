package account

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// redisKeyPrefix はアカウントを格納するRedisキーの接頭辞。
const redisKeyPrefix = "pestsignal:account:"

// redisAccount はRedisに保存するアカウントのJSON表現。
type redisAccount struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	PINHash   string    `json:"pin_hash"`
	CreatedAt time.Time `json:"created_at"`
}

// RedisStore はRedisをバックエンドとするStore実装。
// ユーザー名をキーにしたSETNXで作成するため、一意性の確認と書き込みが原子的に行われる。
type RedisStore struct {
	client *redis.Client
}

var _ Store = (*RedisStore)(nil)

// NewRedisStore はRedisのURLで接続し、疎通確認を行ったRedisStoreを返す。
func NewRedisStore(ctx context.Context, url string) (*RedisStore, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("RedisのURLが不正です: %w", err)
	}

	client := redis.NewClient(opts)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("Redisへの疎通確認に失敗: %w", err)
	}

	return NewRedisStoreWithClient(client), nil
}

// NewRedisStoreWithClient は既存のクライアントからRedisStoreを生成する。
func NewRedisStoreWithClient(client *redis.Client) *RedisStore {
	return &RedisStore{client: client}
}

// Close はRedis接続を閉じる。
func (s *RedisStore) Close() error {
	return s.client.Close()
}

func accountKey(username string) string {
	return redisKeyPrefix + username
}

// FindByUsername はユーザー名でアカウントを検索する。
func (s *RedisStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	data, err := s.client.Get(ctx, accountKey(username)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("アカウントの検索に失敗: %w", err)
	}

	var ra redisAccount
	if err := json.Unmarshal(data, &ra); err != nil {
		return nil, fmt.Errorf("アカウントのデシリアライズに失敗: %w", err)
	}
	return &Account{
		ID:        ra.ID,
		Username:  ra.Username,
		PINHash:   ra.PINHash,
		CreatedAt: ra.CreatedAt,
	}, nil
}

// Create は新しいアカウントを作成する。
func (s *RedisStore) Create(ctx context.Context, username, pinHash string) (*Account, error) {
	ra := redisAccount{
		ID:        uuid.New().String(),
		Username:  username,
		PINHash:   pinHash,
		CreatedAt: time.Now().UTC(),
	}
	data, err := json.Marshal(ra)
	if err != nil {
		return nil, fmt.Errorf("アカウントのシリアライズに失敗: %w", err)
	}

	created, err := s.client.SetNX(ctx, accountKey(username), data, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("アカウントの作成に失敗: %w", err)
	}
	if !created {
		return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
	}

	return &Account{
		ID:        ra.ID,
		Username:  ra.Username,
		PINHash:   ra.PINHash,
		CreatedAt: ra.CreatedAt,
	}, nil
}
