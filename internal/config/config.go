// Package config はpestsignalサーバーの設定を環境変数から読み込む。
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// アカウントストアのバックエンド名。
const (
	AccountStoreSQLite   = "sqlite"
	AccountStorePostgres = "postgres"
	AccountStoreRedis    = "redis"
	AccountStoreMemory   = "memory"
)

// アップロード保存先のバックエンド名。
const (
	UploadStoreDisk = "disk"
	UploadStoreS3   = "s3"
)

// 既定値。
const (
	DefaultPort          = "8001"
	DefaultJWTSecret     = "dev-secret-key"
	DefaultTokenTTL      = 24 * time.Hour
	DefaultDatabaseDSN   = "pestsignal.db"
	DefaultRedisURL      = "redis://localhost:6379/0"
	DefaultUploadDir     = "temp"
	DefaultMaxFileSize   = 10 << 20
	DefaultS3Region      = "us-east-1"
	DefaultAllowedOrigin = "*"
)

// Config はサーバー全体の設定。
type Config struct {
	// Port はリッスンポート。
	Port string
	// JWTSecret はトークン署名用の秘密鍵。
	JWTSecret string
	// TokenTTL はトークンの有効期間。
	TokenTTL time.Duration
	// AllowedOrigins はCORSで許可するオリジン。"*" は全許可。
	AllowedOrigins []string

	// AccountStore はアカウントストアのバックエンド（sqlite / postgres / redis / memory）。
	AccountStore string
	// DatabaseDSN はsqlite・postgresの接続文字列。
	DatabaseDSN string
	// RedisURL はredisバックエンドの接続URL。
	RedisURL string
	// BcryptCost はPINハッシュのコスト。0の場合はbcryptの既定値。
	BcryptCost int

	// UploadStore はアップロード保存先のバックエンド（disk / s3）。
	UploadStore string
	// UploadDir はdiskバックエンドの保存ディレクトリ。
	UploadDir string
	// MaxFileSize はアップロードを受け付ける最大サイズ（バイト）。
	MaxFileSize int64

	S3Bucket    string
	S3Region    string
	S3Endpoint  string
	S3AccessKey string
	S3SecretKey string
}

// Default は既定値で埋めたConfigを返す。
func Default() Config {
	return Config{
		Port:           DefaultPort,
		JWTSecret:      DefaultJWTSecret,
		TokenTTL:       DefaultTokenTTL,
		AllowedOrigins: []string{DefaultAllowedOrigin},
		AccountStore:   AccountStoreSQLite,
		DatabaseDSN:    DefaultDatabaseDSN,
		RedisURL:       DefaultRedisURL,
		UploadStore:    UploadStoreDisk,
		UploadDir:      DefaultUploadDir,
		MaxFileSize:    DefaultMaxFileSize,
		S3Region:       DefaultS3Region,
	}
}

// Load は環境変数から設定を読み込む。未設定の項目は既定値を使用する。
func Load() (Config, error) {
	d := Default()
	cfg := Config{
		Port:           getEnvOr("PORT", d.Port),
		JWTSecret:      getEnvOr("JWT_SECRET", d.JWTSecret),
		AllowedOrigins: splitList(getEnvOr("CORS_ALLOWED_ORIGINS", DefaultAllowedOrigin)),
		AccountStore:   strings.ToLower(getEnvOr("ACCOUNT_STORE", d.AccountStore)),
		DatabaseDSN:    getEnvOr("DATABASE_DSN", d.DatabaseDSN),
		RedisURL:       getEnvOr("REDIS_URL", d.RedisURL),
		UploadStore:    strings.ToLower(getEnvOr("UPLOAD_STORE", d.UploadStore)),
		UploadDir:      getEnvOr("UPLOAD_DIR", d.UploadDir),
		S3Bucket:       os.Getenv("S3_BUCKET"),
		S3Region:       getEnvOr("S3_REGION", d.S3Region),
		S3Endpoint:     os.Getenv("S3_ENDPOINT"),
		S3AccessKey:    os.Getenv("S3_ACCESS_KEY"),
		S3SecretKey:    os.Getenv("S3_SECRET_KEY"),
	}

	var err error
	if cfg.TokenTTL, err = time.ParseDuration(getEnvOr("TOKEN_TTL", d.TokenTTL.String())); err != nil {
		return Config{}, fmt.Errorf("TOKEN_TTLの解析に失敗: %w", err)
	}
	if cfg.BcryptCost, err = strconv.Atoi(getEnvOr("BCRYPT_COST", "0")); err != nil {
		return Config{}, fmt.Errorf("BCRYPT_COSTの解析に失敗: %w", err)
	}
	if cfg.MaxFileSize, err = strconv.ParseInt(getEnvOr("UPLOAD_MAX_FILE_SIZE", strconv.FormatInt(d.MaxFileSize, 10)), 10, 64); err != nil {
		return Config{}, fmt.Errorf("UPLOAD_MAX_FILE_SIZEの解析に失敗: %w", err)
	}

	return cfg, nil
}

// Validate は設定値の整合性を検査する。
func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("ポート番号が指定されていません"))
	}
	if c.JWTSecret == "" {
		errs = append(errs, errors.New("JWT_SECRETが空です"))
	}
	if c.TokenTTL <= 0 {
		errs = append(errs, fmt.Errorf("TOKEN_TTLは正の値である必要があります: %s", c.TokenTTL))
	}
	if c.BcryptCost < 0 {
		errs = append(errs, fmt.Errorf("BCRYPT_COSTは0以上である必要があります: %d", c.BcryptCost))
	}
	if c.MaxFileSize <= 0 {
		errs = append(errs, fmt.Errorf("UPLOAD_MAX_FILE_SIZEは正の値である必要があります: %d", c.MaxFileSize))
	}

	switch c.AccountStore {
	case AccountStoreSQLite, AccountStorePostgres:
		if c.DatabaseDSN == "" {
			errs = append(errs, errors.New("DATABASE_DSNが空です"))
		}
	case AccountStoreRedis:
		if c.RedisURL == "" {
			errs = append(errs, errors.New("REDIS_URLが空です"))
		}
	case AccountStoreMemory:
	default:
		errs = append(errs, fmt.Errorf("未対応のACCOUNT_STOREです: %q", c.AccountStore))
	}

	switch c.UploadStore {
	case UploadStoreDisk:
		if c.UploadDir == "" {
			errs = append(errs, errors.New("UPLOAD_DIRが空です"))
		}
	case UploadStoreS3:
		if c.S3Bucket == "" {
			errs = append(errs, errors.New("S3_BUCKETが空です"))
		}
	default:
		errs = append(errs, fmt.Errorf("未対応のUPLOAD_STOREです: %q", c.UploadStore))
	}

	return errors.Join(errs...)
}

// getEnvOr は環境変数を取得し、設定されていない場合はデフォルト値を返す。
func getEnvOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}

// splitList はカンマ区切りの文字列を空要素を除いて分割する。
func splitList(s string) []string {
	var out []string
	for _, v := range strings.Split(s, ",") {
		if v = strings.TrimSpace(v); v != "" {
			out = append(out, v)
		}
	}
	return out
}
