package main

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/spf13/cobra"

	"github.com/nao1215/pestsignal/internal/account"
	"github.com/nao1215/pestsignal/internal/config"
	"github.com/nao1215/pestsignal/internal/gateway"
)

// runFunc は検証済みの設定を受け取って処理を行う。
type runFunc func(cmd *cobra.Command, cfg config.Config) error

// newRootCmd はサーバー起動用のルートコマンドを生成する。
// 設定は環境変数を既定値とし、フラグで上書きできる。
func newRootCmd(run, runMigrate runFunc) *cobra.Command {
	cfg, loadErr := config.Load()
	if loadErr != nil {
		cfg = config.Default()
	}

	prepare := func() (config.Config, error) {
		if loadErr != nil {
			return config.Config{}, loadErr
		}
		if err := cfg.Validate(); err != nil {
			return config.Config{}, err
		}
		return cfg, nil
	}

	rootCmd := &cobra.Command{
		Use:   "pestsignal",
		Short: "pestsignal APIサーバー",
		Long: `pestsignal はユーザー名とPINによるログイン（未登録の場合は自動登録）、
Bearerトークンの発行、認証済みユーザーの画像アップロードを提供するAPIサーバーです。`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := prepare()
			if err != nil {
				return err
			}
			return run(cmd, c)
		},
		SilenceUsage: true,
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&cfg.Port, "port", cfg.Port, "Listen port (env: PORT)")
	flags.StringVar(&cfg.JWTSecret, "jwt-secret", cfg.JWTSecret, "Token signing secret (env: JWT_SECRET)")
	flags.DurationVar(&cfg.TokenTTL, "token-ttl", cfg.TokenTTL, "Token lifetime (env: TOKEN_TTL)")
	flags.StringSliceVar(&cfg.AllowedOrigins, "cors-origins", cfg.AllowedOrigins, "Allowed CORS origins (env: CORS_ALLOWED_ORIGINS)")
	flags.StringVar(&cfg.AccountStore, "account-store", cfg.AccountStore, "Account store: sqlite, postgres, redis, memory (env: ACCOUNT_STORE)")
	flags.StringVar(&cfg.DatabaseDSN, "database-dsn", cfg.DatabaseDSN, "SQLite path or PostgreSQL DSN (env: DATABASE_DSN)")
	flags.StringVar(&cfg.RedisURL, "redis-url", cfg.RedisURL, "Redis URL (env: REDIS_URL)")
	flags.IntVar(&cfg.BcryptCost, "bcrypt-cost", cfg.BcryptCost, "bcrypt cost for PIN hashes, 0 for default (env: BCRYPT_COST)")
	flags.StringVar(&cfg.UploadStore, "upload-store", cfg.UploadStore, "Upload store: disk, s3 (env: UPLOAD_STORE)")
	flags.StringVar(&cfg.UploadDir, "upload-dir", cfg.UploadDir, "Upload directory or S3 key prefix (env: UPLOAD_DIR)")
	flags.Int64Var(&cfg.MaxFileSize, "max-file-size", cfg.MaxFileSize, "Maximum upload size in bytes (env: UPLOAD_MAX_FILE_SIZE)")
	flags.StringVar(&cfg.S3Bucket, "s3-bucket", cfg.S3Bucket, "S3 bucket (env: S3_BUCKET)")
	flags.StringVar(&cfg.S3Region, "s3-region", cfg.S3Region, "S3 region (env: S3_REGION)")
	flags.StringVar(&cfg.S3Endpoint, "s3-endpoint", cfg.S3Endpoint, "S3 compatible endpoint (env: S3_ENDPOINT)")

	rootCmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "SQLアカウントストアのマイグレーションのみを適用する",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := prepare()
			if err != nil {
				return err
			}
			return runMigrate(cmd, c)
		},
	})

	return rootCmd
}

// serve はHTTPサーバーを起動する。
func serve(_ *cobra.Command, cfg config.Config) error {
	server, err := gateway.NewServer(cfg)
	if err != nil {
		return fmt.Errorf("サーバーの初期化に失敗: %w", err)
	}
	defer func() {
		if err := server.Close(); err != nil {
			log.Printf("ストアの解放に失敗: %v", err)
		}
	}()

	log.Printf("pestsignalサーバーを起動します: :%s", cfg.Port)
	if err := server.Run(); err != nil {
		return fmt.Errorf("サーバーの起動に失敗: %w", err)
	}
	return nil
}

// migrate はSQLアカウントストアを開いてマイグレーションを適用する。
func migrate(cmd *cobra.Command, cfg config.Config) error {
	if cfg.AccountStore != config.AccountStoreSQLite && cfg.AccountStore != config.AccountStorePostgres {
		return fmt.Errorf("マイグレーションはsqlite・postgresのみ対応しています: %q", cfg.AccountStore)
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), time.Minute)
	defer cancel()

	// OpenSQLStoreは接続時にマイグレーションを適用する
	store, err := account.OpenSQLStore(ctx, account.Dialect(cfg.AccountStore), cfg.DatabaseDSN)
	if err != nil {
		return err
	}
	log.Printf("マイグレーションを適用しました: %s", cfg.AccountStore)
	return store.Close()
}
