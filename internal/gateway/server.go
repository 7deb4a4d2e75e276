package gateway

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/nao1215/pestsignal/internal/account"
	"github.com/nao1215/pestsignal/internal/config"
	"github.com/nao1215/pestsignal/internal/credential"
	"github.com/nao1215/pestsignal/internal/upload"
	"github.com/nao1215/pestsignal/pkg/middleware"
)

// serviceName はヘルスチェックで返すサービス名。
const serviceName = "pestsignal"

// multipartOverhead はマルチパートの境界やヘッダーのためにボディ上限へ上乗せするバイト数。
const multipartOverhead = 1 << 20

// connectTimeout はストア接続時のタイムアウト。
const connectTimeout = 10 * time.Second

// Server はpestsignalのHTTPサーバー。
type Server struct {
	// router はGinのHTTPルーター。
	router *gin.Engine
	// port はサーバーのリッスンポート。
	port string
	// credentials はログインとトークン検証を行うCredential Gateway。
	credentials *credential.Gateway
	// uploader は画像の検査と保存を行う。
	uploader *upload.Uploader
	// closers はClose時に解放するリソース。
	closers []io.Closer
}

// NewServer は設定からストアを構築し、新しいServerを生成する。
func NewServer(cfg config.Config) (*Server, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), connectTimeout)
	defer cancel()

	store, closer, err := openAccountStore(ctx, cfg)
	if err != nil {
		return nil, err
	}

	files, err := openFileStore(ctx, cfg)
	if err != nil {
		if closer != nil {
			_ = closer.Close()
		}
		return nil, err
	}

	creds := credential.New(store, credential.Config{
		Secret:     cfg.JWTSecret,
		TokenTTL:   cfg.TokenTTL,
		BcryptCost: cfg.BcryptCost,
	})
	policy := upload.DefaultPolicy()
	policy.MaxFileSize = cfg.MaxFileSize
	uploader := upload.NewUploader(policy, files)

	s := newServer(cfg.Port, cfg.AllowedOrigins, creds, uploader)
	if closer != nil {
		s.closers = append(s.closers, closer)
	}
	log.Printf("アカウントストア: %s, アップロード先: %s", cfg.AccountStore, cfg.UploadStore)
	return s, nil
}

// newServer は構築済みの依存からServerを組み立てる。
func newServer(port string, allowedOrigins []string, creds *credential.Gateway, uploader *upload.Uploader) *Server {
	router := gin.New()
	router.Use(middleware.Recovery())
	router.Use(gin.Logger())
	router.Use(middleware.CORS(allowedOrigins))

	s := &Server{
		router:      router,
		port:        port,
		credentials: creds,
		uploader:    uploader,
	}
	s.setupRoutes()
	return s
}

// openAccountStore は設定されたバックエンドのアカウントストアを開く。
// 解放が必要なストアの場合はio.Closerも返す。
func openAccountStore(ctx context.Context, cfg config.Config) (account.Store, io.Closer, error) {
	switch cfg.AccountStore {
	case config.AccountStoreMemory:
		return account.NewMemoryStore(), nil, nil
	case config.AccountStoreRedis:
		s, err := account.NewRedisStore(ctx, cfg.RedisURL)
		if err != nil {
			return nil, nil, fmt.Errorf("Redisアカウントストアの初期化に失敗: %w", err)
		}
		return s, s, nil
	case config.AccountStoreSQLite, config.AccountStorePostgres:
		s, err := account.OpenSQLStore(ctx, account.Dialect(cfg.AccountStore), cfg.DatabaseDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("SQLアカウントストアの初期化に失敗: %w", err)
		}
		return s, s, nil
	default:
		return nil, nil, fmt.Errorf("未対応のアカウントストアです: %q", cfg.AccountStore)
	}
}

// openFileStore は設定されたバックエンドのアップロード保存先を開く。
func openFileStore(ctx context.Context, cfg config.Config) (upload.FileStore, error) {
	switch cfg.UploadStore {
	case config.UploadStoreDisk:
		return upload.NewDiskStore(cfg.UploadDir)
	case config.UploadStoreS3:
		return upload.NewS3Store(ctx, upload.S3Config{
			Bucket:    cfg.S3Bucket,
			Region:    cfg.S3Region,
			Endpoint:  cfg.S3Endpoint,
			AccessKey: cfg.S3AccessKey,
			SecretKey: cfg.S3SecretKey,
			Prefix:    cfg.UploadDir,
		})
	default:
		return nil, fmt.Errorf("未対応のアップロード先です: %q", cfg.UploadStore)
	}
}

// Handler はHTTPハンドラとしてのルーターを返す。
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run はHTTPサーバーを起動する。
func (s *Server) Run() error {
	return s.router.Run(fmt.Sprintf(":%s", s.port))
}

// Close はサーバーが保持するストアを解放する。
func (s *Server) Close() error {
	var errs []error
	for _, c := range s.closers {
		errs = append(errs, c.Close())
	}
	s.closers = nil
	return errors.Join(errs...)
}

// setupRoutes はAPIルーティングを設定する。
func (s *Server) setupRoutes() {
	s.router.GET("/", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"message": "Hello World!"})
	})

	// ヘルスチェック
	s.router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok", "service": serviceName})
	})

	auth := s.router.Group("/auth")
	{
		// ログイン（未登録の場合は暗黙の登録）
		auth.POST("/login", s.handleLogin())
		auth.GET("/profile", middleware.JWTAuth(s.credentials), s.handleProfile())
	}

	api := s.router.Group("/api")
	api.Use(middleware.JWTAuth(s.credentials))
	{
		api.POST("/upload", s.handleUpload())
	}
}

// loginRequest はログインリクエストのボディ。
type loginRequest struct {
	Username string `json:"username"`
	PIN      string `json:"pin"`
}

// handleLogin はユーザー名とPINでログインし、トークンを発行するハンドラを返す。
func (s *Server) handleLogin() gin.HandlerFunc {
	return func(c *gin.Context) {
		var req loginRequest
		if err := c.ShouldBindJSON(&req); err != nil {
			// 解析できないボディは資格情報が無いものとして扱う
			req = loginRequest{}
		}

		result, err := s.credentials.Authenticate(c.Request.Context(), req.Username, req.PIN)
		switch {
		case err == nil:
		case errors.Is(err, credential.ErrMissingCredentials):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Missing credentials",
				"message": "Username and PIN are required",
			})
			return
		case errors.Is(err, credential.ErrInvalidCredentials):
			c.JSON(http.StatusUnauthorized, gin.H{
				"error":   "Invalid credentials",
				"message": "PIN is incorrect for this username",
			})
			return
		case errors.Is(err, credential.ErrAccountCreationFailed):
			log.Printf("アカウント作成エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Account creation failed",
				"message": "Failed to create new account. Please try again.",
			})
			return
		default:
			log.Printf("ログイン処理エラー: %v", err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal server error",
				"message": "Something went wrong",
			})
			return
		}

		c.JSON(http.StatusOK, gin.H{
			"message": "Login successful",
			"token":   result.Token,
			"user":    result.Account,
		})
	}
}

// handleProfile は検証済みトークンのクレームを返すハンドラを返す。
func (s *Server) handleProfile() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "Profile accessed successfully",
			"user":    middleware.GetClaims(c),
		})
	}
}

// handleUpload は認証済みユーザーの画像を検査して保存するハンドラを返す。
func (s *Server) handleUpload() gin.HandlerFunc {
	return func(c *gin.Context) {
		maxSize := s.uploader.Policy().MaxFileSize
		c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxSize+multipartOverhead)

		_, header, err := c.Request.FormFile(upload.FieldName)
		if c.Request.MultipartForm != nil {
			defer func() { _ = c.Request.MultipartForm.RemoveAll() }()
		}
		switch {
		case err == nil:
		case isBodyTooLarge(err):
			respondFileTooLarge(c, maxSize)
			return
		case errors.Is(err, http.ErrMissingFile), errors.Is(err, http.ErrNotMultipart):
			respondNoFile(c)
			return
		default:
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Upload error",
				"message": err.Error(),
			})
			return
		}

		stored, err := s.uploader.Accept(c.Request.Context(), header)
		switch {
		case err == nil:
		case errors.Is(err, upload.ErrNoFile):
			respondNoFile(c)
			return
		case errors.Is(err, upload.ErrFileTooLarge):
			respondFileTooLarge(c, maxSize)
			return
		case errors.Is(err, upload.ErrInvalidFileType):
			c.JSON(http.StatusBadRequest, gin.H{
				"error":   "Invalid file type",
				"message": "Only image files are allowed!",
			})
			return
		default:
			log.Printf("画像の保存に失敗: user_id=%s: %v", middleware.GetUserID(c), err)
			c.JSON(http.StatusInternalServerError, gin.H{
				"error":   "Internal server error",
				"message": "Something went wrong",
			})
			return
		}

		log.Printf("画像を保存しました: user_id=%s, path=%s, size=%d", middleware.GetUserID(c), stored.Path, stored.Size)
		c.JSON(http.StatusOK, gin.H{
			"message": "Image uploaded successfully",
			"file":    stored,
		})
	}
}

func respondNoFile(c *gin.Context) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "No image file provided",
		"message": `Please upload an image file using the "image" field`,
	})
}

func respondFileTooLarge(c *gin.Context, maxSize int64) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error":   "File too large",
		"message": fmt.Sprintf("File size must be less than %s", formatSize(maxSize)),
	})
}

// isBodyTooLarge はMaxBytesReaderの上限に達したエラーかどうかを判定する。
// mime/multipartがエラーを文字列化して返す経路があるため、メッセージも確認する。
func isBodyTooLarge(err error) bool {
	var maxErr *http.MaxBytesError
	if errors.As(err, &maxErr) {
		return true
	}
	return strings.Contains(err.Error(), "request body too large")
}

// formatSize はバイト数をMB単位（割り切れない場合はバイト単位）で表す。
func formatSize(n int64) string {
	if n%(1<<20) == 0 {
		return fmt.Sprintf("%dMB", n>>20)
	}
	return fmt.Sprintf("%d bytes", n)
}
