// Package credential はユーザー名とPINによる認証とトークン発行を行うCredential Gatewayを提供する。
//
// 未登録のユーザー名でのログインはその場でアカウントを作成する（暗黙の登録）。
// 登録済みの場合はPINを照合し、成功時に署名付きのBearerトークンを発行する。
package credential

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/nao1215/pestsignal/internal/account"
	"github.com/nao1215/pestsignal/pkg/middleware"
)

// DefaultTokenTTL はトークンの既定の有効期間。
const DefaultTokenTTL = 24 * time.Hour

var (
	// ErrMissingCredentials はユーザー名またはPINが空であることを表す。
	ErrMissingCredentials = errors.New("username and PIN are required")
	// ErrInvalidCredentials は登録済みアカウントのPINと一致しないことを表す。
	ErrInvalidCredentials = errors.New("PIN is incorrect for this username")
	// ErrAccountCreationFailed は暗黙の登録でアカウントの作成に失敗したことを表す。
	ErrAccountCreationFailed = errors.New("account creation failed")
	// ErrMissingToken はトークンが指定されていないことを表す。
	ErrMissingToken = middleware.ErrMissingToken
	// ErrInvalidToken は署名不正・期限切れ等のトークンであることを表す。
	ErrInvalidToken = middleware.ErrInvalidToken
)

// Config はGatewayの設定。構築時に渡し、以降は変更しない。
type Config struct {
	// Secret はトークン署名用のHMAC秘密鍵。
	Secret string
	// TokenTTL はトークンの有効期間。0の場合はDefaultTokenTTL。
	TokenTTL time.Duration
	// BcryptCost はPINハッシュのコスト。0の場合はbcrypt.DefaultCost。
	BcryptCost int
}

// AccountView はクライアントに返すアカウントの射影。PINは含まない。
type AccountView struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// Result は認証成功時の結果。
type Result struct {
	// Token は発行したBearerトークン。
	Token string
	// Account は認証されたアカウント。
	Account AccountView
	// Created は今回の呼び出しでアカウントを新規作成したかどうか。
	Created bool
}

// Gateway はCredential Gateway本体。リクエスト間で可変な状態を持たない。
type Gateway struct {
	store account.Store
	cfg   Config
}

var _ middleware.TokenVerifier = (*Gateway)(nil)

// New は新しいGatewayを生成する。
func New(store account.Store, cfg Config) *Gateway {
	if cfg.TokenTTL == 0 {
		cfg.TokenTTL = DefaultTokenTTL
	}
	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = bcrypt.DefaultCost
	}
	return &Gateway{store: store, cfg: cfg}
}

// Authenticate はユーザー名とPINでアカウントを解決し、トークンを発行する。
// 未登録のユーザー名であればアカウントを作成する。1回の呼び出しでストアへの書き込みは高々1回。
// 同じユーザー名の同時初回ログインで作成に負けた場合もErrAccountCreationFailedを返し、再試行はしない。
func (g *Gateway) Authenticate(ctx context.Context, username, pin string) (*Result, error) {
	if username == "" || pin == "" {
		return nil, ErrMissingCredentials
	}

	created := false
	acc, err := g.store.FindByUsername(ctx, username)
	switch {
	case errors.Is(err, account.ErrNotFound):
		acc, err = g.register(ctx, username, pin)
		if err != nil {
			return nil, err
		}
		created = true
	case err != nil:
		return nil, fmt.Errorf("アカウントの取得に失敗: %w", err)
	default:
		if err := g.checkPIN(acc, pin); err != nil {
			return nil, err
		}
	}

	token, err := middleware.GenerateJWT(g.cfg.Secret, acc.ID, acc.Username, g.cfg.TokenTTL)
	if err != nil {
		return nil, fmt.Errorf("トークンの発行に失敗: %w", err)
	}

	return &Result{
		Token:   token,
		Account: AccountView{ID: acc.ID, Username: acc.Username},
		Created: created,
	}, nil
}

// register はPINをハッシュ化してアカウントを作成する。
func (g *Gateway) register(ctx context.Context, username, pin string) (*account.Account, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), g.cfg.BcryptCost)
	if err != nil {
		return nil, fmt.Errorf("%w: PINのハッシュ化に失敗: %v", ErrAccountCreationFailed, err)
	}

	acc, err := g.store.Create(ctx, username, string(hash))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrAccountCreationFailed, err)
	}

	log.Printf("新規アカウントを作成しました: username=%s, id=%s", acc.Username, acc.ID)
	return acc, nil
}

// checkPIN は保存済みハッシュとPINを定数時間で照合する。
func (g *Gateway) checkPIN(acc *account.Account, pin string) error {
	err := bcrypt.CompareHashAndPassword([]byte(acc.PINHash), []byte(pin))
	switch {
	case err == nil:
		return nil
	case errors.Is(err, bcrypt.ErrMismatchedHashAndPassword), errors.Is(err, bcrypt.ErrPasswordTooLong):
		return ErrInvalidCredentials
	default:
		return fmt.Errorf("PINの照合に失敗: %w", err)
	}
}

// Verify はトークンを検証し、クレームを返す。
// 空のトークンはErrMissingToken、署名不正や期限切れはErrInvalidTokenとなる。
func (g *Gateway) Verify(tokenString string) (*middleware.Claims, error) {
	return middleware.ParseJWT(g.cfg.Secret, tokenString)
}
