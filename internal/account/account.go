package account

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotFound は指定されたユーザー名のアカウントが存在しないことを表す。
	ErrNotFound = errors.New("account not found")
	// ErrUsernameTaken はユーザー名が既に使用されていることを表す。
	// 同じユーザー名で同時に初回ログインした場合、後から書き込んだ側がこのエラーを受け取る。
	ErrUsernameTaken = errors.New("username already taken")
)

// Account はユーザー名で一意に識別されるアカウント。
type Account struct {
	// ID はストアが生成する不透明な識別子（UUID）。
	ID string
	// Username はアカウントのユーザー名。大文字小文字を区別する。
	Username string
	// PINHash はPINのbcryptハッシュ。平文のPINは保存しない。
	PINHash string
	// CreatedAt はアカウントの作成日時（UTC）。
	CreatedAt time.Time
}

// Store はアカウントの永続化を担うストア。
type Store interface {
	// FindByUsername はユーザー名でアカウントを検索する。
	// 存在しない場合はErrNotFoundを返す。
	FindByUsername(ctx context.Context, username string) (*Account, error)
	// Create は新しいアカウントを作成する。
	// ユーザー名が既に存在する場合はErrUsernameTakenを返す。
	Create(ctx context.Context, username, pinHash string) (*Account, error)
}
