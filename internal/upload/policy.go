// Package upload は認証済みクライアントからの画像アップロードを扱う。
//
// アップロードはまずPolicyで検査され、受理された場合にのみFileStoreへ書き込まれる。
// FileStoreにはローカルディスクとS3互換オブジェクトストレージの実装がある。
package upload

import (
	"errors"
	"mime"
	"slices"
	"strings"
)

// DefaultMaxFileSize はアップロード可能なファイルの既定の最大サイズ（10MB）。
const DefaultMaxFileSize int64 = 10 << 20

// DefaultAllowedMimeTypes は既定で受け付ける画像のMIMEタイプ。
var DefaultAllowedMimeTypes = []string{"image/jpeg", "image/png", "image/gif", "image/webp"}

var (
	// ErrNoFile はアップロード対象のファイルが無いことを表す。
	ErrNoFile = errors.New("no image file provided")
	// ErrFileTooLarge はファイルサイズが上限を超えていることを表す。
	ErrFileTooLarge = errors.New("file too large")
	// ErrInvalidFileType は許可されていないMIMEタイプであることを表す。
	ErrInvalidFileType = errors.New("only image files are allowed")
)

// Policy はアップロードを受け付ける条件。
type Policy struct {
	// MaxFileSize は受け付ける最大バイト数。
	MaxFileSize int64
	// AllowedMimeTypes は受け付けるMIMEタイプ（小文字、パラメータ無し）。
	AllowedMimeTypes []string
}

// DefaultPolicy は既定のPolicyを返す。
func DefaultPolicy() Policy {
	return Policy{
		MaxFileSize:      DefaultMaxFileSize,
		AllowedMimeTypes: slices.Clone(DefaultAllowedMimeTypes),
	}
}

// Verdict はPolicyによる検査結果。Acceptedがfalseの場合Reasonに理由が入る。
type Verdict struct {
	Accepted bool
	Reason   error
}

// Check はサイズとMIMEタイプを検査する。書き込みを始める前に呼び出すこと。
// MIMEタイプはサイズより先に判定する。
func (p Policy) Check(size int64, mimeType string) Verdict {
	if !p.allows(mimeType) {
		return Verdict{Reason: ErrInvalidFileType}
	}
	if size > p.MaxFileSize {
		return Verdict{Reason: ErrFileTooLarge}
	}
	return Verdict{Accepted: true}
}

// allows はMIMEタイプが許可リストに含まれるかを判定する。
// "image/png; charset=binary" のようなパラメータ付きの値も受け付ける。
func (p Policy) allows(mimeType string) bool {
	mediaType, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return false
	}
	return slices.Contains(p.AllowedMimeTypes, strings.ToLower(mediaType))
}
