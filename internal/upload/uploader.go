package upload

import (
	"context"
	"fmt"
	"mime/multipart"
	"time"
)

// FieldName は画像を受け取るマルチパートフォームのフィールド名。
const FieldName = "image"

// StoredFile は保存したファイルのメタデータ。APIレスポンスにそのまま使用する。
type StoredFile struct {
	// Filename は保存時に生成したファイル名。
	Filename string `json:"filename"`
	// OriginalName はクライアントが送信した元のファイル名。
	OriginalName string `json:"originalName"`
	// Size はファイルサイズ（バイト）。
	Size int64 `json:"size"`
	// MimeType はクライアントが申告したMIMEタイプ。
	MimeType string `json:"mimetype"`
	// Path は保存先のパスまたはURI。
	Path string `json:"path"`
}

// Uploader はPolicyによる検査とFileStoreへの保存をまとめて行う。
type Uploader struct {
	policy Policy
	store  FileStore
	now    func() time.Time
}

// NewUploader は新しいUploaderを生成する。
func NewUploader(policy Policy, store FileStore) *Uploader {
	return &Uploader{policy: policy, store: store, now: time.Now}
}

// Policy はUploaderが使用するPolicyを返す。
func (u *Uploader) Policy() Policy {
	return u.policy
}

// Accept はマルチパートのファイルを検査し、受理できる場合のみ保存する。
// 検査で拒否された場合はVerdict.Reason（ErrFileTooLarge / ErrInvalidFileType）を返し、何も書き込まない。
func (u *Uploader) Accept(ctx context.Context, header *multipart.FileHeader) (*StoredFile, error) {
	if header == nil {
		return nil, ErrNoFile
	}

	mimeType := header.Header.Get("Content-Type")
	if verdict := u.policy.Check(header.Size, mimeType); !verdict.Accepted {
		return nil, verdict.Reason
	}

	src, err := header.Open()
	if err != nil {
		return nil, fmt.Errorf("アップロードファイルのオープンに失敗: %w", err)
	}
	defer src.Close()

	filename := NewFilename(FieldName, header.Filename, u.now())
	path, err := u.store.Save(ctx, filename, mimeType, src)
	if err != nil {
		return nil, err
	}

	return &StoredFile{
		Filename:     filename,
		OriginalName: header.Filename,
		Size:         header.Size,
		MimeType:     mimeType,
		Path:         path,
	}, nil
}
