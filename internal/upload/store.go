package upload

import (
	"context"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"
)

// FileStore はアップロードされたファイルの保存先。
type FileStore interface {
	// Save はrの内容をnameで保存し、保存先のパス（またはURI）を返す。
	Save(ctx context.Context, name, mimeType string, r io.Reader) (string, error)
}

// DiskStore はローカルディスクのディレクトリに保存するFileStore実装。
type DiskStore struct {
	dir string
}

var _ FileStore = (*DiskStore)(nil)

// NewDiskStore は保存先ディレクトリを作成してDiskStoreを返す。
// ディレクトリが既に存在する場合は何もしない。
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("アップロード保存ディレクトリの作成に失敗: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

// Save はファイルをディレクトリ直下に書き込む。書き込みかクローズに失敗した場合は途中のファイルを削除する。
func (s *DiskStore) Save(ctx context.Context, name, _ string, r io.Reader) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	path := filepath.Join(s.dir, filepath.Base(name))
	dst, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("ファイルの作成に失敗: %w", err)
	}

	if _, err := io.Copy(dst, r); err != nil {
		_ = dst.Close()
		removePartial(path)
		return "", fmt.Errorf("ファイルの書き込みに失敗: %w", err)
	}
	if err := closeFile(dst); err != nil {
		removePartial(path)
		return "", fmt.Errorf("ファイルのクローズに失敗: %w", err)
	}
	return path, nil
}

// closeFile はファイルを閉じる。テストで失敗を注入するために差し替えられる。
var closeFile = func(f *os.File) error { return f.Close() }

// removePartial は書き込みに失敗したファイルを削除する。
func removePartial(path string) {
	if err := os.Remove(path); err != nil {
		log.Printf("書きかけファイルの削除に失敗: %v", err)
	}
}
