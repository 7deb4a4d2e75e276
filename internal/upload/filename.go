package upload

import (
	"fmt"
	"math/rand/v2"
	"path/filepath"
	"time"
)

// NewFilename は保存用の一意なファイル名を生成する。
// 形式: <field>-<UNIXミリ秒>-<乱数><元の拡張子>
func NewFilename(field, originalName string, now time.Time) string {
	ext := filepath.Ext(filepath.Base(originalName))
	return fmt.Sprintf("%s-%d-%d%s", field, now.UnixMilli(), rand.Int64N(1_000_000_000), ext)
}
