package account

import (
	"context"
	"database/sql"
	"embed"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgconn"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/nao1215/pestsignal/pkg/migration"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"
)

// migrationFS はアカウントテーブルのマイグレーションファイル。
//
//go:embed migrations/*.up.sql
var migrationFS embed.FS

// Dialect はSQLStoreが接続するデータベースの種類。
type Dialect = migration.Dialect

const (
	// DialectSQLite はmodernc.org/sqliteドライバを使用する。
	DialectSQLite = migration.DialectSQLite
	// DialectPostgres はpgxドライバを使用する。
	DialectPostgres = migration.DialectPostgres
)

// sqlitePragmas はファイルDBの接続ごとに適用するPRAGMA。
// busy_timeoutを先に設定し、WAL切り替え時のロック競合も待機させる。
var sqlitePragmas = []string{"busy_timeout(5000)", "journal_mode(WAL)"}

// pgUniqueViolation はPostgreSQLの一意制約違反のSQLSTATE。
const pgUniqueViolation = "23505"

// SQLStore はSQLデータベースをバックエンドとするStore実装。
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
}

// SQLStoreがStoreを満たすことをコンパイル時に確認する。
var _ Store = (*SQLStore)(nil)

// NewSQLStore は既存のDB接続からSQLStoreを生成する。
// スキーマの適用は行わないため、必要に応じてMigrateを呼び出すこと。
func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect}
}

// OpenSQLStore はDSNでデータベースに接続し、マイグレーションを適用したSQLStoreを返す。
func OpenSQLStore(ctx context.Context, dialect Dialect, dsn string) (*SQLStore, error) {
	driverName, err := driverFor(dialect)
	if err != nil {
		return nil, err
	}

	inMemory := dialect == DialectSQLite && isSQLiteMemoryDSN(dsn)
	if dialect == DialectSQLite && !inMemory {
		dsn = withSQLitePragmas(dsn)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}
	if inMemory {
		// インメモリDBは接続ごとに別DBになるため接続を1本に固定する
		db.SetMaxOpenConns(1)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("データベースへの疎通確認に失敗: %w", err)
	}

	s := NewSQLStore(db, dialect)
	if err := s.Migrate(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// isSQLiteMemoryDSN はDSNがSQLiteのインメモリDBを指すかどうかを判定する。
func isSQLiteMemoryDSN(dsn string) bool {
	return strings.HasPrefix(dsn, ":memory:") ||
		strings.HasPrefix(dsn, "file::memory:") ||
		strings.Contains(dsn, "mode=memory")
}

// withSQLitePragmas はDSNにsqlitePragmasを付与する。
// DSNで既に指定されているPRAGMAはそのまま優先する。
func withSQLitePragmas(dsn string) string {
	var b strings.Builder
	b.WriteString(dsn)
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	for _, p := range sqlitePragmas {
		name, _, _ := strings.Cut(p, "(")
		if strings.Contains(dsn, "_pragma="+name) {
			continue
		}
		b.WriteString(sep + "_pragma=" + p)
		sep = "&"
	}
	return b.String()
}

// driverFor は方言に対応するdatabase/sqlのドライバ名を返す。
func driverFor(dialect Dialect) (string, error) {
	switch dialect {
	case DialectSQLite:
		return "sqlite", nil
	case DialectPostgres:
		return "pgx", nil
	default:
		return "", fmt.Errorf("未対応のデータベース方言です: %q", dialect)
	}
}

// Migrate はアカウントテーブルのマイグレーションを適用する。
func (s *SQLStore) Migrate(ctx context.Context) error {
	if err := migration.Run(ctx, s.db, s.dialect, migrationFS, "migrations"); err != nil {
		return fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return nil
}

// Close はデータベース接続を閉じる。
func (s *SQLStore) Close() error {
	return s.db.Close()
}

// FindByUsername はユーザー名でアカウントを検索する。
func (s *SQLStore) FindByUsername(ctx context.Context, username string) (*Account, error) {
	query := s.rebind(`SELECT id, username, pin_hash, created_at FROM accounts WHERE username = ?`)

	a := &Account{}
	err := s.db.QueryRowContext(ctx, query, username).Scan(&a.ID, &a.Username, &a.PINHash, &a.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("アカウントの検索に失敗: %w", err)
	}
	return a, nil
}

// Create は新しいアカウントを作成する。IDはUUIDを生成して割り当てる。
func (s *SQLStore) Create(ctx context.Context, username, pinHash string) (*Account, error) {
	a := &Account{
		ID:        uuid.New().String(),
		Username:  username,
		PINHash:   pinHash,
		CreatedAt: time.Now().UTC(),
	}

	query := s.rebind(`INSERT INTO accounts (id, username, pin_hash, created_at) VALUES (?, ?, ?, ?)`)
	if _, err := s.db.ExecContext(ctx, query, a.ID, a.Username, a.PINHash, a.CreatedAt); err != nil {
		if isUniqueViolation(err) {
			return nil, fmt.Errorf("%w: %s", ErrUsernameTaken, username)
		}
		return nil, fmt.Errorf("アカウントの作成に失敗: %w", err)
	}
	return a, nil
}

// rebind はクエリ中の ? プレースホルダーを方言に合わせて書き換える。
func (s *SQLStore) rebind(query string) string {
	if s.dialect != DialectPostgres {
		return query
	}

	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteString("$" + strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// isUniqueViolation はドライバのエラーが一意制約違反かどうかを判定する。
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		switch sqliteErr.Code() {
		case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
			return true
		}
		return sqliteErr.Code()&0xff == sqlite3.SQLITE_CONSTRAINT && strings.Contains(sqliteErr.Error(), "UNIQUE")
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgUniqueViolation
	}
	return false
}
