package account

import (
	"context"
	"database/sql"
	"errors"
	"path/filepath"
	"testing"

	_ "modernc.org/sqlite"
)

// newTestSQLStore はテスト用のインメモリSQLiteを使ったSQLStoreを生成する。
func newTestSQLStore(t *testing.T) *SQLStore {
	t.Helper()

	db, err := sql.Open("sqlite", ":memory:")
	if err != nil {
		t.Fatalf("インメモリDB接続に失敗: %v", err)
	}
	// :memory: は接続ごとに別DBになるため接続を1本に固定する
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	s := NewSQLStore(db, DialectSQLite)
	if err := s.Migrate(context.Background()); err != nil {
		t.Fatalf("スキーマ初期化に失敗: %v", err)
	}
	return s
}

func TestSQLStore(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) Store {
		return newTestSQLStore(t)
	})
}

// newFileSQLStore は一時ディレクトリのファイルDBをOpenSQLStoreで開く。
func newFileSQLStore(t *testing.T) *SQLStore {
	t.Helper()

	s, err := OpenSQLStore(context.Background(), DialectSQLite, filepath.Join(t.TempDir(), "accounts.db"))
	if err != nil {
		t.Fatalf("OpenSQLStore()でエラーが発生: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestSQLStoreFileDB(t *testing.T) {
	t.Parallel()

	runStoreContract(t, func(t *testing.T) Store {
		return newFileSQLStore(t)
	})
}

func TestOpenSQLStore(t *testing.T) {
	t.Parallel()

	t.Run("ファイルDBを開いてマイグレーションを適用できること", func(t *testing.T) {
		t.Parallel()

		dsn := filepath.Join(t.TempDir(), "accounts.db")
		ctx := context.Background()

		s, err := OpenSQLStore(ctx, DialectSQLite, dsn)
		if err != nil {
			t.Fatalf("OpenSQLStore()でエラーが発生: %v", err)
		}
		if _, err := s.Create(ctx, "erin", "hash"); err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if err := s.Close(); err != nil {
			t.Fatalf("Close()でエラーが発生: %v", err)
		}

		// 再オープンしてもデータが残り、マイグレーションが重複適用されないこと
		reopened, err := OpenSQLStore(ctx, DialectSQLite, dsn)
		if err != nil {
			t.Fatalf("再オープンでエラーが発生: %v", err)
		}
		t.Cleanup(func() { reopened.Close() })

		found, err := reopened.FindByUsername(ctx, "erin")
		if err != nil {
			t.Fatalf("FindByUsername()でエラーが発生: %v", err)
		}
		if found.Username != "erin" {
			t.Errorf("Username = %q, want %q", found.Username, "erin")
		}
	})

	t.Run("ファイルDBはWALモードで開かれること", func(t *testing.T) {
		t.Parallel()

		s := newFileSQLStore(t)

		var mode string
		if err := s.db.QueryRowContext(context.Background(), "PRAGMA journal_mode").Scan(&mode); err != nil {
			t.Fatalf("journal_modeの取得に失敗: %v", err)
		}
		if mode != "wal" {
			t.Errorf("journal_mode = %q, want %q", mode, "wal")
		}

		var timeout int
		if err := s.db.QueryRowContext(context.Background(), "PRAGMA busy_timeout").Scan(&timeout); err != nil {
			t.Fatalf("busy_timeoutの取得に失敗: %v", err)
		}
		if timeout != 5000 {
			t.Errorf("busy_timeout = %d, want 5000", timeout)
		}
	})

	t.Run("インメモリDBでも作成したアカウントを検索できること", func(t *testing.T) {
		t.Parallel()

		ctx := context.Background()
		s, err := OpenSQLStore(ctx, DialectSQLite, ":memory:")
		if err != nil {
			t.Fatalf("OpenSQLStore()でエラーが発生: %v", err)
		}
		t.Cleanup(func() { s.Close() })

		if _, err := s.Create(ctx, "frank", "hash"); err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if _, err := s.FindByUsername(ctx, "frank"); err != nil {
			t.Errorf("FindByUsername()でエラーが発生: %v", err)
		}
	})

	t.Run("未対応の方言はエラーになること", func(t *testing.T) {
		t.Parallel()

		if _, err := OpenSQLStore(context.Background(), Dialect("mysql"), "dsn"); err == nil {
			t.Error("未対応の方言でエラーになるべき")
		}
	})
}

func TestSQLStoreRebind(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		dialect Dialect
		query   string
		want    string
	}{
		{
			name:    "SQLiteではそのまま",
			dialect: DialectSQLite,
			query:   "SELECT * FROM accounts WHERE username = ? AND id = ?",
			want:    "SELECT * FROM accounts WHERE username = ? AND id = ?",
		},
		{
			name:    "PostgreSQLでは番号付きプレースホルダーになる",
			dialect: DialectPostgres,
			query:   "INSERT INTO accounts (id, username) VALUES (?, ?)",
			want:    "INSERT INTO accounts (id, username) VALUES ($1, $2)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			s := NewSQLStore(nil, tt.dialect)
			if got := s.rebind(tt.query); got != tt.want {
				t.Errorf("rebind() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestWithSQLitePragmas(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		dsn  string
		want string
	}{
		{
			name: "パスのみの場合はクエリとして付与する",
			dsn:  "pestsignal.db",
			want: "pestsignal.db?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		},
		{
			name: "既存のクエリには&で連結する",
			dsn:  "file:pestsignal.db?cache=shared",
			want: "file:pestsignal.db?cache=shared&_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)",
		},
		{
			name: "指定済みのPRAGMAは上書きしない",
			dsn:  "pestsignal.db?_pragma=busy_timeout(100)",
			want: "pestsignal.db?_pragma=busy_timeout(100)&_pragma=journal_mode(WAL)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := withSQLitePragmas(tt.dsn); got != tt.want {
				t.Errorf("withSQLitePragmas() = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsSQLiteMemoryDSN(t *testing.T) {
	t.Parallel()

	for dsn, want := range map[string]bool{
		":memory:":                        true,
		"file::memory:?cache=shared":      true,
		"file:accounts?mode=memory":       true,
		"pestsignal.db":                   false,
		"/var/lib/pestsignal/accounts.db": false,
	} {
		if got := isSQLiteMemoryDSN(dsn); got != want {
			t.Errorf("isSQLiteMemoryDSN(%q) = %v, want %v", dsn, got, want)
		}
	}
}

func TestIsUniqueViolation(t *testing.T) {
	t.Parallel()

	if isUniqueViolation(errors.New("some other error")) {
		t.Error("一般的なエラーを一意制約違反と判定すべきではない")
	}
	if isUniqueViolation(sql.ErrNoRows) {
		t.Error("sql.ErrNoRowsを一意制約違反と判定すべきではない")
	}
}
