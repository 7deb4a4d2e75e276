package account

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
)

// runStoreContract はStore実装が満たすべき振る舞いを検証する。
// 各実装のテストから呼び出す。
func runStoreContract(t *testing.T, newStore func(t *testing.T) Store) {
	t.Helper()

	t.Run("存在しないユーザー名の検索でErrNotFoundを返すこと", func(t *testing.T) {
		s := newStore(t)

		_, err := s.FindByUsername(context.Background(), "nobody")
		if !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
	})

	t.Run("作成したアカウントをユーザー名で検索できること", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		created, err := s.Create(ctx, "alice", "hash-1234")
		if err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if created.ID == "" {
			t.Error("IDが割り当てられていない")
		}
		if created.CreatedAt.IsZero() {
			t.Error("CreatedAtが設定されていない")
		}

		found, err := s.FindByUsername(ctx, "alice")
		if err != nil {
			t.Fatalf("FindByUsername()でエラーが発生: %v", err)
		}
		if found.ID != created.ID {
			t.Errorf("ID = %q, want %q", found.ID, created.ID)
		}
		if found.Username != "alice" {
			t.Errorf("Username = %q, want %q", found.Username, "alice")
		}
		if found.PINHash != "hash-1234" {
			t.Errorf("PINHash = %q, want %q", found.PINHash, "hash-1234")
		}
	})

	t.Run("同じユーザー名での2回目の作成はErrUsernameTakenを返すこと", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Create(ctx, "bob", "hash-a"); err != nil {
			t.Fatalf("1回目のCreate()でエラーが発生: %v", err)
		}
		_, err := s.Create(ctx, "bob", "hash-b")
		if !errors.Is(err, ErrUsernameTaken) {
			t.Errorf("err = %v, want ErrUsernameTaken", err)
		}

		// 既存のアカウントは上書きされないこと
		found, err := s.FindByUsername(ctx, "bob")
		if err != nil {
			t.Fatalf("FindByUsername()でエラーが発生: %v", err)
		}
		if found.PINHash != "hash-a" {
			t.Errorf("PINHash = %q, want %q", found.PINHash, "hash-a")
		}
	})

	t.Run("ユーザー名の大文字小文字を区別すること", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		if _, err := s.Create(ctx, "Carol", "hash-upper"); err != nil {
			t.Fatalf("Create()でエラーが発生: %v", err)
		}
		if _, err := s.FindByUsername(ctx, "carol"); !errors.Is(err, ErrNotFound) {
			t.Errorf("err = %v, want ErrNotFound", err)
		}
		if _, err := s.Create(ctx, "carol", "hash-lower"); err != nil {
			t.Errorf("大文字小文字が異なるユーザー名の作成に失敗: %v", err)
		}
	})

	t.Run("同時作成では1件だけが成功すること", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 8
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := s.Create(ctx, "race", "hash")
				errs <- err
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrUsernameTaken):
			default:
				t.Errorf("想定外のエラー: %v", err)
			}
		}
		if succeeded != 1 {
			t.Errorf("成功数 = %d, want 1", succeeded)
		}
	})

	t.Run("異なるユーザー名の同時検索と作成はすべて成功すること", func(t *testing.T) {
		s := newStore(t)
		ctx := context.Background()

		const workers = 50
		var wg sync.WaitGroup
		errs := make(chan error, workers)
		for i := range workers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				username := fmt.Sprintf("user%d", i)
				if _, err := s.FindByUsername(ctx, username); !errors.Is(err, ErrNotFound) {
					errs <- fmt.Errorf("%s の検索: %w", username, err)
					return
				}
				if _, err := s.Create(ctx, username, "hash"); err != nil {
					errs <- fmt.Errorf("%s の作成: %w", username, err)
					return
				}
				if _, err := s.FindByUsername(ctx, username); err != nil {
					errs <- fmt.Errorf("%s の再検索: %w", username, err)
				}
			}()
		}
		wg.Wait()
		close(errs)

		for err := range errs {
			t.Errorf("同時実行で失敗: %v", err)
		}
	})
}
