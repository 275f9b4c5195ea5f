package command

import (
	"context"
	"fmt"

	"golang.org/x/sync/errgroup"

	"github.com/any-hub/intercept-cache/internal/cache"
)

const invalidateConcurrency = 8

// InvalidateAll 枚举存储中的全部 Key 并逐一删除，所有删除完成后才返回。
// 清空期间仍在进行的回源不会被阻塞或取消，它们完成后可能重新写入。
func InvalidateAll(ctx context.Context, store cache.Store) (int, error) {
	keys, err := store.Keys(ctx)
	if err != nil {
		return 0, fmt.Errorf("list keys: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(invalidateConcurrency)
	for _, key := range keys {
		g.Go(func() error {
			if err := store.Delete(gctx, key); err != nil {
				return fmt.Errorf("delete %s: %w", key, err)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}
	return len(keys), nil
}
