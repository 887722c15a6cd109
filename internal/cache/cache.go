package cache

import (
	"context"
	"time"
)

// BytesCache — минимальный контракт кэша "как есть, байтами".
// Кэш всегда best-effort: промах и ошибка равнозначны для читателя.
type BytesCache interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, key string) error
}
