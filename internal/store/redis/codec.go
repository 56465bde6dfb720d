package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/MrSnakeDoc/selectord/internal/store"
)

// getJSON loads one record and watches its key.
func getJSON[T any](ctx context.Context, c conn, key, kind, id string) (*T, error) {
	if err := c.watch(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", kind, err)
	}

	data, err := c.reader().Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%s %s: %w", kind, id, store.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}

	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
	}
	return &v, nil
}

// getManyJSON loads the records stored under keys, skipping missing ones.
func getManyJSON[T any](ctx context.Context, c conn, keys []string, kind string) ([]*T, error) {
	if len(keys) == 0 {
		return []*T{}, nil
	}
	if err := c.watch(ctx, keys...); err != nil {
		return nil, fmt.Errorf("failed to watch %s: %w", kind, err)
	}

	values, err := c.reader().MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", kind, err)
	}

	out := make([]*T, 0, len(values))
	for _, raw := range values {
		str, ok := raw.(string)
		if !ok {
			// Index entry without a record, skip it
			continue
		}
		var v T
		if err := json.Unmarshal([]byte(str), &v); err != nil {
			return nil, fmt.Errorf("failed to unmarshal %s: %w", kind, err)
		}
		out = append(out, &v)
	}
	return out, nil
}

// members returns the content of an index set and watches it.
func members(ctx context.Context, c conn, key string) ([]string, error) {
	if err := c.watch(ctx, key); err != nil {
		return nil, fmt.Errorf("failed to watch index %s: %w", key, err)
	}
	ids, err := c.reader().SMembers(ctx, key).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read index %s: %w", key, err)
	}
	return ids, nil
}

// exists reports whether key is set and watches it.
func exists(ctx context.Context, c conn, key string) (bool, error) {
	if err := c.watch(ctx, key); err != nil {
		return false, err
	}
	n, err := c.reader().Exists(ctx, key).Result()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func keysFor(ids []string, keyFn func(string) string) []string {
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = keyFn(id)
	}
	return keys
}

func toAny(ids []string) []any {
	out := make([]any, len(ids))
	for i, id := range ids {
		out[i] = id
	}
	return out
}
