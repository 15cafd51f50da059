package store

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestMemoryStorageValues(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.Set(ctx, "k", "hello", time.Minute))

		var got string
		require.NoError(t, s.Get(ctx, "k", &got))
		require.Equal(t, "hello", got)
	})

	t.Run("missing key", func(t *testing.T) {
		s := NewMemoryStorage()
		var got string
		require.ErrorIs(t, s.Get(ctx, "absent", &got), ErrNotFound)
	})

	t.Run("lazy expiry", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.Set(ctx, "k", "hello", time.Millisecond))
		time.Sleep(5 * time.Millisecond)

		var got string
		require.ErrorIs(t, s.Get(ctx, "k", &got), ErrNotFound)
	})

	t.Run("save never expires", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.Save(ctx, "k", 42))

		var got int
		require.NoError(t, s.Get(ctx, "k", &got))
		require.Equal(t, 42, got)
	})

	t.Run("expire shortens the lifetime", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.Save(ctx, "k", "hello"))
		require.NoError(t, s.Expire(ctx, "k", time.Now().Add(-time.Second)))

		var got string
		require.ErrorIs(t, s.Get(ctx, "k", &got), ErrNotFound)
	})

	t.Run("delete", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.Set(ctx, "k", "hello", time.Minute))
		require.NoError(t, s.Delete(ctx, "k"))
		require.ErrorIs(t, s.Delete(ctx, "k"), ErrNotFound)
	})

	t.Run("get converts numeric kinds", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.Set(ctx, "k", int64(7), time.Minute))

		var got int
		require.NoError(t, s.Get(ctx, "k", &got))
		require.Equal(t, 7, got)
	})
}

func TestMemoryStorageAttrs(t *testing.T) {
	ctx := context.Background()

	t.Run("set and get", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.SetAttr(ctx, "k", "count", 3))

		var got int64
		require.NoError(t, s.GetAttr(ctx, "k", "count", &got))
		require.Equal(t, int64(3), got)
	})

	t.Run("missing field", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.SetAttr(ctx, "k", "count", 3))

		var got int64
		require.ErrorIs(t, s.GetAttr(ctx, "k", "other", &got), ErrNotFound)
	})

	t.Run("incr creates and accumulates", func(t *testing.T) {
		s := NewMemoryStorage()
		n, err := s.IncrAttr(ctx, "k", "count", 1)
		require.NoError(t, err)
		require.Equal(t, int64(1), n)

		n, err = s.IncrAttr(ctx, "k", "count", 2)
		require.NoError(t, err)
		require.Equal(t, int64(3), n)
	})

	t.Run("del attr leaves the key", func(t *testing.T) {
		s := NewMemoryStorage()
		require.NoError(t, s.SetAttr(ctx, "k", "a", 1))
		require.NoError(t, s.SetAttr(ctx, "k", "b", 2))
		require.NoError(t, s.DelAttr(ctx, "k", "a"))

		var got int64
		require.ErrorIs(t, s.GetAttr(ctx, "k", "a", &got), ErrNotFound)
		require.NoError(t, s.GetAttr(ctx, "k", "b", &got))
		require.Equal(t, int64(2), got)
	})

	t.Run("non integer attr rejected", func(t *testing.T) {
		s := NewMemoryStorage()
		require.Error(t, s.SetAttr(ctx, "k", "count", "three"))
	})

	t.Run("expiry applies to the whole field map", func(t *testing.T) {
		s := NewMemoryStorage()
		_, err := s.IncrAttr(ctx, "k", "count", 5)
		require.NoError(t, err)
		require.NoError(t, s.Expire(ctx, "k", time.Now().Add(-time.Second)))

		n, err := s.IncrAttr(ctx, "k", "count", 1)
		require.NoError(t, err)
		require.Equal(t, int64(1), n, "expired counter restarts from zero")
	})
}
