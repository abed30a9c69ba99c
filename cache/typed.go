package cache

import (
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

// Result is an Entry whose data has the type the fetch produced.
type Result[T any] struct {
	Data      T
	Err       error
	Loading   bool
	FetchedAt time.Time
}

func Typed[T any](e Entry) Result[T] {
	var data T
	if v, ok := e.Data.(T); ok {
		data = v
	}
	return Result[T]{Data: data, Err: e.Err, Loading: e.Loading, FetchedAt: e.FetchedAt}
}

// Loader adapts fn to a Fetcher that reads through the mirror, when one is configured.
// A key invalidated locally is never answered from the mirror: its next fetch goes to fn.
// Mirror failures are logged and never fail the fetch.
func Loader[T any](c *Cache, key Key, fn func(ctx context.Context) (T, error)) Fetcher {
	return func(ctx context.Context) (any, error) {
		mirrored := c.mirror != nil
		var epoch int64
		if mirrored {
			var cached T
			ok, ep, err := c.mirror.Load(ctx, key, &cached)
			switch {
			case err != nil:
				c.mirrorWarning("load", key, err)
				mirrored = false
			case ok && !c.invalidated(key):
				return cached, nil
			}
			epoch = ep
		}

		gen := c.generation(key)
		v, err := fn(ctx)
		if err != nil {
			return nil, err
		}
		// an entry invalidated during the fetch must not be mirrored
		if mirrored && c.generation(key) == gen {
			if err := c.mirror.Store(ctx, key, v, epoch, c.mirrorTTL); err != nil {
				c.mirrorWarning("store", key, err)
			}
		}
		return v, nil
	}
}

// Fetch is Get for a typed fetch function.
func Fetch[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) Result[T] {
	return Typed[T](c.Get(ctx, key, Loader(c, key, fn)))
}

// Watch subscribes to key with a typed fetch function.
func Watch[T any](ctx context.Context, c *Cache, key Key, fn func(ctx context.Context) (T, error)) *Subscription {
	return c.Subscribe(ctx, key, Loader(c, key, fn))
}

func (c *Cache) mirrorWarning(op string, key Key, err error) {
	c.logger.WithFields(logrus.Fields{
		"module":   "cache",
		"funcName": "mirror." + op,
		"key":      key.String(),
	}).Warn(err.Error())
}
