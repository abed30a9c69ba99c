package cache

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/mmdatafocus/shopdash_backend/utils"
)

// InvalidationChannel carries invalidations between instances.
const InvalidationChannel = "dashboard:invalidate"

// Mirror is a second-level store shared by every instance.
//
// Every resource has an invalidation epoch. Load reports the current epoch of the key's resource and
// only decodes a copy stored under that epoch; Store records the epoch the fetch observed on Load, so a
// value read before an invalidation can never be served after it.
type Mirror interface {
	Load(ctx context.Context, key Key, dest any) (found bool, epoch int64, err error)
	Store(ctx context.Context, key Key, value any, epoch int64, ttl time.Duration) error
	Invalidate(ctx context.Context, inv Invalidation) error
}

// RemoteListener is a Mirror that also receives invalidations from other instances.
type RemoteListener interface {
	Listen(ctx context.Context, apply func(Invalidation)) error
}

type invalidationMessage struct {
	Origin       string       `json:"origin"`
	Invalidation Invalidation `json:"invalidation"`
}

// RedisMirror keeps entries under Dashboard:<key> in the shared redis,
// and the epoch of each resource under dashboard:epoch:<resource>.
type RedisMirror struct {
	origin string
}

type mirrorRecord struct {
	Epoch int64           `json:"epoch"`
	Data  json.RawMessage `json:"data"`
}

func NewRedisMirror() *RedisMirror {
	return &RedisMirror{origin: uuid.NewString()}
}

func epochKey(resource string) string {
	return "dashboard:epoch:" + resource
}

func (m *RedisMirror) Load(ctx context.Context, key Key, dest any) (bool, int64, error) {
	epoch, err := config.GetRedisCounter(ctx, epochKey(key.Resource))
	if err != nil {
		return false, 0, err
	}
	rec, err := utils.RetrieveRedis[mirrorRecord](ctx, key.String())
	if err != nil {
		return false, epoch, err
	}
	if rec == nil || rec.Epoch != epoch {
		return false, epoch, nil
	}
	if err := json.Unmarshal(rec.Data, dest); err != nil {
		return false, epoch, err
	}
	return true, epoch, nil
}

// Store skips values whose epoch has already moved on. A value that races past the check
// keeps its old epoch and is refused by Load.
func (m *RedisMirror) Store(ctx context.Context, key Key, value any, epoch int64, ttl time.Duration) error {
	current, err := config.GetRedisCounter(ctx, epochKey(key.Resource))
	if err != nil {
		return err
	}
	if current != epoch {
		return nil
	}
	data, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return utils.StoreRedis(ctx, key.String(), &mirrorRecord{Epoch: epoch, Data: data}, ttl)
}

// Invalidate bumps the epochs before deleting, so no copy fetched earlier is valid afterwards.
func (m *RedisMirror) Invalidate(ctx context.Context, inv Invalidation) error {
	touched := inv.TouchedResources()
	epochs := make([]string, 0, len(touched))
	for _, r := range touched {
		epochs = append(epochs, epochKey(r))
	}
	errs := []error{config.IncrRedisCounters(ctx, epochs...)}

	keys := make([]string, 0, len(inv.Keys))
	for _, k := range inv.Keys {
		if !k.IsNull() {
			keys = append(keys, k.String())
		}
	}
	errs = append(errs, utils.RemoveRedisItems(ctx, keys...))
	for _, r := range inv.Resources {
		errs = append(errs, utils.RemoveRedisPrefix(ctx, r+":"))
	}
	for _, r := range inv.Lists {
		errs = append(errs, utils.RemoveRedisPrefix(ctx, r+":"+KindList+":"))
	}

	msg, err := json.Marshal(invalidationMessage{Origin: m.origin, Invalidation: inv})
	if err != nil {
		return errors.Join(append(errs, err)...)
	}
	errs = append(errs, config.PublishRedis(ctx, InvalidationChannel, string(msg)))
	return errors.Join(errs...)
}

// Listen applies invalidations published by other instances until ctx is done.
func (m *RedisMirror) Listen(ctx context.Context, apply func(Invalidation)) error {
	rdb := config.GetRedisDB()
	if rdb == nil {
		return errors.New("redis is not connected")
	}
	pubsub := rdb.Subscribe(ctx, InvalidationChannel)
	defer pubsub.Close()

	ch := pubsub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			var payload invalidationMessage
			if err := json.Unmarshal([]byte(msg.Payload), &payload); err != nil {
				config.LogError(config.GetLogger(), "cache", "RedisMirror.Listen", "Unmarshal invalidation", msg.Payload, err)
				continue
			}
			if payload.Origin == m.origin {
				continue
			}
			apply(payload.Invalidation)
		}
	}
}
