package workflow

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/mmdatafocus/shopdash_backend/config"
	"github.com/sirupsen/logrus"
)

var ErrCorrectionInProgress = errors.New("a correction for this line is already in progress")

const lineLockTTL = 30 * time.Second

// LineLocker guards a single correction submission per line item.
type LineLocker interface {
	Obtain(ctx context.Context, key string) (release func(), err error)
}

// NewLineLocker locks through Redis when a client is available and in-process otherwise.
func NewLineLocker(client *redislock.Client) LineLocker {
	if client == nil {
		return &localLineLocker{held: make(map[string]struct{})}
	}
	return &redisLineLocker{client: client}
}

type redisLineLocker struct {
	client *redislock.Client
}

// Obtain fails fast on contention. Any other Redis failure proceeds without the lock;
// the procedure itself is atomic.
func (l *redisLineLocker) Obtain(ctx context.Context, key string) (func(), error) {
	logger := config.GetLogger()
	lock, err := l.client.Obtain(ctx, "lock:"+key, lineLockTTL, nil)
	if errors.Is(err, redislock.ErrNotObtained) {
		return nil, ErrCorrectionInProgress
	}
	if err != nil {
		logger.WithFields(logrus.Fields{
			"field": "lineLock",
			"key":   key,
		}).Warn("error obtaining redis lock; proceeding without redis lock: " + err.Error())
		return func() {}, nil
	}
	return func() {
		if err := lock.Release(context.WithoutCancel(ctx)); err != nil && !errors.Is(err, redislock.ErrLockNotHeld) {
			logger.WithFields(logrus.Fields{
				"field": "lineLock",
				"key":   key,
			}).Warn("failed to release redis lock: " + err.Error())
		}
	}, nil
}

type localLineLocker struct {
	mu   sync.Mutex
	held map[string]struct{}
}

func (l *localLineLocker) Obtain(_ context.Context, key string) (func(), error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.held[key]; ok {
		return nil, ErrCorrectionInProgress
	}
	l.held[key] = struct{}{}
	var once sync.Once
	return func() {
		once.Do(func() {
			l.mu.Lock()
			delete(l.held, key)
			l.mu.Unlock()
		})
	}, nil
}

// obtainAll takes the locks in key order and releases what it holds on failure.
func obtainAll(ctx context.Context, locker LineLocker, keys []string) (func(), error) {
	keys = append([]string(nil), keys...)
	sort.Strings(keys)
	releases := make([]func(), 0, len(keys))
	releaseAll := func() {
		for i := len(releases) - 1; i >= 0; i-- {
			releases[i]()
		}
	}
	for _, key := range keys {
		release, err := locker.Obtain(ctx, key)
		if err != nil {
			releaseAll()
			return nil, err
		}
		releases = append(releases, release)
	}
	return releaseAll, nil
}

func lineLockKey(resource, transactionID, productName string) string {
	return "correction:" + resource + ":" + transactionID + ":" + productName
}
