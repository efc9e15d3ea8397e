package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/GTDGit/gtd_catalog/internal/utils"
)

// RunLock grants one holder per lock name across all API instances.
// A held lock is renewed every third of its TTL until released.
type RunLock struct {
	redis *RedisClient
}

// NewRunLock creates a RunLock.
func NewRunLock(redis *RedisClient) *RunLock {
	return &RunLock{redis: redis}
}

func (l *RunLock) key(name string) string {
	return fmt.Sprintf("catalog:lock:%s", name)
}

// Acquire takes name for ttl. It returns utils.ErrRunInProgress when another
// holder has it. The release func stops renewal and only deletes the lock it
// took; calling it more than once is safe.
func (l *RunLock) Acquire(ctx context.Context, name string, ttl time.Duration) (func(), error) {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	token := uuid.New().String()
	key := l.key(name)

	ok, err := l.redis.SetNX(ctx, key, token, ttl)
	if err != nil {
		return nil, fmt.Errorf("acquire %s: %w", key, err)
	}
	if !ok {
		return nil, utils.ErrRunInProgress
	}

	stop := make(chan struct{})
	done := make(chan struct{})
	go l.renew(key, token, ttl, stop, done)

	var once sync.Once
	release := func() {
		once.Do(func() {
			close(stop)
			<-done
			ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if _, err := l.redis.DeleteIfEquals(ctx, key, token); err != nil {
				log.Warn().Err(err).Str("key", key).Msg("Failed to release run lock")
			}
		})
	}
	return release, nil
}

// renew extends key while it still holds token. It exits on stop or once
// the lock has passed to someone else.
func (l *RunLock) renew(key, token string, ttl time.Duration, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	ticker := time.NewTicker(max(ttl/3, time.Millisecond))
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
		}

		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		held, err := l.redis.ExpireIfEquals(ctx, key, token, ttl)
		cancel()
		if err != nil {
			log.Warn().Err(err).Str("key", key).Msg("Failed to renew run lock")
			continue
		}
		if !held {
			log.Warn().Str("key", key).Msg("Run lock lost before release")
			return
		}
	}
}
