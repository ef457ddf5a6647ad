package valkey

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
)

const releaseLockScript = `
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
else
	return 0
end
`

// Locker hands out expiring locks shared by every process on the same Valkey.
// Each acquisition gets its own token, so a lock that expired and was taken by
// someone else is never deleted by the previous holder.
type Locker struct {
	client *Client
	owner  string
	tokens sync.Map // full key -> token
}

func NewLocker(client *Client, owner string) *Locker {
	return &Locker{client: client, owner: owner}
}

func (l *Locker) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	if ttl < time.Second {
		ttl = time.Second
	}
	full := l.client.Key(key)
	token := l.owner + ":" + uuid.NewString()

	inner := l.client.Inner()
	err := inner.Do(ctx, inner.B().Set().Key(full).Value(token).Nx().Ex(ttl).Build()).Error()
	if err != nil {
		if IsNil(err) {
			return false, nil
		}
		return false, fmt.Errorf("acquire %s: %w", full, err)
	}

	l.tokens.Store(full, token)
	return true, nil
}

func (l *Locker) Release(ctx context.Context, key string) error {
	full := l.client.Key(key)
	token, ok := l.tokens.LoadAndDelete(full)
	if !ok {
		return nil
	}

	inner := l.client.Inner()
	cmd := inner.B().Eval().Script(releaseLockScript).Numkeys(1).Key(full).Arg(token.(string)).Build()
	if err := inner.Do(ctx, cmd).Error(); err != nil {
		return fmt.Errorf("release %s: %w", full, err)
	}
	return nil
}
