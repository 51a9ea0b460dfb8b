// Package lock implements cross-process mutual exclusion on a lock file
// path, the primitive every other stateful component in the kernel builds
// on. The lock file is created exclusively (O_CREATE|O_EXCL) with the
// holder's pid and acquire time written into it, and acquire/retry/
// break-stale semantics are layered on top.
package lock

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// Options tune acquisition behavior. Zero value is sane defaults.
type Options struct {
	// StaleAfter is how long after its recorded acquire time a held lock
	// may stand before another acquirer is allowed to break it. Default 10s.
	StaleAfter time.Duration
	// RetryBaseWait is the first backoff wait on contention. Default 20ms.
	RetryBaseWait time.Duration
	// RetryMaxWait caps the exponential backoff. Default 500ms.
	RetryMaxWait time.Duration
	// AcquireTimeout bounds total time spent retrying. Default 5s.
	AcquireTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.StaleAfter == 0 {
		o.StaleAfter = 10 * time.Second
	}
	if o.RetryBaseWait == 0 {
		o.RetryBaseWait = 20 * time.Millisecond
	}
	if o.RetryMaxWait == 0 {
		o.RetryMaxWait = 500 * time.Millisecond
	}
	if o.AcquireTimeout == 0 {
		o.AcquireTimeout = 5 * time.Second
	}
	return o
}

// holderInfo is the content written into the lock file while held.
type holderInfo struct {
	PID        int       `json:"pid"`
	AcquiredAt time.Time `json:"acquiredAt"`
}

// Lock represents a held lock. Release is idempotent.
type Lock struct {
	path     string
	released bool
}

// Acquire takes the lock at path, creating parent directories as needed.
// It retries on contention with bounded exponential backoff and will break
// a held lock once its holder's info is older than opts.StaleAfter.
func Acquire(ctx context.Context, path string, opts Options) (*Lock, error) {
	opts = opts.withDefaults()

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("lock: create lock dir: %w", err)
	}

	deadline := time.Now().Add(opts.AcquireTimeout)
	wait := opts.RetryBaseWait

	for {
		if ok, err := tryCreate(path); err != nil {
			return nil, err
		} else if ok {
			return &Lock{path: path}, nil
		}

		if broke, err := breakIfStale(path, opts.StaleAfter); err != nil {
			return nil, err
		} else if broke {
			continue // retry acquisition immediately after breaking
		}

		if time.Now().After(deadline) {
			return nil, fmt.Errorf("lock: timed out acquiring %s", path)
		}

		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}

		wait *= 2
		if wait > opts.RetryMaxWait {
			wait = opts.RetryMaxWait
		}
	}
}

// WithLock runs fn while holding the lock at path, guaranteeing release on
// every exit path including panics propagated from fn.
func WithLock(ctx context.Context, path string, opts Options, fn func() error) error {
	l, err := Acquire(ctx, path, opts)
	if err != nil {
		return err
	}
	defer l.Release()
	return fn()
}

// Release drops the lock. Safe to call more than once.
func (l *Lock) Release() error {
	if l == nil || l.released {
		return nil
	}
	l.released = true
	if err := os.Remove(l.path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("lock: release %s: %w", l.path, err)
	}
	return nil
}

// tryCreate attempts the exclusive create-then-write-content sequence.
// Returns ok=false (not an error) when the file already exists.
func tryCreate(path string) (bool, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0644)
	if err != nil {
		if os.IsExist(err) {
			return false, nil
		}
		return false, fmt.Errorf("lock: create %s: %w", path, err)
	}
	defer f.Close()

	info := holderInfo{PID: os.Getpid(), AcquiredAt: time.Now().UTC()}
	data, err := json.Marshal(info)
	if err != nil {
		return false, fmt.Errorf("lock: encode holder info: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		return false, fmt.Errorf("lock: write holder info: %w", err)
	}
	return true, nil
}

// breakIfStale removes path if its holder info is older than staleAfter,
// or if it's unreadable/unparseable (a crashed writer can leave a partial
// file — same "missing/empty" fallback the rest of the kernel uses for
// torn reads).
func breakIfStale(path string, staleAfter time.Duration) (bool, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, nil
	}

	var info holderInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return removeStale(path)
	}

	if time.Since(info.AcquiredAt) <= staleAfter {
		return false, nil
	}
	return removeStale(path)
}

func removeStale(path string) (bool, error) {
	if err := os.Remove(path); err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, nil
	}
	return true, nil
}
