// Package coordinator provides best-effort cross-machine mutual
// exclusion and a machine liveness registry. It is explicitly not a
// consensus layer: locks have bounded staleness, and every failure
// degrades to "treat as unavailable" for the caller.
package coordinator

import (
	"context"
	stderrors "errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/gantry-io/gantry/internal/metrics"
	"github.com/gantry-io/gantry/internal/models"
	"github.com/gantry-io/gantry/pkg/log"
	"github.com/pkg/errors"
	"gorm.io/gorm"
)

const lockPrefix = "lock:"

var (
	// ErrLockUnavailable means the distributed lock was not acquired,
	// whether held elsewhere or lost to a store failure. Callers no-op
	// or retry on their next scheduled tick.
	ErrLockUnavailable = stderrors.New("distributed lock unavailable")

	// ErrMachineUnavailable means no live machine can take a
	// distributed assignment.
	ErrMachineUnavailable = stderrors.New("no machines available")
)

// Coordinator owns distributed lock semantics and the liveness
// registry. No other component writes lock state.
type Coordinator struct {
	kv        KV
	db        *gorm.DB
	machineID string
	machineIP string
	maxTasks  int
	now       func() time.Time
}

func New(kv KV, db *gorm.DB, machineID, machineIP string, maxTasks int) *Coordinator {
	if maxTasks <= 0 {
		maxTasks = 5
	}
	return &Coordinator{
		kv:        kv,
		db:        db,
		machineID: machineID,
		machineIP: machineIP,
		maxTasks:  maxTasks,
		now:       time.Now,
	}
}

// MachineID returns this coordinator's machine identity.
func (c *Coordinator) MachineID() string {
	return c.machineID
}

// AcquireLock attempts an atomic set-if-absent with expiry on the
// coordination store. A stale lock left behind by this same machine
// (a prior crash before release) is deleted and acquisition retried
// once; a lock held by any other machine is never touched.
func (c *Coordinator) AcquireLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	acquired, err := c.setLock(ctx, key, ttl)
	if err != nil {
		return false, err
	}

	if !acquired {
		holder, ts, ok := c.inspectHolder(ctx, key)
		if ok && holder == c.machineID && c.now().Sub(ts) > ttl {
			log.Warn("reclaiming stale self-owned lock", "key", key, "acquired_at", ts)
			if err := c.kv.Del(ctx, lockPrefix+key); err != nil {
				return false, err
			}
			acquired, err = c.setLock(ctx, key, ttl)
			if err != nil {
				return false, err
			}
		}
	}

	outcome := "acquired"
	if !acquired {
		outcome = "rejected"
	}
	metrics.DistributedLockAcquisitionsTotal.WithLabelValues(key, outcome).Inc()

	if acquired {
		c.audit(ctx, key, ttl)
	}

	return acquired, nil
}

// ReleaseLock deletes the key only when the current holder is this
// machine. It never forcibly clears another machine's lock.
func (c *Coordinator) ReleaseLock(ctx context.Context, key string) error {
	holder, _, ok := c.inspectHolder(ctx, key)
	if !ok || holder != c.machineID {
		return nil
	}

	if err := c.kv.Del(ctx, lockPrefix+key); err != nil {
		return err
	}

	if c.db != nil {
		if err := c.db.WithContext(ctx).Model(&models.LockRecord{}).
			Where("lock_key = ? AND machine_id = ? AND is_active = ?", key, c.machineID, true).
			Update("is_active", false).Error; err != nil {
			log.Warn("failed to update lock audit record", "key", key, "error", err)
		}
	}

	return nil
}

// WithLock runs fn while holding the named lock, releasing it on every
// exit path. When the lock is held elsewhere, or the coordination
// store itself fails, fn does not run and ErrLockUnavailable is
// returned. A store failure degrades to unavailable rather than
// surfacing: the layer is best-effort.
func (c *Coordinator) WithLock(ctx context.Context, key string, ttl time.Duration, fn func() error) error {
	acquired, err := c.AcquireLock(ctx, key, ttl)
	if err != nil {
		log.Error("distributed lock acquisition failure", "key", key, "error", err)
		return errors.Wrapf(ErrLockUnavailable, "%s: %v", key, err)
	}

	if !acquired {
		return errors.Wrapf(ErrLockUnavailable, "%s held by another machine", key)
	}

	defer func() {
		if err := c.ReleaseLock(ctx, key); err != nil {
			log.Error("distributed lock release failure", "key", key, "error", err)
		}
	}()

	return fn()
}

func (c *Coordinator) setLock(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	value := fmt.Sprintf("%s:%d", c.machineID, c.now().Unix())
	return c.kv.SetNX(ctx, lockPrefix+key, value, ttl)
}

func (c *Coordinator) inspectHolder(ctx context.Context, key string) (string, time.Time, bool) {
	value, ok, err := c.kv.Get(ctx, lockPrefix+key)
	if err != nil || !ok {
		return "", time.Time{}, false
	}

	idx := strings.LastIndex(value, ":")
	if idx < 0 {
		return value, time.Time{}, true
	}

	unix, err := strconv.ParseInt(value[idx+1:], 10, 64)
	if err != nil {
		return value[:idx], time.Time{}, true
	}

	return value[:idx], time.Unix(unix, 0), true
}

// audit mirrors the acquired lock into the database for observability.
// Failures are logged and ignored: the store remains the authority.
func (c *Coordinator) audit(ctx context.Context, key string, ttl time.Duration) {
	if c.db == nil {
		return
	}

	now := c.now()
	if err := c.db.WithContext(ctx).Create(&models.LockRecord{
		LockKey:    key,
		MachineID:  c.machineID,
		AcquiredAt: now,
		ExpiresAt:  now.Add(ttl),
		IsActive:   true,
	}).Error; err != nil {
		log.Warn("failed to record lock audit row", "key", key, "error", err)
	}
}
