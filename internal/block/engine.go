package block

import (
	"errors"
	"fmt"
	"hash/fnv"
	"log"
	"net"
	"sync"
	"time"

	"websentry/internal/types"
)

// AlertCounter supplies the evidence count the policy acts on
type AlertCounter interface {
	CountSince(ip string, floor types.Priority, cutoff time.Time) (int, error)
}

// Decision reports what Evaluate did for one IP
type Decision struct {
	IP         string
	Blocked    bool // true only when this call created or reactivated a block
	AlertCount int
	Reason     string
}

// Engine applies the auto-block policy. Safety checks run before any
// count: a whitelisted or allowlisted IP is never blocked no matter how
// many alerts it has. Evaluation for the same IP is serialized so
// concurrent triggers produce exactly one block.
type Engine struct {
	store     *Store
	counter   AlertCounter
	threshold int
	window    time.Duration
	floor     types.Priority
	allowlist map[string]bool

	locks [32]sync.Mutex
}

func NewEngine(store *Store, counter AlertCounter, cfg *types.Config) *Engine {
	allow := make(map[string]bool, len(cfg.AutoBlock.Allowlist))
	for _, ip := range cfg.AutoBlock.Allowlist {
		allow[ip] = true
	}
	return &Engine{
		store:     store,
		counter:   counter,
		threshold: cfg.AutoBlock.Threshold,
		window:    time.Duration(cfg.AutoBlock.WindowHours) * time.Hour,
		floor:     cfg.AutoBlock.PriorityFloor,
		allowlist: allow,
	}
}

func (e *Engine) lockFor(ip string) *sync.Mutex {
	h := fnv.New32a()
	h.Write([]byte(ip))
	return &e.locks[h.Sum32()%uint32(len(e.locks))]
}

// Evaluate runs the policy for one IP after new alert activity. It is
// idempotent: an IP that already has an active block comes back with
// Blocked false and no store write.
func (e *Engine) Evaluate(ip string) (*Decision, error) {
	d := &Decision{IP: ip}

	if net.ParseIP(ip) == nil {
		return d, fmt.Errorf("refusing to evaluate invalid IP %q", ip)
	}

	// Safety short-circuit before any counting
	if e.allowlist[ip] {
		d.Reason = "allowlisted"
		return d, nil
	}
	whitelisted, err := e.store.IsWhitelisted(ip)
	if err != nil {
		return d, err
	}
	if whitelisted {
		d.Reason = "whitelisted"
		return d, nil
	}

	mu := e.lockFor(ip)
	mu.Lock()
	defer mu.Unlock()

	count, err := e.counter.CountSince(ip, e.floor, time.Now().Add(-e.window))
	if err != nil {
		return d, fmt.Errorf("count alerts for %s: %w", ip, err)
	}
	d.AlertCount = count
	if count < e.threshold {
		return d, nil
	}

	existing, err := e.store.GetBlock(ip)
	if err != nil && !errors.Is(err, ErrNotFound) {
		return d, err
	}
	if existing != nil && existing.Active {
		// Already blocked, nothing to do
		return d, nil
	}

	entry := &types.BlockEntry{
		IP:          ip,
		Reason:      fmt.Sprintf("auto-blocked: %d alerts at or above %s in %s", count, e.floor, e.window),
		AutoBlocked: true,
		AttackCount: count,
		Active:      true,
	}
	if existing != nil {
		// Reactivate rather than duplicate
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
	}
	if err := e.store.Upsert(entry); err != nil {
		return d, err
	}

	d.Blocked = true
	d.Reason = entry.Reason
	log.Printf("[BLOCK] Auto-blocked %s (%d alerts in window)", ip, count)
	return d, nil
}

// Block applies a manual block for an operator
func (e *Engine) Block(ip, reason string) error {
	if net.ParseIP(ip) == nil {
		return fmt.Errorf("invalid IP %q", ip)
	}
	if e.allowlist[ip] {
		return fmt.Errorf("%s is allowlisted", ip)
	}
	whitelisted, err := e.store.IsWhitelisted(ip)
	if err != nil {
		return err
	}
	if whitelisted {
		return fmt.Errorf("%s is whitelisted", ip)
	}

	mu := e.lockFor(ip)
	mu.Lock()
	defer mu.Unlock()

	entry := &types.BlockEntry{IP: ip, Reason: reason, Active: true}
	if existing, err := e.store.GetBlock(ip); err == nil {
		entry.ID = existing.ID
		entry.CreatedAt = existing.CreatedAt
		entry.AttackCount = existing.AttackCount
	}
	return e.store.Upsert(entry)
}

// Unblock deactivates a block for an operator
func (e *Engine) Unblock(ip string) error {
	return e.store.Deactivate(ip)
}
