// Package outbound correlates requests this side sent with the responses the
// peer eventually returns.
package outbound

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ggoodman/mcp-core-go/internal/jsonrpc"
	"github.com/ggoodman/mcp-core-go/mcp"
	"github.com/spf13/cast"
)

var (
	// ErrDuplicateID indicates an id that is already outstanding.
	ErrDuplicateID = errors.New("request id already outstanding")
	// ErrDuplicateProgressToken indicates a progress token already bound to
	// an outstanding request.
	ErrDuplicateProgressToken = errors.New("progress token already outstanding")
	// ErrUnknownID indicates a response whose id matches nothing outstanding.
	ErrUnknownID = errors.New("unknown request id")
	// ErrTimeout is delivered to callers whose deadline passed.
	ErrTimeout = errors.New("request timed out")
	// ErrCancelled is delivered to callers that cancelled their request.
	ErrCancelled = errors.New("request cancelled")
	// ErrTrackerClosed indicates the tracker no longer accepts requests.
	ErrTrackerClosed = errors.New("tracker closed")
)

// Outcome is the terminal result of a request. Exactly one of Result or Err
// is set. Remote failures are *jsonrpc.Error.
type Outcome struct {
	Result json.RawMessage
	Err    error
}

// ProgressFunc receives progress notifications for a pending request.
type ProgressFunc func(mcp.ProgressNotificationParams)

// Pending is an outstanding request.
type Pending struct {
	ID            jsonrpc.RequestID
	Method        string
	SentAt        time.Time
	Deadline      time.Time
	ProgressToken mcp.ProgressToken

	onProgress ProgressFunc
	tokenKey   string
	done       chan Outcome
}

// Done yields the request's single outcome.
func (p *Pending) Done() <-chan Outcome { return p.done }

// RegisterOption configures a pending request.
type RegisterOption func(*Pending)

// WithDeadline makes SweepTimeouts fail the request after t.
func WithDeadline(t time.Time) RegisterOption {
	return func(p *Pending) { p.Deadline = t }
}

// WithProgressToken routes progress notifications carrying tok to fn.
func WithProgressToken(tok mcp.ProgressToken, fn ProgressFunc) RegisterOption {
	return func(p *Pending) {
		p.ProgressToken = tok
		p.onProgress = fn
	}
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock overrides the clock used to stamp SentAt.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// Tracker owns the outstanding requests of one session.
type Tracker struct {
	now    func() time.Time
	nextID atomic.Int64

	mu       sync.Mutex
	pending  map[jsonrpc.RequestID]*Pending
	byToken  map[string]*Pending
	closed   bool
	closeErr error
}

// New constructs an empty Tracker.
func New(opts ...Option) *Tracker {
	t := &Tracker{
		now:     time.Now,
		pending: make(map[jsonrpc.RequestID]*Pending),
		byToken: make(map[string]*Pending),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// AllocateID returns an integer id that is not currently outstanding.
func (t *Tracker) AllocateID() jsonrpc.RequestID {
	for {
		id := jsonrpc.IntID(t.nextID.Add(1))
		t.mu.Lock()
		_, taken := t.pending[id]
		t.mu.Unlock()
		if !taken {
			return id
		}
	}
}

// Register records an outstanding request. Registering an id that is
// already outstanding fails with ErrDuplicateID.
func (t *Tracker) Register(id jsonrpc.RequestID, method string, opts ...RegisterOption) (*Pending, error) {
	p := &Pending{ID: id, Method: method, SentAt: t.now(), done: make(chan Outcome, 1)}
	for _, opt := range opts {
		opt(p)
	}
	if p.ProgressToken != nil {
		key, err := tokenKey(p.ProgressToken)
		if err != nil {
			return nil, err
		}
		p.tokenKey = key
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if t.closed {
		return nil, t.closeErrLocked()
	}
	if _, ok := t.pending[id]; ok {
		return nil, fmt.Errorf("%w: %s", ErrDuplicateID, id)
	}
	if p.tokenKey != "" {
		if _, ok := t.byToken[p.tokenKey]; ok {
			return nil, fmt.Errorf("%w: %v", ErrDuplicateProgressToken, p.ProgressToken)
		}
		t.byToken[p.tokenKey] = p
	}
	t.pending[id] = p
	return p, nil
}

// Lookup returns the outstanding request for id without removing it.
func (t *Tracker) Lookup(id jsonrpc.RequestID) (*Pending, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	return p, ok
}

// Resolve delivers outcome to the request with id and removes it. Unknown
// ids, including ones already resolved, return ErrUnknownID and have no
// effect.
func (t *Tracker) Resolve(id jsonrpc.RequestID, outcome Outcome) (*Pending, error) {
	p := t.remove(id)
	if p == nil {
		return nil, fmt.Errorf("%w: %s", ErrUnknownID, id)
	}
	p.done <- outcome
	return p, nil
}

// Cancel fails the request with ErrCancelled. A response that arrives later
// is treated as unknown.
func (t *Tracker) Cancel(id jsonrpc.RequestID) bool {
	p := t.remove(id)
	if p == nil {
		return false
	}
	p.done <- Outcome{Err: ErrCancelled}
	return true
}

// SweepTimeouts fails and removes every request whose deadline is not after
// now, returning them.
func (t *Tracker) SweepTimeouts(now time.Time) []*Pending {
	t.mu.Lock()
	var expired []*Pending
	for id, p := range t.pending {
		if p.Deadline.IsZero() || p.Deadline.After(now) {
			continue
		}
		t.removeLocked(id, p)
		expired = append(expired, p)
	}
	t.mu.Unlock()

	for _, p := range expired {
		p.done <- Outcome{Err: fmt.Errorf("%w: %s %s", ErrTimeout, p.Method, p.ID)}
	}
	return expired
}

// Progress hands a progress notification to the request that registered its
// token. Notifications for unknown tokens are ignored; the return value
// reports whether a request matched.
func (t *Tracker) Progress(params *mcp.ProgressNotificationParams) bool {
	key, err := tokenKey(params.ProgressToken)
	if err != nil {
		return false
	}
	t.mu.Lock()
	p, ok := t.byToken[key]
	t.mu.Unlock()
	if !ok {
		return false
	}
	if p.onProgress != nil {
		p.onProgress(*params)
	}
	return true
}

// Len returns the number of outstanding requests.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.pending)
}

// CloseAll fails every outstanding request with err and rejects future
// registrations.
func (t *Tracker) CloseAll(err error) {
	if err == nil {
		err = ErrTrackerClosed
	}
	t.mu.Lock()
	if t.closed {
		t.mu.Unlock()
		return
	}
	t.closed = true
	t.closeErr = err
	drained := make([]*Pending, 0, len(t.pending))
	for id, p := range t.pending {
		t.removeLocked(id, p)
		drained = append(drained, p)
	}
	t.mu.Unlock()

	for _, p := range drained {
		p.done <- Outcome{Err: err}
	}
}

func (t *Tracker) remove(id jsonrpc.RequestID) *Pending {
	t.mu.Lock()
	defer t.mu.Unlock()
	p, ok := t.pending[id]
	if !ok {
		return nil
	}
	t.removeLocked(id, p)
	return p
}

func (t *Tracker) removeLocked(id jsonrpc.RequestID, p *Pending) {
	delete(t.pending, id)
	if p.tokenKey != "" {
		delete(t.byToken, p.tokenKey)
	}
}

func (t *Tracker) closeErrLocked() error {
	if t.closeErr != nil {
		return t.closeErr
	}
	return ErrTrackerClosed
}

// tokenKey normalises a progress token so that the integer 7 decoded as
// int64, float64 or json.Number maps to the same entry, distinct from "7".
func tokenKey(tok mcp.ProgressToken) (string, error) {
	switch v := tok.(type) {
	case nil:
		return "", mcp.ErrInvalidProgressToken
	case string:
		return "s:" + v, nil
	case bool:
		return "", mcp.ErrInvalidProgressToken
	case float64:
		if !integral(v) {
			return "", mcp.ErrInvalidProgressToken
		}
	case float32:
		if !integral(float64(v)) {
			return "", mcp.ErrInvalidProgressToken
		}
	}
	n, err := cast.ToInt64E(tok)
	if err != nil {
		return "", mcp.ErrInvalidProgressToken
	}
	return "n:" + strconv.FormatInt(n, 10), nil
}

func integral(f float64) bool {
	return !math.IsInf(f, 0) && f == math.Trunc(f)
}
