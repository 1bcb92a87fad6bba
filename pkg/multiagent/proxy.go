// Package multiagent lets several logical agents share one stateful model
// conversation without seeing each other's turns.
//
// A Proxy owns the shared session.Channel and a working view of the history
// for each agent. Only the agent marked current may use the channel: on every
// adapter call the proxy checks the caller's index, swaps that agent's view
// into the channel, runs the call and swaps the result back out.
package multiagent

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/session"
)

// Proxy serializes and attributes access to a shared session.Channel.
type Proxy struct {
	shared session.Channel
	n      int

	mu       sync.Mutex
	adapters []*Adapter
	current  int
	// views holds each agent's private history while it is not current.
	views [][]models.Message
	// history mirrors every message exchanged on behalf of each agent.
	history [][]models.Message
	observe func(agent int, msg models.Message)
}

// ProxyOption configures a Proxy.
type ProxyOption func(*Proxy)

// WithObserver registers fn to receive every message added to an adapter's
// log. fn runs while the proxy lock is held and must not call back into it.
func WithObserver(fn func(agent int, msg models.Message)) ProxyOption {
	return func(p *Proxy) {
		p.observe = fn
	}
}

// NewProxy creates a proxy for n agents over shared.
func NewProxy(shared session.Channel, n int, opts ...ProxyOption) *Proxy {
	p := &Proxy{
		shared:  shared,
		n:       n,
		views:   make([][]models.Message, max(n, 0)),
		history: make([][]models.Message, max(n, 0)),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Initialize binds one adapter per agent, in index order. It fails without
// binding anything if the count is wrong, an adapter is already bound, or a
// model-backed adapter uses a channel other than the shared one.
func (p *Proxy) Initialize(adapters ...*Adapter) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.n < 1 {
		return fmt.Errorf("proxy for %d agents: %w", p.n, ErrNoAgents)
	}
	if p.adapters != nil {
		return fmt.Errorf("proxy already initialized")
	}
	if len(adapters) != p.n {
		return fmt.Errorf("got %d adapters for %d agents", len(adapters), p.n)
	}
	seen := make(map[*Adapter]bool, len(adapters))
	for i, a := range adapters {
		if a == nil {
			return fmt.Errorf("adapter %d is nil", i)
		}
		if a.proxy != nil || seen[a] {
			return fmt.Errorf("adapter %d: %w", i, ErrAlreadyBound)
		}
		seen[a] = true
		if !a.null && a.ch != p.shared {
			return fmt.Errorf("adapter %d uses a session other than the shared one", i)
		}
	}

	for i, a := range adapters {
		a.proxy = p
		a.idx = i
	}
	p.adapters = adapters
	p.current = 0
	slog.Debug("Proxy initialized", "agents", p.n)
	return nil
}

// N returns the number of agents.
func (p *Proxy) N() int { return p.n }

// Adapter returns the adapter bound at index i.
func (p *Proxy) Adapter(i int) *Adapter {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= len(p.adapters) {
		return nil
	}
	return p.adapters[i]
}

// SetCurrent marks agent i as the one allowed to use the shared channel.
func (p *Proxy) SetCurrent(i int) error {
	if i < 0 || i >= p.n {
		return fmt.Errorf("agent index %d out of range [0, %d)", i, p.n)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.current = i
	return nil
}

// Current returns the index of the current agent.
func (p *Proxy) Current() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current
}

// Next advances the current agent round-robin and returns the new index.
func (p *Proxy) Next() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.n < 1 {
		return p.current
	}
	p.current = (p.current + 1) % p.n
	return p.current
}

// Append records msg in agent i's transcript mirror.
func (p *Proxy) Append(i int, msg models.Message) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.appendLocked(i, msg)
}

func (p *Proxy) appendLocked(i int, msg models.Message) {
	if i < 0 || i >= p.n {
		return
	}
	p.history[i] = append(p.history[i], msg)
}

// History returns a copy of agent i's transcript mirror.
func (p *Proxy) History(i int) []models.Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	if i < 0 || i >= p.n {
		return nil
	}
	return append([]models.Message(nil), p.history[i]...)
}

// route runs fn on behalf of agent idx. Model-backed agents get the shared
// channel loaded with their own view; null agents get session.Null.
func (p *Proxy) route(idx int, fn func(ch session.Channel) error) error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if idx != p.current {
		return fmt.Errorf("agent %d (current is %d): %w", idx, p.current, ErrNotCurrent)
	}
	if p.adapters[idx].null {
		return fn(session.Null{})
	}

	p.shared.SetHistory(p.views[idx])
	err := fn(&mirror{Channel: p.shared, p: p, idx: idx})
	p.views[idx] = p.shared.History()
	return err
}

func (p *Proxy) logged(idx int, msg models.Message) {
	if p.observe != nil {
		p.observe(idx, msg)
	}
}

// mirror copies everything the agent sends or receives into the proxy's
// per-agent history. The proxy lock is held while it is in use.
type mirror struct {
	session.Channel
	p   *Proxy
	idx int
}

func (m *mirror) Inject(msg models.Message) {
	m.Channel.Inject(msg)
	m.p.appendLocked(m.idx, msg)
}

func (m *mirror) Act(ctx context.Context) (session.Reply, error) {
	reply, err := m.Channel.Act(ctx)
	if err == nil && reply.Status == session.StatusOK {
		m.p.appendLocked(m.idx, models.Message{Role: models.RoleAgent, Content: reply.Content})
	}
	return reply, err
}
