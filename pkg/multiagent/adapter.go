package multiagent

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/nstogner/arena/pkg/metrics"
	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/session"
)

// Adapter gives one logical agent a private view over a session.Channel that
// may be shared with other agents through a Proxy.
type Adapter struct {
	ch   session.Channel
	null bool

	// Set by Proxy.Initialize.
	proxy *Proxy
	idx   int

	// log is only touched while the proxy lock is held.
	log []models.Message
}

// NewAdapter creates an adapter over ch. Passing session.Null{} creates the
// stand-in used for players that are not model-controlled.
func NewAdapter(ch session.Channel) *Adapter {
	return &Adapter{ch: ch, null: session.IsNull(ch)}
}

// Index returns the agent index assigned by the proxy.
func (a *Adapter) Index() int { return a.idx }

// IsNull reports whether the adapter is backed by the null stand-in.
func (a *Adapter) IsNull() bool { return a.null }

// Log returns a copy of the messages exchanged on the main transcript.
func (a *Adapter) Log() []models.Message {
	if a.proxy == nil {
		return append([]models.Message(nil), a.log...)
	}
	a.proxy.mu.Lock()
	defer a.proxy.mu.Unlock()
	return append([]models.Message(nil), a.log...)
}

func (a *Adapter) do(fn func(ch session.Channel) error) error {
	if a.proxy == nil {
		return ErrNotBound
	}
	return a.proxy.route(a.idx, fn)
}

func (a *Adapter) record(msg models.Message) {
	a.log = append(a.log, msg)
	a.proxy.logged(a.idx, msg)
}

// Inject appends msg to the agent's history without running inference. On
// the null stand-in it is only logged.
func (a *Adapter) Inject(msg models.Message) error {
	return a.do(func(ch session.Channel) error {
		ch.Inject(msg)
		a.record(msg)
		return nil
	})
}

// Act sends req.Content as a user turn and returns the model's reply. An odd
// history is first balanced with one empty user turn. On the null stand-in
// it returns req.Fallback without inference.
func (a *Adapter) Act(ctx context.Context, req Request) (string, error) {
	var reply string
	err := a.do(func(ch session.Channel) error {
		prompt := models.Message{Role: models.RoleUser, Content: req.Content}
		if a.null {
			a.record(prompt)
			a.record(models.Message{Role: models.RoleAgent, Content: req.Fallback})
			reply = req.Fallback
			return nil
		}

		if len(ch.History())%2 != 0 {
			a.record(balanceTurn)
		}
		a.record(prompt)
		text, err := a.exchange(ctx, ch, prompt)
		if err != nil {
			return err
		}
		a.record(models.Message{Role: models.RoleAgent, Content: text})
		reply = text
		return nil
	})
	return reply, err
}

// History returns the agent's current working history.
func (a *Adapter) History() ([]models.Message, error) {
	var h []models.Message
	err := a.do(func(ch session.Channel) error {
		h = ch.History()
		return nil
	})
	return h, err
}

// OverwriteHistory replaces the agent's working history. The log is kept.
func (a *Adapter) OverwriteHistory(h []models.Message) error {
	return a.do(func(ch session.Channel) error {
		ch.SetHistory(h)
		return nil
	})
}

var balanceTurn = models.Message{Role: models.RoleUser, Content: ""}

// exchange balances parity, injects msg, runs inference and checks the
// reply. It does not write to the log.
func (a *Adapter) exchange(ctx context.Context, ch session.Channel, msg models.Message) (string, error) {
	if len(ch.History())%2 != 0 {
		ch.Inject(balanceTurn)
	}
	ch.Inject(msg)

	start := time.Now()
	reply, err := ch.Act(ctx)
	metrics.InferenceSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		metrics.InferenceCalls.WithLabelValues("error").Inc()
		return "", fmt.Errorf("agent %d inference: %w", a.idx, err)
	}
	metrics.InferenceCalls.WithLabelValues(string(reply.Status)).Inc()

	if reply.Status == session.StatusContextLimit {
		slog.Warn("Context limit reached", "agent", a.idx)
		return "", &ContextLimitError{Agent: a.idx}
	}
	if reply.Content == "" {
		return "", fmt.Errorf("agent %d: %w", a.idx, ErrEmptyReply)
	}
	return reply.Content, nil
}

// ParseResult converts raw into a validated value for req.Mode.
//
// The model is asked, on a cleared history, to restate raw in the mode's
// canonical form. If that fails validation, the agent's own history is
// restored, a corrective instruction naming the violation is sent, and the
// new answer is verified once more. A second failure returns an
// *InvalidActionError. On every path the history is restored to exactly
// what it was before the call.
func (a *Adapter) ParseResult(ctx context.Context, req Request, raw string) (Value, error) {
	p, ok := parsers[req.Mode]
	if !ok {
		return Value{}, fmt.Errorf("no parser for mode %q", req.Mode)
	}

	var out Value
	err := a.do(func(ch session.Channel) error {
		if a.null {
			v, reason := p.parse(req, raw)
			if reason != "" {
				return &InvalidActionError{Agent: a.idx, Mode: req.Mode, Raw: raw, Answers: [2]string{raw, raw}, Reason: reason}
			}
			out = v
			return nil
		}

		snapshot := ch.History()
		defer ch.SetHistory(snapshot)

		first, err := a.verify(ctx, ch, p, req, raw)
		if err != nil {
			return err
		}
		v, reason := p.parse(req, first)
		if reason == "" {
			metrics.Recoveries.WithLabelValues(string(req.Mode), "first").Inc()
			out = v
			return nil
		}
		slog.Info("Reply failed validation, sending correction", "agent", a.idx, "mode", req.Mode, "reason", reason)

		ch.SetHistory(snapshot)
		candidate, err := a.exchange(ctx, ch, models.Message{Role: models.RoleUser, Content: p.correct(req, reason)})
		if err != nil {
			return err
		}

		var second string
		if _, direct := CoerceVote(candidate); direct && isVote(req.Mode) {
			second = candidate
		} else {
			second, err = a.verify(ctx, ch, p, req, candidate)
			if err != nil {
				return err
			}
		}

		v, reason = p.parse(req, second)
		if reason != "" {
			metrics.Recoveries.WithLabelValues(string(req.Mode), "failed").Inc()
			return &InvalidActionError{Agent: a.idx, Mode: req.Mode, Raw: raw, Answers: [2]string{first, second}, Reason: reason}
		}
		metrics.Recoveries.WithLabelValues(string(req.Mode), "corrected").Inc()
		out = v
		return nil
	})
	if err != nil {
		return Value{}, err
	}
	return out, nil
}

// verify clears the history and asks the model to restate text in the
// mode's canonical form.
func (a *Adapter) verify(ctx context.Context, ch session.Channel, p parser, req Request, text string) (string, error) {
	ch.SetHistory(nil)
	return a.exchange(ctx, ch, models.Message{
		Role:    models.RoleUser,
		Content: "The player says: " + text + "\n\n" + p.verify(req),
	})
}

// IsFatal reports whether err ends an episode: a context limit or an invalid
// action after retry.
func IsFatal(err error) bool {
	var cl *ContextLimitError
	var ia *InvalidActionError
	return errors.As(err, &cl) || errors.As(err, &ia)
}
