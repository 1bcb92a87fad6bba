// Package runner executes Avalon and GOPS episodes, each on its own shared
// model session, and records and scores their results.
package runner

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/nstogner/arena/pkg/avalon"
	"github.com/nstogner/arena/pkg/gops"
	"github.com/nstogner/arena/pkg/metrics"
	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/multiagent"
	"github.com/nstogner/arena/pkg/session"
	"github.com/nstogner/arena/pkg/store"
)

type EventKind string

const (
	EventStarted  EventKind = "started"
	EventPhase    EventKind = "phase"
	EventMessage  EventKind = "message"
	EventFinished EventKind = "finished"
)

// Event reports progress of one episode.
type Event struct {
	EpisodeID string
	Task      string
	Kind      EventKind
	// Player and Message are set for EventMessage.
	Player  int
	Message models.Message
	// Text holds the phase line, or the game result for EventFinished.
	Text string
	// Record is set for EventFinished.
	Record *store.Record
}

// Observer receives events from every running episode. Observe may be called
// concurrently for different episodes.
type Observer interface {
	Observe(ev Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(ev Event)

func (f ObserverFunc) Observe(ev Event) { f(ev) }

// Options configures the episodes a Runner starts.
type Options struct {
	Model            string
	MaxContextTokens int
	// Parallelism bounds the number of concurrent episodes.
	Parallelism int

	// Avalon
	Kinds               []avalon.Kind
	Discussion          bool
	Strategy            avalon.PromptStrategy
	SkipQuestReflection bool

	// GOPS
	NumCards  int
	GOPSKinds [2]gops.Kind
	Seed      int64
}

type Option func(*Runner)

// WithManager records every episode transcript in m.
func WithManager(m store.Manager) Option {
	return func(r *Runner) { r.manager = m }
}

// WithResultStore saves every scored episode in s.
func WithResultStore(s store.ResultStore) Option {
	return func(r *Runner) { r.results = s }
}

func WithObserver(o Observer) Option {
	return func(r *Runner) { r.observers = append(r.observers, o) }
}

// Runner coordinates the execution of episodes.
type Runner struct {
	provider  models.ModelProvider
	opts      Options
	manager   store.Manager
	results   store.ResultStore
	observers []Observer
}

func New(provider models.ModelProvider, opts Options, options ...Option) *Runner {
	if opts.Parallelism < 1 {
		opts.Parallelism = 1
	}
	if opts.NumCards == 0 {
		opts.NumCards = 13
	}
	r := &Runner{provider: provider, opts: opts}
	for _, o := range options {
		o(r)
	}
	return r
}

func (r *Runner) newSession() *session.ModelSession {
	var opts []session.Option
	if r.opts.MaxContextTokens > 0 {
		opts = append(opts, session.WithMaxContextTokens(r.opts.MaxContextTokens))
	}
	return session.NewModelSession(r.provider, r.opts.Model, opts...)
}

// RunAvalon plays one episode per preset and returns their records in
// preset order. A failed episode is recorded with its status; only store
// failures and cancellation are returned as errors.
func (r *Runner) RunAvalon(ctx context.Context, presets []avalon.Preset) ([]store.Record, error) {
	records := make([]store.Record, len(presets))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i, preset := range presets {
		g.Go(func() error {
			rec, err := r.runAvalon(gctx, preset)
			if err != nil {
				return fmt.Errorf("avalon episode %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, ctx.Err()
}

// RunGOPS plays n games; game i is dealt with seed Options.Seed+i.
func (r *Runner) RunGOPS(ctx context.Context, n int) ([]store.Record, error) {
	records := make([]store.Record, n)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.opts.Parallelism)
	for i := range n {
		g.Go(func() error {
			rec, err := r.runGOPS(gctx, r.opts.Seed+int64(i))
			if err != nil {
				return fmt.Errorf("gops game %d: %w", i, err)
			}
			records[i] = rec
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return records, ctx.Err()
}

// Overall aggregates the stored results of task.
func (r *Runner) Overall(ctx context.Context, task string) (store.Overall, error) {
	if r.results == nil {
		return store.Overall{}, fmt.Errorf("no result store configured")
	}
	return r.results.Overall(ctx, task)
}

func (r *Runner) runAvalon(ctx context.Context, preset avalon.Preset) (store.Record, error) {
	seats := make([]string, preset.NumPlayers)
	for i := range seats {
		seats[i] = string(avalon.KindLLM)
		if i < len(r.opts.Kinds) && r.opts.Kinds[i] != "" {
			seats[i] = string(r.opts.Kinds[i])
		}
	}
	ep, err := r.start(store.TaskAvalon, seats)
	if err != nil {
		return store.Record{}, err
	}
	defer ep.close()

	game, err := avalon.NewGame(r.newSession(), preset, avalon.Options{
		Kinds:               r.opts.Kinds,
		Discussion:          r.opts.Discussion,
		Strategy:            r.opts.Strategy,
		SkipQuestReflection: r.opts.SkipQuestReflection,
		OnPhase:             ep.phase,
		OnMessage:           ep.message,
	})
	if err != nil {
		return store.Record{}, err
	}
	res := game.Run(ctx)
	if res.Status != multiagent.StatusCompleted && ctx.Err() != nil {
		res.Status = multiagent.StatusCanceled
	}

	rec := store.Record{
		EpisodeID:  ep.id,
		Task:       store.TaskAvalon,
		Model:      r.opts.Model,
		Status:     string(res.Status),
		GameResult: res.GameResult,
	}
	if res.Status == multiagent.StatusCompleted {
		for _, p := range res.Players {
			rec.Players = append(rec.Players, store.PlayerRecord{
				Seat:              p.ID,
				Role:              p.Role,
				Kind:              string(avalon.KindLLM),
				Wins:              p.Wins,
				DeductionAccuracy: p.DeductionAccuracy,
			})
		}
	} else {
		for i, kind := range res.Kinds {
			if kind != avalon.KindLLM {
				continue
			}
			rec.Players = append(rec.Players, store.PlayerRecord{Seat: i, Role: res.Roles[i].String(), Kind: string(kind)})
		}
	}
	return rec, r.finish(ctx, ep, rec, res.Err)
}

func (r *Runner) runGOPS(ctx context.Context, seed int64) (store.Record, error) {
	var seats []string
	for _, k := range r.opts.GOPSKinds {
		if k == "" {
			k = gops.KindLLM
		}
		seats = append(seats, string(k))
	}
	ep, err := r.start(store.TaskGOPS, seats)
	if err != nil {
		return store.Record{}, err
	}
	defer ep.close()

	game, err := gops.NewGame(r.newSession(), gops.Options{
		NumCards:  r.opts.NumCards,
		Kinds:     r.opts.GOPSKinds,
		Seed:      seed,
		OnMessage: ep.message,
	})
	if err != nil {
		return store.Record{}, err
	}
	res := game.Run(ctx)
	if res.Status != multiagent.StatusCompleted && ctx.Err() != nil {
		res.Status = multiagent.StatusCanceled
	}

	rec := store.Record{
		EpisodeID: ep.id,
		Task:      store.TaskGOPS,
		Model:     r.opts.Model,
		Status:    string(res.Status),
	}
	completed := res.Status == multiagent.StatusCompleted
	if completed {
		rec.GameResult = gopsResult(res)
	}
	for i, kind := range res.Kinds {
		if kind != gops.KindLLM {
			continue
		}
		rec.Players = append(rec.Players, store.PlayerRecord{
			Seat:  i,
			Kind:  string(kind),
			Wins:  completed && res.Winner == i,
			Tie:   completed && res.Winner == -1,
			Score: res.Scores[i],
		})
	}
	return rec, r.finish(ctx, ep, rec, res.Err)
}

func gopsResult(res gops.Result) string {
	if res.Winner < 0 {
		return fmt.Sprintf("Tie at %d points", res.Scores[0])
	}
	return fmt.Sprintf("Player %d wins %d to %d", res.Winner, res.Scores[res.Winner], res.Scores[1-res.Winner])
}

// episode routes the events of one run to its recorder and the observers.
type episode struct {
	id        string
	task      string
	rec       store.Recorder
	observers []Observer

	// mu guards rec.
	mu sync.Mutex
}

func (r *Runner) start(task string, seats []string) (*episode, error) {
	ep := &episode{task: task, observers: r.observers}
	if r.manager != nil {
		rec, err := r.manager.NewEpisode(store.Header{Task: task, Model: r.opts.Model, Seats: seats})
		if err != nil {
			return nil, fmt.Errorf("creating episode log: %w", err)
		}
		ep.rec = rec
		ep.id = rec.ID()
	} else {
		ep.id = uuid.New().String()
	}
	slog.Info("Episode started", "episodeID", ep.id, "task", task, "seats", seats)
	ep.emit(Event{Kind: EventStarted})
	return ep, nil
}

func (ep *episode) emit(ev Event) {
	ev.EpisodeID = ep.id
	ev.Task = ep.task
	for _, o := range ep.observers {
		o.Observe(ev)
	}
}

func (ep *episode) phase(line string) {
	ep.mu.Lock()
	if ep.rec != nil {
		if _, err := ep.rec.AppendPhase(line); err != nil {
			slog.Error("Failed to record phase", "episodeID", ep.id, "error", err)
		}
	}
	ep.mu.Unlock()
	ep.emit(Event{Kind: EventPhase, Text: line})
}

func (ep *episode) message(player int, msg models.Message) {
	ep.mu.Lock()
	if ep.rec != nil {
		if _, err := ep.rec.AppendMessage(player, msg); err != nil {
			slog.Error("Failed to record message", "episodeID", ep.id, "error", err)
		}
	}
	ep.mu.Unlock()
	ep.emit(Event{Kind: EventMessage, Player: player, Message: msg})
}

func (ep *episode) close() {
	ep.mu.Lock()
	defer ep.mu.Unlock()
	if ep.rec != nil {
		if err := ep.rec.Close(); err != nil {
			slog.Error("Failed to close episode log", "episodeID", ep.id, "error", err)
		}
		ep.rec = nil
	}
}

func (r *Runner) finish(ctx context.Context, ep *episode, rec store.Record, runErr error) error {
	metrics.Episodes.WithLabelValues(rec.Task, rec.Status).Inc()
	if runErr != nil {
		slog.Warn("Episode ended early", "episodeID", ep.id, "status", rec.Status, "error", runErr)
	} else {
		slog.Info("Episode finished", "episodeID", ep.id, "status", rec.Status, "result", rec.GameResult)
	}

	ep.mu.Lock()
	if ep.rec != nil {
		result := store.ResultEntry{
			Status:     rec.Status,
			GameResult: rec.GameResult,
			Players:    rec.Players,
		}
		if runErr != nil {
			result.ErrorKind = rec.Status
			result.Error = runErr.Error()
		}
		if _, err := ep.rec.AppendResult(result); err != nil {
			ep.mu.Unlock()
			return fmt.Errorf("recording result: %w", err)
		}
	}
	ep.mu.Unlock()

	if r.manager != nil {
		if err := r.manager.SetEpisodeStatus(ep.id, rec.Status); err != nil {
			return fmt.Errorf("setting episode status: %w", err)
		}
	}
	if r.results != nil && rec.Status != string(multiagent.StatusCanceled) {
		// A cancelled run still keeps the records of its finished episodes.
		if err := r.results.SaveResult(context.WithoutCancel(ctx), rec); err != nil {
			return fmt.Errorf("saving result: %w", err)
		}
	}
	ep.emit(Event{Kind: EventFinished, Text: rec.GameResult, Record: &rec})
	return nil
}
