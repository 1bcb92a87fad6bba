package gops

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"strings"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/multiagent"
	"github.com/nstogner/arena/pkg/session"
)

// Kind selects who controls a player.
type Kind string

const (
	KindLLM   Kind = "llm"
	KindNaive Kind = "naive"
)

const (
	introduction = "You are playing the Game of Pure Strategy (GOPS). Each player holds the cards 1 to %d. " +
		"Every round a score card is revealed and both players secretly bid one card from their hand. " +
		"The higher bid wins the score card plus any points carried over from tied rounds; on a tie the points " +
		"carry over to the next round. Played cards are discarded. The player with the most points at the end wins."
	playCardPrompt = "Current score: you %d, opponent %d. The score card is %d and %d points are contested. " +
		"Your hand is %s. Which card do you play? Answer with the card number only."
	observeRoundPrompt = "You played %d and your opponent played %d for %d contested points. %s"
)

// Options configures one game.
type Options struct {
	NumCards int
	Kinds    [2]Kind
	Seed     int64
	// OnMessage receives every message added to a player's transcript.
	OnMessage func(player int, msg models.Message)
}

// Result is the outcome of one game.
type Result struct {
	Status    multiagent.Status
	ErrorKind multiagent.Status
	Err       error

	Scores [2]int
	// Winner is 0 or 1, or -1 for a tie.
	Winner int
	Rounds int
	// History is the proxy's full record of each player's traffic.
	History     [2][]models.Message
	Transcripts [2][]models.Message
	Kinds       [2]Kind
}

type player struct {
	id      int
	kind    Kind
	session *multiagent.Adapter
	rng     *rand.Rand
}

// Game drives one GOPS match.
type Game struct {
	env     *Env
	proxy   *multiagent.Proxy
	players [2]*player
	opts    Options
}

// NewGame seats two players over shared.
func NewGame(shared session.Channel, opts Options) (*Game, error) {
	env, err := NewEnv(opts.NumCards, opts.Seed)
	if err != nil {
		return nil, err
	}

	var proxyOpts []multiagent.ProxyOption
	if opts.OnMessage != nil {
		proxyOpts = append(proxyOpts, multiagent.WithObserver(opts.OnMessage))
	}
	proxy := multiagent.NewProxy(shared, 2, proxyOpts...)

	g := &Game{env: env, proxy: proxy, opts: opts}
	adapters := make([]*multiagent.Adapter, 2)
	for i := range 2 {
		kind := opts.Kinds[i]
		if kind == "" {
			kind = KindLLM
		}
		g.opts.Kinds[i] = kind
		switch kind {
		case KindLLM:
			adapters[i] = multiagent.NewAdapter(shared)
		case KindNaive:
			adapters[i] = multiagent.NewAdapter(session.Null{})
		default:
			return nil, fmt.Errorf("player %d: unknown kind %q", i, kind)
		}
		g.players[i] = &player{
			id:      i,
			kind:    kind,
			session: adapters[i],
			rng:     rand.New(rand.NewPCG(uint64(opts.Seed), uint64(i)+2)),
		}
	}
	if err := proxy.Initialize(adapters...); err != nil {
		return nil, err
	}
	return g, nil
}

// Env exposes the game state.
func (g *Game) Env() *Env { return g.env }

// Run plays every score card. Turns alternate strictly: each step is taken by
// the current agent and then the proxy moves on round-robin.
func (g *Game) Run(ctx context.Context) Result {
	rounds, err := g.run(ctx)
	res := Result{
		Scores: g.env.Scores(),
		Winner: g.env.Winner(),
		Rounds: rounds,
		Kinds:  g.opts.Kinds,
	}
	for i, p := range g.players {
		res.History[i] = g.proxy.History(i)
		if p.kind == KindLLM {
			res.Transcripts[i] = p.session.Log()
		}
	}
	res.Status = multiagent.Classify(err)
	if err != nil {
		res.ErrorKind = res.Status
		res.Err = err
		slog.Warn("GOPS game ended early", "status", res.Status, "round", rounds, "error", err)
	}
	return res
}

func (g *Game) run(ctx context.Context) (int, error) {
	for _, p := range g.players {
		if err := p.session.Inject(userMsg(fmt.Sprintf(introduction, g.env.numCards))); err != nil {
			return 0, err
		}
		g.proxy.Next()
	}

	rounds := 0
	for !g.env.Done() {
		if err := ctx.Err(); err != nil {
			return rounds, err
		}
		var moves [2]int
		for i, p := range g.players {
			scores := g.env.Scores()
			card, err := p.playCard(ctx, g.env.Hand(i), scores[i], scores[1-i], g.env.ScoreCard(), g.env.Contested())
			if err != nil {
				return rounds, fmt.Errorf("player %d: %w", i, err)
			}
			moves[i] = card
			g.proxy.Next()
		}

		contested := g.env.Contested()
		for i, p := range g.players {
			if err := p.observe(moves[i], moves[1-i], contested); err != nil {
				return rounds, err
			}
			g.proxy.Next()
		}

		if err := g.env.PlayCards(moves[0], moves[1]); err != nil {
			return rounds, err
		}
		rounds++
		slog.Debug("GOPS round played", "round", rounds, "moves", moves, "scores", g.env.Scores())
	}
	return rounds, nil
}

func (p *player) playCard(ctx context.Context, hand []int, mine, theirs, scoreCard, contested int) (int, error) {
	if p.kind == KindNaive {
		return hand[p.rng.IntN(len(hand))], nil
	}
	req := multiagent.Request{
		Mode:    multiagent.ModePlayCard,
		Content: fmt.Sprintf(playCardPrompt, mine, theirs, scoreCard, contested, formatHand(hand)),
		Hand:    hand,
	}
	reply, err := p.session.Act(ctx, req)
	if err != nil {
		return 0, err
	}
	if n, err := strconv.Atoi(strings.TrimSpace(reply)); err == nil {
		if _, err := multiagent.Parse(req, reply); err == nil {
			return n, nil
		}
	}
	v, err := p.session.ParseResult(ctx, req, reply)
	if err != nil {
		return 0, err
	}
	return v.Card, nil
}

func (p *player) observe(mine, theirs, contested int) error {
	var outcome string
	switch {
	case mine > theirs:
		outcome = "You won the points."
	case theirs > mine:
		outcome = "Your opponent won the points."
	default:
		outcome = "It is a tie, the points carry over to the next round."
	}
	return p.session.Inject(userMsg(fmt.Sprintf(observeRoundPrompt, mine, theirs, contested, outcome)))
}

func formatHand(hand []int) string {
	parts := make([]string, len(hand))
	for i, c := range hand {
		parts[i] = strconv.Itoa(c)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func userMsg(content string) models.Message {
	return models.Message{Role: models.RoleUser, Content: content}
}
