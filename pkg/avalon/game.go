package avalon

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/multiagent"
	"github.com/nstogner/arena/pkg/session"
)

// Options tunes how a game is played and observed.
type Options struct {
	// Kinds assigns a controller to each seat. Missing seats are KindLLM.
	Kinds      []Kind
	Discussion bool
	Strategy   PromptStrategy

	// SkipQuestReflection asks for beliefs only at the end of the game
	// instead of after every quest as well.
	SkipQuestReflection bool

	// OnPhase receives every phase log line as it is written.
	OnPhase func(line string)
	// OnMessage receives every message added to a player's transcript.
	OnMessage func(player int, msg models.Message)
}

// Game drives one Avalon episode over a shared session.
type Game struct {
	env     *Env
	proxy   *multiagent.Proxy
	players []*Player
	opts    Options

	phaseLog []string
}

// NewGame seats the players described by preset. Model players share the
// shared channel through one proxy; naive players get the null session.
func NewGame(shared session.Channel, preset Preset, opts Options) (*Game, error) {
	env, err := EnvFromPreset(preset)
	if err != nil {
		return nil, fmt.Errorf("invalid preset: %w", err)
	}
	cfg := env.Config()
	if opts.Strategy == "" {
		opts.Strategy = StrategyCOT
	}

	var proxyOpts []multiagent.ProxyOption
	if opts.OnMessage != nil {
		proxyOpts = append(proxyOpts, multiagent.WithObserver(opts.OnMessage))
	}
	proxy := multiagent.NewProxy(shared, cfg.NumPlayers, proxyOpts...)

	roles := env.Roles()
	adapters := make([]*multiagent.Adapter, cfg.NumPlayers)
	players := make([]*Player, cfg.NumPlayers)
	for i, role := range roles {
		kind := KindLLM
		if i < len(opts.Kinds) && opts.Kinds[i] != "" {
			kind = opts.Kinds[i]
		}
		switch kind {
		case KindLLM:
			adapters[i] = multiagent.NewAdapter(shared)
		case KindNaive:
			adapters[i] = multiagent.NewAdapter(session.Null{})
		default:
			return nil, fmt.Errorf("player %d: unknown kind %q", i, kind)
		}
		players[i] = newPlayer(i, role, kind, cfg, opts.Strategy, adapters[i], preset.Seed)
	}
	if err := proxy.Initialize(adapters...); err != nil {
		return nil, err
	}

	return &Game{env: env, proxy: proxy, players: players, opts: opts}, nil
}

// Env exposes the rules engine, mainly for inspection after Run.
func (g *Game) Env() *Env { return g.env }

// Players returns the seated players in seat order.
func (g *Game) Players() []*Player { return g.players }

func (g *Game) logf(format string, args ...any) {
	line := fmt.Sprintf(format, args...)
	g.phaseLog = append(g.phaseLog, line)
	slog.Debug("Phase log", "line", line)
	if g.opts.OnPhase != nil {
		g.opts.OnPhase(line)
	}
}

// Run plays the game to the end. A fatal error stops the game where it
// happened; the result still carries the phase log and every transcript.
func (g *Game) Run(ctx context.Context) Result {
	beliefs, err := g.run(ctx)
	res := Result{
		PhaseLog:    append([]string(nil), g.phaseLog...),
		Transcripts: g.transcripts(),
		Roles:       g.env.Roles(),
		Kinds:       make([]Kind, len(g.players)),
	}
	for i, p := range g.players {
		res.Kinds[i] = p.Kind
	}
	if err != nil {
		res.Status = multiagent.Classify(err)
		res.ErrorKind = res.Status
		res.Err = err
		slog.Warn("Episode ended early", "status", res.Status, "phase", g.env.Phase(), "error", err)
		return res
	}

	res.Status = multiagent.StatusCompleted
	res.Outcome = g.env.Outcome()
	res.GameResult = res.Outcome.String()
	res.Players = score(g.env, g.players, beliefs)
	return res
}

func (g *Game) run(ctx context.Context) ([][]float64, error) {
	if err := g.introduce(); err != nil {
		return nil, err
	}

	for !g.env.Done() {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		var err error
		switch g.env.Phase() {
		case PhaseTeamSelect:
			err = g.teamSelect(ctx)
		case PhaseTeamVote:
			err = g.teamVote(ctx)
		case PhaseQuestVote:
			err = g.questVote(ctx)
		case PhaseAssassination:
			err = g.assassination(ctx)
		}
		if err != nil {
			return nil, err
		}
	}
	g.logf("%s", g.env.Outcome())

	return g.collectBeliefs(ctx)
}

// introduce sends each player the rules and its identity, advancing the
// proxy round-robin after each one.
func (g *Game) introduce() error {
	roles := g.env.Roles()
	sides := make([]Side, len(roles))
	for i, r := range roles {
		sides[i] = r.Side()
	}
	for _, p := range g.players {
		if p.Role.SeesSides() {
			p.seeSides(sides)
		}
		if err := p.initialize(roles); err != nil {
			return fmt.Errorf("initialize player %d: %w", p.ID, err)
		}
		g.proxy.Next()
	}
	return nil
}

func (g *Game) use(i int) error {
	return g.proxy.SetCurrent(i)
}

func (g *Game) teamSelect(ctx context.Context) error {
	leader := g.env.Leader()
	g.logf("Selection Phase, the leader is Player %d", leader)
	slog.Info("Mission started", "mission", g.env.Turn(), "round", g.env.Round(), "leader", leader)

	var team []int
	var history []string
	discuss := g.opts.Discussion && g.players[leader].Role.Capabilities().DiscussionEnabled
	if discuss {
		if err := g.use(leader); err != nil {
			return err
		}
		proposal, statement, err := g.players[leader].TeamDiscussion(ctx, g.env.TeamSize(), nil, leader, history, g.env.Turn(), g.env.Round())
		if err != nil {
			return err
		}
		team = proposal
		history = append(history, fmt.Sprintf("Leader %d : %s\n", leader, statement))

		for _, p := range g.players {
			if p.ID == leader || !p.Role.Capabilities().DiscussionEnabled {
				continue
			}
			if err := g.use(p.ID); err != nil {
				return err
			}
			_, said, err := p.TeamDiscussion(ctx, g.env.TeamSize(), team, leader, history, g.env.Turn(), g.env.Round())
			if err != nil {
				return err
			}
			history = append(history, fmt.Sprintf("Player %d : %s\n", p.ID, said))
		}

		for _, p := range g.players {
			if p.Kind != KindLLM {
				continue
			}
			if err := g.use(p.ID); err != nil {
				return err
			}
			if err := p.DiscussionEnd(ctx, leader, statement, history); err != nil {
				return err
			}
		}
	}

	if err := g.use(leader); err != nil {
		return err
	}
	if g.players[leader].Kind != KindNaive || !discuss {
		proposal, err := g.players[leader].ProposeTeam(ctx, g.env.TeamSize(), len(history) > 0)
		if err != nil {
			return err
		}
		team = proposal
	}
	if err := g.env.ChooseTeam(leader, team); err != nil {
		return err
	}
	g.logf("Leader Player %d chooses team %s", leader, formatInts(g.env.Team()))
	return nil
}

func (g *Game) teamVote(ctx context.Context) error {
	g.logf("Team Voting Phase")
	team := g.env.Team()
	votes := make([]int, len(g.players))
	for i, p := range g.players {
		if err := g.use(i); err != nil {
			return err
		}
		v, err := p.VoteOnTeam(ctx, team, false)
		if err != nil {
			return err
		}
		votes[i] = v
	}

	approved, err := g.env.GatherTeamVotes(votes)
	if err != nil {
		return err
	}
	g.logf("Team votes at this round: %s", formatInts(votes))

	result := verbalizeTeamResult(team, votes, approved)
	if err := g.broadcast(ctx, result); err != nil {
		return err
	}
	g.logf("Team result: %s", result)
	if g.env.Outcome() == OutcomeEvilByRejection {
		g.logf("Team rejected %d times in a row", g.env.Config().MaxRounds)
	}
	return nil
}

func (g *Game) questVote(ctx context.Context) error {
	g.logf("Quest Voting Phase")
	team := g.env.Team()
	votes := make([]int, 0, len(team))
	for _, id := range team {
		if err := g.use(id); err != nil {
			return err
		}
		v, err := g.players[id].VoteOnMission(ctx, team)
		if err != nil {
			return err
		}
		votes = append(votes, v)
	}

	success, fails, err := g.env.GatherQuestVotes(votes)
	if err != nil {
		return err
	}
	g.logf("Quest votes at this round: %s", formatInts(votes))
	slog.Info("Quest finished", "mission", g.env.Turn()-1, "success", success, "fails", fails)

	result := verbalizeMissionResult(team, success)
	if err := g.broadcast(ctx, result); err != nil {
		return err
	}
	g.logf("Quest result: %s", result)

	if !g.opts.SkipQuestReflection {
		for _, p := range g.players {
			if p.Kind != KindLLM {
				continue
			}
			if err := g.use(p.ID); err != nil {
				return err
			}
			sides, err := p.BelievedSides(ctx)
			if err != nil {
				return err
			}
			g.logf("Believed sides of Player %d: %s", p.ID, formatFloats(sides))
		}
	}
	return nil
}

func (g *Game) assassination(ctx context.Context) error {
	g.logf("Assassination phase")
	assassin := g.env.Assassin()
	if err := g.use(assassin); err != nil {
		return err
	}
	target, err := g.players[assassin].Assassinate(ctx)
	if err != nil {
		return err
	}
	if _, err := g.env.Assassinate(assassin, target); err != nil {
		return err
	}
	g.logf("Assassin Player %d chooses to assassinate Player %d", assassin, target)
	return nil
}

// broadcast shows text to every player in seat order.
func (g *Game) broadcast(ctx context.Context, text string) error {
	for i, p := range g.players {
		if err := g.use(i); err != nil {
			return err
		}
		if err := p.Observe(ctx, text); err != nil {
			return err
		}
	}
	return nil
}

// collectBeliefs runs the final belief elicitation for every model player.
func (g *Game) collectBeliefs(ctx context.Context) ([][]float64, error) {
	beliefs := make([][]float64, len(g.players))
	for i, p := range g.players {
		if p.Kind != KindLLM {
			continue
		}
		if err := g.use(i); err != nil {
			return nil, err
		}
		sides, err := p.BelievedSides(ctx)
		if err != nil {
			return nil, err
		}
		beliefs[i] = sides
	}
	return beliefs, nil
}

// transcripts returns each model player's log; naive seats are nil.
func (g *Game) transcripts() [][]models.Message {
	out := make([][]models.Message, len(g.players))
	for i, p := range g.players {
		if p.Kind == KindLLM {
			out[i] = p.session.Log()
		}
	}
	return out
}
