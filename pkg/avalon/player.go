package avalon

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"slices"
	"strings"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/multiagent"
)

// Kind selects who controls a player.
type Kind string

const (
	// KindLLM players are driven by the shared model session.
	KindLLM Kind = "llm"
	// KindNaive players follow fixed rules and never call the model.
	KindNaive Kind = "naive"
)

// Player is one seat at the table. Behaviour is chosen by Kind and Role;
// there is no per-role type.
type Player struct {
	ID   int
	Role Role
	Kind Kind

	cfg      Config
	strategy PromptStrategy
	session  *multiagent.Adapter
	rng      *rand.Rand

	// sides is every seat's side, known only to roles that see sides.
	sides []Side
	// beliefs is the current estimate that each seat is Good.
	beliefs []float64
}

func newPlayer(id int, role Role, kind Kind, cfg Config, strategy PromptStrategy, session *multiagent.Adapter, seed int64) *Player {
	beliefs := make([]float64, cfg.NumPlayers)
	for i := range beliefs {
		beliefs[i] = 0.5
	}
	beliefs[id] = 1
	return &Player{
		ID:       id,
		Role:     role,
		Kind:     kind,
		cfg:      cfg,
		strategy: strategy,
		session:  session,
		rng:      rand.New(rand.NewPCG(uint64(seed), uint64(id))),
		beliefs:  beliefs,
	}
}

// Side returns the player's side.
func (p *Player) Side() Side { return p.Role.Side() }

// Beliefs returns the player's current belief vector.
func (p *Player) Beliefs() []float64 { return slices.Clone(p.beliefs) }

// seeSides reveals every seat's side to the player.
func (p *Player) seeSides(sides []Side) {
	p.sides = slices.Clone(sides)
	for i, s := range sides {
		p.beliefs[i] = float64(s)
	}
}

// initialize sends the rules introduction and the player's identity.
func (p *Player) initialize(roles []Role) error {
	if err := p.session.Inject(user(introduction + "\n" + infoRoles(roles))); err != nil {
		return err
	}
	identity := infoYourRole(p.ID, p.Role)
	if reveal := revealInfo(p.ID, p.Role, roles); reveal != "" {
		identity += "\n" + reveal
	}
	return p.session.Inject(user(identity))
}

func (p *Player) thought() string {
	switch p.strategy {
	case StrategyCOT:
		return cotPrompt
	case StrategyRelation:
		return fmt.Sprintf(relationPrompt, formatFloats(p.beliefs))
	}
	return ""
}

func (p *Player) withThought(content string) string {
	if t := p.thought(); t != "" {
		return content + "\n" + t
	}
	return content
}

// summarize asks the model to condense the game so far, then keeps only the
// introduction, the identity message and the summary. mission is -1 outside
// of a mission.
func (p *Player) summarize(ctx context.Context, mission, round int) error {
	if p.Kind != KindLLM {
		return nil
	}
	content := fmt.Sprintf(summarizePrompt, p.ID, p.Role, strings.ToLower(p.Side().String()))
	if mission >= 0 {
		content += fmt.Sprintf(summarizeMissionPrompt, mission, round)
	}
	content += summarizeRequest
	if p.strategy == StrategyRelation {
		content += "\n" + fmt.Sprintf(relationPrompt, formatFloats(p.beliefs))
	}

	summary, err := p.session.Act(ctx, multiagent.Request{Mode: multiagent.ModeSummarize, Content: content})
	if err != nil {
		return fmt.Errorf("summarize: %w", err)
	}
	h, err := p.session.History()
	if err != nil {
		return err
	}
	if len(h) > 2 {
		h = h[:2]
	}
	if err := p.session.OverwriteHistory(h); err != nil {
		return err
	}
	return p.session.Inject(user(summary))
}

// TeamDiscussion lets the player speak once in the discussion before a
// proposal. The leader announces a team, which is returned; everyone else
// comments on it.
func (p *Player) TeamDiscussion(ctx context.Context, teamSize int, team []int, leader int, history []string, mission, round int) ([]int, string, error) {
	if p.Kind == KindNaive {
		if p.ID == leader {
			proposal := p.naiveTeam(teamSize)
			return proposal, fmt.Sprintf("I propose the team %s.", formatInts(proposal)), nil
		}
		return nil, p.naiveComment(team), nil
	}

	if err := p.summarize(ctx, mission, round); err != nil {
		return nil, "", err
	}
	if p.ID == leader {
		req := p.teamRequest(fmt.Sprintf(chooseTeamAction, teamSize, p.cfg.NumPlayers-1)+" "+chooseTeamLeader, teamSize)
		statement, err := p.session.Act(ctx, req)
		if err != nil {
			return nil, "", err
		}
		v, err := p.session.ParseResult(ctx, req, statement)
		if err != nil {
			return nil, "", err
		}
		return v.Team, statement, nil
	}

	content := strings.Join(history, " ") + " " + fmt.Sprintf(voteTeamDiscussion, p.ID, formatInts(team))
	statement, err := p.session.Act(ctx, multiagent.Request{Content: content})
	return nil, statement, err
}

// DiscussionEnd shares the whole discussion with the player.
func (p *Player) DiscussionEnd(ctx context.Context, leader int, statement string, history []string) error {
	msg := fmt.Sprintf(discussionEndPrompt, leader, statement, strings.Join(history, " "))
	if err := p.session.Inject(user(msg)); err != nil {
		return err
	}
	return p.summarize(ctx, -1, 0)
}

// ProposeTeam asks the leader for a team of teamSize players.
func (p *Player) ProposeTeam(ctx context.Context, teamSize int, discussed bool) ([]int, error) {
	if !p.Role.Capabilities().CanProposeTeam {
		return nil, fmt.Errorf("%s cannot propose a team", p.Role)
	}
	if p.Kind == KindNaive {
		return p.naiveTeam(teamSize), nil
	}
	if !discussed {
		if err := p.summarize(ctx, -1, 0); err != nil {
			return nil, err
		}
	}

	req := p.teamRequest(p.withThought(fmt.Sprintf(chooseTeamAction, teamSize, p.cfg.NumPlayers-1)), teamSize)
	reply, err := p.session.Act(ctx, req)
	if err != nil {
		return nil, err
	}
	if trimmed := strings.TrimSpace(reply); strings.HasPrefix(trimmed, "[") && strings.HasSuffix(trimmed, "]") {
		if v, err := multiagent.Parse(req, trimmed); err == nil {
			return v.Team, nil
		}
	}
	v, err := p.session.ParseResult(ctx, req, reply)
	if err != nil {
		return nil, err
	}
	return v.Team, nil
}

func (p *Player) teamRequest(content string, teamSize int) multiagent.Request {
	return multiagent.Request{
		Mode:       multiagent.ModeChooseTeam,
		Content:    content,
		TeamSize:   teamSize,
		NumPlayers: p.cfg.NumPlayers,
		Self:       p.ID,
	}
}

// VoteOnTeam returns 1 to approve team and 0 to reject it.
func (p *Player) VoteOnTeam(ctx context.Context, team []int, discussed bool) (int, error) {
	if p.Kind == KindNaive {
		return p.naiveTeamVote(team), nil
	}
	if !discussed {
		if err := p.summarize(ctx, -1, 0); err != nil {
			return 0, err
		}
	}
	req := multiagent.Request{
		Mode:    multiagent.ModeVoteTeam,
		Content: p.withThought(fmt.Sprintf(voteTeamAction, p.ID, formatInts(team))),
	}
	return p.vote(ctx, req)
}

// VoteOnMission returns 1 to pass the quest and 0 to fail it.
func (p *Player) VoteOnMission(ctx context.Context, team []int) (int, error) {
	if p.Kind == KindNaive {
		if p.Side() == Good {
			return 1, nil
		}
		return 0, nil
	}
	if err := p.summarize(ctx, -1, 0); err != nil {
		return 0, err
	}
	req := multiagent.Request{
		Mode:    multiagent.ModeVoteMission,
		Content: p.withThought(fmt.Sprintf(voteMissionAction, formatInts(team))),
	}
	return p.vote(ctx, req)
}

func (p *Player) vote(ctx context.Context, req multiagent.Request) (int, error) {
	reply, err := p.session.Act(ctx, req)
	if err != nil {
		return 0, err
	}
	if v, ok := multiagent.CoerceVote(reply); ok {
		return v, nil
	}
	v, err := p.session.ParseResult(ctx, req, reply)
	if err != nil {
		return 0, err
	}
	return v.Vote, nil
}

// Assassinate asks the Assassin to name Merlin.
func (p *Player) Assassinate(ctx context.Context) (int, error) {
	if !p.Role.Capabilities().CanAssassinate {
		return 0, fmt.Errorf("%s cannot assassinate", p.Role)
	}
	if p.Kind == KindNaive {
		return p.naiveTarget(), nil
	}
	if err := p.summarize(ctx, -1, 0); err != nil {
		return 0, err
	}
	req := multiagent.Request{
		Mode:       multiagent.ModeAssassination,
		Content:    p.withThought(fmt.Sprintf(assassinationPhase, p.cfg.NumPlayers-1)),
		NumPlayers: p.cfg.NumPlayers,
		Self:       p.ID,
	}
	reply, err := p.session.Act(ctx, req)
	if err != nil {
		return 0, err
	}
	if v, err := multiagent.Parse(req, reply); err == nil && strings.TrimSpace(reply) == fmt.Sprint(v.Index) {
		return v.Index, nil
	}
	v, err := p.session.ParseResult(ctx, req, reply)
	if err != nil {
		return 0, err
	}
	return v.Index, nil
}

// Observe shows the player a public result. Model players respond to it so
// the exchange stays in their transcript.
func (p *Player) Observe(ctx context.Context, text string) error {
	if p.Kind == KindNaive {
		return p.session.Inject(user(text))
	}
	_, err := p.session.Act(ctx, multiagent.Request{Content: text})
	return err
}

// BelievedSides asks the player how likely each seat is to be Good. The
// player's own entry is always 1.
func (p *Player) BelievedSides(ctx context.Context) ([]float64, error) {
	if p.Kind == KindNaive {
		return p.Beliefs(), nil
	}
	if err := p.summarize(ctx, -1, 0); err != nil {
		return nil, err
	}
	req := multiagent.Request{
		Mode:       multiagent.ModeBelievedSides,
		Content:    fmt.Sprintf(getBelievedSides, p.ID),
		NumPlayers: p.cfg.NumPlayers,
		Self:       p.ID,
	}
	reply, err := p.session.Act(ctx, req)
	if err != nil {
		return nil, err
	}
	v, err := p.session.ParseResult(ctx, req, reply)
	if err != nil {
		return nil, err
	}
	for i, s := range v.Sides {
		p.beliefs[i] = min(max(s, 0), 1)
	}
	p.beliefs[p.ID] = 1
	slog.Debug("Beliefs updated", "player", p.ID, "beliefs", p.beliefs)
	return p.Beliefs(), nil
}

// naiveTeam picks the player plus the seats it trusts most.
func (p *Player) naiveTeam(size int) []int {
	others := make([]int, 0, p.cfg.NumPlayers-1)
	for i := range p.cfg.NumPlayers {
		if i != p.ID {
			others = append(others, i)
		}
	}
	p.rng.Shuffle(len(others), func(i, j int) { others[i], others[j] = others[j], others[i] })
	if p.Side() == Good {
		slices.SortStableFunc(others, func(a, b int) int {
			switch {
			case p.beliefs[a] > p.beliefs[b]:
				return -1
			case p.beliefs[a] < p.beliefs[b]:
				return 1
			}
			return 0
		})
	}
	team := append([]int{p.ID}, others[:size-1]...)
	slices.Sort(team)
	return team
}

// naiveTeamVote approves a team Good players trust, or one that carries an
// Evil player when the player is Evil.
func (p *Player) naiveTeamVote(team []int) int {
	if p.Side() == Evil && p.sides != nil {
		for _, id := range team {
			if p.sides[id] == Evil {
				return 1
			}
		}
		return 0
	}
	for _, id := range team {
		if p.beliefs[id] < 0.5 {
			return 0
		}
	}
	return 1
}

func (p *Player) naiveComment(team []int) string {
	if p.naiveTeamVote(team) == 1 {
		return fmt.Sprintf("I am fine with the team %s.", formatInts(team))
	}
	return fmt.Sprintf("I do not trust the team %s.", formatInts(team))
}

// naiveTarget guesses a random Good seat other than the player.
func (p *Player) naiveTarget() int {
	var candidates []int
	for i := range p.cfg.NumPlayers {
		if i != p.ID && (p.sides == nil || p.sides[i] == Good) {
			candidates = append(candidates, i)
		}
	}
	return candidates[p.rng.IntN(len(candidates))]
}

func user(content string) models.Message {
	return models.Message{Role: models.RoleUser, Content: content}
}
