package avalon

import (
	"errors"
	"fmt"
	"slices"
)

// Phase is a step of the game state machine.
type Phase int

const (
	PhaseTeamSelect Phase = iota
	PhaseTeamVote
	PhaseQuestVote
	PhaseAssassination
	PhaseDone
)

func (p Phase) String() string {
	switch p {
	case PhaseTeamSelect:
		return "TEAM_SELECT"
	case PhaseTeamVote:
		return "TEAM_VOTE"
	case PhaseQuestVote:
		return "QUEST_VOTE"
	case PhaseAssassination:
		return "ASSASSINATION"
	case PhaseDone:
		return "DONE"
	}
	return fmt.Sprintf("Phase(%d)", int(p))
}

// Outcome is how a finished game was decided.
type Outcome int

const (
	OutcomeNone Outcome = iota
	OutcomeGood
	OutcomeEvilByMission
	OutcomeEvilByAssassination
	OutcomeEvilByRejection
)

func (o Outcome) String() string {
	switch o {
	case OutcomeGood:
		return "Good wins!"
	case OutcomeEvilByMission:
		return "Evil wins by mission!"
	case OutcomeEvilByAssassination:
		return "Evil wins by assassination!"
	case OutcomeEvilByRejection:
		return "Evil wins by team rejection!"
	}
	return "No result"
}

// Winner returns the side that won.
func (o Outcome) Winner() Side {
	if o == OutcomeGood {
		return Good
	}
	return Evil
}

// ErrWrongPhase is returned when an action does not belong to the current phase.
var ErrWrongPhase = errors.New("action not allowed in this phase")

// Env is the rules engine. It validates every action and owns all state
// transitions; it never talks to players.
type Env struct {
	cfg         Config
	roles       []Role
	startLeader int

	phase Phase
	// turn is the mission index, round the proposal count within it.
	turn         int
	round        int
	proposals    int
	team         []int
	questResults []bool
	outcome      Outcome
}

// NewEnv starts a game with the given seating.
func NewEnv(cfg Config, roles []Role, startLeader int) (*Env, error) {
	if len(roles) != cfg.NumPlayers {
		return nil, fmt.Errorf("got %d roles for %d players", len(roles), cfg.NumPlayers)
	}
	if startLeader < 0 || startLeader >= cfg.NumPlayers {
		return nil, fmt.Errorf("start leader %d out of range", startLeader)
	}
	return &Env{
		cfg:         cfg,
		roles:       append([]Role(nil), roles...),
		startLeader: startLeader,
		phase:       PhaseTeamSelect,
	}, nil
}

// EnvFromPreset builds the config and environment described by p.
func EnvFromPreset(p Preset) (*Env, error) {
	cfg, err := NewConfig(p.NumPlayers)
	if err != nil {
		return nil, err
	}
	roles, err := p.Roles(cfg)
	if err != nil {
		return nil, err
	}
	return NewEnv(cfg, roles, p.QuestLeader)
}

func (e *Env) Config() Config   { return e.cfg }
func (e *Env) Phase() Phase     { return e.phase }
func (e *Env) Turn() int        { return e.turn }
func (e *Env) Round() int       { return e.round }
func (e *Env) Done() bool       { return e.phase == PhaseDone }
func (e *Env) Outcome() Outcome { return e.outcome }

// Leader rotates over all seats once per proposal, regardless of votes.
func (e *Env) Leader() int {
	return (e.startLeader + e.proposals) % e.cfg.NumPlayers
}

// TeamSize is the size required for the current mission.
func (e *Env) TeamSize() int { return e.cfg.TeamSizes[e.turn] }

// FailsRequired is the number of fail votes that sinks the current mission.
func (e *Env) FailsRequired() int { return e.cfg.FailsRequired[e.turn] }

// Team returns the team currently proposed or on the quest.
func (e *Env) Team() []int { return slices.Clone(e.team) }

// QuestResults returns the outcome of every finished mission.
func (e *Env) QuestResults() []bool { return slices.Clone(e.questResults) }

// Roles returns each seat's role.
func (e *Env) Roles() []Role { return slices.Clone(e.roles) }

// IsGood reports, per seat, whether the player is on the good side.
func (e *Env) IsGood() []bool {
	out := make([]bool, len(e.roles))
	for i, r := range e.roles {
		out[i] = r.Side() == Good
	}
	return out
}

// Assassin returns the seat holding the Assassin, or -1.
func (e *Env) Assassin() int {
	return slices.Index(e.roles, Assassin)
}

// ChooseTeam records the leader's proposal.
func (e *Env) ChooseTeam(leader int, team []int) error {
	if e.phase != PhaseTeamSelect {
		return fmt.Errorf("choose team in %s: %w", e.phase, ErrWrongPhase)
	}
	if leader != e.Leader() {
		return fmt.Errorf("player %d is not the leader (leader is %d)", leader, e.Leader())
	}
	if len(team) != e.TeamSize() {
		return fmt.Errorf("team has %d players, mission %d needs %d", len(team), e.turn, e.TeamSize())
	}
	seen := make(map[int]bool, len(team))
	for _, id := range team {
		if id < 0 || id >= e.cfg.NumPlayers {
			return fmt.Errorf("player %d does not exist", id)
		}
		if seen[id] {
			return fmt.Errorf("player %d appears twice in the team", id)
		}
		seen[id] = true
	}

	e.team = slices.Sorted(slices.Values(team))
	e.phase = PhaseTeamVote
	return nil
}

// GatherTeamVotes applies one vote per player (1 approve, 0 reject). A strict
// majority approves the team.
func (e *Env) GatherTeamVotes(votes []int) (bool, error) {
	if e.phase != PhaseTeamVote {
		return false, fmt.Errorf("team vote in %s: %w", e.phase, ErrWrongPhase)
	}
	if len(votes) != e.cfg.NumPlayers {
		return false, fmt.Errorf("got %d team votes for %d players", len(votes), e.cfg.NumPlayers)
	}
	approvals, err := countOnes(votes)
	if err != nil {
		return false, err
	}

	e.proposals++
	if approvals*2 > e.cfg.NumPlayers {
		e.phase = PhaseQuestVote
		return true, nil
	}

	e.round++
	if e.round >= e.cfg.MaxRounds {
		e.finish(OutcomeEvilByRejection)
		return false, nil
	}
	e.team = nil
	e.phase = PhaseTeamSelect
	return false, nil
}

// GatherQuestVotes applies one vote per team member (1 pass, 0 fail) and
// returns whether the mission succeeded and how many fails were cast.
func (e *Env) GatherQuestVotes(votes []int) (bool, int, error) {
	if e.phase != PhaseQuestVote {
		return false, 0, fmt.Errorf("quest vote in %s: %w", e.phase, ErrWrongPhase)
	}
	if len(votes) != len(e.team) {
		return false, 0, fmt.Errorf("got %d quest votes for a team of %d", len(votes), len(e.team))
	}
	passes, err := countOnes(votes)
	if err != nil {
		return false, 0, err
	}
	fails := len(votes) - passes
	success := fails < e.FailsRequired()
	e.questResults = append(e.questResults, success)

	succeeded := 0
	for _, ok := range e.questResults {
		if ok {
			succeeded++
		}
	}
	failed := len(e.questResults) - succeeded

	e.turn++
	e.round = 0
	switch {
	case failed >= e.cfg.QuestsToWin:
		e.finish(OutcomeEvilByMission)
	case succeeded >= e.cfg.QuestsToWin:
		if e.Assassin() < 0 {
			e.finish(OutcomeGood)
		} else {
			e.phase = PhaseAssassination
		}
	default:
		e.team = nil
		e.phase = PhaseTeamSelect
	}
	return success, fails, nil
}

// Assassinate resolves the assassin's guess. It reports whether Merlin was hit.
func (e *Env) Assassinate(assassin, target int) (bool, error) {
	if e.phase != PhaseAssassination {
		return false, fmt.Errorf("assassination in %s: %w", e.phase, ErrWrongPhase)
	}
	if assassin < 0 || assassin >= e.cfg.NumPlayers || !e.roles[assassin].Capabilities().CanAssassinate {
		return false, fmt.Errorf("player %d cannot assassinate", assassin)
	}
	if target < 0 || target >= e.cfg.NumPlayers || target == assassin {
		return false, fmt.Errorf("invalid assassination target %d", target)
	}
	hit := e.roles[target] == Merlin
	if hit {
		e.finish(OutcomeEvilByAssassination)
	} else {
		e.finish(OutcomeGood)
	}
	return hit, nil
}

func (e *Env) finish(o Outcome) {
	e.outcome = o
	e.phase = PhaseDone
}

func countOnes(votes []int) (int, error) {
	n := 0
	for i, v := range votes {
		switch v {
		case 1:
			n++
		case 0:
		default:
			return 0, fmt.Errorf("vote %d is %d, want 0 or 1", i, v)
		}
	}
	return n, nil
}
