package avalon

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fivePlayerEnv(t *testing.T, leader int) *Env {
	t.Helper()
	cfg, err := NewConfig(5)
	require.NoError(t, err)
	env, err := NewEnv(cfg, []Role{Merlin, Servant, Servant, Minion, Assassin}, leader)
	require.NoError(t, err)
	return env
}

func TestNewConfigTables(t *testing.T) {
	cases := []struct {
		n          int
		good, evil int
		sizes      []int
		fails      []int
	}{
		{5, 3, 2, []int{2, 3, 2, 3, 3}, []int{1, 1, 1, 1, 1}},
		{6, 4, 2, []int{2, 3, 4, 3, 4}, []int{1, 1, 1, 1, 1}},
		{7, 4, 3, []int{2, 3, 3, 4, 4}, []int{1, 1, 1, 2, 1}},
		{8, 5, 3, []int{3, 4, 4, 5, 5}, []int{1, 1, 1, 2, 1}},
		{10, 6, 4, []int{3, 4, 4, 5, 5}, []int{1, 1, 1, 2, 1}},
	}
	for _, c := range cases {
		cfg, err := NewConfig(c.n)
		require.NoError(t, err)
		assert.Equal(t, c.good, cfg.NumGood, "players %d", c.n)
		assert.Equal(t, c.evil, cfg.NumEvil, "players %d", c.n)
		assert.Equal(t, c.sizes, cfg.TeamSizes, "players %d", c.n)
		assert.Equal(t, c.fails, cfg.FailsRequired, "players %d", c.n)
	}

	_, err := NewConfig(4)
	assert.Error(t, err)
	_, err = NewConfig(11)
	assert.Error(t, err)
}

func TestChooseTeamValidation(t *testing.T) {
	env := fivePlayerEnv(t, 0)

	assert.Error(t, env.ChooseTeam(1, []int{0, 1}), "only the leader proposes")
	assert.Error(t, env.ChooseTeam(0, []int{0, 1, 2}), "wrong size")
	assert.Error(t, env.ChooseTeam(0, []int{0, 0}), "duplicate member")
	assert.Error(t, env.ChooseTeam(0, []int{0, 5}), "unknown player")
	assert.Equal(t, PhaseTeamSelect, env.Phase())

	require.NoError(t, env.ChooseTeam(0, []int{3, 1}))
	assert.Equal(t, []int{1, 3}, env.Team())
	assert.Equal(t, PhaseTeamVote, env.Phase())

	assert.ErrorIs(t, env.ChooseTeam(0, []int{0, 1}), ErrWrongPhase)
}

func TestTeamVoteStrictMajority(t *testing.T) {
	env := fivePlayerEnv(t, 0)
	require.NoError(t, env.ChooseTeam(0, []int{0, 1}))

	approved, err := env.GatherTeamVotes([]int{1, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, approved)
	assert.Equal(t, PhaseTeamSelect, env.Phase())
	assert.Equal(t, 1, env.Round())
	assert.Equal(t, 1, env.Leader(), "leadership rotates after every proposal")

	require.NoError(t, env.ChooseTeam(1, []int{1, 2}))
	approved, err = env.GatherTeamVotes([]int{1, 1, 1, 0, 0})
	require.NoError(t, err)
	assert.True(t, approved)
	assert.Equal(t, PhaseQuestVote, env.Phase())

	cfg, err := NewConfig(6)
	require.NoError(t, err)
	six, err := NewEnv(cfg, []Role{Merlin, Servant, Servant, Servant, Minion, Assassin}, 0)
	require.NoError(t, err)
	require.NoError(t, six.ChooseTeam(0, []int{0, 1}))
	approved, err = six.GatherTeamVotes([]int{1, 1, 1, 0, 0, 0})
	require.NoError(t, err)
	assert.False(t, approved, "a tie rejects the team")
}

func TestTeamVoteRejectsBadInput(t *testing.T) {
	env := fivePlayerEnv(t, 0)
	require.NoError(t, env.ChooseTeam(0, []int{0, 1}))

	_, err := env.GatherTeamVotes([]int{1, 1, 1})
	assert.Error(t, err)
	_, err = env.GatherTeamVotes([]int{1, 1, 1, 2, 0})
	assert.Error(t, err)
	assert.Equal(t, PhaseTeamVote, env.Phase())
}

func TestRejectionLimitHandsGameToEvil(t *testing.T) {
	env := fivePlayerEnv(t, 3)
	for i := 0; i < env.Config().MaxRounds; i++ {
		leader := env.Leader()
		assert.Equal(t, (3+i)%5, leader)
		require.NoError(t, env.ChooseTeam(leader, []int{leader, (leader + 1) % 5}))
		approved, err := env.GatherTeamVotes([]int{0, 0, 0, 0, 0})
		require.NoError(t, err)
		assert.False(t, approved)
	}
	assert.True(t, env.Done())
	assert.Equal(t, OutcomeEvilByRejection, env.Outcome())
	assert.Equal(t, Evil, env.Outcome().Winner())
}

// playMission proposes a team for the current leader, approves it and
// applies the quest votes.
func playMission(t *testing.T, env *Env, questVotes func(team []int) []int) bool {
	t.Helper()
	leader := env.Leader()
	team := make([]int, env.TeamSize())
	for i := range team {
		team[i] = i
	}
	require.NoError(t, env.ChooseTeam(leader, team))
	approved, err := env.GatherTeamVotes([]int{1, 1, 1, 1, 1})
	require.NoError(t, err)
	require.True(t, approved)
	success, _, err := env.GatherQuestVotes(questVotes(team))
	require.NoError(t, err)
	return success
}

func allOf(v int) func([]int) []int {
	return func(team []int) []int {
		out := make([]int, len(team))
		for i := range out {
			out[i] = v
		}
		return out
	}
}

func TestThreeFailedQuestsEndGame(t *testing.T) {
	env := fivePlayerEnv(t, 0)
	for i := 0; i < 3; i++ {
		assert.False(t, playMission(t, env, allOf(0)))
	}
	assert.Equal(t, []bool{false, false, false}, env.QuestResults())
	assert.True(t, env.Done())
	assert.Equal(t, OutcomeEvilByMission, env.Outcome())
}

func TestThreeSuccessesLeadToAssassination(t *testing.T) {
	for _, c := range []struct {
		target  int
		hit     bool
		outcome Outcome
	}{
		{target: 0, hit: true, outcome: OutcomeEvilByAssassination},
		{target: 2, hit: false, outcome: OutcomeGood},
	} {
		env := fivePlayerEnv(t, 0)
		for i := 0; i < 3; i++ {
			assert.True(t, playMission(t, env, allOf(1)))
		}
		require.Equal(t, PhaseAssassination, env.Phase())

		_, err := env.Assassinate(3, c.target)
		assert.Error(t, err, "a minion cannot assassinate")
		_, err = env.Assassinate(4, 4)
		assert.Error(t, err, "the assassin cannot target itself")

		hit, err := env.Assassinate(4, c.target)
		require.NoError(t, err)
		assert.Equal(t, c.hit, hit)
		assert.Equal(t, c.outcome, env.Outcome())
		assert.True(t, env.Done())
	}
}

func TestFailsRequiredForLargeGames(t *testing.T) {
	cfg, err := NewConfig(7)
	require.NoError(t, err)
	roles := []Role{Merlin, Servant, Servant, Servant, Minion, Minion, Assassin}
	env, err := NewEnv(cfg, roles, 0)
	require.NoError(t, err)

	env.turn = 3
	require.NoError(t, env.ChooseTeam(env.Leader(), []int{0, 1, 2, 3}))
	_, err = env.GatherTeamVotes([]int{1, 1, 1, 1, 1, 1, 1})
	require.NoError(t, err)

	success, fails, err := env.GatherQuestVotes([]int{1, 1, 1, 0})
	require.NoError(t, err)
	assert.Equal(t, 1, fails)
	assert.True(t, success, "the fourth mission needs two fails with seven players")
}

func TestPresetRoles(t *testing.T) {
	cfg, err := NewConfig(5)
	require.NoError(t, err)

	roles, err := Preset{NumPlayers: 5, RoleNames: []string{"Merlin", "servant", "Servant", "Minion", "Assassin"}}.Roles(cfg)
	require.NoError(t, err)
	assert.Equal(t, []Role{Merlin, Servant, Servant, Minion, Assassin}, roles)

	_, err = Preset{NumPlayers: 5, RoleNames: []string{"Merlin", "Servant", "Minion", "Minion", "Assassin"}}.Roles(cfg)
	assert.Error(t, err, "wrong good/evil split")

	_, err = Preset{NumPlayers: 5, RoleNames: []string{"Merlin", "Servant", "Servant", "Minion", "Joker"}}.Roles(cfg)
	assert.Error(t, err)

	_, err = Preset{NumPlayers: 5, QuestLeader: 7, RoleNames: []string{"Merlin", "Servant", "Servant", "Minion", "Assassin"}}.Roles(cfg)
	assert.Error(t, err)
}

func TestRandomPresetIsValid(t *testing.T) {
	for n := MinPlayers; n <= MaxPlayers; n++ {
		p, err := RandomPreset(n, int64(n))
		require.NoError(t, err)
		_, err = EnvFromPreset(p)
		assert.NoError(t, err, "players %d", n)
	}
}

func TestRoleTable(t *testing.T) {
	assert.True(t, Assassin.Capabilities().CanAssassinate)
	assert.False(t, Minion.Capabilities().CanAssassinate)
	assert.False(t, Merlin.Capabilities().CanAssassinate)
	assert.True(t, Merlin.SeesSides())
	assert.False(t, Servant.SeesSides())
	assert.Equal(t, Evil, Morgana.Side())
	assert.Equal(t, Good, Percival.Side())

	r, err := ParseRole("assassin")
	require.NoError(t, err)
	assert.Equal(t, Assassin, r)
}

func TestDeductionAccuracy(t *testing.T) {
	isGood := []bool{true, true, true, false, false}
	assert.Equal(t, 1.0, DeductionAccuracy(0, []float64{1, 0.9, 0.8, 0.1, 0}, isGood))
	assert.Equal(t, 0.5, DeductionAccuracy(0, []float64{1, 0.5, 0.5, 0.5, 0.5}, isGood))
	assert.Equal(t, 0.25, DeductionAccuracy(3, []float64{0, 0, 1, 1, 1}, isGood))
}
