package avalon

import (
	"encoding/json"
	"fmt"
	"math/rand/v2"
	"os"
)

const (
	MinPlayers = 5
	MaxPlayers = 10
)

// Config holds the fixed rules for one player count.
type Config struct {
	NumPlayers int
	NumGood    int
	NumEvil    int
	// TeamSizes and FailsRequired are indexed by mission.
	TeamSizes     []int
	FailsRequired []int
	// MaxRounds is the number of proposals allowed per mission. Rejecting the
	// last one hands the game to evil.
	MaxRounds   int
	QuestsToWin int
}

var (
	numGood = map[int]int{5: 3, 6: 4, 7: 4, 8: 5, 9: 6, 10: 6}

	teamSizes = map[int][]int{
		5:  {2, 3, 2, 3, 3},
		6:  {2, 3, 4, 3, 4},
		7:  {2, 3, 3, 4, 4},
		8:  {3, 4, 4, 5, 5},
		9:  {3, 4, 4, 5, 5},
		10: {3, 4, 4, 5, 5},
	}
)

// NewConfig returns the standard rules for n players.
func NewConfig(n int) (Config, error) {
	if n < MinPlayers || n > MaxPlayers {
		return Config{}, fmt.Errorf("unsupported player count %d, want %d to %d", n, MinPlayers, MaxPlayers)
	}
	fails := []int{1, 1, 1, 1, 1}
	if n >= 7 {
		fails = []int{1, 1, 1, 2, 1}
	}
	return Config{
		NumPlayers:    n,
		NumGood:       numGood[n],
		NumEvil:       n - numGood[n],
		TeamSizes:     append([]int(nil), teamSizes[n]...),
		FailsRequired: fails,
		MaxRounds:     5,
		QuestsToWin:   3,
	}, nil
}

// Preset fixes the setup of one episode: seating, roles and first leader.
type Preset struct {
	NumPlayers  int      `json:"num_players" yaml:"num_players"`
	QuestLeader int      `json:"quest_leader" yaml:"quest_leader"`
	RoleNames   []string `json:"role_names" yaml:"role_names"`
	Seed        int64    `json:"seed,omitempty" yaml:"seed,omitempty"`
}

// LoadPresets reads a JSON array of presets.
func LoadPresets(path string) ([]Preset, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read presets: %w", err)
	}
	var presets []Preset
	if err := json.Unmarshal(data, &presets); err != nil {
		return nil, fmt.Errorf("failed to parse presets %s: %w", path, err)
	}
	return presets, nil
}

// Roles resolves and validates the preset's role names against cfg.
func (p Preset) Roles(cfg Config) ([]Role, error) {
	if p.NumPlayers != cfg.NumPlayers || len(p.RoleNames) != cfg.NumPlayers {
		return nil, fmt.Errorf("preset has %d players and %d roles, want %d",
			p.NumPlayers, len(p.RoleNames), cfg.NumPlayers)
	}
	if p.QuestLeader < 0 || p.QuestLeader >= cfg.NumPlayers {
		return nil, fmt.Errorf("quest leader %d out of range", p.QuestLeader)
	}

	roles := make([]Role, len(p.RoleNames))
	good, assassins, merlins := 0, 0, 0
	for i, name := range p.RoleNames {
		r, err := ParseRole(name)
		if err != nil {
			return nil, fmt.Errorf("player %d: %w", i, err)
		}
		roles[i] = r
		switch {
		case r == Assassin:
			assassins++
		case r == Merlin:
			merlins++
		}
		if r.Side() == Good {
			good++
		}
	}
	if good != cfg.NumGood {
		return nil, fmt.Errorf("preset has %d good players, want %d", good, cfg.NumGood)
	}
	if assassins != 1 || merlins != 1 {
		return nil, fmt.Errorf("preset needs exactly one Merlin and one Assassin")
	}
	return roles, nil
}

// RandomPreset deals the standard roles (Merlin, Servants, Assassin, Minions)
// to n players and picks a random first leader.
func RandomPreset(n int, seed int64) (Preset, error) {
	cfg, err := NewConfig(n)
	if err != nil {
		return Preset{}, err
	}
	names := []string{Merlin.String(), Assassin.String()}
	for i := 1; i < cfg.NumGood; i++ {
		names = append(names, Servant.String())
	}
	for i := 1; i < cfg.NumEvil; i++ {
		names = append(names, Minion.String())
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 0))
	rng.Shuffle(len(names), func(i, j int) { names[i], names[j] = names[j], names[i] })
	return Preset{
		NumPlayers:  n,
		QuestLeader: rng.IntN(n),
		RoleNames:   names,
		Seed:        seed,
	}, nil
}
