package avalon

import (
	"fmt"
	"strings"
)

// Role identifies a player's secret character.
type Role int

const (
	Merlin Role = iota
	Percival
	Morgana
	Mordred
	Oberon
	Servant
	Minion
	Assassin
)

// Side is the team a role plays for.
type Side int

const (
	Evil Side = 0
	Good Side = 1
)

func (s Side) String() string {
	if s == Good {
		return "Good"
	}
	return "Evil"
}

// Capabilities lists the actions a role may take during a game.
type Capabilities struct {
	CanProposeTeam    bool
	CanAssassinate    bool
	DiscussionEnabled bool
}

type roleInfo struct {
	name string
	side Side
	// seesSides roles are told every player's side at the start.
	seesSides bool
	caps      Capabilities
}

var (
	everyone     = Capabilities{CanProposeTeam: true, DiscussionEnabled: true}
	assassinCaps = Capabilities{CanProposeTeam: true, CanAssassinate: true, DiscussionEnabled: true}
)

var roleTable = map[Role]roleInfo{
	Merlin:   {name: "Merlin", side: Good, seesSides: true, caps: everyone},
	Percival: {name: "Percival", side: Good, caps: everyone},
	Morgana:  {name: "Morgana", side: Evil, seesSides: true, caps: everyone},
	Mordred:  {name: "Mordred", side: Evil, seesSides: true, caps: everyone},
	Oberon:   {name: "Oberon", side: Evil, seesSides: true, caps: everyone},
	Servant:  {name: "Servant", side: Good, caps: everyone},
	Minion:   {name: "Minion", side: Evil, seesSides: true, caps: everyone},
	Assassin: {name: "Assassin", side: Evil, seesSides: true, caps: assassinCaps},
}

func (r Role) String() string {
	if info, ok := roleTable[r]; ok {
		return info.name
	}
	return fmt.Sprintf("Role(%d)", int(r))
}

// Side returns the side the role plays for.
func (r Role) Side() Side { return roleTable[r].side }

// Capabilities returns what the role is allowed to do.
func (r Role) Capabilities() Capabilities { return roleTable[r].caps }

// SeesSides reports whether the role learns every player's side at the start.
func (r Role) SeesSides() bool { return roleTable[r].seesSides }

// ParseRole maps a role name such as "Merlin" or "servant" to its Role.
func ParseRole(name string) (Role, error) {
	for r, info := range roleTable {
		if strings.EqualFold(info.name, strings.TrimSpace(name)) {
			return r, nil
		}
	}
	return 0, fmt.Errorf("unknown role %q", name)
}
