package multiagent

import (
	"fmt"
	"slices"
	"strings"

	"github.com/nstogner/arena/pkg/extract"
)

// Mode names the kind of structured answer a request expects.
type Mode string

const (
	ModeChooseTeam    Mode = "choose_quest_team_action"
	ModeVoteTeam      Mode = "vote_on_team"
	ModeVoteMission   Mode = "vote_on_mission"
	ModeAssassination Mode = "assassination"
	ModeBelievedSides Mode = "get_believed_sides"
	ModePlayCard      Mode = "play_card"
	// ModeSummarize marks free-text requests that are never parsed.
	ModeSummarize Mode = "summarize"
)

// Request is one prompt sent to an agent together with the constraints its
// answer must satisfy.
type Request struct {
	Mode    Mode
	Content string

	// TeamSize is the required team size for ModeChooseTeam.
	TeamSize int
	// NumPlayers bounds player ids and sizes the belief vector.
	NumPlayers int
	// Self is the asking player's id; an assassin may not name itself.
	Self int
	// Hand lists the cards a player may still bid in ModePlayCard.
	Hand []int

	// Fallback is returned by Act on a null session.
	Fallback string
}

// Value is a validated structured answer. Only the field matching the
// request mode is set.
type Value struct {
	Team  []int
	Vote  int
	Index int
	Sides []float64
	Card  int
}

type parser struct {
	verify  func(req Request) string
	parse   func(req Request, text string) (Value, string)
	correct func(req Request, reason string) string
}

var parsers = map[Mode]parser{
	ModeChooseTeam: {
		verify: func(Request) string {
			return "Based on the statement above, which players did the speaker choose for the team? " +
				"Answer only with a list of player ids, for example [0, 2]."
		},
		parse: func(req Request, text string) (Value, string) {
			team, ok := extract.Team(text)
			if !ok {
				return Value{}, "no list of player ids found"
			}
			if len(team) != req.TeamSize {
				return Value{Team: team}, fmt.Sprintf("team has %d players, want %d", len(team), req.TeamSize)
			}
			for _, id := range team {
				if req.NumPlayers > 0 && (id < 0 || id >= req.NumPlayers) {
					return Value{}, fmt.Sprintf("player %d does not exist", id)
				}
			}
			return Value{Team: team}, ""
		},
		correct: func(req Request, reason string) string {
			return fmt.Sprintf("You should choose a team of size %d, but your answer was invalid (%s). "+
				"Please output a list of player ids with the correct team size.", req.TeamSize, reason)
		},
	},
	ModeVoteTeam: {
		verify: func(Request) string {
			return "Based on the statement above, did the speaker approve the team? Answer only `Yes` or `No`."
		},
		parse: parseVote,
		correct: func(Request, string) string {
			return "You surely are a player in the game. Please output `Yes` or `No` to vote on the team."
		},
	},
	ModeVoteMission: {
		verify: func(Request) string {
			return "Based on the statement above, did the speaker vote to pass the quest? Answer only `Yes` or `No`."
		},
		parse: parseVote,
		correct: func(Request, string) string {
			return "You surely are a player in the game, and you are a member in the quest. " +
				"Please output `Yes` or `No` to vote on the quest."
		},
	},
	ModeAssassination: {
		verify: func(Request) string {
			return "Based on the statement above, which player did the speaker choose to assassinate? " +
				"Answer only with the player id."
		},
		parse: func(req Request, text string) (Value, string) {
			id, ok := extract.Index(text)
			if !ok {
				return Value{}, "no player id found"
			}
			if id < 0 || id >= req.NumPlayers {
				return Value{}, fmt.Sprintf("player %d does not exist", id)
			}
			if id == req.Self {
				return Value{}, "the assassin cannot target itself"
			}
			return Value{Index: id}, ""
		},
		correct: func(req Request, reason string) string {
			return fmt.Sprintf("Your choice was invalid (%s). Name exactly one player to assassinate: "+
				"an id from 0 to %d other than yourself (Player %d).", reason, req.NumPlayers-1, req.Self)
		},
	},
	ModeBelievedSides: {
		verify: func(req Request) string {
			return fmt.Sprintf("Based on the statement above, output the probability that each player is on the good side "+
				"as a list of %d numbers between 0 and 1, ordered by player id.", req.NumPlayers)
		},
		parse: func(req Request, text string) (Value, string) {
			sides, ok := extract.Sides(text, req.NumPlayers)
			if !ok {
				return Value{}, fmt.Sprintf("expected %d scores between 0 and 1", req.NumPlayers)
			}
			return Value{Sides: sides}, ""
		},
		correct: func(req Request, reason string) string {
			return fmt.Sprintf("Your answer was invalid (%s). Please output exactly %d numbers between 0 and 1, "+
				"one per player, as a list like [1, 0.5, 0.2].", reason, req.NumPlayers)
		},
	},
	ModePlayCard: {
		verify: func(Request) string {
			return "Based on the statement above, which card did the speaker play? Answer only with the card number."
		},
		parse: func(req Request, text string) (Value, string) {
			card, ok := extract.Card(text)
			if !ok {
				return Value{}, "no card number found"
			}
			if !slices.Contains(req.Hand, card) {
				return Value{}, fmt.Sprintf("card %d is not in the hand", card)
			}
			return Value{Card: card}, ""
		},
		correct: func(req Request, reason string) string {
			return fmt.Sprintf("Your move was invalid (%s). You must play exactly one card that is still in your hand: %v.",
				reason, req.Hand)
		},
	},
}

func parseVote(_ Request, text string) (Value, string) {
	token, ok := extract.Vote(text)
	if !ok {
		return Value{}, "no Yes/No answer found"
	}
	return Value{Vote: voteValue(token)}, ""
}

func voteValue(token string) int {
	if token == "Yes" {
		return 1
	}
	return 0
}

// Parse applies the extractor and validator of req.Mode to text without any
// model interaction.
func Parse(req Request, text string) (Value, error) {
	p, ok := parsers[req.Mode]
	if !ok {
		return Value{}, fmt.Errorf("no parser for mode %q", req.Mode)
	}
	v, reason := p.parse(req, text)
	if reason != "" {
		return Value{}, &ParseFailure{Mode: req.Mode, Reason: reason}
	}
	return v, nil
}

// CoerceVote maps a reply that is exactly "Yes" or "No" to 1 or 0.
func CoerceVote(text string) (int, bool) {
	switch strings.TrimSpace(text) {
	case "Yes":
		return 1, true
	case "No":
		return 0, true
	}
	return 0, false
}

func isVote(m Mode) bool {
	return m == ModeVoteTeam || m == ModeVoteMission
}
