package avalon

import (
	"fmt"
	"strconv"
	"strings"
)

// PromptStrategy selects the reasoning hint appended to decision prompts.
type PromptStrategy string

const (
	StrategyCOT      PromptStrategy = "COT"
	StrategyRelation PromptStrategy = "RELATION"
	StrategyNone     PromptStrategy = "NONE"
)

const introduction = `You are playing a game called The Resistance: Avalon.

The Resistance: Avalon is a social deduction game. Players are split into two sides, Good and Evil. ` +
	`The game is played over up to five quests. For each quest a leader proposes a team, every player votes to ` +
	`approve or reject it, and if the team is approved its members secretly vote to pass or fail the quest. ` +
	`A quest fails when enough of its members vote to fail it. Good wins when three quests succeed, Evil wins ` +
	`when three quests fail or when five teams in a row are rejected for one quest.

Evil players know each other. Merlin, on the Good side, also knows who is Evil, but must stay hidden: when ` +
	`Good has won three quests, the Assassin gets one guess at Merlin's identity, and a correct guess wins the ` +
	`game for Evil. Good players should try to find out who is Evil; Evil players should stay hidden and sabotage quests.`

const (
	chooseTeamAction   = "Please choose %d players from player ids 0 to %d as the team for this quest."
	chooseTeamLeader   = "You are the leader. State the team you propose and briefly explain why, so the other players can respond."
	voteTeamDiscussion = "You are Player %d. Discuss the proposed team %s in a few sentences: do you support it, and why?"
	voteTeamAction     = "You are Player %d. The team %s has been proposed. Do you approve this team? End your reply with `Yes` or `No`."
	voteMissionAction  = "The team %s is on the quest and you are a member. Do you vote to pass or fail the quest? " +
		"End your reply with `Yes` to pass or `No` to fail."
	assassinationPhase = "Good has completed three quests. As the Assassin, choose one player from 0 to %d to assassinate. " +
		"If you find Merlin, Evil wins. Name your target as `Player N`."
	getBelievedSides = "You are Player %d. For each player, estimate the probability that they are on the Good side. " +
		"Output a list of numbers between 0 and 1 ordered by player id, for example [1, 0.5, 0.2, 0.8, 0.4]."

	cotPrompt      = "Think step by step about what you have observed so far before giving your final answer."
	relationPrompt = "Your current estimate of the probability that each player is Good, by player id, is %s. Take it into account."

	summarizePrompt        = "You are Player %d with identity %s on the %s side. "
	summarizeMissionPrompt = "Now you are at Mission %d, Round %d. "
	summarizeRequest       = "Please summarize the history. Keep all useful information, including your identity, " +
		"other players' identities, and your observations in the game."
	discussionEndPrompt = "Discussion has ended. Here are the contents:\nStatement from Leader %d: %s\nAnd words from other players:\n%s"
)

func infoRoles(roles []Role) string {
	counts := map[Role]int{}
	for _, r := range roles {
		counts[r]++
	}
	var good, evil []string
	for r := Merlin; r <= Assassin; r++ {
		if counts[r] == 0 {
			continue
		}
		entry := fmt.Sprintf("%d %s", counts[r], r)
		if r.Side() == Good {
			good = append(good, entry)
		} else {
			evil = append(evil, entry)
		}
	}
	return fmt.Sprintf("There are %d players in this game. The Good side has %s. The Evil side has %s.",
		len(roles), strings.Join(good, ", "), strings.Join(evil, ", "))
}

func infoYourRole(id int, role Role) string {
	return fmt.Sprintf("You are Player %d, with identity %s. You are on the %s side. "+
		"Please do not pretend to be other roles throughout the game.", id, role, role.Side())
}

// revealInfo tells a player who sees sides which seats are on which side.
func revealInfo(id int, role Role, roles []Role) string {
	if !role.SeesSides() {
		return ""
	}
	var evil, good []string
	for i, r := range roles {
		if i == id {
			continue
		}
		if r.Side() == Evil {
			evil = append(evil, strconv.Itoa(i))
		} else {
			good = append(good, strconv.Itoa(i))
		}
	}
	if role.Side() == Good {
		return fmt.Sprintf("You know that Players %s are Evil, and Players %s are Good.",
			strings.Join(evil, ", "), strings.Join(good, ", "))
	}
	if len(evil) == 0 {
		return fmt.Sprintf("You have no Evil teammates. Players %s are Good.", strings.Join(good, ", "))
	}
	return fmt.Sprintf("Your Evil teammates are Players %s. Players %s are Good.",
		strings.Join(evil, ", "), strings.Join(good, ", "))
}

func verbalizeTeamResult(team, votes []int, approved bool) string {
	verdict := "rejected"
	if approved {
		verdict = "approved"
	}
	var parts []string
	for i, v := range votes {
		choice := "rejected"
		if v == 1 {
			choice = "approved"
		}
		parts = append(parts, fmt.Sprintf("Player %d %s", i, choice))
	}
	return fmt.Sprintf("The team %s was %s. %s.", formatInts(team), verdict, strings.Join(parts, ", "))
}

func verbalizeMissionResult(team []int, success bool) string {
	if success {
		return fmt.Sprintf("The team %s succeeded the quest.", formatInts(team))
	}
	return fmt.Sprintf("The team %s failed the quest.", formatInts(team))
}

// formatInts renders ids as "[0, 1, 2]".
func formatInts(ids []int) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = strconv.Itoa(id)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}

func formatFloats(vs []float64) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = strconv.FormatFloat(v, 'g', 3, 64)
	}
	return "[" + strings.Join(parts, ", ") + "]"
}
