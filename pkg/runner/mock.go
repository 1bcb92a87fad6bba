package runner

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/models/scripted"
)

var (
	mockIdentityRe = regexp.MustCompile(`You are Player (\d+), with identity \w+\. You are on the (\w+) side`)
	mockPlayersRe  = regexp.MustCompile(`There are (\d+) players in this game`)
	mockTeamRe     = regexp.MustCompile(`choose (\d+) players from player ids 0 to (\d+)`)
	mockTargetRe   = regexp.MustCompile(`choose one player from 0 to (\d+)`)
	mockHandRe     = regexp.MustCompile(`Your hand is \[([\d, ]*)\]`)
)

// MockModel returns a provider that plays both games with a fixed,
// role-aware policy. It lets the whole pipeline run without a model backend.
func MockModel() *scripted.Model {
	return scripted.New(mockRespond)
}

func mockRespond(msgs []models.Message) (string, error) {
	if len(msgs) == 0 {
		return "", fmt.Errorf("empty conversation")
	}
	last := msgs[len(msgs)-1].Content
	self, evil, players := mockIdentity(msgs)

	switch {
	case strings.HasPrefix(last, "The player says: "):
		said, _, _ := strings.Cut(strings.TrimPrefix(last, "The player says: "), "\n\n")
		return said, nil
	case strings.Contains(last, "Please summarize the history"):
		return "Nothing conclusive has happened yet.", nil
	case strings.Contains(last, "Discuss the proposed team"):
		return "I have no strong objection to this team.", nil
	case mockTeamRe.MatchString(last):
		m := mockTeamRe.FindStringSubmatch(last)
		size, _ := strconv.Atoi(m[1])
		maxID, _ := strconv.Atoi(m[2])
		team := make([]string, size)
		for i := range team {
			team[i] = strconv.Itoa((self + i) % (maxID + 1))
		}
		return "[" + strings.Join(team, ", ") + "]", nil
	case strings.Contains(last, "Do you approve this team?"):
		return "Yes", nil
	case strings.Contains(last, "Do you vote to pass or fail the quest?"):
		if evil {
			return "No", nil
		}
		return "Yes", nil
	case mockTargetRe.MatchString(last):
		maxID, _ := strconv.Atoi(mockTargetRe.FindStringSubmatch(last)[1])
		return fmt.Sprintf("Player %d", (self+1)%(maxID+1)), nil
	case strings.Contains(last, "For each player, estimate"):
		beliefs := make([]string, players)
		for i := range beliefs {
			beliefs[i] = "0.5"
		}
		if self < players {
			beliefs[self] = "1"
		}
		return "[" + strings.Join(beliefs, ", ") + "]", nil
	case mockHandRe.MatchString(last):
		hand := mockHandRe.FindStringSubmatch(last)[1]
		first, _, _ := strings.Cut(hand, ",")
		return strings.TrimSpace(first), nil
	}
	return "Understood.", nil
}

// mockIdentity finds the asking player's seat and side in its own transcript.
func mockIdentity(msgs []models.Message) (self int, evil bool, players int) {
	for _, msg := range msgs {
		if m := mockIdentityRe.FindStringSubmatch(msg.Content); m != nil {
			self, _ = strconv.Atoi(m[1])
			evil = m[2] == "Evil"
		}
		if m := mockPlayersRe.FindStringSubmatch(msg.Content); m != nil {
			players, _ = strconv.Atoi(m[1])
		}
	}
	return self, evil, players
}
