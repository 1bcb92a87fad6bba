// Package extract pulls structured values out of free-form model replies.
// Every function is pure and reports false when no well-formed value is found.
package extract

import (
	"math"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

var (
	bracketRe    = regexp.MustCompile(`\[([^\[\]]*)\]`)
	intRe        = regexp.MustCompile(`-?\d+`)
	numberRe     = regexp.MustCompile(`-?(?:\d+(?:\.\d+)?|\.\d+)%?`)
	playerRe     = regexp.MustCompile(`(?i)\bplayers?\s*#?\s*(\d+)`)
	voteRe       = regexp.MustCompile(`(?i)\b(yes|no)\b`)
	playerPairRe = regexp.MustCompile(`(?i)\bplayer\s*#?\s*(\d+)\s*[:=\-]?\s*(?:is\s*)?(-?(?:\d+(?:\.\d+)?|\.\d+)%?)`)
	// "Players 1, 3 and 4" lists trailing ids without repeating the word.
	playerListRe = regexp.MustCompile(`(?i)\bplayers\b([\d\s,and&]+)`)
)

// Team extracts a set of player indices, sorted ascending without duplicates.
// The last bracketed list wins; otherwise every "Player N" mention is used.
func Team(text string) ([]int, bool) {
	if groups := bracketRe.FindAllStringSubmatch(text, -1); len(groups) > 0 {
		for i := len(groups) - 1; i >= 0; i-- {
			if ids := ints(intRe.FindAllString(groups[i][1], -1)); len(ids) > 0 {
				return uniqueSorted(ids), true
			}
		}
	}

	var ids []int
	for _, m := range playerRe.FindAllStringSubmatch(text, -1) {
		n, err := strconv.Atoi(m[1])
		if err == nil {
			ids = append(ids, n)
		}
	}
	if loc := playerListRe.FindStringSubmatch(text); loc != nil {
		ids = append(ids, ints(intRe.FindAllString(loc[1], -1))...)
	}
	if len(ids) == 0 {
		return nil, false
	}
	return uniqueSorted(ids), true
}

// Vote extracts a "Yes" or "No" token. When both appear, the last one wins.
func Vote(text string) (string, bool) {
	matches := voteRe.FindAllString(text, -1)
	if len(matches) == 0 {
		return "", false
	}
	if strings.EqualFold(matches[len(matches)-1], "yes") {
		return "Yes", true
	}
	return "No", true
}

// Index extracts a single player index: the last "Player N" mention, or the
// last integer in the text.
func Index(text string) (int, bool) {
	if m := playerRe.FindAllStringSubmatch(text, -1); len(m) > 0 {
		if n, err := strconv.Atoi(m[len(m)-1][1]); err == nil {
			return n, true
		}
	}
	all := intRe.FindAllString(text, -1)
	if len(all) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(all[len(all)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Card extracts the card a player chose to bid.
func Card(text string) (int, bool) {
	all := intRe.FindAllString(text, -1)
	if len(all) == 0 {
		return 0, false
	}
	n, err := strconv.Atoi(all[len(all)-1])
	if err != nil {
		return 0, false
	}
	return n, true
}

// Sides extracts a belief vector of exactly n scores in [0, 1]. It accepts
// either a bracketed list of n numbers or one "Player i: score" line per
// player. Percentages are scaled to [0, 1]; any other out-of-range score
// rejects the vector.
func Sides(text string, n int) ([]float64, bool) {
	if n <= 0 {
		return nil, false
	}
	groups := bracketRe.FindAllStringSubmatch(text, -1)
	for i := len(groups) - 1; i >= 0; i-- {
		nums := numberRe.FindAllString(groups[i][1], -1)
		if len(nums) != n {
			continue
		}
		if scores, ok := floats(nums); ok {
			return scores, true
		}
	}

	scores := make([]float64, n)
	seen := make([]bool, n)
	for _, m := range playerPairRe.FindAllStringSubmatch(text, -1) {
		idx, err := strconv.Atoi(m[1])
		if err != nil || idx < 0 || idx >= n {
			continue
		}
		v, ok := score(m[2])
		if !ok {
			return nil, false
		}
		scores[idx] = v
		seen[idx] = true
	}
	for _, ok := range seen {
		if !ok {
			return nil, false
		}
	}
	return scores, true
}

func ints(raw []string) []int {
	out := make([]int, 0, len(raw))
	for _, r := range raw {
		if n, err := strconv.Atoi(r); err == nil {
			out = append(out, n)
		}
	}
	return out
}

func floats(raw []string) ([]float64, bool) {
	out := make([]float64, 0, len(raw))
	for _, r := range raw {
		v, ok := score(r)
		if !ok {
			return nil, false
		}
		out = append(out, v)
	}
	return out, true
}

// score parses a probability written as a decimal or a percentage.
func score(raw string) (float64, bool) {
	pct := strings.HasSuffix(raw, "%")
	v, err := strconv.ParseFloat(strings.TrimSuffix(raw, "%"), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	if pct {
		v /= 100
	}
	if v < 0 || v > 1 {
		return 0, false
	}
	return v, true
}

func uniqueSorted(ids []int) []int {
	seen := make(map[int]bool, len(ids))
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		if !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	sort.Ints(out)
	return out
}
