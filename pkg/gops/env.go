// Package gops plays the Game of Pure Strategy between two players that may
// share one model session.
package gops

import (
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
)

// ErrGameOver is returned when cards are played after the last score card.
var ErrGameOver = errors.New("game is over")

// Env holds the score cards, both hands and the scores.
type Env struct {
	numCards int
	deck     []int
	hands    [2][]int
	scores   [2]int

	scoreCard int
	// contested is the score card plus points carried over from ties.
	contested int
	done      bool
}

// NewEnv deals cards 1..numCards to each player and shuffles the score deck.
func NewEnv(numCards int, seed int64) (*Env, error) {
	if numCards < 1 {
		return nil, fmt.Errorf("need at least one card, got %d", numCards)
	}
	e := &Env{numCards: numCards}
	for c := 1; c <= numCards; c++ {
		e.deck = append(e.deck, c)
		e.hands[0] = append(e.hands[0], c)
		e.hands[1] = append(e.hands[1], c)
	}
	rng := rand.New(rand.NewPCG(uint64(seed), 1))
	rng.Shuffle(len(e.deck), func(i, j int) { e.deck[i], e.deck[j] = e.deck[j], e.deck[i] })
	e.draw()
	return e, nil
}

func (e *Env) draw() {
	if len(e.deck) == 0 {
		e.done = true
		e.scoreCard = 0
		return
	}
	e.scoreCard = e.deck[0]
	e.deck = e.deck[1:]
	e.contested += e.scoreCard
}

func (e *Env) Done() bool            { return e.done }
func (e *Env) ScoreCard() int        { return e.scoreCard }
func (e *Env) Contested() int        { return e.contested }
func (e *Env) Scores() [2]int        { return e.scores }
func (e *Env) Hand(player int) []int { return slices.Clone(e.hands[player]) }

// PlayCards resolves one round. The higher card takes every contested point;
// a tie carries them to the next score card.
func (e *Env) PlayCards(first, second int) error {
	if e.done {
		return ErrGameOver
	}
	for p, c := range [2]int{first, second} {
		if !slices.Contains(e.hands[p], c) {
			return fmt.Errorf("player %d does not hold card %d", p, c)
		}
	}
	for p, c := range [2]int{first, second} {
		i := slices.Index(e.hands[p], c)
		e.hands[p] = slices.Delete(e.hands[p], i, i+1)
	}

	switch {
	case first > second:
		e.scores[0] += e.contested
		e.contested = 0
	case second > first:
		e.scores[1] += e.contested
		e.contested = 0
	}
	e.draw()
	return nil
}

// Winner returns the winning player, or -1 for a tie.
func (e *Env) Winner() int {
	switch {
	case e.scores[0] > e.scores[1]:
		return 0
	case e.scores[1] > e.scores[0]:
		return 1
	}
	return -1
}
