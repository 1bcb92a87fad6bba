package extract

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestTeam(t *testing.T) {
	tests := []struct {
		name string
		text string
		want []int
		ok   bool
	}{
		{"bracketed", "[0, 1]", []int{0, 1}, true},
		{"last bracket wins", "Earlier I said [2, 3] but my final team is [4, 1].", []int{1, 4}, true},
		{"player mentions", "I choose Player 0 and Player 3.", []int{0, 3}, true},
		{"players list", "Players 1, 2 and 4 should go.", []int{1, 2, 4}, true},
		{"duplicates collapse", "[1, 1, 2]", []int{1, 2}, true},
		{"nothing", "I am not sure yet.", nil, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Team(tt.text)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestVote(t *testing.T) {
	tests := []struct {
		text string
		want string
		ok   bool
	}{
		{"Yes", "Yes", true},
		{"no.", "No", true},
		{"After thinking, my answer is YES", "Yes", true},
		{"Yes at first, but no.", "No", true},
		{"I abstain", "", false},
		{"Nobody knows", "", false},
	}
	for _, tt := range tests {
		got, ok := Vote(tt.text)
		assert.Equal(t, tt.ok, ok, tt.text)
		assert.Equal(t, tt.want, got, tt.text)
	}
}

func TestIndex(t *testing.T) {
	got, ok := Index("I will assassinate Player 3 because of quest 2.")
	assert.True(t, ok)
	assert.Equal(t, 3, got)

	got, ok = Index("4")
	assert.True(t, ok)
	assert.Equal(t, 4, got)

	_, ok = Index("nobody")
	assert.False(t, ok)
}

func TestCard(t *testing.T) {
	got, ok := Card("I bid my 7")
	assert.True(t, ok)
	assert.Equal(t, 7, got)

	_, ok = Card("pass")
	assert.False(t, ok)
}

func TestSides(t *testing.T) {
	got, ok := Sides("My beliefs: [1, 0.2, 0.75, 0, 0.5]", 5)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 0.2, 0.75, 0, 0.5}, got)

	got, ok = Sides("Player 0: 1\nPlayer 1: 0.3\nPlayer 2 is 0.9", 3)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 0.3, 0.9}, got)

	_, ok = Sides("[1, 0.2]", 5)
	assert.False(t, ok)

	_, ok = Sides("Player 0: 1\nPlayer 2: 0.9", 3)
	assert.False(t, ok)
}

func TestSidesLeadingDotAndPercent(t *testing.T) {
	got, ok := Sides("[1, .5, .2, .9, 0]", 5)
	assert.True(t, ok)
	assert.Equal(t, []float64{1, 0.5, 0.2, 0.9, 0}, got)

	got, ok = Sides("Player 0: 100%\nPlayer 1: 80%\nPlayer 2: 20%", 3)
	assert.True(t, ok)
	assert.InDeltaSlice(t, []float64{1, 0.8, 0.2}, got, 1e-9)

	got, ok = Sides("[100%, 50%, 0%]", 3)
	assert.True(t, ok)
	assert.InDeltaSlice(t, []float64{1, 0.5, 0}, got, 1e-9)
}

func TestSidesRejectsOutOfRange(t *testing.T) {
	_, ok := Sides("[1, 5, 2, 9, 0]", 5)
	assert.False(t, ok)

	_, ok = Sides("Player 0: 1\nPlayer 1: 80\nPlayer 2: 0.2", 3)
	assert.False(t, ok)

	_, ok = Sides("[1, -0.5, 0]", 3)
	assert.False(t, ok)
}
