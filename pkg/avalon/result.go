package avalon

import (
	"github.com/nstogner/arena/pkg/models"
	"github.com/nstogner/arena/pkg/multiagent"
)

// Result is everything an episode produced. On failure only Status,
// ErrorKind, Err, PhaseLog, Transcripts, Roles and Kinds are set.
type Result struct {
	Status    multiagent.Status
	ErrorKind multiagent.Status
	Err       error

	PhaseLog []string
	// Transcripts holds each model player's log; naive seats are nil.
	Transcripts [][]models.Message
	Roles       []Role
	Kinds       []Kind

	Outcome    Outcome
	GameResult string
	// Players holds the score of every model player.
	Players []PlayerResult
}

// PlayerResult scores one model player.
type PlayerResult struct {
	ID                int       `json:"id"`
	Role              string    `json:"role"`
	Wins              bool      `json:"wins"`
	Beliefs           []float64 `json:"beliefs"`
	DeductionAccuracy float64   `json:"deduction_accuracy"`
}

func score(env *Env, players []*Player, beliefs [][]float64) []PlayerResult {
	isGood := env.IsGood()
	winner := env.Outcome().Winner()
	var out []PlayerResult
	for i, p := range players {
		if p.Kind != KindLLM {
			continue
		}
		out = append(out, PlayerResult{
			ID:                p.ID,
			Role:              p.Role.String(),
			Wins:              p.Side() == winner,
			Beliefs:           beliefs[i],
			DeductionAccuracy: DeductionAccuracy(p.ID, beliefs[i], isGood),
		})
	}
	return out
}

// DeductionAccuracy is the fraction of other seats whose side the belief
// vector gets right. A belief above 0.5 counts as Good.
func DeductionAccuracy(self int, beliefs []float64, isGood []bool) float64 {
	correct, total := 0, 0
	for i, good := range isGood {
		if i == self || i >= len(beliefs) {
			continue
		}
		total++
		if (beliefs[i] > 0.5) == good {
			correct++
		}
	}
	if total == 0 {
		return 0
	}
	return float64(correct) / float64(total)
}
