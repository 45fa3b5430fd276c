// Package passcheck wraps an external password-strength estimator. The
// scorer itself is opaque; this package only maps its 0-4 score onto the
// wording and severity the console shows next to password prompts. The
// result is advisory and never blocks a submission.
package passcheck

import (
	zxcvbn "github.com/nbutton23/zxcvbn-go"
)

var labels = [5]string{"very weak", "weak", "so-so", "strong", "very strong"}

var levels = [5]Level{LevelDanger, LevelDanger, LevelWarning, LevelSuccess, LevelSuccess}

// Level is the severity bucket of a score.
type Level string

const (
	LevelDanger  Level = "danger"
	LevelWarning Level = "warning"
	LevelSuccess Level = "success"
)

// Result is the console-facing view of a strength estimate.
type Result struct {
	Score            int    // 0 (worst) to 4 (best)
	Label            string // "very weak" .. "very strong"
	Level            Level
	CrackTimeDisplay string // human-readable estimated crack time
}

// Strong reports whether the password clears the "strong" bucket.
func (r Result) Strong() bool {
	return r.Score >= 3
}

// Score runs the estimator. userInputs (usernames and similar context) are
// fed as extra dictionary words so they count against the password.
func Score(password string, userInputs ...string) Result {
	inputs := append([]string{"acctl"}, userInputs...)
	res := zxcvbn.PasswordStrength(password, inputs)

	score := res.Score
	if score < 0 {
		score = 0
	}
	if score > 4 {
		score = 4
	}
	return Result{
		Score:            score,
		Label:            labels[score],
		Level:            levels[score],
		CrackTimeDisplay: res.CrackTimeDisplay,
	}
}
