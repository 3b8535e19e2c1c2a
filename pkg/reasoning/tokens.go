package reasoning

import (
	"github.com/pkoukk/tiktoken-go"
)

// Estimator approximates the token count of a text fragment.
type Estimator func(text string) int

// charsPerToken is the rough bytes-to-tokens ratio of the heuristic
// estimator; good enough for trimming decisions.
const charsPerToken = 4

// HeuristicEstimator estimates tokens as len(text)/4.
func HeuristicEstimator(text string) int {
	return len(text) / charsPerToken
}

// TiktokenEstimator returns an estimator backed by the model's BPE
// encoding, falling back to cl100k_base and finally to the heuristic
// when no encoding is available.
func TiktokenEstimator(model string) Estimator {
	encoding, err := tiktoken.EncodingForModel(model)
	if err != nil {
		encoding, err = tiktoken.GetEncoding("cl100k_base")
	}
	if err != nil {
		return HeuristicEstimator
	}
	return func(text string) int {
		return len(encoding.Encode(text, nil, nil))
	}
}
