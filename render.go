package tasting

import "fmt"

// Per-token quality tags.
const (
	// TagOK marks a token judged to be a good translation.
	TagOK = "OK"

	// TagBAD marks a token judged to need post-editing.
	TagBAD = "BAD"
)

// AnnotatedToken is one token of an annotated sentence: the token text,
// its quality tag, and a CSS color derived from the BAD probability.
type AnnotatedToken struct {
	// Token is the token text.
	Token string

	// Tag is the quality tag, TagOK or TagBAD.
	Tag string

	// Color is a CSS "rgb(r, g, b)" string, green for good tokens
	// shading to red for bad ones.
	Color string
}

// ProbabilityToRGB maps a probability of BAD in [0, 1] to a CSS color:
// fully good tokens are green, fully bad tokens are red, with a linear
// ramp through yellow in between.
func ProbabilityToRGB(probability float64) string {
	red := min(255, int(2*probability*255))
	green := min(255, int(2*(1-probability)*255))
	return fmt.Sprintf("rgb(%d, %d, 90)", red, green)
}

// TagsToProbabilities converts gold OK/BAD tags into BAD probabilities:
// 1.0 for BAD, 0.0 otherwise. Used to render gold annotations through
// the same coloring as model predictions.
func TagsToProbabilities(tags []string) []float64 {
	probs := make([]float64, len(tags))
	for i, tag := range tags {
		if tag == TagBAD {
			probs[i] = 1.0
		}
	}
	return probs
}

// AnnotateTokens zips tokens with their tags and BAD probabilities into
// annotation spans. The result is truncated to the shortest input, so a
// tag/token length mismatch degrades instead of panicking.
func AnnotateTokens(tokens, tags []string, probabilities []float64) []AnnotatedToken {
	n := min(len(tokens), min(len(tags), len(probabilities)))
	annotated := make([]AnnotatedToken, n)
	for i := 0; i < n; i++ {
		annotated[i] = AnnotatedToken{
			Token: tokens[i],
			Tag:   tags[i],
			Color: ProbabilityToRGB(probabilities[i]),
		}
	}
	return annotated
}
