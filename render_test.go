package tasting

import (
	"reflect"
	"testing"
)

func TestProbabilityToRGB(t *testing.T) {
	tests := []struct {
		name        string
		probability float64
		want        string
	}{
		{"fully good", 0.0, "rgb(0, 255, 90)"},
		{"fully bad", 1.0, "rgb(255, 0, 90)"},
		{"uncertain", 0.5, "rgb(255, 255, 90)"},
		{"mostly good", 0.25, "rgb(127, 255, 90)"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := ProbabilityToRGB(tt.probability)
			if got != tt.want {
				t.Errorf("ProbabilityToRGB(%v) = %q, want %q", tt.probability, got, tt.want)
			}
		})
	}
}

func TestTagsToProbabilities(t *testing.T) {
	got := TagsToProbabilities([]string{TagOK, TagBAD, TagOK, TagBAD})
	want := []float64{0.0, 1.0, 0.0, 1.0}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("TagsToProbabilities() = %v, want %v", got, want)
	}
}

func TestAnnotateTokens(t *testing.T) {
	t.Run("aligned inputs", func(t *testing.T) {
		tokens := []string{"hallo", "welt"}
		tags := []string{TagOK, TagBAD}
		probs := []float64{0.0, 1.0}

		got := AnnotateTokens(tokens, tags, probs)
		if len(got) != 2 {
			t.Fatalf("got %d spans, want 2", len(got))
		}
		if got[0].Token != "hallo" || got[0].Tag != TagOK || got[0].Color != "rgb(0, 255, 90)" {
			t.Errorf("span[0] = %+v", got[0])
		}
		if got[1].Token != "welt" || got[1].Tag != TagBAD || got[1].Color != "rgb(255, 0, 90)" {
			t.Errorf("span[1] = %+v", got[1])
		}
	})

	t.Run("mismatched lengths truncate", func(t *testing.T) {
		got := AnnotateTokens(
			[]string{"a", "b", "c"},
			[]string{TagOK},
			[]float64{0.0, 1.0},
		)
		if len(got) != 1 {
			t.Errorf("got %d spans, want 1", len(got))
		}
	})
}
