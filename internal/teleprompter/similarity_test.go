package teleprompter_test

import (
	"testing"

	"github.com/MrWong99/podium/internal/teleprompter"
)

var similarityWords = []string{
	"hoy", "vamos", "hablar", "ventas", "venta", "ventanas", "presupuesto",
	"a", "de", "cafe", "casa", "cosa", "trimestre", "resultados", "ab", "ba",
}

func TestWordSimilarity_Cases(t *testing.T) {
	t.Parallel()

	tests := []struct {
		a, b string
		want float64
	}{
		{"hola", "hola", 1},
		{"a", "a", 1},
		{"a", "hola", 0},
		{"hola", "x", 0},
		{"venta", "ventas", 5.0 / 6.0},
		{"hab", "hablar", 0.5},
		{"casa", "cosa", 0.75},
		{"vamos", "hablar", 1.0 / 6.0},
		{"hoy", "hablar", 1.0 / 6.0},
	}
	for _, tt := range tests {
		t.Run(tt.a+"/"+tt.b, func(t *testing.T) {
			t.Parallel()
			if got := teleprompter.WordSimilarity(tt.a, tt.b); !approx(got, tt.want) {
				t.Errorf("WordSimilarity(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestScorers_Properties(t *testing.T) {
	t.Parallel()

	scorers := map[string]teleprompter.Scorer{
		"positional":   teleprompter.WordSimilarity,
		"jaro-winkler": teleprompter.JaroWinklerSimilarity,
	}
	for name, score := range scorers {
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			for _, a := range similarityWords {
				if got := score(a, a); got != 1 {
					t.Errorf("score(%q, %q) = %v, want 1", a, a, got)
				}
				for _, b := range similarityWords {
					ab, ba := score(a, b), score(b, a)
					if ab != ba {
						t.Errorf("score(%q, %q) = %v but score(%q, %q) = %v", a, b, ab, b, a, ba)
					}
					if ab < 0 || ab > 1 {
						t.Errorf("score(%q, %q) = %v outside [0, 1]", a, b, ab)
					}
				}
			}
		})
	}
}

func TestScorerName(t *testing.T) {
	t.Parallel()

	if !teleprompter.ScorerPositional.IsValid() || !teleprompter.ScorerJaroWinkler.IsValid() {
		t.Error("built-in scorer names should be valid")
	}
	if teleprompter.ScorerName("levenshtein").IsValid() {
		t.Error("unknown scorer name should be invalid")
	}
	if got := teleprompter.ScorerJaroWinkler.Scorer()("casa", "cosa"); got != teleprompter.JaroWinklerSimilarity("casa", "cosa") {
		t.Errorf("jaro-winkler scorer mismatch: %v", got)
	}
	if got := teleprompter.ScorerName("").Scorer()("casa", "cosa"); got != 0.75 {
		t.Errorf("fallback scorer = %v, want positional 0.75", got)
	}
}

func approx(a, b float64) bool {
	d := a - b
	return d < 1e-9 && d > -1e-9
}
