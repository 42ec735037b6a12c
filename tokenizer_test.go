package reader

import (
	"reflect"
	"testing"
)

func TestNormalizeToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"Whale", "whale"},
		{"'quoted'", "quot"},     // apostrophes stripped, then "ed" suffix
		{"a", ""},                // too short
		{"42", ""},               // purely numeric
		{"4th", "4th"},           // mixed alphanumeric survives
		{"hunting", "hunt"},      // ing
		{"reportedly", "report"}, // edly, tried before ed
		{"walked", "walk"},       // ed
		{"quickly", "quick"},     // ly
		{"boxes", "box"},         // es
		{"whales", "whal"},       // es
		{"sing", "sing"},         // stem too short for ing
		{"goes", "goe"},          // es blocked by length, s applies
		{"runnings", "running"},  // only the first matching suffix strips
	}
	for _, tt := range tests {
		if got := normalizeToken(tt.in); got != tt.want {
			t.Errorf("normalizeToken(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestTokenize_DropsStopwordsAndNoise(t *testing.T) {
	got := Tokenize("The whale and the captain were hunting in 1851")
	want := []string{"whale", "captain", "hunt"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("Tokenize = %v, want %v", got, want)
	}
}

func TestTokenize_Deterministic(t *testing.T) {
	in := "Call me Ishmael. Some years ago, never mind how long precisely."
	first := Tokenize(in)
	for i := 0; i < 5; i++ {
		if again := Tokenize(in); !reflect.DeepEqual(first, again) {
			t.Fatalf("Tokenize not deterministic: %v != %v", first, again)
		}
	}
}

func TestTokenize_EmptyAndSymbolInput(t *testing.T) {
	for _, in := range []string{"", "!!! --- ***", "a I 7 9"} {
		if got := Tokenize(in); len(got) != 0 {
			t.Errorf("Tokenize(%q) = %v, want empty", in, got)
		}
	}
}
