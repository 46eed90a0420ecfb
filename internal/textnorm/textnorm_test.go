package textnorm

import (
	"strings"
	"testing"
)

func TestStripSymbols_RemovesPictographs(t *testing.T) {
	in := "sunset \U0001F600 over the river"
	got := StripSymbols(in)
	if got != "sunset  over the river" {
		t.Errorf("StripSymbols(%q) = %q", in, got)
	}
}

func TestStripSymbols_AllRanges(t *testing.T) {
	cases := []struct {
		name string
		r    rune
	}{
		{"emoticon", 0x1F64F},
		{"pictograph", 0x1F300},
		{"transport", 0x1F680},
		{"misc symbol", 0x2600},
		{"dingbat", 0x27BF},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := "a" + string(tc.r) + "b"
			if got := StripSymbols(in); got != "ab" {
				t.Errorf("StripSymbols(%q) = %q, want ab", in, got)
			}
		})
	}
}

func TestStripSymbols_KeepsOtherScripts(t *testing.T) {
	in := "Привет, 東京! café — #northofnyc"
	if got := StripSymbols(in); got != in {
		t.Errorf("StripSymbols(%q) = %q, want unchanged", in, got)
	}
}

func TestStripSymbols_BoundariesKept(t *testing.T) {
	// U+25FF and U+27C0 sit just outside the stripped blocks.
	in := "◿⟀"
	if got := StripSymbols(in); got != in {
		t.Errorf("StripSymbols(%q) = %q, want unchanged", in, got)
	}
}

func TestStripSymbols_Idempotent(t *testing.T) {
	in := "✨ fresh \U0001F680 launch ☀ today \U0001F600"
	once := StripSymbols(in)
	twice := StripSymbols(once)
	if once != twice {
		t.Errorf("second pass changed text: %q -> %q", once, twice)
	}
	if once != " fresh  launch  today " {
		t.Errorf("StripSymbols = %q", once)
	}
}

func TestStripSymbols_Empty(t *testing.T) {
	if got := StripSymbols(""); got != "" {
		t.Errorf("StripSymbols(\"\") = %q", got)
	}
}

func TestTitle_Truncates(t *testing.T) {
	caption := strings.Repeat("x", 80)
	got := Title(caption, "fallback")
	want := strings.Repeat("x", 54) + "..."
	if got != want {
		t.Errorf("Title = %q, want %q", got, want)
	}
}

func TestTitle_ShortUnchanged(t *testing.T) {
	caption := strings.Repeat("y", 40)
	if got := Title(caption, "fallback"); got != caption {
		t.Errorf("Title = %q, want unchanged", got)
	}
}

func TestTitle_ExactlyLimit(t *testing.T) {
	caption := strings.Repeat("z", 54)
	if got := Title(caption, "fallback"); got != caption {
		t.Errorf("Title = %q, want unchanged", got)
	}
}

func TestTitle_CountsRunes(t *testing.T) {
	caption := strings.Repeat("é", 60)
	got := Title(caption, "fallback")
	want := strings.Repeat("é", 54) + "..."
	if got != want {
		t.Errorf("Title = %q, want %q", got, want)
	}
}

func TestTitle_BlankUsesFallback(t *testing.T) {
	if got := Title("   ", "Instagram 42"); got != "Instagram 42" {
		t.Errorf("Title = %q, want fallback", got)
	}
}

func TestRedactor_Apply(t *testing.T) {
	r, err := NewRedactor([]string{`\+?\d{3}-\d{4}`, `(?i)dm me`})
	if err != nil {
		t.Fatalf("new redactor: %v", err)
	}
	got := r.Apply("call 555-1234 or DM me")
	if got != "call [REDACTED] or [REDACTED]" {
		t.Errorf("Apply = %q", got)
	}
}

func TestRedactor_InvalidPattern(t *testing.T) {
	_, err := NewRedactor([]string{"[bad"})
	if err == nil {
		t.Fatal("expected error for invalid pattern")
	}
	if !strings.Contains(err.Error(), "[bad") {
		t.Errorf("error %q should name the pattern", err)
	}
}

func TestRedactor_NilIsNoop(t *testing.T) {
	var r *Redactor
	if got := r.Apply("keep me"); got != "keep me" {
		t.Errorf("Apply = %q", got)
	}
}
