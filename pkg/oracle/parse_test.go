package oracle

import (
	"errors"
	"testing"
)

func TestParseVerdictSanitizes(t *testing.T) {
	raw := "```json\n{\n  /* model chatter */\n  \"label\": \"banana\", // guess\n  \"confidence\": 42,\n  \"reasoning\": \"Too much noise.\",\n  \"isCorrect\": true,\n  \"confusingRegions\": [],\n}\n```"

	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict failed: %v", err)
	}
	if v.Label != "banana" || v.Confidence != 42 || !v.IsCorrect || v.Reasoning != "Too much noise." {
		t.Errorf("unexpected verdict %+v", v)
	}
	if len(v.ConfusingRegions) != 0 {
		t.Errorf("expected no regions, got %+v", v.ConfusingRegions)
	}
}

func TestParseVerdictClamps(t *testing.T) {
	raw := `{"label":"cat","confidence":140,"reasoning":"r","isCorrect":false,"confusingRegions":[
		{"x":-10,"y":50,"width":30,"height":80,"reason":"a"},
		{"x":90,"y":95,"width":30,"height":30,"reason":"b"},
		{"x":10,"y":10,"height":10,"reason":"no width"}
	]}`

	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatal(err)
	}
	if v.Confidence != 100 {
		t.Errorf("confidence should clamp to 100, got %v", v.Confidence)
	}
	if len(v.ConfusingRegions) != 2 {
		t.Fatalf("region without width should be dropped, got %+v", v.ConfusingRegions)
	}

	a := v.ConfusingRegions[0]
	if a.X != 0 || a.Y != 50 || a.Width != 30 || a.Height != 50 {
		t.Errorf("region a not clamped: %+v", a)
	}
	b := v.ConfusingRegions[1]
	if b.X != 90 || b.Y != 95 || b.Width != 10 || b.Height != 5 {
		t.Errorf("region b not clamped: %+v", b)
	}

	v, err = ParseVerdict(`{"label":"cat","confidence":-3,"reasoning":"","isCorrect":false}`)
	if err != nil || v.Confidence != 0 {
		t.Errorf("negative confidence should clamp to 0, got %v, %v", v.Confidence, err)
	}
}

func TestParseVerdictMissingFields(t *testing.T) {
	tests := []string{
		``,
		`not json at all`,
		`{}`,
		`{"label":"cat","confidence":10,"isCorrect":true}`,
		`{"confidence":10,"reasoning":"r","isCorrect":true}`,
		`{"label":"cat","reasoning":"r","isCorrect":true}`,
		`{"label":"cat","confidence":10,"reasoning":"r","isCorrect":"yes"}`,
	}
	for _, raw := range tests {
		if _, err := ParseVerdict(raw); !errors.Is(err, ErrMalformed) {
			t.Errorf("ParseVerdict(%q): expected ErrMalformed, got %v", raw, err)
		}
	}
}

func TestSanitizeModelJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{`{"a":1}`, `{"a":1}`},
		{"```\n{\"a\":1}\n```", `{"a":1}`},
		{`Sure! {"a":[1,2,],} hope that helps`, `{"a":[1,2]}`},
		{`{"u":"https://example.com/a//b"}`, `{"u":"https://example.com/a//b"}`},
		{`{"s":"keep ,] and /* this */"}`, `{"s":"keep ,] and /* this */"}`},
		{`{"s":"say \"hi\" // here"} // note`, `{"s":"say \"hi\" // here"}`},
		{"{\"a\":1, // note\n\"b\":2 /* x */}", "{\"a\":1, \n\"b\":2 }"},
	}
	for _, tt := range tests {
		if got := sanitizeModelJSON(tt.in); got != tt.want {
			t.Errorf("sanitizeModelJSON(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestParseVerdictKeepsURLsInStrings(t *testing.T) {
	raw := `{"label":"Cat","confidence":80,"reasoning":"Looks like a cat, see https://en.wikipedia.org/wiki/Cat","isCorrect":true}`

	v, err := ParseVerdict(raw)
	if err != nil {
		t.Fatalf("ParseVerdict failed: %v", err)
	}
	if v.Reasoning != "Looks like a cat, see https://en.wikipedia.org/wiki/Cat" {
		t.Errorf("reasoning truncated: %q", v.Reasoning)
	}
	if v.Label != "Cat" || v.Confidence != 80 || !v.IsCorrect {
		t.Errorf("unexpected verdict %+v", v)
	}
}
