package llm

import (
	"context"
	"strings"
	"testing"
)

func TestParseVerdict(t *testing.T) {
	cases := []struct {
		content string
		want    bool
	}{
		{"CONTRADICTION", true},
		{"contradiction", true},
		{"CONTRADICTION.", true},
		{"  CONTRADICTION\n", true},
		{"CONTRADICTION: the draft names Alex", true},
		{"CONSISTENT", false},
		{"consistent", false},
		{"The reply seems fine.", false},
		{"It might be a CONTRADICTION", false}, // verdict must lead
		{"", false},
		{"CONTRADICTORY", false}, // not the exact token
	}

	for _, tc := range cases {
		if got := ParseVerdict(tc.content); got != tc.want {
			t.Errorf("ParseVerdict(%q) = %v, want %v", tc.content, got, tc.want)
		}
	}
}

func TestContradictionPromptIncludesBothSides(t *testing.T) {
	prompt := ContradictionPrompt("My name is Morten", "My name is Alex")
	if !strings.Contains(prompt, "My name is Morten") {
		t.Error("prompt missing stored claim")
	}
	if !strings.Contains(prompt, "My name is Alex") {
		t.Error("prompt missing draft")
	}
	if !strings.Contains(prompt, "CONTRADICTION or CONSISTENT") {
		t.Error("prompt does not pin the output format")
	}
}

func TestSynthesisPromptListsAllFacts(t *testing.T) {
	facts := []string{"My children include Anna", "My children include Ben"}
	prompt := SynthesisPrompt(facts, "Who are my children?")

	for _, f := range facts {
		if !strings.Contains(prompt, f) {
			t.Errorf("prompt missing fact %q", f)
		}
	}
	if !strings.Contains(prompt, "Who are my children?") {
		t.Error("prompt missing question")
	}
}

func TestMockClientOrderedResponses(t *testing.T) {
	mock := &MockClient{
		Responses: []*Response{
			{Content: "first"},
			{Content: "second"},
		},
	}
	ctx := context.Background()

	r1, _ := mock.Complete(ctx, "a")
	r2, _ := mock.Complete(ctx, "b")
	r3, _ := mock.Complete(ctx, "c") // last repeats

	if r1.Content != "first" || r2.Content != "second" || r3.Content != "second" {
		t.Errorf("responses = %q %q %q", r1.Content, r2.Content, r3.Content)
	}
	if len(mock.Calls) != 3 {
		t.Errorf("calls = %d, want 3", len(mock.Calls))
	}
}
