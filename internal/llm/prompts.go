package llm

import (
	"fmt"
	"strings"
)

// ContradictionPrompt asks the model to judge whether a drafted reply
// contradicts a stored claim. The response is parsed by ParseVerdict, so the
// prompt pins the output to a single token.
func ContradictionPrompt(candidate, draft string) string {
	return fmt.Sprintf(`You are a contradiction detector for a memory system.

STORED CLAIM:
%s

DRAFTED REPLY:
%s

Does the drafted reply assert something incompatible with the stored claim?
Only direct factual conflicts count — the reply merely omitting the claim, or
talking about something else entirely, is NOT a contradiction.

Answer with exactly one word: CONTRADICTION or CONSISTENT`, candidate, draft)
}

// ParseVerdict interprets a contradiction-check response. Anything that is
// not an unambiguous CONTRADICTION reads as consistent — the conservative
// default when the oracle is unclear.
func ParseVerdict(content string) bool {
	first := strings.ToUpper(strings.TrimSpace(content))
	if i := strings.IndexAny(first, " \n\t.,:"); i > 0 {
		first = first[:i]
	}
	return first == "CONTRADICTION"
}

// SynthesisPrompt asks the model to answer a question directly from stored
// facts. All relevant facts are included so multi-fact questions ("who are my
// children?") are answered completely, and the prompt forbids padding the
// answer with facts the question did not ask about.
func SynthesisPrompt(facts []string, question string) string {
	var b strings.Builder
	for _, f := range facts {
		b.WriteString("- ")
		b.WriteString(f)
		b.WriteString("\n")
	}

	return fmt.Sprintf(`You are answering on behalf of an assistant whose draft reply conflicted
with stored memory. Answer the user's question using ONLY the facts below.

FACTS:
%s
QUESTION:
%s

Rules:
- State the facts directly and naturally, as a short conversational reply.
- Use every fact that the question asks about; do not stop at the first one.
- Do NOT mention facts unrelated to the question.
- Do NOT mention that a draft was corrected or that you are reading from memory.

Reply with the answer only.`, b.String(), question)
}
