package answer

import (
	"fmt"
	"strings"

	"github.com/quillback/quillback/internal/retrieval"
)

const defaultContextBudget = 3000

// instruction pins the model to the supplied entries. Grounded generation:
// no outside knowledge, explicit uncertainty over guessing.
const instruction = `You are answering a question about the user's personal journal.
Answer using ONLY the journal entries below. Do not use any outside knowledge.
If the entries do not contain enough information to answer, say so plainly instead of guessing.`

// buildPrompt assembles the grounded QA prompt. Entries are added in
// descending similarity order until the token budget is spent; lower-scoring
// entries that don't fit are dropped rather than truncating everything
// uniformly.
func buildPrompt(query string, results []retrieval.Result, budget int) string {
	if budget <= 0 {
		budget = defaultContextBudget
	}

	var sb strings.Builder
	sb.WriteString(instruction)
	sb.WriteString("\n\nJournal entries:\n\n")

	remaining := budget
	for _, r := range results {
		entry := formatEntry(r)
		tokens := estimateTokens(entry)
		if tokens > remaining {
			continue
		}
		sb.WriteString(entry)
		remaining -= tokens
	}

	sb.WriteString("Question: ")
	sb.WriteString(query)
	sb.WriteString("\n\nAnswer:")
	return sb.String()
}

func formatEntry(r retrieval.Result) string {
	return fmt.Sprintf("[%s]\n%s\n\n", r.Date.Format("January 2, 2006"), r.Content)
}

// estimateTokens provides a rough token count using the 4 chars per token heuristic.
func estimateTokens(text string) int {
	return (len(text) + 3) / 4
}
