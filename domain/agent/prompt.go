package agent

import (
	"fmt"
	"strings"
)

const rejectToken = "no"

var systemPrompt = buildSystemPrompt()

func buildSystemPrompt() string {
	var b strings.Builder
	b.WriteString("You extract real estate advertisements from free text.\n")
	b.WriteString("If the text is not a real estate advertisement, answer with exactly: ")
	b.WriteString(rejectToken)
	b.WriteString("\nOtherwise answer with a JSON array only, one object per advertised property, ")
	b.WriteString("using these keys and leaving out any key the text does not mention:\n")
	for _, f := range fieldMapping {
		fmt.Fprintf(&b, "- %s: %s\n", f.Short, f.Hint)
	}
	b.WriteString("Do not add explanations, comments, or keys that are not listed.")
	return b.String()
}
