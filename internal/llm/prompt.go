package llm

import (
	"fmt"
	"strings"
)

const systemPrompt = "You classify business bank transactions. Pick exactly one category from the list you are given. " +
	`Return ONLY a JSON object with keys: category_id (string, one of the listed ids) and confidence (number 0-1).`

func buildUserPrompt(req CategorizeRequest) string {
	var b strings.Builder
	b.WriteString("Categories:\n")
	for _, c := range req.Categories {
		fmt.Fprintf(&b, "- id=%s name=%s\n", c.ID, c.Name)
	}
	fmt.Fprintf(&b, "\nTransaction:\ndescription: %s\namount: %s\ntype: %s\n",
		req.Description, req.Amount.StringFixed(2), req.Type)
	return b.String()
}
