package pipeline

import (
	"fmt"
	"strings"
)

const analysisSystemPrompt = `You are a code compliance auditor. Review the source files you are given for
security vulnerabilities, regulatory compliance problems (GDPR, HIPAA, PCI-DSS,
SOC 2) and code quality issues.

Respond with a single JSON object and nothing else. Each key is a file path
exactly as given. Each value is an array of findings for that file, possibly
empty. Every finding has this shape:

{
  "type": "short issue identifier, e.g. sql_injection",
  "category": "security | compliance | quality | best_practice",
  "severity": "critical | high | medium | low | info",
  "description": "what is wrong",
  "recommendation": "how to fix it",
  "location": {"line": 42}
}

Use line 0 when a finding applies to the whole file.`

// buildUserPrompt embeds every file of the batch.
func buildUserPrompt(b Batch) string {
	var sb strings.Builder
	sb.Grow(b.TotalBytes + len(b.Files)*64)

	fmt.Fprintf(&sb, "Analyze the following %d file(s).\n", len(b.Files))
	for _, f := range b.Files {
		sb.WriteString("\n=== FILE: ")
		sb.WriteString(f.Path)
		sb.WriteString(" ===\n")
		sb.WriteString(f.Content)
		if !strings.HasSuffix(f.Content, "\n") {
			sb.WriteByte('\n')
		}
		sb.WriteString("=== END FILE ===\n")
	}
	return sb.String()
}
