package gateway

import (
	"fmt"
	"strings"
)

const opinionSystemPrompt = `You are an independent claim verifier. Assess the factual claim using only the provided material. Respond with a single JSON object:
{"verdict": "<verified|unverified|insufficient_evidence|needs_review>", "confidence": <0.0-1.0>, "coherence": <0.0-1.0>, "reasoning": "<one short paragraph>"}
"confidence" is your certainty in the verdict. "coherence" is how internally consistent the claim and evidence are. Do not include any text outside the JSON object.`

func composeOpinionPrompt(req OpinionRequest) string {
	var b strings.Builder

	if req.Domain != "" {
		fmt.Fprintf(&b, "Domain: %s\n\n", req.Domain)
	}
	fmt.Fprintf(&b, "Claim:\n%s\n", req.ClaimText)

	if len(req.Evidence) > 0 {
		b.WriteString("\nEvidence:\n")
		for i, fragment := range req.Evidence {
			fmt.Fprintf(&b, "%d. %s\n", i+1, fragment)
		}
	}

	if len(req.Similar) > 0 {
		b.WriteString("\nPreviously verified similar claims (cosine similarity):\n")
		for _, sc := range req.Similar {
			fmt.Fprintf(&b, "- %s (%.2f)\n", sc.ClaimID, sc.Cosine)
		}
	}

	return b.String()
}
