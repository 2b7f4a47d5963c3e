// Package llm holds the prompt catalog shared by the completion backends
// and the tier router that splits prompt roles across them.
package llm

import (
	"fmt"
	"strings"

	"github.com/yojanadesk/scheme-rag/internal/core/domain"
	"github.com/yojanadesk/scheme-rag/internal/core/ports"
)

// Prompt is a system instruction plus a user template with {name}
// placeholders.
type Prompt struct {
	System string
	User   string
}

var intentLabels = func() string {
	labels := make([]string, len(domain.IntentLabels))
	for i, l := range domain.IntentLabels {
		labels[i] = string(l)
	}
	return strings.Join(labels, ", ")
}()

var catalog = map[ports.PromptRole]Prompt{
	ports.PromptIntent: {
		System: "You are an intent classifier for government scheme queries. " +
			"Classify the user query into ONE of the following labels only: " + intentLabels + "\n" +
			"Return ONLY the label, nothing else.",
		User: "{query}",
	},
	ports.PromptRelevance: {
		System: "You are a BALANCED relevance judge for government scheme retrieval.\n" +
			"Given a user query and retrieved schemes with their content previews and similarity scores, " +
			"judge if the schemes can answer the user's question.\n\n" +
			"Return YES (schemes are relevant) if:\n" +
			"- Schemes match the query topic\n" +
			"- Content preview shows information related to the question\n" +
			"- At least one scheme has good similarity score (>0.5)\n" +
			"- Content is on-topic, even if not perfect\n\n" +
			"Return NO (needs better retrieval) if:\n" +
			"- Schemes are completely off-topic\n" +
			"- All similarity scores are very low (<0.4)\n" +
			"- No useful information present in any document\n\n" +
			"Trust the retrieval system: when scores are good (>0.6), default to YES.\n" +
			"Respond ONLY with YES or NO.",
		User: "Query: {query}\n\nRetrieved Schemes:\n{schemes}",
	},
	ports.PromptReflection: {
		System: "You are a query refinement agent. The original query did not retrieve sufficiently " +
			"relevant government schemes. Rewrite the query to be more precise, specific, and " +
			"retrieval-friendly.\n\n" +
			"Techniques:\n" +
			"- Add specific keywords (eligibility, benefits, procedure, subsidy, etc.)\n" +
			"- Expand abbreviations (PMEGP -> Prime Minister Employment Generation Programme)\n" +
			"- Add context (manufacturing, women, youth, startup, MSME, etc.)\n\n" +
			"Return ONLY the rewritten query, nothing else.",
		User: "Original Query: {query}",
	},
	ports.PromptAnswerQuality: {
		System: "You are a FAIR answer quality judge for government scheme queries.\n" +
			"Judge if the answer addresses the user's query adequately.\n\n" +
			"Return YES (answer is INADEQUATE and needs correction) if:\n" +
			"- Answer is completely off-topic or wrong\n" +
			"- Doesn't address the question at all\n" +
			"- Missing critical information that was clearly requested\n\n" +
			"Return NO (answer is ADEQUATE) if:\n" +
			"- Directly answers the question asked\n" +
			"- Provides useful, relevant information\n" +
			"- May not be perfect but is helpful\n\n" +
			"Don't demand perfection; only trigger correction for truly inadequate answers.\n" +
			"Respond ONLY with YES or NO.",
		User: "Query: {query}\n\nAnswer: {answer}",
	},
	ports.PromptCorrective: {
		System: "The answer to the user query was inadequate or incomplete. " +
			"Rewrite the query to retrieve better documents that can answer the question more directly.\n\n" +
			"Strategies:\n" +
			"- Add missing keywords from the original question\n" +
			"- Focus on the exact aspect being asked (eligibility, benefits, procedure, etc.)\n" +
			"- Include synonyms or related terms\n\n" +
			"Return ONLY the improved query.",
		User: "Original Query: {query}",
	},
	ports.PromptAnswer: {
		System: "You are a government schemes expert for Indian citizens.\n" +
			"Answer the user's question DIRECTLY and SPECIFICALLY using ONLY the provided schemes.\n\n" +
			"Guidelines:\n" +
			"- Start with a direct answer to the exact question asked\n" +
			"- Use concrete details (amounts, percentages, eligibility criteria)\n" +
			"- Quote specific schemes by name\n" +
			"- For yes/no questions, start with 'Yes' or 'No' clearly\n" +
			"- Include relevant URLs for more information\n" +
			"- If information is missing from documents, state it clearly\n" +
			"- Do NOT hallucinate or make assumptions\n\n" +
			"Format:\n" +
			"- Use bullet points for lists\n" +
			"- Bold scheme names using **Scheme Name**\n" +
			"- Keep answers concise but complete",
		User: "Query: {query}\n\nRelevant Government Schemes:\n{schemes}",
	},
	ports.PromptEntityExtract: {
		System: "Extract government scheme names from the query.\n\n" +
			"Instructions:\n" +
			"1. Identify any government scheme names mentioned\n" +
			"2. Return ONLY the exact scheme names as they appear in the database\n" +
			"3. If no schemes found, return \"NONE\"\n" +
			"4. Separate multiple schemes with commas",
		User: "Query: {query}\n\nAvailable schemes include: {scheme_list}\n\nScheme names:",
	},
}

// Render resolves a prompt role into its system instruction and the user
// message with all {name} placeholders substituted.
func Render(role ports.PromptRole, vars map[string]string) (system, user string, err error) {
	prompt, ok := catalog[role]
	if !ok {
		return "", "", fmt.Errorf("unknown prompt role: %s", role)
	}
	user = prompt.User
	for name, value := range vars {
		user = strings.ReplaceAll(user, "{"+name+"}", value)
	}
	return prompt.System, user, nil
}
