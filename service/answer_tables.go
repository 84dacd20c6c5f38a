package service

import (
	"fmt"
	"strings"

	"nyayasetu-backend/models"
)

// The tables below are keyword heuristics evaluated top to bottom; the
// first substring match of the lowercased query wins.

type followUpRule struct {
	keyword     string
	suggestions []string
}

var followUpRules = []followUpRule{
	{"vesting", []string{
		"What happens to unvested shares if a founder leaves?",
		"Can vesting be accelerated?",
		"What is single vs double trigger acceleration?",
	}},
	{"incorporat", []string{
		"What is the difference between Private Limited and LLP?",
		"How much does incorporation cost?",
		"What are the compliance requirements after incorporation?",
	}},
	{"founder agreement", []string{
		"What clauses should be in a founder agreement?",
		"How to handle founder disputes?",
		"What is a shotgun clause?",
	}},
	{"equity", []string{
		"How should founders split equity?",
		"What is ESOP and how does it work?",
		"How does dilution work in funding rounds?",
	}},
	{"non-compete", []string{
		"Are non-compete clauses enforceable in India?",
		"What is a non-solicitation clause?",
		"How long can a non-compete last?",
	}},
	{"arbitration", []string{
		"Is an arbitration clause binding on founders?",
		"How is an arbitrator appointed under Indian law?",
		"Can an arbitral award be challenged?",
	}},
}

var defaultFollowUps = []string{
	"What are the key clauses in a founder agreement?",
	"How does vesting work for founders?",
	"What is the process to incorporate a company in India?",
}

func matchFollowUps(query string) []string {
	q := strings.ToLower(query)
	for _, rule := range followUpRules {
		if strings.Contains(q, rule.keyword) {
			out := make([]string, len(rule.suggestions))
			copy(out, rule.suggestions)
			return out
		}
	}
	return nil
}

// FollowUps returns the suggestions attached to a generated answer
func FollowUps(query string) []string {
	if s := matchFollowUps(query); s != nil {
		return s
	}
	out := make([]string, len(defaultFollowUps))
	copy(out, defaultFollowUps)
	return out
}

type staticRule struct {
	keyword     string
	topic       string
	message     string
	suggestions []string
}

const staticNotice = "\n\n_Built-in guidance: the legal knowledge base is not available right now, so this answer does not cite the corpus._"

var staticRules = []staticRule{
	{
		keyword: "vesting",
		topic:   "Founder Equity Vesting",
		message: `**Founder Equity Vesting** usually runs for 4 years with a 1-year cliff:

• **Vesting period:** 48 months
• **Cliff:** 12 months, at which 25% vests
• **After the cliff:** the remaining 75% vests monthly over 36 months

The cliff protects the company if a founder leaves early.`,
		suggestions: []string{"What is reverse vesting?", "How does accelerated vesting work?"},
	},
	{
		keyword: "incorporat",
		topic:   "Company Incorporation",
		message: `**Company Incorporation in India** under the Companies Act, 2013:

1. Obtain a Digital Signature Certificate (DSC)
2. Apply for a Director Identification Number (DIN)
3. Reserve the company name on the MCA portal
4. File SPICe+ with the Memorandum and Articles of Association and director declarations
5. Receive the Certificate of Incorporation

A Private Limited company needs at least 2 directors, 1 shareholder and a registered office in India.`,
		suggestions: []string{"What documents are needed for incorporation?", "What is authorized capital?"},
	},
	{
		keyword: "non-compete",
		topic:   "Non-Compete Clauses",
		message: `**Non-Compete Clauses in India:**

Restrictions during employment are generally enforceable. Post-employment non-competes are largely void under Section 27 of the Indian Contract Act, 1872, which voids agreements in restraint of trade.

**Tip:** non-solicitation and confidentiality clauses are far more likely to be enforced.`,
		suggestions: []string{"Are non-solicitation clauses enforceable?", "What is confidentiality clause?"},
	},
}

// staticAnswer never fails and never performs I/O
func staticAnswer(query string) *models.ChatResponse {
	q := strings.ToLower(query)
	for _, rule := range staticRules {
		if strings.Contains(q, rule.keyword) {
			return &models.ChatResponse{
				Success:     true,
				Message:     rule.message + staticNotice,
				Sources:     []models.Source{},
				Suggestions: append([]string(nil), rule.suggestions...),
			}
		}
	}

	return &models.ChatResponse{
		Success: true,
		Message: fmt.Sprintf(`I understand you're asking about: **%s**

I'm NyayaSetu, a legal assistant for Indian startup law. I can help with:

• **Company Formation:** incorporation, compliance, MCA filings
• **Founder Agreements:** equity split, vesting, roles
• **Legal Clauses:** non-compete, IP assignment, confidentiality
• **Indian Law:** Companies Act, Contract Act and relevant case law`, strings.TrimSpace(query)) + staticNotice,
		Sources:     []models.Source{},
		Suggestions: []string{
			"How do I incorporate a company in India?",
			"What is a typical founder vesting schedule?",
			"What should be in a founder agreement?",
		},
	}
}

// InitialSuggestions are the starter questions shown before a conversation
func InitialSuggestions() []models.SuggestionCategory {
	return []models.SuggestionCategory{
		{Category: "Company Formation", Questions: []string{
			"How do I incorporate a Private Limited company in India?",
			"What is the difference between Private Limited and LLP?",
			"What are the compliance requirements after incorporation?",
		}},
		{Category: "Founder Agreements", Questions: []string{
			"What clauses should be in a founder agreement?",
			"How should founders split equity?",
			"What is a typical vesting schedule?",
		}},
		{Category: "Legal Clauses", Questions: []string{
			"Are non-compete clauses enforceable in India?",
			"What should be in an IP assignment clause?",
			"How does dispute resolution work?",
		}},
		{Category: "Compliance", Questions: []string{
			"What are the annual filing requirements?",
			"When do I need board resolutions?",
			"What is ROC compliance?",
		}},
	}
}

const domainSystemPrompt = `You are NyayaSetu, a legal assistant specialising in Indian law for startups and company formation.

Answer legal questions accurately, cite the specific acts, sections and cases that apply, explain concepts in plain language and give practical guidance for Indian startups. When asked to draft a legal document, produce a complete, professionally formatted draft with [BRACKETED] placeholders for missing details and a closing note that a qualified lawyer should review it.

Use markdown: **bold** headings and numbered clauses. Point out caveats and when professional advice is needed.`

func ragSystemPrompt(contextBlock string) string {
	return domainSystemPrompt + `

Answer only from the context below. Cite the acts, sections and cases it contains, and say so plainly if the context does not cover the question.

Context from legal database:
` + contextBlock
}
