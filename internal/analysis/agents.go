package analysis

import (
	"fmt"
	"strings"

	"github.com/raphaelgruber/diligence/internal/models"
)

// Agent is one specialist pass over the documents.
type Agent struct {
	Name  string // stage identifier, e.g. "financial"
	Role  string
	Focus []string
}

var agentCatalog = map[string]Agent{
	"team": {
		Name: "team",
		Role: "a venture capital analyst who evaluates founding teams",
		Focus: []string{
			"founder backgrounds and relevant domain experience",
			"team completeness and key hiring gaps",
			"advisors, board and prior exits",
		},
	},
	"market": {
		Name: "market",
		Role: "a market research analyst for early stage investments",
		Focus: []string{
			"TAM, SAM and SOM estimates with their assumptions",
			"growth rate and timing of the market",
			"competitors and differentiation",
		},
	},
	"financial": {
		Name: "financial",
		Role: "a financial analyst reviewing startup financials",
		Focus: []string{
			"revenue, ARR and growth",
			"unit economics such as CAC, LTV and gross margin",
			"burn rate, runway and funding needs",
			"plausibility of projections",
		},
	},
	"product": {
		Name: "product",
		Role: "a product and technology due diligence expert",
		Focus: []string{
			"problem and solution fit",
			"technology defensibility and IP",
			"traction signals and customer feedback",
		},
	},
	"risk": {
		Name: "risk",
		Role: "a risk assessment specialist for venture investments",
		Focus: []string{
			"market, execution and regulatory risks",
			"dependencies on key people, customers or suppliers",
			"red flags or inconsistencies across documents",
		},
	},
	"quick_assessment": {
		Name: "quick_assessment",
		Role: "a senior venture partner doing a first screening",
		Focus: []string{
			"what the company does and for whom",
			"the strongest reasons to invest",
			"the biggest concerns",
			"whether a deeper review is warranted",
		},
	},
}

var kindAgents = map[models.AnalysisKind][]string{
	models.KindFullDueDiligence: {"team", "market", "financial", "product", "risk"},
	models.KindQuickAssessment:  {"quick_assessment"},
	models.KindFinancialReview:  {"financial"},
	models.KindMarketAnalysis:   {"market"},
	models.KindTeamEvaluation:   {"team"},
}

// AgentsFor returns the agents run for kind, in execution order.
func AgentsFor(kind models.AnalysisKind) ([]Agent, error) {
	names, ok := kindAgents[kind]
	if !ok {
		return nil, fmt.Errorf("unknown analysis kind: %q", kind)
	}
	agents := make([]Agent, 0, len(names))
	for _, n := range names {
		agents = append(agents, agentCatalog[n])
	}
	return agents, nil
}

func (a Agent) systemPrompt(startup string) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "You are %s. Analyze the documents provided for %s.\n\n", a.Role, startupLabel(startup))
	sb.WriteString("Focus on:\n")
	for _, f := range a.Focus {
		sb.WriteString("- ")
		sb.WriteString(f)
		sb.WriteByte('\n')
	}
	sb.WriteString(`
Guidelines:
- Base every statement on the documents; say "Insufficient data" where they are silent
- Quote concrete figures where the documents give them
- Answer in Markdown with short sections and bullet points
- Do not include a top-level heading`)
	return sb.String()
}

func agentUserPrompt(documents string) string {
	return fmt.Sprintf(`Documents:
%s

Findings:`, documents)
}

const synthesisSystemPrompt = `You are the lead partner of a venture capital firm. Combine the specialist findings into one investment report.

Structure the report in Markdown:
# Investment Opportunity Analysis
## Executive Summary
## Investment Recommendation (state a decision and a confidence score)
## Key Strengths
## Risk Factors
## Next Steps

Guidelines:
- Use ONLY the findings provided
- Keep sections that the findings do not cover, noting "Insufficient data"
- Be concise and specific`

func synthesisUserPrompt(startup string, kind models.AnalysisKind, findings []finding) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Startup: %s\nAnalysis type: %s\n\n", startupLabel(startup), kind)
	for _, f := range findings {
		fmt.Fprintf(&sb, "### %s findings\n%s\n\n", f.agent, f.text)
	}
	sb.WriteString("Report:")
	return sb.String()
}

func startupLabel(name string) string {
	if name = strings.TrimSpace(name); name == "" {
		return "the startup"
	}
	return name
}
