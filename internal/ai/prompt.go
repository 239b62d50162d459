package ai

import (
	"fmt"
	"strings"

	"github.com/plantops/defect-triage/internal/domain"
)

// HistoricalExample is one resolved defect fed to the prompt as context.
type HistoricalExample struct {
	Description string
	Category    string
	Resolution  string
}

const maxHistoricalExamples = 10

// buildAnalysisPrompt assembles the classification prompt from the raw
// report, recent historical examples and retrieved similar cases.
func buildAnalysisPrompt(report string, history []HistoricalExample, similar []domain.SimilarCase) string {
	var historicalContext strings.Builder
	if len(history) > 0 {
		if len(history) > maxHistoricalExamples {
			history = history[:maxHistoricalExamples]
		}
		historicalContext.WriteString("\n\nHistorical Defect Examples:\n")
		for _, example := range history {
			fmt.Fprintf(&historicalContext, "- %s | Category: %s | Solution: %s\n",
				example.Description, example.Category, example.Resolution)
		}
	}

	var similarContext strings.Builder
	if len(similar) > 0 {
		similarContext.WriteString("\n\nMOST SIMILAR PAST DEFECTS (Semantic Search Results):\n")
		for i, c := range similar {
			fmt.Fprintf(&similarContext, `
%d. Ticket: %s (Similarity: %.3f)
Description: %s
Category: %s | Priority: %s
Resolution: %s
`, i+1, c.TicketID, c.Score, c.Description, c.Category, c.Priority, c.Resolution)
		}
	}

	return fmt.Sprintf(`You are an AI assistant for a manufacturing plant's defect management system.
Analyze the following defect report and provide a structured response.

DEFECT REPORT:
%s
%s%s

TASK:
Analyze this defect report and respond with a JSON object containing:

1. **extracted_info**: Key information extracted from the report
- equipment: What equipment/machine is affected
- location: Where in the plant (line number, area, etc.)
- issue: What is the specific problem
- severity_signals: Keywords indicating severity (safety, halt, leak, etc.)

2. **category**: Classify into ONE of these categories:
- Mechanical (physical parts, hydraulics, pneumatics, wear)
- Electrical (wiring, circuits, sensors, power)
- Quality Control (finish, dimensions, defects in product)
- Safety (hazards, risks, PPE issues)
- Process (procedures, workflow, configuration)

3. **priority**: Assign ONE priority level:
- CRITICAL: Immediate safety risk OR complete production halt
- HIGH: Significant quality impact OR multiple units affected
- MEDIUM: Single unit affected, workaround exists
- LOW: Minor/cosmetic issue, no production impact

4. **priority_reasoning**: Brief explanation of why this priority was assigned

5. **recommended_actions**: List of 3-5 specific action steps to resolve
- Should be concrete and actionable
- Include immediate actions and follow-up
- **IMPORTANT**: If similar defects shown above had successful resolutions, prioritize those proven solutions

6. **assigned_team**: Which team should handle this
- Options: Maintenance, Quality Control, Safety, Production, Engineering

7. **estimated_resolution_time**: Realistic time estimate (e.g., "2 hours", "1 day", "3 days")

RESPOND ONLY WITH VALID JSON, NO MARKDOWN, NO EXPLANATIONS OUTSIDE JSON:
`, report, historicalContext.String(), similarContext.String())
}
