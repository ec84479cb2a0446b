package llm

import "strings"

// System instructions for the two call kinds. The plan call pins the
// model to a strict JSON shape; the draft call asks for markdown.
const (
	planSystemPrompt = `You are an expert career advisor. Compare the candidate's CV against the job posting and respond with JSON only, matching exactly this shape:
{"summary": string, "strengths": [string], "gaps": [string], "next_steps": [{"task": string, "rationale": string, "priority": "high"|"medium"|"low", "estimated_minutes": int}]}
Do not wrap the JSON in markdown fences or add commentary.`

	draftSystemPrompt = `You are an expert CV writer. Using the tailoring plan and the constraints provided, write the tailored CV as clean markdown. Use headings, bullet lists and short paragraphs. Do not invent experience the candidate does not have.`
)

// DefaultConstraintsTemplate is the draft constraints template applied
// when the job payload carries no override. Placeholders are substituted
// with payload fields; missing values default to "Not specified" except
// {{cv_sections}}, which falls back to the raw target text.
const DefaultConstraintsTemplate = `Target role: {{title}}
Company: {{company}}
Key competencies to emphasise: {{competencies}}
Current CV content:
{{cv_sections}}`

// ConstraintValues carries the payload fields available for template
// substitution when building the draft constraints string.
type ConstraintValues struct {
	Title        string
	Company      string
	Competencies []string
	CVSections   string
	TargetText   string
}

const notSpecified = "Not specified"

// BuildConstraints performs template substitution over {{title}},
// {{company}}, {{competencies}} and {{cv_sections}}.
func BuildConstraints(template string, v ConstraintValues) string {
	if template == "" {
		template = DefaultConstraintsTemplate
	}

	competencies := notSpecified
	if len(v.Competencies) > 0 {
		competencies = strings.Join(v.Competencies, ", ")
	}

	sections := v.CVSections
	if sections == "" {
		// The content placeholder falls back to the raw target text so
		// the draft call always sees the document being tailored.
		sections = v.TargetText
	}

	r := strings.NewReplacer(
		"{{title}}", orDefault(v.Title),
		"{{company}}", orDefault(v.Company),
		"{{competencies}}", competencies,
		"{{cv_sections}}", sections,
	)
	return r.Replace(template)
}

func orDefault(s string) string {
	if s == "" {
		return notSpecified
	}
	return s
}
