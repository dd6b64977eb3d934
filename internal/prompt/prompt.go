// Package prompt builds the system instructions sent to the text generator
// for every turn of a screening conversation.
package prompt

import (
	"embed"
	"fmt"
	"strconv"
	"strings"

	"github.com/spigell/driver-screener/internal/requirement"
)

//go:embed templates/*.md
var templateFS embed.FS

const (
	templateSystem        = "system"
	templateGreeting      = "greeting"
	templateQuestion      = "question"
	templateEvaluation    = "evaluation"
	templateClarification = "clarification"
	templateFollowUp      = "followup"
	templateClosing       = "closing"

	defaultCompany   = "Happy Hauler Trucking Co"
	defaultCandidate = "the candidate"
)

// Job is the job context shown to the model.
type Job struct {
	Title    string
	Company  string
	Location string
}

// Requirement is one requirement as the model sees it.
type Requirement struct {
	Type     requirement.Type
	Criteria requirement.Criteria
}

// Progress summarizes how far the screening got.
type Progress struct {
	Resolved int
	Total    int
}

// Outcome is one line of the closing summary.
type Outcome struct {
	Type   requirement.Type
	Status requirement.Status
}

type Builder struct {
	templates map[string]string
}

// New loads the embedded templates.
func New() (*Builder, error) {
	names := []string{
		templateSystem, templateGreeting, templateQuestion, templateEvaluation,
		templateClarification, templateFollowUp, templateClosing,
	}

	b := &Builder{templates: make(map[string]string, len(names))}
	for _, name := range names {
		data, err := templateFS.ReadFile("templates/" + name + ".md")
		if err != nil {
			return nil, fmt.Errorf("read prompt template %s: %w", name, err)
		}
		b.templates[name] = strings.TrimSpace(string(data))
	}
	return b, nil
}

// Description returns the human readable name of t.
func (b *Builder) Description(t requirement.Type) string {
	return t.Description()
}

// ResponseFormat describes the JSON object expected from an evaluation turn:
// the fields of t plus the envelope every reply carries.
func (b *Builder) ResponseFormat(t requirement.Type) (string, error) {
	fields, ok := responseFields[t]
	if !ok {
		return "", t.Check()
	}

	lines := make([]string, 0, len(fields)+len(envelopeFields))
	lines = append(lines, fields...)
	lines = append(lines, envelopeFields...)

	var sb strings.Builder
	sb.WriteString("{\n")
	for i, line := range lines {
		sb.WriteString("  ")
		sb.WriteString(line)
		if i < len(lines)-1 {
			sb.WriteString(",")
		}
		sb.WriteString("\n")
	}
	sb.WriteString("}")
	return sb.String(), nil
}

func (b *Builder) System(job Job) string {
	location := ""
	if l := strings.TrimSpace(job.Location); l != "" {
		location = " located in " + l
	}
	company := strings.TrimSpace(job.Company)
	if company == "" {
		company = defaultCompany
	}

	return render(b.templates[templateSystem], map[string]string{
		"COMPANY":      company,
		"JOB_TITLE":    job.Title,
		"JOB_LOCATION": location,
	})
}

func (b *Builder) Greeting(job Job, candidate string) string {
	return render(b.templates[templateGreeting], map[string]string{
		"SYSTEM":    b.System(job),
		"CANDIDATE": candidateName(candidate),
		"JOB_TITLE": job.Title,
	})
}

func (b *Builder) Question(job Job, req Requirement, progress Progress) (string, error) {
	values, err := b.requirementValues(job, req)
	if err != nil {
		return "", err
	}
	values["PROGRESS"] = describeProgress(progress)
	return render(b.templates[templateQuestion], values), nil
}

func (b *Builder) Evaluation(job Job, req Requirement) (string, error) {
	values, err := b.requirementValues(job, req)
	if err != nil {
		return "", err
	}
	format, err := b.ResponseFormat(req.Type)
	if err != nil {
		return "", err
	}
	criteria, err := requirement.MarshalCriteria(req.Criteria)
	if err != nil {
		return "", fmt.Errorf("marshal %s criteria: %w", req.Type, err)
	}
	values["RESPONSE_FORMAT"] = format
	values["CRITERIA"] = string(criteria)
	return render(b.templates[templateEvaluation], values), nil
}

// Clarification asks for a clearer answer. attempt counts from 1.
func (b *Builder) Clarification(job Job, req Requirement, attempt, maxAttempts int) (string, error) {
	values, err := b.requirementValues(job, req)
	if err != nil {
		return "", err
	}
	values["ATTEMPT"] = strconv.Itoa(attempt)
	values["MAX_ATTEMPTS"] = strconv.Itoa(maxAttempts)
	return render(b.templates[templateClarification], values), nil
}

// FollowUp asks one of the job's follow-up questions.
func (b *Builder) FollowUp(job Job, question string, progress Progress) string {
	return render(b.templates[templateFollowUp], map[string]string{
		"SYSTEM":   b.System(job),
		"QUESTION": strings.TrimSpace(question),
		"PROGRESS": fmt.Sprintf("Follow-up question %d of %d.", progress.Resolved+1, progress.Total),
	})
}

// Closing ends the conversation. decision is approved, denied or withdrawn.
func (b *Builder) Closing(job Job, candidate, decision string, outcomes []Outcome) string {
	summary := make([]string, 0, len(outcomes))
	for _, o := range outcomes {
		summary = append(summary, fmt.Sprintf("- %s: %s", o.Type.Description(), o.Status))
	}
	if len(summary) == 0 {
		summary = append(summary, "- none")
	}

	return render(b.templates[templateClosing], map[string]string{
		"SYSTEM":              b.System(job),
		"OUTCOME":             decision,
		"REQUIREMENT_SUMMARY": strings.Join(summary, "\n"),
		"CANDIDATE":           candidateName(candidate),
	})
}

func (b *Builder) requirementValues(job Job, req Requirement) (map[string]string, error) {
	if err := req.Type.Check(); err != nil {
		return nil, err
	}
	status := "preferred"
	if req.Criteria != nil && req.Criteria.IsRequired() {
		status = "required"
	}
	return map[string]string{
		"SYSTEM":                  b.System(job),
		"REQUIREMENT_DESCRIPTION": req.Type.Description(),
		"REQUIREMENT_TYPE":        string(req.Type),
		"REQUIREMENT_STATUS":      status,
	}, nil
}

func describeProgress(p Progress) string {
	if p.Total <= 0 {
		return ""
	}
	return fmt.Sprintf("Progress: %d of %d requirements answered.", p.Resolved, p.Total)
}

func candidateName(name string) string {
	if n := strings.TrimSpace(name); n != "" {
		return n
	}
	return defaultCandidate
}

// render replaces every {{KEY}} with its value. Unknown placeholders are
// left untouched.
func render(tmpl string, values map[string]string) string {
	pairs := make([]string, 0, len(values)*2)
	for k, v := range values {
		pairs = append(pairs, "{{"+k+"}}", v)
	}
	return strings.TrimSpace(strings.NewReplacer(pairs...).Replace(tmpl))
}
