// Package job loads job definitions: the requirements a candidate is screened
// against and the follow-up questions asked afterwards.
package job

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/spigell/driver-screener/internal/requirement"
	"github.com/spigell/driver-screener/internal/screening"
)

// Definition models a job file.
type Definition struct {
	Title             string        `yaml:"title"`
	Company           string        `yaml:"company"`
	Location          string        `yaml:"location"`
	FollowUpQuestions []string      `yaml:"follow_up_questions"`
	Requirements      []Requirement `yaml:"requirements"`
}

type Requirement struct {
	Type     string         `yaml:"type"`
	Priority int            `yaml:"priority"`
	Criteria map[string]any `yaml:"criteria"`
}

// FromYAML decodes and validates a job definition. Unknown keys are rejected.
func FromYAML(data []byte) (*Definition, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)

	var def Definition
	if err := dec.Decode(&def); err != nil {
		return nil, fmt.Errorf("invalid job yaml: %w", err)
	}
	if _, err := def.Job(); err != nil {
		return nil, err
	}
	return &def, nil
}

// FromFile reads a job definition from path.
func FromFile(path string) (*Definition, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// Job converts the definition into the screening model. Criteria are parsed
// and validated per requirement type.
func (d *Definition) Job() (screening.Job, error) {
	if strings.TrimSpace(d.Title) == "" {
		return screening.Job{}, errors.New("job.title is required")
	}
	if len(d.Requirements) == 0 {
		return screening.Job{}, errors.New("job.requirements must not be empty")
	}

	job := screening.Job{
		Title:    strings.TrimSpace(d.Title),
		Company:  strings.TrimSpace(d.Company),
		Location: strings.TrimSpace(d.Location),
	}
	for i, q := range d.FollowUpQuestions {
		q = strings.TrimSpace(q)
		if q == "" {
			return screening.Job{}, fmt.Errorf("follow_up_questions[%d] is empty", i)
		}
		job.FollowUpQuestions = append(job.FollowUpQuestions, q)
	}

	seen := make(map[requirement.Type]bool, len(d.Requirements))
	for i, r := range d.Requirements {
		t, err := requirement.ParseType(r.Type)
		if err != nil {
			return screening.Job{}, fmt.Errorf("requirements[%d]: %w", i, err)
		}
		if seen[t] {
			return screening.Job{}, fmt.Errorf("requirements[%d]: duplicate requirement type %s", i, t)
		}
		seen[t] = true

		raw, err := json.Marshal(r.Criteria)
		if err != nil {
			return screening.Job{}, fmt.Errorf("requirements[%d]: encode criteria: %w", i, err)
		}
		criteria, err := requirement.ParseCriteria(t, raw)
		if err != nil {
			return screening.Job{}, fmt.Errorf("requirements[%d]: %w", i, err)
		}

		priority := r.Priority
		if priority == 0 {
			priority = i + 1
		}
		job.Requirements = append(job.Requirements, screening.JobRequirement{
			Type:     t,
			Priority: priority,
			Criteria: criteria,
		})
	}
	return job, nil
}
