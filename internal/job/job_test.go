package job

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/spigell/driver-screener/internal/requirement"
)

const sample = `
title: " Local Driver "
company: Acme Freight
follow_up_questions:
  - When can you start?
requirements:
  - type: cdl_class
    criteria:
      required: true
      cdl_class: B
  - type: ENDORSEMENTS
    priority: 5
    criteria:
      hazmat: preferred
      tanker: true
`

func TestFromYAML(t *testing.T) {
	t.Parallel()

	def, err := FromYAML([]byte(sample))
	require.NoError(t, err)

	job, err := def.Job()
	require.NoError(t, err)
	assert.Equal(t, "Local Driver", job.Title)
	assert.Equal(t, []string{"When can you start?"}, job.FollowUpQuestions)
	require.Len(t, job.Requirements, 2)

	cdl := job.Requirements[0]
	assert.Equal(t, requirement.TypeCDLClass, cdl.Type)
	assert.Equal(t, 1, cdl.Priority)
	assert.True(t, cdl.Criteria.IsRequired())

	endorsements, ok := job.Requirements[1].Criteria.(requirement.EndorsementsCriteria)
	require.True(t, ok)
	assert.Equal(t, 5, job.Requirements[1].Priority)
	assert.Equal(t, requirement.EndorsementPreferred, endorsements.Hazmat)
	assert.Equal(t, requirement.EndorsementRequired, endorsements.Tanker)
	assert.Equal(t, requirement.EndorsementUnset, endorsements.DoublesTriples)
}

func TestFromYAMLErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		yaml    string
		wantErr error
	}{
		{name: "unknown key", yaml: "title: x\nsalary: 10\nrequirements: [{type: CDL_CLASS, criteria: {required: true, cdl_class: A}}]"},
		{name: "missing title", yaml: "requirements: [{type: CDL_CLASS, criteria: {required: true, cdl_class: A}}]"},
		{name: "no requirements", yaml: "title: x"},
		{name: "unknown type", yaml: "title: x\nrequirements: [{type: FORKLIFT, criteria: {}}]", wantErr: requirement.ErrUnsupportedType},
		{name: "bad criteria", yaml: "title: x\nrequirements: [{type: AGE_REQUIREMENT, criteria: {required: true, min_age: 16}}]", wantErr: requirement.ErrInvalidCriteria},
		{name: "missing criteria", yaml: "title: x\nrequirements: [{type: DRUG_TEST}]", wantErr: requirement.ErrInvalidCriteria},
		{name: "duplicate type", yaml: "title: x\nrequirements: [{type: CDL_CLASS, criteria: {required: true, cdl_class: A}}, {type: CDL_CLASS, criteria: {required: true, cdl_class: B}}]"},
		{name: "empty follow-up", yaml: "title: x\nfollow_up_questions: ['  ']\nrequirements: [{type: CDL_CLASS, criteria: {required: true, cdl_class: A}}]"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := FromYAML([]byte(tt.yaml))
			require.Error(t, err)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			}
		})
	}
}

func TestSampleJobFile(t *testing.T) {
	t.Parallel()

	_, file, _, ok := runtime.Caller(0)
	require.True(t, ok)
	path := filepath.Join(filepath.Dir(file), "..", "..", "jobs", "regional-driver.yaml")

	def, err := FromFile(path)
	require.NoError(t, err)
	job, err := def.Job()
	require.NoError(t, err)
	assert.Len(t, job.Requirements, len(requirement.Types()))
}

func TestFromFileMissing(t *testing.T) {
	t.Parallel()

	_, err := FromFile(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}
