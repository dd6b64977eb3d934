package parser

import (
	"encoding/json"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/spigell/driver-screener/internal/requirement"
)

type recordingObserver struct {
	calls [][2]string
}

func (r *recordingObserver) ObserveParse(requirementType, method string) {
	r.calls = append(r.calls, [2]string{requirementType, method})
}

func ptr[T any](v T) *T {
	return &v
}

func TestParseStructuredWithTrailingComma(t *testing.T) {
	t.Parallel()

	p := New(zap.NewNop())
	res, err := p.Parse(requirement.TypeCDLClass, `Got it! {"cdl_class":"A","confirmed":true,}`)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.False(t, res.NeedsClarification)
	assert.Equal(t, MethodPayload, res.Method)
	assert.Equal(t, requirement.CDLClassValue{CDLClass: requirement.CDLClassA, Confirmed: true}, res.Value)
	assert.Equal(t, "Got it!", res.Message)
}

func TestParseTextFallback(t *testing.T) {
	t.Parallel()

	p := New(zap.NewNop())
	res, err := p.Parse(requirement.TypeYearsExperience, "I have 5 years of experience")
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, MethodText, res.Method)
	assert.Equal(t, requirement.YearsExperienceValue{YearsExperience: 5, MeetsRequirement: true}, res.Value)
	assert.Equal(t, "I have 5 years of experience", res.Message)
}

func TestParseExplicitClarificationSkipsFallback(t *testing.T) {
	t.Parallel()

	reply := "```json\n" + `{"cdl_class": "A", "confirmed": false, "needs_clarification": true, "assessment": "PENDING", "message": "Is that a Class A or a Class B license?"}` + "\n```"

	p := New(zap.NewNop())
	res, err := p.Parse(requirement.TypeCDLClass, reply)
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.NeedsClarification)
	assert.Nil(t, res.Value)
	assert.Equal(t, requirement.StatusPending, res.Assessment)
	assert.Equal(t, "Is that a Class A or a Class B license?", res.Message)
}

func TestParseSchemaFailureFallsThroughToText(t *testing.T) {
	t.Parallel()

	p := New(zap.NewNop())
	res, err := p.Parse(requirement.TypeAgeRequirement, `You said you are 30 years old. {"age": "thirty", "meets_requirement": true}`)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, MethodText, res.Method)
	assert.Equal(t, requirement.AgeRequirementValue{Age: 30, MeetsRequirement: true}, res.Value)
	assert.Equal(t, "You said you are 30 years old.", res.Message)
}

func TestParseFallbackKeepsEnvelope(t *testing.T) {
	t.Parallel()

	p := New(zap.NewNop())
	res, err := p.Parse(requirement.TypeYearsExperience, `{"assessment": "MET", "confidence": 0.9, "message": "Great, 7 years!"}`)
	require.NoError(t, err)

	assert.True(t, res.Success)
	assert.Equal(t, MethodText, res.Method)
	assert.Equal(t, requirement.StatusMet, res.Assessment)
	require.NotNil(t, res.Confidence)
	assert.InDelta(t, 0.9, *res.Confidence, 1e-9)
	assert.Equal(t, "Great, 7 years!", res.Message)
	assert.Equal(t, requirement.YearsExperienceValue{YearsExperience: 7, MeetsRequirement: true}, res.Value)
}

func TestParseNothingFound(t *testing.T) {
	t.Parallel()

	p := New(zap.NewNop())
	res, err := p.Parse(requirement.TypeCDLClass, "Hmm, could you clarify?")
	require.NoError(t, err)

	assert.False(t, res.Success)
	assert.True(t, res.NeedsClarification)
	assert.Equal(t, MethodNone, res.Method)
	assert.Nil(t, res.Value)
	assert.Equal(t, "Hmm, could you clarify?", res.Message)
}

func TestParseUnsupportedType(t *testing.T) {
	t.Parallel()

	_, err := New(nil).Parse(requirement.Type("FORKLIFT"), `{"forklift": true}`)
	require.Error(t, err)
	assert.ErrorIs(t, err, requirement.ErrUnsupportedType)
	assert.True(t, requirement.IsConfigError(err))
}

func TestParseIsIdempotent(t *testing.T) {
	t.Parallel()

	inputs := []struct {
		typ   requirement.Type
		reply string
	}{
		{requirement.TypeCDLClass, `{"cdl_class":"B","confirmed":true,"confidence":"0.7"}`},
		{requirement.TypeDrivingRecord, "2 tickets and 1 accident"},
		{requirement.TypeGeographicRestriction, "Thanks! ```json\n{\"location\": \"Austin\", \"state\": \"TX\", \"meets_requirement\": true}\n```"},
		{requirement.TypeDrugTest, "no idea"},
	}

	p := New(zap.NewNop())
	for _, in := range inputs {
		first, err := p.Parse(in.typ, in.reply)
		require.NoError(t, err)
		second, err := p.Parse(in.typ, in.reply)
		require.NoError(t, err)
		if diff := cmp.Diff(first, second); diff != "" {
			t.Errorf("reply %q parsed differently (-first +second):\n%s", in.reply, diff)
		}
	}
}

func TestParseRoundTrip(t *testing.T) {
	t.Parallel()

	values := []requirement.Value{
		requirement.CDLClassValue{CDLClass: requirement.CDLClassC, Confirmed: true},
		requirement.YearsExperienceValue{YearsExperience: 3, MeetsRequirement: true, ExceedsRequirement: ptr(false)},
		requirement.DrivingRecordValue{Violations: 1, Accidents: 0},
		requirement.EndorsementsValue{Hazmat: ptr(true), DoublesTriples: ptr(false), EndorsementsConfirmed: true},
		requirement.AgeRequirementValue{Age: 44, MeetsRequirement: true},
		requirement.PhysicalExamValue{HasCurrentDOTPhysical: true, Confirmed: true},
		requirement.DrugTestValue{AgreesToPreEmployment: true, AgreesToRandomTesting: ptr(true), Confirmed: true},
		requirement.BackgroundCheckValue{AgreesToBackgroundCheck: true, Confirmed: true},
		requirement.GeographicRestrictionValue{Location: "Reno", State: "NV", MeetsRequirement: true},
	}
	require.Len(t, values, len(requirement.Types()))

	p := New(zap.NewNop())
	for _, v := range values {
		payload, err := json.Marshal(v)
		require.NoError(t, err)

		reply := "Thank you.\n```json\n" + string(payload) + "\n```"
		res, err := p.Parse(v.Type(), reply)
		require.NoError(t, err)

		assert.True(t, res.Success, "type %s", v.Type())
		assert.Equal(t, MethodPayload, res.Method)
		if diff := cmp.Diff(v, res.Value); diff != "" {
			t.Errorf("%s value mismatch (-want +got):\n%s", v.Type(), diff)
		}
		assert.Equal(t, "Thank you.", res.Message)
	}
}

func TestParseObserver(t *testing.T) {
	t.Parallel()

	obs := &recordingObserver{}
	p := New(zap.NewNop(), WithObserver(obs), WithMaxLogLength(10))

	_, err := p.Parse(requirement.TypePhysicalExam, `{"has_current_dot_physical": true, "confirmed": true}`)
	require.NoError(t, err)
	_, err = p.Parse(requirement.TypePhysicalExam, "hmm")
	require.NoError(t, err)

	assert.Equal(t, [][2]string{
		{"PHYSICAL_EXAM", "payload"},
		{"PHYSICAL_EXAM", "none"},
	}, obs.calls)
	assert.Equal(t, 10, p.maxLogLen)
}
