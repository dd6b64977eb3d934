package requirement

import (
	"embed"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"github.com/xeipuuv/gojsonschema"
)

// Value is a candidate answer extracted from one conversational turn.
type Value interface {
	Type() Type
	// NeedsClarification reports whether the model asked for another turn.
	NeedsClarification() bool
}

// Hint carries the optional clarification flag every value may hold.
type Hint struct {
	Clarify bool `json:"needs_clarification,omitempty"`
}

func (h Hint) NeedsClarification() bool {
	return h.Clarify
}

type CDLClassValue struct {
	CDLClass  CDLClass `json:"cdl_class"`
	Confirmed bool     `json:"confirmed"`
	Hint
}

type YearsExperienceValue struct {
	YearsExperience    int   `json:"years_experience"`
	MeetsRequirement   bool  `json:"meets_requirement"`
	ExceedsRequirement *bool `json:"exceeds_requirement,omitempty"`
	Hint
}

type DrivingRecordValue struct {
	Violations  int  `json:"violations"`
	Accidents   int  `json:"accidents"`
	CleanRecord bool `json:"clean_record"`
	Hint
}

type EndorsementsValue struct {
	Hazmat                *bool `json:"hazmat,omitempty"`
	Tanker                *bool `json:"tanker,omitempty"`
	DoublesTriples        *bool `json:"doubles_triples,omitempty"`
	EndorsementsConfirmed bool  `json:"endorsements_confirmed"`
	Hint
}

type AgeRequirementValue struct {
	Age              int  `json:"age"`
	MeetsRequirement bool `json:"meets_requirement"`
	Hint
}

type PhysicalExamValue struct {
	HasCurrentDOTPhysical bool `json:"has_current_dot_physical"`
	Confirmed             bool `json:"confirmed"`
	Hint
}

type DrugTestValue struct {
	AgreesToPreEmployment bool  `json:"agrees_to_pre_employment"`
	AgreesToRandomTesting *bool `json:"agrees_to_random_testing,omitempty"`
	Confirmed             bool  `json:"confirmed"`
	Hint
}

type BackgroundCheckValue struct {
	AgreesToBackgroundCheck bool `json:"agrees_to_background_check"`
	Confirmed               bool `json:"confirmed"`
	Hint
}

type GeographicRestrictionValue struct {
	Location         string `json:"location"`
	State            string `json:"state,omitempty"`
	MeetsRequirement bool   `json:"meets_requirement"`
	Hint
}

func (CDLClassValue) Type() Type              { return TypeCDLClass }
func (YearsExperienceValue) Type() Type       { return TypeYearsExperience }
func (DrivingRecordValue) Type() Type         { return TypeDrivingRecord }
func (EndorsementsValue) Type() Type          { return TypeEndorsements }
func (AgeRequirementValue) Type() Type        { return TypeAgeRequirement }
func (PhysicalExamValue) Type() Type          { return TypePhysicalExam }
func (DrugTestValue) Type() Type              { return TypeDrugTest }
func (BackgroundCheckValue) Type() Type       { return TypeBackgroundCheck }
func (GeographicRestrictionValue) Type() Type { return TypeGeographicRestriction }

//go:embed schemas/*.json
var schemaFS embed.FS

var (
	schemasOnce sync.Once
	schemas     map[Type]*gojsonschema.Schema
	schemasErr  error
)

func schemaFor(t Type) (*gojsonschema.Schema, error) {
	schemasOnce.Do(func() {
		schemas = make(map[Type]*gojsonschema.Schema, len(allTypes))
		for _, typ := range allTypes {
			name := "schemas/" + strings.ToLower(string(typ)) + ".json"
			data, err := schemaFS.ReadFile(name)
			if err != nil {
				schemasErr = fmt.Errorf("read schema %s: %w", name, err)
				return
			}
			s, err := gojsonschema.NewSchema(gojsonschema.NewBytesLoader(data))
			if err != nil {
				schemasErr = fmt.Errorf("compile schema %s: %w", name, err)
				return
			}
			schemas[typ] = s
		}
	})
	if schemasErr != nil {
		return nil, schemasErr
	}
	s, ok := schemas[t]
	if !ok {
		return nil, unsupportedType(t)
	}
	return s, nil
}

// DecodeValue validates obj against the schema of t and decodes it into the
// matching Value variant. A schema mismatch returns *ValidationError; an
// unknown type returns an UnsupportedType ConfigError.
func DecodeValue(t Type, obj map[string]any) (Value, error) {
	schema, err := schemaFor(t)
	if err != nil {
		return nil, err
	}
	if obj == nil {
		return nil, &ValidationError{Type: t, Errors: []FieldError{{Field: "(root)", Message: "value is null"}}}
	}

	result, err := schema.Validate(gojsonschema.NewGoLoader(obj))
	if err != nil {
		return nil, &ValidationError{Type: t, Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	if !result.Valid() {
		verr := &ValidationError{Type: t, Errors: make([]FieldError, 0, len(result.Errors()))}
		for _, desc := range result.Errors() {
			field := desc.Field()
			if field == "" {
				field = "(root)"
			}
			verr.Errors = append(verr.Errors, FieldError{Field: field, Message: desc.Description()})
		}
		return nil, verr
	}

	raw, err := json.Marshal(obj)
	if err != nil {
		return nil, &ValidationError{Type: t, Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	return unmarshalValue(t, raw)
}

// UnmarshalValue decodes a stored value. Empty input or JSON null yields nil.
// The schema is not checked again: text fallback values may lie outside it.
func UnmarshalValue(t Type, raw []byte) (Value, error) {
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "" || trimmed == "null" {
		return nil, nil
	}
	v, err := unmarshalValue(t, raw)
	if err != nil {
		return nil, fmt.Errorf("decode %s value: %w", t, err)
	}
	return v, nil
}

func unmarshalValue(t Type, raw []byte) (Value, error) {
	switch t {
	case TypeCDLClass:
		return decodeInto[CDLClassValue](t, raw)
	case TypeYearsExperience:
		return decodeInto[YearsExperienceValue](t, raw)
	case TypeDrivingRecord:
		return decodeInto[DrivingRecordValue](t, raw)
	case TypeEndorsements:
		return decodeInto[EndorsementsValue](t, raw)
	case TypeAgeRequirement:
		return decodeInto[AgeRequirementValue](t, raw)
	case TypePhysicalExam:
		return decodeInto[PhysicalExamValue](t, raw)
	case TypeDrugTest:
		return decodeInto[DrugTestValue](t, raw)
	case TypeBackgroundCheck:
		return decodeInto[BackgroundCheckValue](t, raw)
	case TypeGeographicRestriction:
		return decodeInto[GeographicRestrictionValue](t, raw)
	default:
		return nil, unsupportedType(t)
	}
}

func decodeInto[V Value](t Type, raw []byte) (Value, error) {
	var v V
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, &ValidationError{Type: t, Errors: []FieldError{{Field: "(root)", Message: err.Error()}}}
	}
	return v, nil
}

// ToMap converts v into its JSON object form.
func ToMap(v Value) (map[string]any, error) {
	if v == nil {
		return nil, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, err
	}
	return out, nil
}
