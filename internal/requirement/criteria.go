package requirement

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/go-playground/validator/v10"
)

// Criteria is the job-authored definition of what satisfies a requirement.
type Criteria interface {
	Type() Type
	// IsRequired reports whether a NOT_MET outcome blocks the candidate.
	IsRequired() bool
}

// CDLClass is a commercial license class. Higher classes cover lower ones.
type CDLClass string

const (
	CDLClassA CDLClass = "A"
	CDLClassB CDLClass = "B"
	CDLClassC CDLClass = "C"
)

var cdlRank = map[CDLClass]int{CDLClassA: 3, CDLClassB: 2, CDLClassC: 1}

// Rank returns the ordinal rank of the class, zero for unknown classes.
func (c CDLClass) Rank() int {
	return cdlRank[c]
}

// Covers reports whether holding c satisfies a requirement for other.
func (c CDLClass) Covers(other CDLClass) bool {
	return c.Rank() > 0 && c.Rank() >= other.Rank()
}

// EndorsementRule is the tri-state criteria value for a single endorsement:
// required (true), not needed (false), preferred, or unset.
type EndorsementRule uint8

const (
	EndorsementUnset EndorsementRule = iota
	EndorsementRequired
	EndorsementNotNeeded
	EndorsementPreferred
)

func (r EndorsementRule) MarshalJSON() ([]byte, error) {
	switch r {
	case EndorsementRequired:
		return []byte("true"), nil
	case EndorsementNotNeeded:
		return []byte("false"), nil
	case EndorsementPreferred:
		return []byte(`"preferred"`), nil
	default:
		return []byte("null"), nil
	}
}

func (r *EndorsementRule) UnmarshalJSON(data []byte) error {
	switch strings.TrimSpace(string(data)) {
	case "null":
		*r = EndorsementUnset
	case "true":
		*r = EndorsementRequired
	case "false":
		*r = EndorsementNotNeeded
	case `"preferred"`:
		*r = EndorsementPreferred
	default:
		return fmt.Errorf("endorsement must be true, false or \"preferred\", got %s", data)
	}
	return nil
}

type CDLClassCriteria struct {
	Required *bool    `json:"required" validate:"required"`
	CDLClass CDLClass `json:"cdl_class" validate:"required,oneof=A B C"`
}

type YearsExperienceCriteria struct {
	Required  *bool `json:"required,omitempty"`
	MinYears  int   `json:"min_years" validate:"gt=0"`
	Preferred bool  `json:"preferred,omitempty"`
}

type DrivingRecordCriteria struct {
	Required      *bool `json:"required" validate:"required"`
	MaxViolations *int  `json:"max_violations" validate:"required,gte=0"`
	MaxAccidents  *int  `json:"max_accidents" validate:"required,gte=0"`
}

type EndorsementsCriteria struct {
	Required       *bool           `json:"required,omitempty"`
	Hazmat         EndorsementRule `json:"hazmat,omitempty"`
	Tanker         EndorsementRule `json:"tanker,omitempty"`
	DoublesTriples EndorsementRule `json:"doubles_triples,omitempty"`
}

type AgeRequirementCriteria struct {
	Required *bool `json:"required" validate:"required"`
	MinAge   int   `json:"min_age" validate:"gte=18"`
}

type PhysicalExamCriteria struct {
	Required           *bool `json:"required" validate:"required"`
	CurrentDOTPhysical *bool `json:"current_dot_physical" validate:"required"`
}

type DrugTestCriteria struct {
	Required      *bool `json:"required" validate:"required"`
	PreEmployment *bool `json:"pre_employment" validate:"required"`
	RandomTesting bool  `json:"random_testing,omitempty"`
}

type BackgroundCheckCriteria struct {
	Required               *bool `json:"required" validate:"required"`
	CriminalCheck          bool  `json:"criminal_check,omitempty"`
	EmploymentVerification bool  `json:"employment_verification,omitempty"`
	EducationVerification  bool  `json:"education_verification,omitempty"`
}

type GeographicRestrictionCriteria struct {
	Required       *bool    `json:"required" validate:"required"`
	AllowedStates  []string `json:"allowed_states,omitempty" validate:"omitempty,dive,len=2,alpha,uppercase"`
	AllowedRegions []string `json:"allowed_regions,omitempty" validate:"omitempty,dive,required"`
}

func (CDLClassCriteria) Type() Type              { return TypeCDLClass }
func (YearsExperienceCriteria) Type() Type       { return TypeYearsExperience }
func (DrivingRecordCriteria) Type() Type         { return TypeDrivingRecord }
func (EndorsementsCriteria) Type() Type          { return TypeEndorsements }
func (AgeRequirementCriteria) Type() Type        { return TypeAgeRequirement }
func (PhysicalExamCriteria) Type() Type          { return TypePhysicalExam }
func (DrugTestCriteria) Type() Type              { return TypeDrugTest }
func (BackgroundCheckCriteria) Type() Type       { return TypeBackgroundCheck }
func (GeographicRestrictionCriteria) Type() Type { return TypeGeographicRestriction }

func (c CDLClassCriteria) IsRequired() bool              { return isTrue(c.Required) }
func (c YearsExperienceCriteria) IsRequired() bool       { return isTrue(c.Required) }
func (c DrivingRecordCriteria) IsRequired() bool         { return isTrue(c.Required) }
func (c EndorsementsCriteria) IsRequired() bool          { return isTrue(c.Required) }
func (c AgeRequirementCriteria) IsRequired() bool        { return isTrue(c.Required) }
func (c PhysicalExamCriteria) IsRequired() bool          { return isTrue(c.Required) }
func (c DrugTestCriteria) IsRequired() bool              { return isTrue(c.Required) }
func (c BackgroundCheckCriteria) IsRequired() bool       { return isTrue(c.Required) }
func (c GeographicRestrictionCriteria) IsRequired() bool { return isTrue(c.Required) }

func isTrue(b *bool) bool {
	return b != nil && *b
}

var (
	validateOnce sync.Once
	validate     *validator.Validate
)

func structValidator() *validator.Validate {
	validateOnce.Do(func() {
		validate = validator.New()
	})
	return validate
}

// ParseCriteria decodes and validates job-authored criteria for t.
// Any failure is an InvalidCriteria ConfigError.
func ParseCriteria(t Type, raw []byte) (Criteria, error) {
	if !t.Valid() {
		return nil, unsupportedType(t)
	}

	var (
		c   Criteria
		err error
	)
	switch t {
	case TypeCDLClass:
		c, err = decodeCriteria[CDLClassCriteria](raw)
	case TypeYearsExperience:
		c, err = decodeCriteria[YearsExperienceCriteria](raw)
	case TypeDrivingRecord:
		c, err = decodeCriteria[DrivingRecordCriteria](raw)
	case TypeEndorsements:
		c, err = decodeCriteria[EndorsementsCriteria](raw)
	case TypeAgeRequirement:
		c, err = decodeCriteria[AgeRequirementCriteria](raw)
	case TypePhysicalExam:
		c, err = decodeCriteria[PhysicalExamCriteria](raw)
	case TypeDrugTest:
		c, err = decodeCriteria[DrugTestCriteria](raw)
	case TypeBackgroundCheck:
		c, err = decodeCriteria[BackgroundCheckCriteria](raw)
	case TypeGeographicRestriction:
		c, err = decodeCriteria[GeographicRestrictionCriteria](raw)
	}
	if err != nil {
		return nil, invalidCriteria(t, "decode", err)
	}

	if err := ValidateCriteria(c); err != nil {
		return nil, err
	}
	return c, nil
}

func decodeCriteria[C Criteria](raw []byte) (Criteria, error) {
	var c C
	if len(bytes.TrimSpace(raw)) == 0 {
		return nil, errors.New("criteria are empty")
	}
	if err := json.Unmarshal(raw, &c); err != nil {
		return nil, err
	}
	return c, nil
}

// ValidateCriteria checks the field rules of c.
func ValidateCriteria(c Criteria) error {
	if c == nil {
		return invalidCriteria("", "criteria are nil", nil)
	}
	if !c.Type().Valid() {
		return unsupportedType(c.Type())
	}
	if err := structValidator().Struct(c); err != nil {
		return invalidCriteria(c.Type(), describeValidation(err), err)
	}
	return nil
}

func describeValidation(err error) string {
	var verrs validator.ValidationErrors
	if !errors.As(err, &verrs) {
		return "validation failed"
	}
	parts := make([]string, 0, len(verrs))
	for _, fe := range verrs {
		if fe.Param() != "" {
			parts = append(parts, fmt.Sprintf("%s must satisfy %s=%s", fe.Field(), fe.Tag(), fe.Param()))
			continue
		}
		parts = append(parts, fmt.Sprintf("%s must satisfy %s", fe.Field(), fe.Tag()))
	}
	return strings.Join(parts, "; ")
}

// MarshalCriteria encodes c for storage.
func MarshalCriteria(c Criteria) ([]byte, error) {
	if c == nil {
		return nil, invalidCriteria("", "criteria are nil", nil)
	}
	return json.Marshal(c)
}
