// Package requirement holds the closed set of eligibility checks a screening
// conversation can ask about, their job-authored criteria, the candidate
// answers extracted for them and the rules that judge one against the other.
package requirement

import (
	"fmt"
	"strings"
)

// Type tags one of the nine eligibility checks.
type Type string

const (
	TypeCDLClass              Type = "CDL_CLASS"
	TypeYearsExperience       Type = "YEARS_EXPERIENCE"
	TypeDrivingRecord         Type = "DRIVING_RECORD"
	TypeEndorsements          Type = "ENDORSEMENTS"
	TypeAgeRequirement        Type = "AGE_REQUIREMENT"
	TypePhysicalExam          Type = "PHYSICAL_EXAM"
	TypeDrugTest              Type = "DRUG_TEST"
	TypeBackgroundCheck       Type = "BACKGROUND_CHECK"
	TypeGeographicRestriction Type = "GEOGRAPHIC_RESTRICTION"
)

var allTypes = []Type{
	TypeCDLClass,
	TypeYearsExperience,
	TypeDrivingRecord,
	TypeEndorsements,
	TypeAgeRequirement,
	TypePhysicalExam,
	TypeDrugTest,
	TypeBackgroundCheck,
	TypeGeographicRestriction,
}

var descriptions = map[Type]string{
	TypeCDLClass:              "Commercial Driver's License (CDL) class",
	TypeYearsExperience:       "years of driving experience",
	TypeDrivingRecord:         "driving record (violations and accidents)",
	TypeEndorsements:          "CDL endorsements (Hazmat, Tanker, Doubles/Triples)",
	TypeAgeRequirement:        "age requirement",
	TypePhysicalExam:          "DOT physical exam",
	TypeDrugTest:              "drug testing agreement",
	TypeBackgroundCheck:       "background check agreement",
	TypeGeographicRestriction: "geographic location/restrictions",
}

// Types returns every known requirement type in declaration order.
func Types() []Type {
	out := make([]Type, len(allTypes))
	copy(out, allTypes)
	return out
}

// ParseType normalizes s and returns the matching Type.
func ParseType(s string) (Type, error) {
	t := Type(strings.ToUpper(strings.TrimSpace(s)))
	if !t.Valid() {
		return "", unsupportedType(Type(s))
	}
	return t, nil
}

// Valid reports whether t belongs to the closed set.
func (t Type) Valid() bool {
	_, ok := descriptions[t]
	return ok
}

// Check returns an UnsupportedType error when t is outside the closed set.
func (t Type) Check() error {
	if t.Valid() {
		return nil
	}
	return unsupportedType(t)
}

// Description returns a human readable name used in prompts.
func (t Type) Description() string {
	if d, ok := descriptions[t]; ok {
		return d
	}
	return strings.ReplaceAll(strings.ToLower(string(t)), "_", " ")
}

func (t Type) String() string {
	return string(t)
}

// Status is the judgment of a candidate answer against criteria.
type Status string

const (
	StatusPending Status = "PENDING"
	StatusMet     Status = "MET"
	StatusNotMet  Status = "NOT_MET"
)

// ParseStatus accepts the three status names, case-insensitively.
func ParseStatus(s string) (Status, error) {
	switch st := Status(strings.ToUpper(strings.TrimSpace(s))); st {
	case StatusPending, StatusMet, StatusNotMet:
		return st, nil
	default:
		return "", fmt.Errorf("unknown requirement status %q", s)
	}
}

// Resolved reports whether the status is final.
func (s Status) Resolved() bool {
	return s == StatusMet || s == StatusNotMet
}

// CanTransition reports whether moving from s to next keeps statuses monotonic.
// A resolved status may only be re-asserted, never changed.
func (s Status) CanTransition(next Status) bool {
	if !s.Resolved() {
		return true
	}
	return s == next
}
