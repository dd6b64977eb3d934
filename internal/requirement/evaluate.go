package requirement

import (
	"errors"
	"fmt"
	"slices"
)

type evaluator func(c Criteria, v Value) (Status, error)

var evaluators = map[Type]evaluator{
	TypeCDLClass:              bind(evaluateCDLClass),
	TypeYearsExperience:       bind(evaluateYearsExperience),
	TypeDrivingRecord:         bind(evaluateDrivingRecord),
	TypeEndorsements:          bind(evaluateEndorsements),
	TypeAgeRequirement:        bind(evaluateAgeRequirement),
	TypePhysicalExam:          bind(evaluatePhysicalExam),
	TypeDrugTest:              bind(evaluateDrugTest),
	TypeBackgroundCheck:       bind(evaluateBackgroundCheck),
	TypeGeographicRestriction: bind(evaluateGeographicRestriction),
}

func init() {
	for _, t := range allTypes {
		if _, ok := evaluators[t]; !ok {
			panic(fmt.Sprintf("requirement: no evaluator registered for %s", t))
		}
	}
}

// bind adapts a typed rule to the dispatch table. Mismatched criteria are a
// configuration error; a nil value is PENDING; a value of another variant is
// a schema mismatch and therefore NOT_MET.
func bind[C Criteria, V Value](rule func(C, V) Status) evaluator {
	return func(c Criteria, v Value) (Status, error) {
		typed, ok := c.(C)
		if !ok {
			var want C
			return "", invalidCriteria(want.Type(), fmt.Sprintf("expected %T, got %T", want, c), nil)
		}
		if v == nil {
			return StatusPending, nil
		}
		value, ok := v.(V)
		if !ok {
			return StatusNotMet, nil
		}
		return rule(typed, value), nil
	}
}

// Evaluate judges v against c for requirement type t.
func Evaluate(t Type, c Criteria, v Value) (Status, error) {
	eval, ok := evaluators[t]
	if !ok {
		return "", unsupportedType(t)
	}
	if err := ValidateCriteria(c); err != nil {
		return "", err
	}
	return eval(c, v)
}

// EvaluateRaw validates a raw answer object before judging it. A schema
// mismatch evaluates to NOT_MET; a nil object is PENDING.
func EvaluateRaw(t Type, c Criteria, obj map[string]any) (Status, error) {
	if _, ok := evaluators[t]; !ok {
		return "", unsupportedType(t)
	}
	if obj == nil {
		return Evaluate(t, c, nil)
	}
	v, err := DecodeValue(t, obj)
	if err != nil {
		var verr *ValidationError
		if errors.As(err, &verr) {
			if cerr := ValidateCriteria(c); cerr != nil {
				return "", cerr
			}
			return StatusNotMet, nil
		}
		return "", err
	}
	return Evaluate(t, c, v)
}

func metIf(ok bool) Status {
	if ok {
		return StatusMet
	}
	return StatusNotMet
}

func evaluateCDLClass(c CDLClassCriteria, v CDLClassValue) Status {
	return metIf(v.CDLClass.Covers(c.CDLClass))
}

func evaluateYearsExperience(c YearsExperienceCriteria, v YearsExperienceValue) Status {
	preferredOnly := c.Preferred && !c.IsRequired()
	return metIf(preferredOnly || v.YearsExperience >= c.MinYears)
}

func evaluateDrivingRecord(c DrivingRecordCriteria, v DrivingRecordValue) Status {
	return metIf(v.Violations <= *c.MaxViolations && v.Accidents <= *c.MaxAccidents)
}

func evaluateEndorsements(c EndorsementsCriteria, v EndorsementsValue) Status {
	return metIf(endorsementPasses(c.Hazmat, v.Hazmat) &&
		endorsementPasses(c.Tanker, v.Tanker) &&
		endorsementPasses(c.DoublesTriples, v.DoublesTriples))
}

// endorsementPasses fails only when the endorsement is required and the
// candidate does not confirm holding it.
func endorsementPasses(rule EndorsementRule, held *bool) bool {
	switch rule {
	case EndorsementUnset, EndorsementNotNeeded, EndorsementPreferred:
		return true
	case EndorsementRequired:
		return held != nil && *held
	default:
		return false
	}
}

func evaluateAgeRequirement(c AgeRequirementCriteria, v AgeRequirementValue) Status {
	return metIf(v.Age >= c.MinAge)
}

func evaluatePhysicalExam(c PhysicalExamCriteria, v PhysicalExamValue) Status {
	return metIf(!*c.CurrentDOTPhysical || v.HasCurrentDOTPhysical)
}

func evaluateDrugTest(c DrugTestCriteria, v DrugTestValue) Status {
	preEmployment := !*c.PreEmployment || v.AgreesToPreEmployment
	random := !c.RandomTesting || (v.AgreesToRandomTesting != nil && *v.AgreesToRandomTesting)
	return metIf(preEmployment && random)
}

func evaluateBackgroundCheck(c BackgroundCheckCriteria, v BackgroundCheckValue) Status {
	return metIf(!c.IsRequired() || v.AgreesToBackgroundCheck)
}

func evaluateGeographicRestriction(c GeographicRestrictionCriteria, v GeographicRestrictionValue) Status {
	if !c.IsRequired() {
		return StatusMet
	}
	if len(c.AllowedStates) == 0 && len(c.AllowedRegions) == 0 {
		return StatusMet
	}
	if v.State == "" {
		return StatusPending
	}
	if slices.Contains(c.AllowedStates, v.State) {
		return StatusMet
	}
	if len(c.AllowedRegions) > 0 {
		if slices.Contains(c.AllowedRegions, v.State) {
			return StatusMet
		}
		// No state to region mapping exists, so a regions-only rule cannot reject.
		if len(c.AllowedStates) == 0 {
			return StatusPending
		}
	}
	return StatusNotMet
}
