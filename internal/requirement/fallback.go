package requirement

import (
	"regexp"
	"strconv"
	"strings"
)

// FromText extracts a best-effort value from unstructured prose. It returns
// nil when nothing usable is found or t is unknown; it never fails.
func FromText(t Type, text string) Value {
	if strings.TrimSpace(text) == "" {
		return nil
	}
	extract, ok := textExtractors[t]
	if !ok {
		return nil
	}
	return extract(text)
}

var textExtractors = map[Type]func(string) Value{
	TypeCDLClass:              cdlClassFromText,
	TypeYearsExperience:       yearsExperienceFromText,
	TypeDrivingRecord:         drivingRecordFromText,
	TypeEndorsements:          endorsementsFromText,
	TypeAgeRequirement:        ageFromText,
	TypePhysicalExam:          physicalExamFromText,
	TypeDrugTest:              drugTestFromText,
	TypeBackgroundCheck:       backgroundCheckFromText,
	TypeGeographicRestriction: locationFromText,
}

var cdlKeywords = []struct {
	class    CDLClass
	keywords []string
}{
	{CDLClassA, []string{"CLASS A", "CDL A", "CLASS-A", "A CDL"}},
	{CDLClassB, []string{"CLASS B", "CDL B", "CLASS-B", "B CDL"}},
	{CDLClassC, []string{"CLASS C", "CDL C", "CLASS-C", "C CDL"}},
}

func cdlClassFromText(text string) Value {
	upper := strings.ToUpper(text)
	for _, set := range cdlKeywords {
		for _, kw := range set.keywords {
			if strings.Contains(upper, kw) {
				return CDLClassValue{CDLClass: set.class, Confirmed: true}
			}
		}
	}
	return nil
}

var (
	yearsPattern      = regexp.MustCompile(`(?i)(\d+)\s*(?:years?|yrs?)`)
	violationsPattern = regexp.MustCompile(`(?i)(\d+)\s*(?:violations?|tickets?)`)
	accidentsPattern  = regexp.MustCompile(`(?i)(\d+)\s*(?:accidents?|crashes?)`)
	cleanPattern      = regexp.MustCompile(`(?i)\bclean\s+(?:driving\s+)?record\b|\bno\s+(?:violations?|tickets?)\s+(?:and|or|&)\s+no\s+(?:accidents?|crashes?)\b`)
	agePattern        = regexp.MustCompile(`(?i)(\d{1,3})\s*(?:years?\s*old|age)`)
	wordPattern       = regexp.MustCompile(`[A-Z']+`)
	statePattern      = regexp.MustCompile(`\b([A-Z]{2})\b`)
)

func firstInt(re *regexp.Regexp, text string) (int, bool) {
	m := re.FindStringSubmatch(text)
	if m == nil {
		return 0, false
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0, false
	}
	return n, true
}

func yearsExperienceFromText(text string) Value {
	years, ok := firstInt(yearsPattern, text)
	if !ok {
		return nil
	}
	return YearsExperienceValue{YearsExperience: years, MeetsRequirement: true}
}

func drivingRecordFromText(text string) Value {
	violations, vok := firstInt(violationsPattern, text)
	accidents, aok := firstInt(accidentsPattern, text)
	if !vok || !aok {
		if cleanPattern.MatchString(text) {
			return DrivingRecordValue{CleanRecord: true}
		}
		return nil
	}
	return DrivingRecordValue{
		Violations:  violations,
		Accidents:   accidents,
		CleanRecord: violations == 0 && accidents == 0,
	}
}

func endorsementsFromText(text string) Value {
	words := wordSet(text)
	hazmat := words["HAZMAT"]
	tanker := words["TANKER"]
	doubles := words["DOUBLES"] || words["TRIPLES"] || strings.Contains(strings.ToUpper(text), "DOUBLE/TRIPLE")
	if !hazmat && !tanker && !doubles {
		return nil
	}
	return EndorsementsValue{
		Hazmat:                trueOrNil(hazmat),
		Tanker:                trueOrNil(tanker),
		DoublesTriples:        trueOrNil(doubles),
		EndorsementsConfirmed: true,
	}
}

func trueOrNil(b bool) *bool {
	if !b {
		return nil
	}
	return &b
}

func ageFromText(text string) Value {
	age, ok := firstInt(agePattern, text)
	if !ok || age < 18 {
		return nil
	}
	return AgeRequirementValue{Age: age, MeetsRequirement: true}
}

var (
	physicalYes        = []string{"YES", "HAVE", "CURRENT"}
	physicalNo         = []string{"NO", "DON'T", "NOT"}
	drugTestAgree      = []string{"YES", "AGREE", "OKAY"}
	drugTestDisagree   = []string{"NO", "DON'T", "NOT"}
	backgroundAgree    = []string{"YES", "AGREE", "OKAY", "SURE", "FINE", "ALRIGHT", "AFFIRMATIVE"}
	backgroundDisagree = []string{"NO", "DON'T", "NOT", "DECLINE", "REFUSE", "NEGATIVE"}
)

// consent scans for agree and disagree words. A disagree word always wins.
func consent(text string, agree, disagree []string) (value bool, found bool) {
	words := wordSet(text)
	for _, w := range disagree {
		if words[w] {
			return false, true
		}
	}
	for _, w := range agree {
		if words[w] {
			return true, true
		}
	}
	return false, false
}

func wordSet(text string) map[string]bool {
	upper := strings.ToUpper(strings.ReplaceAll(text, "’", "'"))
	set := make(map[string]bool)
	for _, w := range wordPattern.FindAllString(upper, -1) {
		set[strings.Trim(w, "'")] = true
		set[w] = true
	}
	return set
}

func physicalExamFromText(text string) Value {
	has, ok := consent(text, physicalYes, physicalNo)
	if !ok {
		return nil
	}
	return PhysicalExamValue{HasCurrentDOTPhysical: has, Confirmed: true}
}

func drugTestFromText(text string) Value {
	agrees, ok := consent(text, drugTestAgree, drugTestDisagree)
	if !ok {
		return nil
	}
	return DrugTestValue{AgreesToPreEmployment: agrees, AgreesToRandomTesting: &agrees, Confirmed: true}
}

func backgroundCheckFromText(text string) Value {
	agrees, ok := consent(text, backgroundAgree, backgroundDisagree)
	if !ok {
		return nil
	}
	return BackgroundCheckValue{AgreesToBackgroundCheck: agrees, Confirmed: true}
}

func locationFromText(text string) Value {
	for _, m := range statePattern.FindAllStringSubmatch(text, -1) {
		if _, ok := stateNames[m[1]]; ok {
			return GeographicRestrictionValue{Location: m[1], State: m[1], MeetsRequirement: true}
		}
	}
	upper := strings.ToUpper(text)
	for _, code := range stateCodesByNameLength {
		name := stateNames[code]
		if containsWord(upper, name) {
			return GeographicRestrictionValue{Location: strings.TrimSpace(text), State: code, MeetsRequirement: true}
		}
	}
	return nil
}

func containsWord(upper, phrase string) bool {
	idx := strings.Index(upper, phrase)
	for idx >= 0 {
		before := idx == 0 || !isLetter(upper[idx-1])
		end := idx + len(phrase)
		after := end == len(upper) || !isLetter(upper[end])
		if before && after {
			return true
		}
		next := strings.Index(upper[idx+1:], phrase)
		if next < 0 {
			return false
		}
		idx += next + 1
	}
	return false
}

func isLetter(b byte) bool {
	return b >= 'A' && b <= 'Z'
}
