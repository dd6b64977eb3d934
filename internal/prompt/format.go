package prompt

import "github.com/spigell/driver-screener/internal/requirement"

var envelopeFields = []string{
	`"assessment": "MET" | "NOT_MET" | "PENDING"`,
	`"confidence": number (0 to 1)`,
	`"message": string`,
	`"needs_clarification": boolean`,
}

var responseFields = map[requirement.Type][]string{
	requirement.TypeCDLClass: {
		`"cdl_class": "A" | "B" | "C"`,
		`"confirmed": boolean`,
	},
	requirement.TypeYearsExperience: {
		`"years_experience": number (integer, >= 0)`,
		`"meets_requirement": boolean`,
		`"exceeds_requirement": boolean (optional)`,
	},
	requirement.TypeDrivingRecord: {
		`"violations": number (integer, >= 0)`,
		`"accidents": number (integer, >= 0)`,
		`"clean_record": boolean`,
	},
	requirement.TypeEndorsements: {
		`"hazmat": boolean (optional)`,
		`"tanker": boolean (optional)`,
		`"doubles_triples": boolean (optional)`,
		`"endorsements_confirmed": boolean`,
	},
	requirement.TypeAgeRequirement: {
		`"age": number (integer, >= 18)`,
		`"meets_requirement": boolean`,
	},
	requirement.TypePhysicalExam: {
		`"has_current_dot_physical": boolean`,
		`"confirmed": boolean`,
	},
	requirement.TypeDrugTest: {
		`"agrees_to_pre_employment": boolean`,
		`"agrees_to_random_testing": boolean (optional)`,
		`"confirmed": boolean`,
	},
	requirement.TypeBackgroundCheck: {
		`"agrees_to_background_check": boolean`,
		`"confirmed": boolean`,
	},
	requirement.TypeGeographicRestriction: {
		`"location": string`,
		`"state": string (2-letter state code, optional)`,
		`"meets_requirement": boolean`,
	},
}
