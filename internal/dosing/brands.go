package dosing

import "strings"

// brandToGeneric maps brand names the field uses to the generic names the
// formulary and dose tables are keyed by.
var brandToGeneric = map[string]string{
	"narcan":            "naloxone",
	"versed":            "midazolam",
	"benadryl":          "diphenhydramine",
	"adrenaline":        "epinephrine",
	"epipen":            "epinephrine",
	"zofran":            "ondansetron",
	"sublimaze":         "fentanyl",
	"nitro":             "nitroglycerin",
	"d50":               "dextrose",
	"d10":               "dextrose",
	"asa":               "aspirin",
	"albuterol sulfate": "albuterol",
	"proventil":         "albuterol",
	"cordarone":         "amiodarone",
	"adenocard":         "adenosine",

	// Brands of out-of-formulary medications still need canonical forms so
	// the formulary validator can flag them.
	"ativan":   "lorazepam",
	"valium":   "diazepam",
	"xanax":    "alprazolam",
	"klonopin": "clonazepam",
	"haldol":   "haloperidol",
	"dilaudid": "hydromorphone",
	"demerol":  "meperidine",
	"toradol":  "ketorolac",
}

// Canonical maps a medication name to its generic form, lower-cased.
// Unrecognized names come back lower-cased unchanged.
func Canonical(name string) string {
	key := strings.ToLower(strings.TrimSpace(name))
	if generic, ok := brandToGeneric[key]; ok {
		return generic
	}
	return key
}

// IsBrand reports whether name is a recognized brand form.
func IsBrand(name string) bool {
	_, ok := brandToGeneric[strings.ToLower(strings.TrimSpace(name))]
	return ok
}
