package corpus

import "sort"

// providerImpressions maps provider impressions to the treatment protocol
// code covering them. This mapping is the source of the authoritative
// protocol-code set; every code also has a pediatric "-P" variant.
var providerImpressions = map[string]string{
	"cardiac arrest":         "1210",
	"cardiac chest pain":     "1211",
	"bradycardia":            "1212",
	"tachycardia":            "1213",
	"pulmonary edema":        "1214",
	"emergent delivery":      "1217",
	"allergic reaction":      "1219",
	"burns":                  "1220",
	"submersion":             "1225",
	"altered consciousness":  "1229",
	"stroke":                 "1232",
	"airway obstruction":     "1234",
	"respiratory distress":   "1237",
	"overdose poisoning":     "1241",
	"traumatic injury":       "1244",
	"behavioral emergency":   "1209",
	"shock hypoperfusion":    "1207",
	"diabetic emergency":     "1203",
	"seizure":                "1231",
	"general medical":        "1202",
	"abdominal pain":         "1201",
	"pain management":        "1247",
}

// medicalControlGuidelines are MCG document numbers that are valid citations
// but are not treatment protocols.
var medicalControlGuidelines = map[string]string{
	"1301": "Base Hospital Contact Requirements",
	"1309": "Color Code Drug Doses/LA County Kids",
	"1317": "Patient Destination",
	"1345": "Pain Management",
}

// protocolNames maps authoritative codes to their on-record names, used for
// citation name-mismatch checks.
var protocolNames = map[string]string{}

// baseContactRequired lists protocol codes whose protocols mandate base
// hospital contact before or during the intervention.
var baseContactRequired = map[string]bool{
	"1210": true,
	"1212": true,
	"1213": true,
	"1217": true,
	"1229": true,
	"1241": true,
}

func init() {
	for impression, code := range providerImpressions {
		protocolNames[code] = impression
		protocolNames[code+"-P"] = impression
	}
	for code, name := range medicalControlGuidelines {
		protocolNames[code] = name
	}
}

// AuthoritativeCodes returns the de-duplicated sorted set of valid protocol
// codes: every treatment protocol, its pediatric variant, and every MCG.
func AuthoritativeCodes() []string {
	seen := make(map[string]bool, len(providerImpressions)*2+len(medicalControlGuidelines))
	for _, code := range providerImpressions {
		seen[code] = true
		seen[code+"-P"] = true
	}
	for code := range medicalControlGuidelines {
		seen[code] = true
	}
	codes := make([]string, 0, len(seen))
	for code := range seen {
		codes = append(codes, code)
	}
	sort.Strings(codes)
	return codes
}

// IsAuthoritativeCode reports whether code is in the authoritative set.
func IsAuthoritativeCode(code string) bool {
	_, ok := protocolNames[NormalizeCode(code)]
	return ok
}

// ProtocolName returns the on-record name for a code.
func ProtocolName(code string) (string, bool) {
	name, ok := protocolNames[NormalizeCode(code)]
	return name, ok
}

// RequiresBaseContact reports whether the protocol for code mandates base
// hospital contact. The pediatric variant inherits the base code's rule.
func RequiresBaseContact(code string) bool {
	c := NormalizeCode(code)
	if baseContactRequired[c] {
		return true
	}
	if len(c) > 2 && c[len(c)-2:] == "-P" {
		return baseContactRequired[c[:len(c)-2]]
	}
	return false
}
