package search

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// SynonymRule expands colloquial field language into the clinical terms,
// abbreviations and protocol references the corpus is written in.
type SynonymRule struct {
	Triggers   []string `yaml:"triggers"`
	Expansions []string `yaml:"expansions"`
}

// defaultRules is the built-in ordered rule table. A query may trigger any
// number of rules; all matching expansions are unioned.
var defaultRules = []SynonymRule{
	{
		Triggers:   []string{"heart attack", "mi ", "stemi"},
		Expansions: []string{"myocardial infarction", "stemi", "cardiac chest pain", "protocol 1211", "aspirin", "nitroglycerin"},
	},
	{
		Triggers:   []string{"cant breathe", "can't breathe", "trouble breathing", "short of breath", "sob"},
		Expansions: []string{"shortness of breath", "dyspnea", "respiratory distress", "protocol 1237", "albuterol", "oxygen"},
	},
	{
		Triggers:   []string{"seizure", "seizing", "convulsion", "fitting"},
		Expansions: []string{"seizure", "status epilepticus", "postictal", "protocol 1231", "midazolam"},
	},
	{
		Triggers:   []string{"overdose", "od ", "took too many", "poisoning"},
		Expansions: []string{"overdose", "poisoning", "opioid", "protocol 1241", "naloxone", "narcan"},
	},
	{
		Triggers:   []string{"allergic reaction", "anaphylaxis", "bee sting", "hives"},
		Expansions: []string{"anaphylaxis", "allergic reaction", "protocol 1219", "epinephrine", "diphenhydramine"},
	},
	{
		Triggers:   []string{"stroke", "face droop", "slurred speech", "cva"},
		Expansions: []string{"stroke", "cerebrovascular accident", "mlaps", "protocol 1232", "stroke center"},
	},
	{
		Triggers:   []string{"unconscious", "passed out", "unresponsive", "wont wake up", "won't wake up"},
		Expansions: []string{"altered level of consciousness", "unresponsive", "protocol 1229", "glucose", "naloxone"},
	},
	{
		Triggers:   []string{"choking", "something stuck in throat"},
		Expansions: []string{"airway obstruction", "foreign body", "protocol 1234", "magill forceps"},
	},
	{
		Triggers:   []string{"drowning", "drowned", "pulled from water", "submersion"},
		Expansions: []string{"submersion", "drowning", "protocol 1225", "hypothermia"},
	},
	{
		Triggers:   []string{"having a baby", "in labor", "childbirth", "water broke"},
		Expansions: []string{"emergent delivery", "childbirth", "labor", "protocol 1217"},
	},
	{
		Triggers:   []string{"chest pain", "chest pressure", "chest tightness"},
		Expansions: []string{"cardiac chest pain", "acute coronary syndrome", "protocol 1211", "aspirin", "nitroglycerin"},
	},
	{
		Triggers:   []string{"diabetic", "low blood sugar", "high blood sugar", "hypoglycemia"},
		Expansions: []string{"diabetic emergency", "hypoglycemia", "hyperglycemia", "protocol 1203", "glucose", "dextrose"},
	},
	{
		Triggers:   []string{"bleeding", "blood everywhere", "hemorrhage", "cut badly"},
		Expansions: []string{"hemorrhage", "bleeding control", "tourniquet", "protocol 1244", "traumatic injury"},
	},
	{
		Triggers:   []string{"burn", "burned", "scalded"},
		Expansions: []string{"burns", "thermal injury", "protocol 1220", "burn center"},
	},
	{
		Triggers:   []string{"suicidal", "psych", "agitated", "combative", "5150"},
		Expansions: []string{"behavioral emergency", "agitated patient", "protocol 1209", "midazolam"},
	},
	{
		Triggers:   []string{"cardiac arrest", "no pulse", "cpr in progress", "down and not breathing"},
		Expansions: []string{"cardiac arrest", "resuscitation", "protocol 1210", "epinephrine", "amiodarone", "defibrillation"},
	},
}

// Expander rewrites a raw query into an expanded query using the synonym rule
// table. Side-effect-free and deterministic.
type Expander struct {
	rules []SynonymRule
}

// NewExpander returns an expander over the built-in rule table.
func NewExpander() *Expander {
	return &Expander{rules: defaultRules}
}

// NewExpanderWithRules returns an expander over the built-in table with extra
// rules appended after it.
func NewExpanderWithRules(extra []SynonymRule) *Expander {
	rules := make([]SynonymRule, 0, len(defaultRules)+len(extra))
	rules = append(rules, defaultRules...)
	rules = append(rules, extra...)
	return &Expander{rules: rules}
}

// LoadRulesYAML reads an overlay rule file.
func LoadRulesYAML(path string) ([]SynonymRule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read synonym rules: %w", err)
	}
	var rules []SynonymRule
	if err := yaml.Unmarshal(data, &rules); err != nil {
		return nil, fmt.Errorf("failed to parse synonym rules: %w", err)
	}
	return rules, nil
}

// Expand normalizes whitespace in the query, then appends the union of every
// matching rule's expansion terms, de-duplicated in first-insertion order.
// Terms already present in the query are not appended again.
func (e *Expander) Expand(query string) string {
	normalized := strings.Join(strings.Fields(query), " ")
	if normalized == "" {
		return ""
	}
	lower := strings.ToLower(normalized)

	seen := make(map[string]bool)
	var added []string
	for _, rule := range e.rules {
		if !rule.matches(lower) {
			continue
		}
		for _, term := range rule.Expansions {
			key := strings.ToLower(term)
			if seen[key] || strings.Contains(lower, key) {
				continue
			}
			seen[key] = true
			added = append(added, term)
		}
	}

	if len(added) == 0 {
		return normalized
	}
	return normalized + " " + strings.Join(added, " ")
}

func (r SynonymRule) matches(lowerQuery string) bool {
	for _, trigger := range r.Triggers {
		t := strings.ToLower(trigger)
		// Trailing-space triggers (e.g. "mi ") mark abbreviations that must
		// match as a whole word, not inside longer words.
		if strings.HasSuffix(t, " ") {
			if hasWord(lowerQuery, strings.TrimSpace(t)) {
				return true
			}
			continue
		}
		if len(t) <= 3 {
			if hasWord(lowerQuery, t) {
				return true
			}
			continue
		}
		if strings.Contains(lowerQuery, t) {
			return true
		}
	}
	return false
}

func hasWord(s, word string) bool {
	for _, field := range strings.Fields(s) {
		if strings.Trim(field, ".,;:!?") == word {
			return true
		}
	}
	return false
}
