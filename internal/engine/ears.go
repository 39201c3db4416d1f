package engine

import (
	"fmt"
	"regexp"
	"strings"
)

// EARSTemplate is the phrasing pattern of one ears_type.
type EARSTemplate struct {
	Type     string `json:"ears_type"`
	Template string `json:"template"`
	Keyword  string `json:"keyword,omitempty"`
}

var earsTemplates = []EARSTemplate{
	{Type: "ubiquitous", Template: "The <system> shall <action>"},
	{Type: "event-driven", Template: "WHEN <trigger event>, the <system> shall <action>", Keyword: "WHEN"},
	{Type: "state-driven", Template: "WHILE <in state>, the <system> shall <action>", Keyword: "WHILE"},
	{Type: "unwanted", Template: "IF <unwanted condition>, THEN the <system> shall <action>", Keyword: "IF"},
	{Type: "optional", Template: "WHERE <feature is included>, the <system> shall <action>", Keyword: "WHERE"},
	{Type: "complex", Template: "WHILE <in state>, WHEN <trigger event>, the <system> shall <action>", Keyword: "WHILE"},
}

// Detection order runs from the most specific pattern to the least.
var earsPatterns = []struct {
	typ string
	re  *regexp.Regexp
}{
	{"complex", regexp.MustCompile(`(?is)^WHILE\s+(.+?),?\s+WHEN\s+(.+?),?\s+(?:the\s+)?(.+?)\s+shall\s+(.+)$`)},
	{"event-driven", regexp.MustCompile(`(?is)^WHEN\s+(.+?),?\s+(?:the\s+)?(.+?)\s+shall\s+(.+)$`)},
	{"state-driven", regexp.MustCompile(`(?is)^WHILE\s+(.+?),?\s+(?:the\s+)?(.+?)\s+shall\s+(.+)$`)},
	{"unwanted", regexp.MustCompile(`(?is)^IF\s+(.+?),?\s+THEN\s+(?:the\s+)?(.+?)\s+shall\s+(.+)$`)},
	{"optional", regexp.MustCompile(`(?is)^WHERE\s+(.+?),?\s+(?:the\s+)?(.+?)\s+shall\s+(.+)$`)},
	{"ubiquitous", regexp.MustCompile(`(?is)^(?:The\s+)?(.+?)\s+shall\s+(.+)$`)},
}

func EARSTemplates() []EARSTemplate {
	return append([]EARSTemplate(nil), earsTemplates...)
}

// DetectEARS returns the ears_type the text is phrased in, or "".
func DetectEARS(text string) string {
	text = strings.TrimSpace(text)
	for _, p := range earsPatterns {
		if p.re.MatchString(text) {
			return p.typ
		}
	}
	return ""
}

type EARSCheck struct {
	Valid       bool     `json:"valid"`
	Detected    string   `json:"detected,omitempty"`
	Message     string   `json:"message"`
	Suggestions []string `json:"suggestions"`
}

// CheckEARS reports whether text follows the declared ears_type.
func CheckEARS(text, earsType string) EARSCheck {
	text = strings.TrimSpace(text)
	var tmpl *EARSTemplate
	for i := range earsTemplates {
		if earsTemplates[i].Type == strings.ToLower(strings.TrimSpace(earsType)) {
			tmpl = &earsTemplates[i]
		}
	}
	if tmpl == nil {
		return EARSCheck{Message: fmt.Sprintf("unknown ears_type %q", earsType), Suggestions: []string{}}
	}
	detected := DetectEARS(text)
	check := EARSCheck{Detected: detected, Suggestions: []string{}}
	if text == "" {
		check.Message = "requirement text is empty"
		check.Suggestions = append(check.Suggestions, "use template: "+tmpl.Template)
		return check
	}
	for _, p := range earsPatterns {
		if p.typ == tmpl.Type && p.re.MatchString(text) {
			check.Valid = true
			check.Message = "valid " + tmpl.Type + " requirement"
			return check
		}
	}
	check.Message = "does not match the " + tmpl.Type + " pattern"
	if detected != "" && detected != tmpl.Type {
		check.Suggestions = append(check.Suggestions, fmt.Sprintf("this reads as %s, not %s", detected, tmpl.Type))
	}
	check.Suggestions = append(check.Suggestions, "expected format: "+tmpl.Template)
	if !strings.Contains(strings.ToLower(text), "shall") {
		check.Suggestions = append(check.Suggestions, `missing "shall"`)
	}
	if tmpl.Keyword != "" && !strings.HasPrefix(strings.ToUpper(text), tmpl.Keyword) {
		check.Suggestions = append(check.Suggestions, fmt.Sprintf("%s requirements start with %q", tmpl.Type, tmpl.Keyword))
	}
	return check
}
