package ingestion

import (
	"regexp"
	"strings"
)

// maxSkillMatches caps how many skills one document can contribute.
const maxSkillMatches = 50

// MatchSkills returns the subset of known skill names found in text,
// case-insensitive on word boundaries, in the order the catalogue lists them.
// Matching stops at the cap.
func MatchSkills(text string, knownSkills []string) []string {
	var matched []string
	for _, skill := range knownSkills {
		if len(matched) >= maxSkillMatches {
			break
		}
		if skill == "" {
			continue
		}
		pattern, err := skillPattern(skill)
		if err != nil {
			continue
		}
		if pattern.MatchString(text) {
			matched = append(matched, skill)
		}
	}
	return matched
}

// skillPattern builds a case-insensitive word-boundary pattern for a skill
// name. Names ending in a symbol (C++, C#) get a lookahead-free boundary on
// the left only, since \b does not apply after non-word characters.
func skillPattern(skill string) (*regexp.Regexp, error) {
	quoted := regexp.QuoteMeta(skill)
	expr := `(?i)\b` + quoted
	if isWordChar(skill[len(skill)-1]) {
		expr += `\b`
	}
	return regexp.Compile(expr)
}

func isWordChar(c byte) bool {
	return c == '_' ||
		(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
}

// CandidateProfile is the contact surface extracted from a resume.
type CandidateProfile struct {
	FirstName string
	LastName  string
	FullName  string
	Emails    []string
	Phones    []string
	Location  string
	Headline  string
}

// ExtractCandidate builds a candidate profile from findings already detected
// during redaction, plus the first non-empty line as a name guess when no
// PERSON finding exists.
func ExtractCandidate(text string, emails, phones, persons []string) *CandidateProfile {
	profile := &CandidateProfile{
		Emails: emails,
		Phones: phones,
	}

	if len(persons) > 0 {
		profile.FullName = persons[0]
	} else {
		for _, line := range strings.Split(text, "\n") {
			if trimmed := strings.TrimSpace(line); trimmed != "" {
				profile.FullName = trimmed
				break
			}
		}
	}

	parts := strings.Fields(profile.FullName)
	if len(parts) > 0 {
		profile.FirstName = parts[0]
	}
	if len(parts) > 1 {
		profile.LastName = strings.Join(parts[1:], " ")
	}

	return profile
}
