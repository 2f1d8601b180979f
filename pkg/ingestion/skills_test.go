package ingestion

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMatchSkills(t *testing.T) {
	catalogue := []string{"Go", "Golang", "Kubernetes", "C++", "C#", "PostgreSQL"}

	t.Run("word boundaries", func(t *testing.T) {
		// "Go" must not match inside "Golang".
		matched := MatchSkills("five years of Golang experience", catalogue)
		assert.Equal(t, []string{"Golang"}, matched)
	})

	t.Run("case insensitive", func(t *testing.T) {
		matched := MatchSkills("kubernetes and postgresql in production", catalogue)
		assert.Equal(t, []string{"Kubernetes", "PostgreSQL"}, matched)
	})

	t.Run("symbol suffixed names", func(t *testing.T) {
		matched := MatchSkills("systems work in C++ and services in C#", catalogue)
		assert.Contains(t, matched, "C++")
		assert.Contains(t, matched, "C#")
	})

	t.Run("catalogue order preserved", func(t *testing.T) {
		matched := MatchSkills("Go on Kubernetes", catalogue)
		assert.Equal(t, []string{"Go", "Kubernetes"}, matched)
	})

	t.Run("no matches", func(t *testing.T) {
		assert.Empty(t, MatchSkills("project management and sales", catalogue))
	})
}

func TestMatchSkills_Cap(t *testing.T) {
	var catalogue []string
	text := ""
	for i := 0; i < maxSkillMatches+10; i++ {
		name := fmt.Sprintf("skill%d", i)
		catalogue = append(catalogue, name)
		text += name + " "
	}

	matched := MatchSkills(text, catalogue)
	assert.Len(t, matched, maxSkillMatches)
}

func TestExtractCandidate_PersonFinding(t *testing.T) {
	profile := ExtractCandidate("Resume\nJane Doe\n...",
		[]string{"jane@acme.io"}, []string{"4155550134"}, []string{"Jane Doe"})

	require.NotNil(t, profile)
	assert.Equal(t, "Jane Doe", profile.FullName)
	assert.Equal(t, "Jane", profile.FirstName)
	assert.Equal(t, "Doe", profile.LastName)
	assert.Equal(t, []string{"jane@acme.io"}, profile.Emails)
	assert.Equal(t, []string{"4155550134"}, profile.Phones)
}

func TestExtractCandidate_FirstLineFallback(t *testing.T) {
	profile := ExtractCandidate("\n\n  Ravi Kumar Menon  \nSenior Engineer",
		nil, nil, nil)

	assert.Equal(t, "Ravi Kumar Menon", profile.FullName)
	assert.Equal(t, "Ravi", profile.FirstName)
	assert.Equal(t, "Kumar Menon", profile.LastName)
}

func TestExtractCandidate_EmptyText(t *testing.T) {
	profile := ExtractCandidate("", nil, nil, nil)
	assert.Empty(t, profile.FullName)
	assert.Empty(t, profile.FirstName)
	assert.Empty(t, profile.LastName)
}
