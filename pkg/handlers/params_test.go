package handlers

import (
	"net/http/httptest"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestParseRequirementID(t *testing.T) {
	id := uuid.New()

	r := httptest.NewRequest("GET", "/api/requirements/"+id.String()+"/matches", nil)
	r.SetPathValue("rid", id.String())
	w := httptest.NewRecorder()

	parsed, ok := ParseRequirementID(w, r, zap.NewNop())
	require.True(t, ok)
	assert.Equal(t, id, parsed)
}

func TestParseRequirementID_Invalid(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/requirements/not-a-uuid/matches", nil)
	r.SetPathValue("rid", "not-a-uuid")
	w := httptest.NewRecorder()

	_, ok := ParseRequirementID(w, r, zap.NewNop())
	assert.False(t, ok)
	assert.Equal(t, 400, w.Code)
	assert.Contains(t, w.Body.String(), "invalid_requirement_id")
}

func TestParseMatchID_Invalid(t *testing.T) {
	r := httptest.NewRequest("POST", "/api/matches/xyz/feedback", nil)
	r.SetPathValue("mid", "xyz")
	w := httptest.NewRecorder()

	_, ok := ParseMatchID(w, r, zap.NewNop())
	assert.False(t, ok)
	assert.Contains(t, w.Body.String(), "invalid_match_id")
}

func TestQueryLimit(t *testing.T) {
	r := httptest.NewRequest("GET", "/api/audit?limit=25", nil)
	assert.Equal(t, 25, QueryLimit(r, 50))

	r = httptest.NewRequest("GET", "/api/audit", nil)
	assert.Equal(t, 50, QueryLimit(r, 50))

	r = httptest.NewRequest("GET", "/api/audit?limit=abc", nil)
	assert.Equal(t, 50, QueryLimit(r, 50))

	r = httptest.NewRequest("GET", "/api/audit?limit=-5", nil)
	assert.Equal(t, 50, QueryLimit(r, 50))
}
