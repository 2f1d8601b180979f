package services

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/benchlane/benchlane-engine/pkg/models"
)

func strPtr(s string) *string     { return &s }
func floatPtr(f float64) *float64 { return &f }

func weighted(name string, weight int) models.WeightedSkill {
	return models.WeightedSkill{Name: name, Weight: weight}
}

func TestSkillOverlap_WeightCapped(t *testing.T) {
	consultant := []models.WeightedSkill{
		weighted("Go", 80),
		weighted("Kubernetes", 40),
	}
	requirement := []models.WeightedSkill{
		weighted("go", 60),         // capped at requirement weight
		weighted("Kubernetes", 60), // capped at consultant weight
		weighted("Terraform", 30),  // missing
	}

	// (min(60,80) + min(60,40)) / (60+60+30) = 100/150
	assert.InDelta(t, 100.0/150.0, skillOverlap(consultant, requirement), 1e-9)
}

func TestSkillOverlap_NoRequirementSkills(t *testing.T) {
	assert.Zero(t, skillOverlap([]models.WeightedSkill{weighted("Go", 80)}, nil))
}

func TestSkillOverlap_CaseInsensitive(t *testing.T) {
	overlap := skillOverlap(
		[]models.WeightedSkill{weighted("PYTHON", 70)},
		[]models.WeightedSkill{weighted("python", 70)},
	)
	assert.InDelta(t, 1.0, overlap, 1e-9)
}

func TestAvailabilityScore(t *testing.T) {
	assert.Equal(t, 1.0, availabilityScore(models.AvailabilityAvailable))
	assert.Equal(t, 0.6, availabilityScore(models.AvailabilityInterviewing))
	assert.Equal(t, 0.25, availabilityScore(models.AvailabilityAssigned))
	assert.Equal(t, 0.0, availabilityScore(models.AvailabilityUnavailable))
	assert.Equal(t, 0.0, availabilityScore(""))
}

func TestLocationMatch(t *testing.T) {
	tests := []struct {
		name        string
		consultant  *string
		requirement *string
		want        float64
	}{
		{"exact", strPtr("Austin, TX"), strPtr("austin, tx"), 1},
		{"remote requirement", strPtr("Austin, TX"), strPtr("Remote"), 0.8},
		{"remote consultant", strPtr("Remote (US)"), strPtr("Dallas, TX"), 0.8},
		{"same city different suffix", strPtr("Austin, TX"), strPtr("Austin, Texas"), 0.6},
		{"mismatch", strPtr("Austin, TX"), strPtr("Dallas, TX"), 0.25},
		{"consultant missing", nil, strPtr("Austin, TX"), 0.5},
		{"requirement missing", strPtr("Austin, TX"), nil, 0.5},
		{"requirement blank", strPtr("Austin, TX"), strPtr("  "), 0.5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.InDelta(t, tt.want, locationMatch(tt.consultant, tt.requirement), 1e-9)
		})
	}
}

func TestRateAlignment(t *testing.T) {
	t.Run("within band", func(t *testing.T) {
		assert.Equal(t, 1.0, rateAlignment(floatPtr(85), floatPtr(70), floatPtr(100)))
	})

	t.Run("outside band decays from midpoint", func(t *testing.T) {
		// mid=85, span=30, |120-85|/(1.5*30) = 35/45
		got := rateAlignment(floatPtr(120), floatPtr(70), floatPtr(100))
		assert.InDelta(t, 1-35.0/45.0, got, 1e-9)
	})

	t.Run("far outside band clamps to zero", func(t *testing.T) {
		assert.Equal(t, 0.0, rateAlignment(floatPtr(300), floatPtr(70), floatPtr(100)))
	})

	t.Run("single bound", func(t *testing.T) {
		// |90-100|/100 = 0.1 off target
		assert.InDelta(t, 0.9, rateAlignment(floatPtr(90), nil, floatPtr(100)), 1e-9)
		assert.InDelta(t, 0.9, rateAlignment(floatPtr(110), floatPtr(100), nil), 1e-9)
	})

	t.Run("zero target is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, rateAlignment(floatPtr(90), floatPtr(0), nil))
	})

	t.Run("no rate is neutral", func(t *testing.T) {
		assert.Equal(t, 0.5, rateAlignment(nil, floatPtr(70), floatPtr(100)))
		assert.Equal(t, 0.5, rateAlignment(floatPtr(90), nil, nil))
	})

	t.Run("degenerate band uses unit span", func(t *testing.T) {
		// lo == hi == 100, span floors at 1: 1 - 5/1.5 clamps to 0
		assert.Equal(t, 0.0, rateAlignment(floatPtr(105), floatPtr(100), floatPtr(100)))
	})
}

func TestRecencyScore(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)

	assert.Equal(t, 0.0, recencyScore(time.Time{}, now))
	assert.InDelta(t, 1.0, recencyScore(now, now), 1e-9)
	assert.InDelta(t, 0.5, recencyScore(now.Add(-45*24*time.Hour), now), 1e-9)
	assert.Equal(t, 0.0, recencyScore(now.Add(-120*24*time.Hour), now))
	// A future timestamp reads as fully fresh, not out of range.
	assert.InDelta(t, 1.0, recencyScore(now.Add(time.Hour), now), 1e-9)
}

func TestExtractFeatures_CarriesRetrievalScores(t *testing.T) {
	now := time.Date(2026, 8, 1, 0, 0, 0, 0, time.UTC)
	consultant := &models.Consultant{
		Availability: models.AvailabilityAvailable,
		Location:     strPtr("Austin, TX"),
		Rate:         floatPtr(85),
		Skills:       []models.WeightedSkill{weighted("Go", 80)},
		UpdatedAt:    now,
	}
	requirement := &models.Requirement{
		Location: strPtr("Austin, TX"),
		MinRate:  floatPtr(70),
		MaxRate:  floatPtr(100),
		Skills:   []models.WeightedSkill{weighted("Go", 60)},
	}

	features := ExtractFeatures(consultant, requirement, &models.HybridResult{
		VectorScore:  0.7,
		LexicalScore: 0.4,
	}, now)

	assert.Equal(t, 0.7, features.VectorScore)
	assert.Equal(t, 0.4, features.LexicalScore)
	assert.Equal(t, 1.0, features.SkillOverlap)
	assert.Equal(t, 1.0, features.Availability)
	assert.Equal(t, 1.0, features.LocationMatch)
	assert.Equal(t, 1.0, features.RateAlignment)

	withoutRetrieval := ExtractFeatures(consultant, requirement, nil, now)
	assert.Zero(t, withoutRetrieval.VectorScore)
	assert.Zero(t, withoutRetrieval.LexicalScore)
}

func TestLinearScore(t *testing.T) {
	perfect := models.FeatureVector{
		SkillOverlap:  1,
		VectorScore:   1,
		LexicalScore:  1,
		Availability:  1,
		LocationMatch: 1,
		RateAlignment: 1,
		RecencyScore:  1,
	}
	// Weights sum to 1, so a perfect vector saturates regardless of base.
	assert.Equal(t, 1.0, LinearScore(perfect, 0.2))

	assert.InDelta(t, 0.2, LinearScore(models.FeatureVector{}, 0.2), 1e-9)

	partial := models.FeatureVector{SkillOverlap: 0.5, Availability: 1}
	assert.InDelta(t, 0.2+0.35*0.5+0.10, LinearScore(partial, 0.2), 1e-9)
}

func TestContributions_SortedDescending(t *testing.T) {
	features := models.FeatureVector{
		SkillOverlap:  0.9, // 0.315
		VectorScore:   0.5, // 0.125
		Availability:  1,   // 0.10
		LocationMatch: 0.25,
		RecencyScore:  1, // 0.03
	}

	contributions := Contributions(features)
	require.Len(t, contributions, 7)

	assert.Equal(t, "skillOverlap", contributions[0].Feature)
	assert.InDelta(t, 0.315, contributions[0].Contribution, 1e-9)
	for i := 1; i < len(contributions); i++ {
		assert.GreaterOrEqual(t,
			contributions[i-1].Contribution, contributions[i].Contribution)
	}
}

func TestHardFilter(t *testing.T) {
	requirement := &models.Requirement{
		Location: strPtr("Austin, TX"),
		Skills:   []models.WeightedSkill{weighted("Go", 60)},
	}
	passing := models.FeatureVector{
		SkillOverlap:  0.5,
		Availability:  1,
		LocationMatch: 0.6,
		RateAlignment: 0.8,
	}

	assert.True(t, HardFilter(passing, requirement))

	unavailable := passing
	unavailable.Availability = 0
	assert.False(t, HardFilter(unavailable, requirement))

	lowSkill := passing
	lowSkill.SkillOverlap = 0.1
	assert.False(t, HardFilter(lowSkill, requirement))

	wrongPlace := passing
	wrongPlace.LocationMatch = 0.1
	assert.False(t, HardFilter(wrongPlace, requirement))

	badRate := passing
	badRate.RateAlignment = 0.1
	assert.False(t, HardFilter(badRate, requirement))
}

func TestHardFilter_ConditionalPredicates(t *testing.T) {
	// No skills on the requirement: the overlap filter does not apply.
	noSkills := &models.Requirement{Location: strPtr("Austin, TX")}
	features := models.FeatureVector{
		SkillOverlap:  0,
		Availability:  1,
		LocationMatch: 0.6,
		RateAlignment: 0.8,
	}
	assert.True(t, HardFilter(features, noSkills))

	// No location on the requirement: the location filter does not apply.
	noLocation := &models.Requirement{Skills: []models.WeightedSkill{weighted("Go", 60)}}
	features.SkillOverlap = 0.5
	features.LocationMatch = 0.1
	assert.True(t, HardFilter(features, noLocation))
}
