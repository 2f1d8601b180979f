package services

import (
	"math"
	"sort"
	"strings"
	"time"

	"github.com/benchlane/benchlane-engine/pkg/models"
)

// ModelVersion tags feature snapshots with the feature/weight revision that
// produced them.
const ModelVersion = "match-features-v1"

// Linear scoring weights, fixed per model version.
var linearWeights = map[string]float64{
	"skillOverlap":  0.35,
	"vectorScore":   0.25,
	"lexicalScore":  0.10,
	"availability":  0.10,
	"locationMatch": 0.10,
	"rateAlignment": 0.07,
	"recencyScore":  0.03,
}

// recencyHorizon is the staleness window after which a profile's recency
// score bottoms out.
const recencyHorizon = 90 * 24 * time.Hour

func clamp01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// ExtractFeatures computes the candidate's feature vector against a
// requirement. retrieval may be nil when the candidate did not come from
// hybrid retrieval.
func ExtractFeatures(consultant *models.Consultant, requirement *models.Requirement, retrieval *models.HybridResult, now time.Time) models.FeatureVector {
	features := models.FeatureVector{
		SkillOverlap:  skillOverlap(consultant.Skills, requirement.Skills),
		Availability:  availabilityScore(consultant.Availability),
		LocationMatch: locationMatch(consultant.Location, requirement.Location),
		RateAlignment: rateAlignment(consultant.Rate, requirement.MinRate, requirement.MaxRate),
		RecencyScore:  recencyScore(consultant.UpdatedAt, now),
	}
	if retrieval != nil {
		features.VectorScore = retrieval.VectorScore
		features.LexicalScore = retrieval.LexicalScore
	}
	return features
}

// skillOverlap is the weight-capped overlap ratio: for each shared skill the
// contribution is min(requirement weight, consultant weight), normalised by
// the requirement's total weight.
func skillOverlap(consultantSkills, requirementSkills []models.WeightedSkill) float64 {
	if len(requirementSkills) == 0 {
		return 0
	}

	consultantWeights := make(map[string]int, len(consultantSkills))
	for _, skill := range consultantSkills {
		consultantWeights[strings.ToLower(skill.Name)] = skill.Weight
	}

	totalWeight := 0
	overlap := 0
	for _, skill := range requirementSkills {
		totalWeight += skill.Weight
		if conWeight, ok := consultantWeights[strings.ToLower(skill.Name)]; ok {
			overlap += min(skill.Weight, conWeight)
		}
	}
	if totalWeight == 0 {
		return 0
	}
	return clamp01(float64(overlap) / float64(totalWeight))
}

func availabilityScore(availability string) float64 {
	switch availability {
	case models.AvailabilityAvailable:
		return 1
	case models.AvailabilityInterviewing:
		return 0.6
	case models.AvailabilityAssigned:
		return 0.25
	default:
		return 0
	}
}

func locationMatch(consultantLocation, requirementLocation *string) float64 {
	if consultantLocation == nil || requirementLocation == nil ||
		strings.TrimSpace(*consultantLocation) == "" || strings.TrimSpace(*requirementLocation) == "" {
		return 0.5
	}
	conLoc := strings.ToLower(strings.TrimSpace(*consultantLocation))
	reqLoc := strings.ToLower(strings.TrimSpace(*requirementLocation))

	if conLoc == reqLoc {
		return 1
	}
	if strings.Contains(conLoc, "remote") || strings.Contains(reqLoc, "remote") {
		return 0.8
	}
	if firstSegment(conLoc) == firstSegment(reqLoc) {
		return 0.6
	}
	return 0.25
}

func firstSegment(location string) string {
	segment, _, _ := strings.Cut(location, ",")
	return strings.TrimSpace(segment)
}

func rateAlignment(rate, minRate, maxRate *float64) float64 {
	if rate == nil {
		return 0.5
	}
	r := *rate

	switch {
	case minRate != nil && maxRate != nil:
		lo, hi := *minRate, *maxRate
		if r >= lo && r <= hi {
			return 1
		}
		mid := (lo + hi) / 2
		span := math.Max(hi-lo, 1)
		return clamp01(1 - math.Abs(r-mid)/(1.5*span))
	case minRate != nil || maxRate != nil:
		target := 0.0
		if minRate != nil {
			target = *minRate
		} else {
			target = *maxRate
		}
		if target == 0 {
			return 0.5
		}
		return clamp01(1 - math.Abs(r-target)/target)
	default:
		return 0.5
	}
}

func recencyScore(updatedAt, now time.Time) float64 {
	if updatedAt.IsZero() {
		return 0
	}
	age := now.Sub(updatedAt)
	if age < 0 {
		age = 0
	}
	return clamp01(1 - age.Seconds()/recencyHorizon.Seconds())
}

// LinearScore applies the fixed weights plus the configured base weight.
func LinearScore(features models.FeatureVector, baseWeight float64) float64 {
	score := baseWeight
	for feature, value := range featureMap(features) {
		score += linearWeights[feature] * value
	}
	return clamp01(score)
}

// Contributions lists each feature's weighted share of the linear score,
// sorted by contribution descending.
func Contributions(features models.FeatureVector) []models.FeatureContribution {
	contributions := make([]models.FeatureContribution, 0, len(linearWeights))
	for feature, value := range featureMap(features) {
		weight := linearWeights[feature]
		contributions = append(contributions, models.FeatureContribution{
			Feature:      feature,
			Value:        value,
			Weight:       weight,
			Contribution: weight * value,
		})
	}
	sortContributions(contributions)
	return contributions
}

func sortContributions(contributions []models.FeatureContribution) {
	sort.Slice(contributions, func(i, j int) bool {
		return contributions[i].Contribution > contributions[j].Contribution
	})
}

func featureMap(features models.FeatureVector) map[string]float64 {
	return map[string]float64{
		"skillOverlap":  features.SkillOverlap,
		"vectorScore":   features.VectorScore,
		"lexicalScore":  features.LexicalScore,
		"availability":  features.Availability,
		"locationMatch": features.LocationMatch,
		"rateAlignment": features.RateAlignment,
		"recencyScore":  features.RecencyScore,
	}
}

// HardFilter reports whether a candidate survives the hard filters. Skill
// and location filters only apply when the requirement specifies them.
func HardFilter(features models.FeatureVector, requirement *models.Requirement) bool {
	if features.Availability <= 0 {
		return false
	}
	if len(requirement.Skills) > 0 && features.SkillOverlap < 0.15 {
		return false
	}
	if requirement.Location != nil && strings.TrimSpace(*requirement.Location) != "" &&
		features.LocationMatch < 0.25 {
		return false
	}
	if features.RateAlignment < 0.2 {
		return false
	}
	return true
}
