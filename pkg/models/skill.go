package models

import (
	"time"

	"github.com/google/uuid"
)

// OntologyVersion represents a published version of the skill ontology.
// Exactly one version is active at a time.
type OntologyVersion struct {
	ID          uuid.UUID `json:"id"`
	Version     string    `json:"version"`
	Source      string    `json:"source"`
	IsActive    bool      `json:"is_active"`
	PublishedAt time.Time `json:"published_at"`
	CreatedAt   time.Time `json:"created_at"`
}

// OntologyNode is a canonical skill concept within one ontology version.
// Unique by (version_id, canonical_name).
type OntologyNode struct {
	ID            uuid.UUID `json:"id"`
	VersionID     uuid.UUID `json:"version_id"`
	CanonicalName string    `json:"canonical_name"`
	Code          *string   `json:"code,omitempty"`
	Category      *string   `json:"category,omitempty"`
	Tags          []string  `json:"tags,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
}

// Alias match types.
const (
	AliasMatchExact  = "exact"
	AliasMatchFuzzy  = "fuzzy"
	AliasMatchRegex  = "regex"
	AliasMatchVendor = "vendor"
)

// OntologyAlias maps a surface form to an ontology node.
// Values are stored lowercased; unique by (node_id, value).
type OntologyAlias struct {
	ID         uuid.UUID `json:"id"`
	NodeID     uuid.UUID `json:"node_id"`
	Value      string    `json:"value"`
	Locale     *string   `json:"locale,omitempty"`
	MatchType  string    `json:"match_type"`
	Confidence *float64  `json:"confidence,omitempty"`
}

// Skill is a global canonical skill, optionally linked to the active
// ontology version through OntologyNodeID.
type Skill struct {
	ID             uuid.UUID  `json:"id"`
	Name           string     `json:"name"`
	Category       *string    `json:"category,omitempty"`
	OntologyNodeID *uuid.UUID `json:"ontology_node_id,omitempty"`
	CreatedAt      time.Time  `json:"created_at"`
}

// DefaultSkillWeight is applied to skill edges created by automated tagging.
// Recruiters adjust weights through the profile surface afterwards.
const DefaultSkillWeight = 50

// WeightedSkill is a skill edge with a 0..100 weight, used on both
// consultants and requirements.
type WeightedSkill struct {
	SkillID uuid.UUID `json:"skill_id"`
	Name    string    `json:"name"`
	Weight  int       `json:"weight"`
}
