package ingestion

import (
	"regexp"
	"sort"
	"strings"

	"github.com/google/uuid"

	"github.com/benchlane/benchlane-engine/pkg/models"
)

var signatureDigits = regexp.MustCompile(`\D`)

// BuildSignatures derives the consultant's identity signatures from its
// current attributes. Empty attributes yield no signature of that kind.
func BuildSignatures(consultant *models.Consultant) []*models.IdentitySignature {
	var signatures []*models.IdentitySignature

	if consultant.Email != nil {
		if value := strings.ToLower(strings.TrimSpace(*consultant.Email)); value != "" {
			signatures = append(signatures, &models.IdentitySignature{
				Kind:  models.SignatureKindEmail,
				Value: value,
			})
		}
	}
	if consultant.Phone != nil {
		if value := signatureDigits.ReplaceAllString(*consultant.Phone, ""); value != "" {
			signatures = append(signatures, &models.IdentitySignature{
				Kind:  models.SignatureKindPhone,
				Value: value,
			})
		}
	}

	location := ""
	if consultant.Location != nil {
		location = *consultant.Location
	}
	nameLoc := strings.ToLower(strings.TrimSpace(
		consultant.FirstName + consultant.LastName + location))
	if strings.TrimSpace(consultant.FirstName+consultant.LastName) != "" {
		signatures = append(signatures, &models.IdentitySignature{
			Kind:  models.SignatureKindNameLoc,
			Value: nameLoc,
		})
	}

	return signatures
}

// ClusterSignatures computes duplicate-candidate clusters: any two
// consultants sharing a non-empty (kind, value) signature are connected, and
// a cluster is the transitive closure of those edges. Singleton groups are
// not clusters.
func ClusterSignatures(signatures []*models.IdentitySignature) *models.DuplicateCandidates {
	parent := make(map[uuid.UUID]uuid.UUID)

	var find func(id uuid.UUID) uuid.UUID
	find = func(id uuid.UUID) uuid.UUID {
		if parent[id] != id {
			parent[id] = find(parent[id])
		}
		return parent[id]
	}
	union := func(a, b uuid.UUID) {
		ra, rb := find(a), find(b)
		if ra != rb {
			parent[rb] = ra
		}
	}

	bySignature := make(map[string][]uuid.UUID)
	for _, signature := range signatures {
		if signature.Value == "" {
			continue
		}
		if _, ok := parent[signature.ConsultantID]; !ok {
			parent[signature.ConsultantID] = signature.ConsultantID
		}
		key := signature.Kind + "\x00" + signature.Value
		bySignature[key] = append(bySignature[key], signature.ConsultantID)
	}

	for _, members := range bySignature {
		for i := 1; i < len(members); i++ {
			union(members[0], members[i])
		}
	}

	groups := make(map[uuid.UUID][]uuid.UUID)
	for id := range parent {
		root := find(id)
		groups[root] = append(groups[root], id)
	}

	result := &models.DuplicateCandidates{}
	for _, members := range groups {
		if len(members) < 2 {
			continue
		}
		sort.Slice(members, func(i, j int) bool {
			return members[i].String() < members[j].String()
		})
		result.Clusters = append(result.Clusters, models.IdentityCluster{
			Members: members,
			Status:  models.ClusterStatusPending,
		})
	}
	sort.Slice(result.Clusters, func(i, j int) bool {
		return result.Clusters[i].Members[0].String() < result.Clusters[j].Members[0].String()
	})
	result.PendingClusters = len(result.Clusters)

	return result
}
