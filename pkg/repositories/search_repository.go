package repositories

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/pgvector/pgvector-go"

	"github.com/benchlane/benchlane-engine/pkg/apperrors"
	"github.com/benchlane/benchlane-engine/pkg/database"
	"github.com/benchlane/benchlane-engine/pkg/models"
)

// SearchRepository provides data access for the hybrid search index.
type SearchRepository interface {
	// UpsertDocument writes the index row for one entity, replacing any
	// previous content, metadata, and embedding.
	UpsertDocument(ctx context.Context, doc *models.SearchDocument) error

	// HybridSearch ranks indexed entities by the weighted combination of
	// vector cosine similarity and lexical ts_rank. Filters are applied as
	// hard predicates before ranking. queryEmbedding may be the zero vector,
	// in which case the vector term contributes 0.
	HybridSearch(ctx context.Context, q *models.HybridQuery, queryEmbedding []float32, vectorWeight, lexicalWeight float64, maxResults int) ([]*models.HybridResult, error)

	// DeleteForEntity removes the index row for one entity.
	DeleteForEntity(ctx context.Context, entityType string, entityID uuid.UUID) error
}

type searchRepository struct{}

// NewSearchRepository creates a new SearchRepository.
func NewSearchRepository() SearchRepository {
	return &searchRepository{}
}

var _ SearchRepository = (*searchRepository)(nil)

func (r *searchRepository) UpsertDocument(ctx context.Context, doc *models.SearchDocument) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	metadataJSON, err := json.Marshal(doc.Metadata)
	if err != nil {
		return fmt.Errorf("failed to marshal search metadata: %w", err)
	}

	doc.TenantID = scope.TenantID
	doc.UpdatedAt = time.Now()

	_, err = scope.Conn.Exec(ctx, `
		INSERT INTO engine_search_documents (tenant_id, entity_type, entity_id, content, metadata, embedding, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (tenant_id, entity_type, entity_id)
		DO UPDATE SET content = EXCLUDED.content,
		              metadata = EXCLUDED.metadata,
		              embedding = EXCLUDED.embedding,
		              updated_at = EXCLUDED.updated_at`,
		doc.TenantID, doc.EntityType, doc.EntityID, doc.Content,
		metadataJSON, pgvector.NewVector(doc.Embedding), doc.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to upsert search document: %w", err)
	}

	return nil
}

func (r *searchRepository) HybridSearch(ctx context.Context, q *models.HybridQuery, queryEmbedding []float32, vectorWeight, lexicalWeight float64, maxResults int) ([]*models.HybridResult, error) {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return nil, apperrors.ErrNoTenantScope
	}

	limit := q.Limit
	if limit <= 0 || limit > maxResults {
		limit = maxResults
	}

	entityTypes := q.EntityTypes
	if len(entityTypes) == 0 {
		entityTypes = []string{models.EntityTypeConsultant, models.EntityTypeRequirement}
	}

	// The vector term is zeroed when the caller has no query embedding
	// (embedder disabled or failing); the lexical term is zeroed for an
	// empty query. Filters are hard predicates evaluated before ranking.
	query := `
		WITH scored AS (
			SELECT entity_type, entity_id, content, metadata,
			       CASE WHEN $4::boolean THEN GREATEST(1 - (embedding <=> $3::vector), 0) ELSE 0 END AS vector_score,
			       CASE WHEN $5 <> '' THEN ts_rank(search_vector, plainto_tsquery('english', $5)) ELSE 0 END AS lexical_score
			FROM engine_search_documents
			WHERE tenant_id = $1
			  AND entity_type = ANY($2)
			  AND ($6 = '' OR metadata->>'location' ILIKE '%' || $6 || '%')
			  AND (cardinality($7::text[]) = 0 OR (metadata->'skills') @> to_jsonb($7::text[]))
			  AND ($8::double precision IS NULL OR (metadata->'rate_range'->>1)::double precision <= $8)
		)
		SELECT entity_type, entity_id, content, metadata, vector_score, lexical_score,
		       ($9 * vector_score + $10 * lexical_score) AS total_score
		FROM scored
		ORDER BY total_score DESC
		LIMIT $11`

	var (
		filterLocation string
		filterSkills   = []string{}
		filterMaxRate  *float64
	)
	if q.Filters != nil {
		filterLocation = q.Filters.Location
		if len(q.Filters.Skills) > 0 {
			filterSkills = q.Filters.Skills
		}
		filterMaxRate = q.Filters.MaxRate
	}

	hasEmbedding := false
	for _, v := range queryEmbedding {
		if v != 0 {
			hasEmbedding = true
			break
		}
	}

	rows, err := scope.Conn.Query(ctx, query,
		scope.TenantID, entityTypes, pgvector.NewVector(queryEmbedding), hasEmbedding,
		q.Query, filterLocation, filterSkills, filterMaxRate,
		vectorWeight, lexicalWeight, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to run hybrid search: %w", err)
	}
	defer rows.Close()

	var results []*models.HybridResult
	for rows.Next() {
		var res models.HybridResult
		var metadataJSON []byte
		if err := rows.Scan(
			&res.EntityType, &res.EntityID, &res.Content, &metadataJSON,
			&res.VectorScore, &res.LexicalScore, &res.TotalScore,
		); err != nil {
			return nil, fmt.Errorf("failed to scan hybrid result: %w", err)
		}
		if len(metadataJSON) > 0 {
			if err := json.Unmarshal(metadataJSON, &res.Metadata); err != nil {
				return nil, fmt.Errorf("failed to unmarshal search metadata: %w", err)
			}
		}
		results = append(results, &res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating hybrid results: %w", err)
	}

	return results, nil
}

func (r *searchRepository) DeleteForEntity(ctx context.Context, entityType string, entityID uuid.UUID) error {
	scope, ok := database.GetTenantScope(ctx)
	if !ok {
		return apperrors.ErrNoTenantScope
	}

	_, err := scope.Conn.Exec(ctx,
		`DELETE FROM engine_search_documents WHERE tenant_id = $1 AND entity_type = $2 AND entity_id = $3`,
		scope.TenantID, entityType, entityID,
	)
	if err != nil {
		return fmt.Errorf("failed to delete search document: %w", err)
	}
	return nil
}
