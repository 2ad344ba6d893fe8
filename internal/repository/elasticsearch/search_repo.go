package elasticsearch

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banking/riskguard/internal/config"
	"github.com/banking/riskguard/internal/domain"
	elastic "github.com/elastic/go-elasticsearch/v8"
	"github.com/google/uuid"
)

// AssessmentDocument is the flattened shape indexed per evaluation. Operators
// search on band, score and alert rules rather than the raw dossier.
type AssessmentDocument struct {
	DossierID      string    `json:"dossier_id"`
	Kind           string    `json:"kind"` // "score" or "alerts"
	NumericScore   float64   `json:"numeric_score,omitempty"`
	Band           string    `json:"band,omitempty"`
	Recommendation string    `json:"recommendation,omitempty"`
	AlertRules     []string  `json:"alert_rules,omitempty"`
	MaxSeverity    string    `json:"max_severity,omitempty"`
	Timestamp      time.Time `json:"timestamp"`
}

type SearchRepository struct {
	client *elastic.Client
	index  string
}

// NewSearchRepository creates a new search repository
func NewSearchRepository(cfg config.ElasticsearchConfig) (*SearchRepository, error) {
	client, err := elastic.NewClient(elastic.Config{
		Addresses: cfg.Addresses,
		Username:  cfg.Username,
		Password:  cfg.Password,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create elasticsearch client: %w", err)
	}

	// Verify connection
	_, err = client.Info()
	if err != nil {
		return nil, fmt.Errorf("failed to connect to elasticsearch: %w", err)
	}

	return &SearchRepository{
		client: client,
		index:  cfg.Index,
	}, nil
}

// IndexScore indexes one evaluation outcome
func (r *SearchRepository) IndexScore(ctx context.Context, dossierID uuid.UUID, result *domain.ScoreResult) error {
	doc := AssessmentDocument{
		DossierID:      dossierID.String(),
		Kind:           "score",
		NumericScore:   result.NumericScore,
		Band:           string(result.Band),
		Recommendation: result.Recommendation,
		Timestamp:      result.EvaluatedAt,
	}
	return r.indexDocument(ctx, dossierID.String()+":score:"+result.EvaluatedAt.Format(time.RFC3339Nano), doc)
}

// IndexAlerts indexes the alert set from one detection run
func (r *SearchRepository) IndexAlerts(ctx context.Context, dossierID uuid.UUID, alerts []domain.FraudAlert) error {
	doc := AssessmentDocument{
		DossierID: dossierID.String(),
		Kind:      "alerts",
		Timestamp: time.Now().UTC(),
	}
	maxRank := -1
	severityRank := map[domain.AlertSeverity]int{
		domain.SeverityInfo:     0,
		domain.SeverityWarning:  1,
		domain.SeverityCritical: 2,
	}
	for _, a := range alerts {
		doc.AlertRules = append(doc.AlertRules, a.RuleID)
		if rank := severityRank[a.Severity]; rank > maxRank {
			maxRank = rank
			doc.MaxSeverity = string(a.Severity)
		}
	}
	return r.indexDocument(ctx, dossierID.String()+":alerts:"+doc.Timestamp.Format(time.RFC3339Nano), doc)
}

func (r *SearchRepository) indexDocument(ctx context.Context, docID string, doc AssessmentDocument) error {
	data, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("failed to marshal document: %w", err)
	}

	res, err := r.client.Index(
		r.index,
		bytes.NewReader(data),
		r.client.Index.WithContext(ctx),
		r.client.Index.WithDocumentID(docID),
	)
	if err != nil {
		return fmt.Errorf("failed to index document: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("elasticsearch error: %s", res.String())
	}

	return nil
}

// SearchAssessments runs a query-string search over indexed assessments,
// e.g. `band:HIGH AND kind:score` or `alert_rules:velocite_soumission`.
func (r *SearchRepository) SearchAssessments(ctx context.Context, query string, from, size int) ([]AssessmentDocument, int64, error) {
	esQuery := map[string]interface{}{
		"from": from,
		"size": size,
		"query": map[string]interface{}{
			"query_string": map[string]interface{}{
				"query": query,
			},
		},
		"sort": []map[string]interface{}{
			{"timestamp": "desc"},
		},
	}

	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(esQuery); err != nil {
		return nil, 0, fmt.Errorf("failed to encode query: %w", err)
	}

	res, err := r.client.Search(
		r.client.Search.WithContext(ctx),
		r.client.Search.WithIndex(r.index),
		r.client.Search.WithBody(&buf),
	)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to perform search: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return nil, 0, fmt.Errorf("elasticsearch search error: %s", res.String())
	}

	var result map[string]interface{}
	if err := json.NewDecoder(res.Body).Decode(&result); err != nil {
		return nil, 0, fmt.Errorf("failed to decode response: %w", err)
	}

	hitsMap, ok := result["hits"].(map[string]interface{})
	if !ok {
		return nil, 0, nil
	}

	var total int64
	if totalMap, ok := hitsMap["total"].(map[string]interface{}); ok {
		if val, ok := totalMap["value"].(float64); ok {
			total = int64(val)
		}
	}

	hitsList, ok := hitsMap["hits"].([]interface{})
	if !ok {
		return nil, total, nil
	}

	var docs []AssessmentDocument
	for _, hit := range hitsList {
		hitMap, ok := hit.(map[string]interface{})
		if !ok {
			continue
		}
		source, ok := hitMap["_source"].(map[string]interface{})
		if !ok {
			continue
		}

		sourceBytes, _ := json.Marshal(source)
		var doc AssessmentDocument
		if err := json.Unmarshal(sourceBytes, &doc); err == nil {
			docs = append(docs, doc)
		}
	}

	return docs, total, nil
}
