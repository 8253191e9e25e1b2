// internal/agents/sentiment/service.go
package sentiment

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/elastic/go-elasticsearch/v8"
	"github.com/elastic/go-elasticsearch/v8/esapi"

	"insight-orchestrator/internal/agents"
	"insight-orchestrator/internal/common/logger"
)

const AgentID = "sentiment"

var (
	ErrSentimentQueryFailed = errors.New("SENTIMENT_QUERY_FAILED")
	ErrNoReviewData         = errors.New("NO_REVIEW_DATA")
)

// Service aggregates customer review sentiment for a tenant from the search
// index. The aggregate score is the average rating normalized to [0,1].
type Service struct {
	config   *Config
	esClient *elasticsearch.Client
	logger   logger.Logger
}

func NewService(config *Config, esClient *elasticsearch.Client, log logger.Logger) *Service {
	return &Service{
		config:   config,
		esClient: esClient,
		logger: log.With(map[string]interface{}{
			"agentId": AgentID,
		}),
	}
}

func (s *Service) ID() string { return AgentID }

func (s *Service) Execute(ctx context.Context, input agents.Input) (*agents.Output, error) {
	queryBody := s.buildQuery(input)
	body, _ := json.Marshal(queryBody)

	size := s.config.MaxSamples
	req := esapi.SearchRequest{
		Index: []string{s.config.Index},
		Body:  strings.NewReader(string(body)),
		Size:  &size,
	}

	res, err := req.Do(ctx, s.esClient)
	if err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return nil, fmt.Errorf("%w: deadline exceeded", ErrSentimentQueryFailed)
		}
		return nil, fmt.Errorf("%w: %v", ErrSentimentQueryFailed, err)
	}
	defer res.Body.Close()

	if res.IsError() {
		io.Copy(io.Discard, res.Body)
		return nil, fmt.Errorf("%w: %s", ErrSentimentQueryFailed, res.Status())
	}

	var parsed searchResponse
	if err := json.NewDecoder(res.Body).Decode(&parsed); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", ErrSentimentQueryFailed, err)
	}

	total := parsed.Hits.Total.Value
	if total < s.config.MinReviews || parsed.Aggregations.AvgRating.Value == nil {
		return nil, ErrNoReviewData
	}

	score := *parsed.Aggregations.AvgRating.Value / 5.0
	score = math.Max(0, math.Min(1, score))

	negatives := make([]map[string]interface{}, 0)
	for _, hit := range parsed.Hits.Hits {
		if hit.Source.Rating <= 2 {
			negatives = append(negatives, map[string]interface{}{
				"productId": hit.Source.ProductID,
				"rating":    hit.Source.Rating,
				"text":      hit.Source.Text,
			})
		}
	}

	s.logger.Info("sentiment aggregation completed", map[string]interface{}{
		"tenantId":   input.TenantID,
		"score":      score,
		"sampleSize": total,
		"negatives":  len(negatives),
	})

	return &agents.Output{
		Data: map[string]interface{}{
			"score":           score,
			"sampleSize":      total,
			"negativeReviews": len(negatives),
			"negativeSamples": negatives,
			"recommendations": s.buildRecommendations(score, len(negatives)),
		},
		Confidence: reviewConfidence(total),
	}, nil
}

func (s *Service) buildQuery(input agents.Input) map[string]interface{} {
	filterClauses := []interface{}{
		map[string]interface{}{
			"term": map[string]interface{}{"tenant_id": input.TenantID},
		},
	}

	if ids := stringSliceParam(input.Parameters, "productIds"); len(ids) > 0 {
		filterClauses = append(filterClauses, map[string]interface{}{
			"terms": map[string]interface{}{"product_id": ids},
		})
	}

	return map[string]interface{}{
		"query": map[string]interface{}{
			"bool": map[string]interface{}{
				"filter": filterClauses,
			},
		},
		"aggs": map[string]interface{}{
			"avg_rating": map[string]interface{}{
				"avg": map[string]interface{}{"field": "rating"},
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"created_at": map[string]interface{}{"order": "desc"}},
		},
	}
}

func (s *Service) buildRecommendations(score float64, negatives int) []map[string]interface{} {
	var recs []map[string]interface{}
	if score < 0.4 {
		recs = append(recs, map[string]interface{}{
			"title":    "Investigate recurring complaints",
			"detail":   fmt.Sprintf("aggregate sentiment %.2f with %d recent negative reviews", score, negatives),
			"impact":   "high",
			"urgency":  "high",
			"priority": "high",
		})
	} else if score < 0.5 {
		recs = append(recs, map[string]interface{}{
			"title":    "Follow up on negative reviews",
			"detail":   fmt.Sprintf("%d recent negative reviews", negatives),
			"impact":   "medium",
			"urgency":  "medium",
			"priority": "medium",
		})
	}
	return recs
}

func reviewConfidence(n int) float64 {
	// 30+ reviews is a solid sample.
	c := 0.4 + float64(n)*0.02
	return math.Min(c, 0.95)
}

func stringSliceParam(params map[string]interface{}, key string) []string {
	raw, ok := params[key]
	if !ok {
		return nil
	}
	switch v := raw.(type) {
	case []string:
		return v
	case []interface{}:
		out := make([]string, 0, len(v))
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
			}
		}
		return out
	default:
		return nil
	}
}
