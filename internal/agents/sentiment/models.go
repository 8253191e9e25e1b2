// internal/agents/sentiment/models.go
package sentiment

// searchResponse is the subset of the Elasticsearch response we consume.
type searchResponse struct {
	Took int `json:"took"`
	Hits struct {
		Total struct {
			Value int `json:"value"`
		} `json:"total"`
		Hits []struct {
			Source reviewDoc `json:"_source"`
		} `json:"hits"`
	} `json:"hits"`
	Aggregations struct {
		AvgRating struct {
			Value *float64 `json:"value"`
		} `json:"avg_rating"`
	} `json:"aggregations"`
}

type reviewDoc struct {
	ProductID string  `json:"product_id"`
	Rating    float64 `json:"rating"` // 1..5
	Text      string  `json:"text"`
}
