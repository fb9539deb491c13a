package models

import "time"

// Annotation kinds, one per analysis job.
const (
	KindEntities  = "entities"
	KindAgency    = "agency"
	KindSentiment = "sentiment"
)

// Annotation is the canonical structure sent to optional sinks (Elasticsearch, Kafka).
type Annotation struct {
	ID          string         `json:"id"`
	RunID       string         `json:"run_id"`
	Kind        string         `json:"kind"`
	Row         int            `json:"row"`
	Title       string         `json:"title"`
	Text        string         `json:"text"`
	Fields      map[string]any `json:"fields"`
	Degraded    bool           `json:"degraded"`
	Reason      string         `json:"reason,omitempty"`
	AnnotatedAt time.Time      `json:"annotated_at"`
}
