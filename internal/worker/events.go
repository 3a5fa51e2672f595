package worker

// CaptureCreatedEvent announces a committed ContentItem + Embedding pair.
// The index mirror loads the row by ID, so the event carries identity only.
type CaptureCreatedEvent struct {
	ContentItemID string `json:"content_item_id"`
	ContentHash   string `json:"content_hash"`
	Source        string `json:"source"`
	CorrelationID string `json:"correlation_id,omitempty"`
}
