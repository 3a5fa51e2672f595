package config

const (
	// TopicCaptureCreated is the NSQ topic announcing a freshly committed
	// ContentItem + Embedding pair. Consumed by the search-index mirror.
	TopicCaptureCreated = "capture.created"
)
