package capture

import "fmt"

// FaultKind is the closed set of failure classes the pipeline surfaces.
// Every error leaving the orchestrator is a *Fault carrying one of these;
// component-native error types never cross the system boundary.
type FaultKind string

const (
	// FaultClient means the caller's input is unacceptable: empty content,
	// unsupported file kind, oversized file, extracted text empty.
	FaultClient FaultKind = "client"
	// FaultExtraction is a parser-level failure on an acceptable file.
	FaultExtraction FaultKind = "extraction"
	// FaultEmbedding means the provider exhausted retries or returned an
	// unusable result. Nothing was persisted.
	FaultEmbedding FaultKind = "embedding"
	// FaultStorage is any persistence failure other than the recovered
	// uniqueness race.
	FaultStorage FaultKind = "storage"
	// FaultConfiguration means the embedding provider is unusable for the
	// process lifetime (missing credentials), not a per-request failure.
	FaultConfiguration FaultKind = "configuration"
)

type Fault struct {
	Kind    FaultKind
	Message string
	cause   error
}

func NewFault(kind FaultKind, message string, cause error) *Fault {
	return &Fault{Kind: kind, Message: message, cause: cause}
}

func (f *Fault) Error() string {
	if f.cause != nil {
		return fmt.Sprintf("%s fault: %s: %v", f.Kind, f.Message, f.cause)
	}
	return fmt.Sprintf("%s fault: %s", f.Kind, f.Message)
}

func (f *Fault) Unwrap() error { return f.cause }
