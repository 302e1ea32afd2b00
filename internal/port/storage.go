package port

import (
	"context"
)

// PutInput encapsulates the parameters needed to write one object.
type PutInput struct {
	Key         string
	Body        []byte
	ContentType string
}

// GatewayResponse is the HTTP-level answer of the storage gateway.
type GatewayResponse struct {
	StatusCode int
	Body       []byte
	// URL is the request target, reported back to the user for diagnostics.
	URL string
}

// ObjectUploader writes objects into the backend bucket with replace semantics.
// A non-nil error means the request never produced a status code.
type ObjectUploader interface {
	PutObject(ctx context.Context, input PutInput) (*GatewayResponse, error)
}

// ResultFetcher reads the analysis result stored for an object key.
// A non-nil error means the request never produced a status code.
type ResultFetcher interface {
	GetResult(ctx context.Context, key string) (*GatewayResponse, error)
}

// Gateway is the full storage gateway used by the pipeline.
type Gateway interface {
	ObjectUploader
	ResultFetcher
}
