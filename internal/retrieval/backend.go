package retrieval

import (
	"context"
	"fmt"
	"strings"

	"emsadvisor/internal/models"
)

// Backend is the database-backed retrieval collaborator. It may be disabled
// entirely via configuration, in which case callers use the file-based
// fallback path exclusively. "Not found" conditions return zero values, not
// errors.
type Backend interface {
	SearchProtocols(ctx context.Context, query string, limit int) ([]models.Protocol, error)
	GetProtocolByCode(ctx context.Context, code string) (*models.Protocol, error)
	SearchProtocolChunks(ctx context.Context, query string, limit int) ([]models.Document, error)
}

// Request is the discriminated retrieval request union. Payloads are
// validated at the boundary before dispatch; malformed requests are rejected
// rather than trusted.
type Request interface {
	Validate() error
	isRequest()
}

// SearchRequest asks for whole protocols matching a query.
type SearchRequest struct {
	Query string
	Limit int
}

func (SearchRequest) isRequest() {}

// Validate rejects empty queries and nonsensical limits.
func (r SearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("search request: empty query")
	}
	if r.Limit < 0 {
		return fmt.Errorf("search request: negative limit %d", r.Limit)
	}
	return nil
}

// CodeLookupRequest asks for one protocol by its code.
type CodeLookupRequest struct {
	Code string
}

func (CodeLookupRequest) isRequest() {}

// Validate rejects empty or malformed codes.
func (r CodeLookupRequest) Validate() error {
	code := strings.TrimSpace(r.Code)
	if code == "" {
		return fmt.Errorf("code lookup request: empty code")
	}
	return nil
}

// ChunkSearchRequest asks for protocol text chunks matching a query.
type ChunkSearchRequest struct {
	Query string
	Limit int
}

func (ChunkSearchRequest) isRequest() {}

// Validate rejects empty queries and nonsensical limits.
func (r ChunkSearchRequest) Validate() error {
	if strings.TrimSpace(r.Query) == "" {
		return fmt.Errorf("chunk search request: empty query")
	}
	if r.Limit < 0 {
		return fmt.Errorf("chunk search request: negative limit %d", r.Limit)
	}
	return nil
}

// Dispatch validates a request and routes it to the matching backend
// operation.
func Dispatch(ctx context.Context, b Backend, req Request) (interface{}, error) {
	if req == nil {
		return nil, fmt.Errorf("nil retrieval request")
	}
	if err := req.Validate(); err != nil {
		return nil, err
	}

	switch r := req.(type) {
	case SearchRequest:
		return b.SearchProtocols(ctx, r.Query, r.Limit)
	case CodeLookupRequest:
		return b.GetProtocolByCode(ctx, r.Code)
	case ChunkSearchRequest:
		return b.SearchProtocolChunks(ctx, r.Query, r.Limit)
	default:
		return nil, fmt.Errorf("unknown retrieval request type %T", req)
	}
}
