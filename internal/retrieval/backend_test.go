package retrieval

import (
	"context"
	"testing"

	"emsadvisor/internal/models"
)

type fakeBackend struct {
	searchCalls int
	lookupCalls int
	chunkCalls  int
	lastQuery   string
	lastCode    string
}

func (f *fakeBackend) SearchProtocols(_ context.Context, query string, _ int) ([]models.Protocol, error) {
	f.searchCalls++
	f.lastQuery = query
	return []models.Protocol{{TPCode: "1210"}}, nil
}

func (f *fakeBackend) GetProtocolByCode(_ context.Context, code string) (*models.Protocol, error) {
	f.lookupCalls++
	f.lastCode = code
	return &models.Protocol{TPCode: code}, nil
}

func (f *fakeBackend) SearchProtocolChunks(_ context.Context, query string, _ int) ([]models.Document, error) {
	f.chunkCalls++
	f.lastQuery = query
	return []models.Document{{ID: "chunk-1"}}, nil
}

func TestDispatch_Routing(t *testing.T) {
	b := &fakeBackend{}
	ctx := context.Background()

	if _, err := Dispatch(ctx, b, SearchRequest{Query: "cardiac arrest", Limit: 5}); err != nil {
		t.Fatalf("Dispatch(SearchRequest): %v", err)
	}
	if b.searchCalls != 1 || b.lastQuery != "cardiac arrest" {
		t.Errorf("search not routed: %+v", b)
	}

	out, err := Dispatch(ctx, b, CodeLookupRequest{Code: "1210"})
	if err != nil {
		t.Fatalf("Dispatch(CodeLookupRequest): %v", err)
	}
	if b.lookupCalls != 1 || b.lastCode != "1210" {
		t.Errorf("lookup not routed: %+v", b)
	}
	if p, ok := out.(*models.Protocol); !ok || p.TPCode != "1210" {
		t.Errorf("lookup result = %#v", out)
	}

	if _, err := Dispatch(ctx, b, ChunkSearchRequest{Query: "epinephrine dose"}); err != nil {
		t.Fatalf("Dispatch(ChunkSearchRequest): %v", err)
	}
	if b.chunkCalls != 1 {
		t.Errorf("chunk search not routed: %+v", b)
	}
}

func TestDispatch_RejectsMalformedRequests(t *testing.T) {
	b := &fakeBackend{}
	ctx := context.Background()

	tests := []struct {
		name string
		req  Request
	}{
		{"empty search query", SearchRequest{Query: "   "}},
		{"negative search limit", SearchRequest{Query: "ok", Limit: -1}},
		{"empty code", CodeLookupRequest{Code: ""}},
		{"blank code", CodeLookupRequest{Code: "  "}},
		{"empty chunk query", ChunkSearchRequest{Query: ""}},
		{"negative chunk limit", ChunkSearchRequest{Query: "ok", Limit: -2}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Dispatch(ctx, b, tt.req); err == nil {
				t.Error("malformed request dispatched without error")
			}
		})
	}

	if b.searchCalls+b.lookupCalls+b.chunkCalls != 0 {
		t.Errorf("backend reached by rejected requests: %+v", b)
	}
}

func TestDispatch_NilRequest(t *testing.T) {
	if _, err := Dispatch(context.Background(), &fakeBackend{}, nil); err == nil {
		t.Error("nil request dispatched without error")
	}
}
