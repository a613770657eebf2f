package service

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/pkg/errors"

	"github.com/blocksync/blocksync/pkg/service/blockqueue"
)

// APIService is the user accessible service.
type APIService interface {
	ExecuteQuery(ctx context.Context, request QueryRequest) (QueryResponse, error)
}

// ErrUnknownQuery is returned for a query name outside the supported
// set.
var ErrUnknownQuery = errors.New("unknown query")

// Supported query names.
const (
	QueryDepth  = "depth"
	QueryBlocks = "blocks"
)

// QueryRequest names a query to execute against one category of the
// pipeline.
type QueryRequest struct {
	Query    string `json:"query"`
	Category string `json:"category"`
}

// QueryResponse contains the result of an executed query.
type QueryResponse struct {
	Category string             `json:"category"`
	Depth    int                `json:"depth"`
	Blocks   []blockqueue.Block `json:"blocks,omitempty"`
}

type apiService struct {
	q blockqueue.Queue
	l log.Logger
}

// NewAPIService returns an APIService.
func NewAPIService(q blockqueue.Queue, l log.Logger) APIService {
	return &apiService{q: q, l: l}
}

// ExecuteQuery runs one of the supported pipeline queries: "depth"
// reports how many blocks a category holds, "blocks" additionally
// returns a non-destructive snapshot of them, oldest first.
func (a *apiService) ExecuteQuery(ctx context.Context, request QueryRequest) (QueryResponse, error) {
	var qr QueryResponse

	category := blockqueue.Category(request.Category)
	if !category.Valid() {
		return qr, errors.Wrapf(blockqueue.ErrInvalidCategory, "category %q", request.Category)
	}
	_ = a.l.Log("LEVEL", "DEBUG", "MESSAGE", fmt.Sprintf("API query %q for category %s", request.Query, category))

	blocks, err := a.q.All(ctx, category)
	if err != nil {
		return qr, errors.Wrap(err, "unable to read queue snapshot")
	}

	qr.Category = string(category)
	qr.Depth = len(blocks)
	switch request.Query {
	case QueryDepth:
	case QueryBlocks:
		qr.Blocks = blocks
	default:
		return QueryResponse{}, errors.Wrapf(ErrUnknownQuery, "query %q", request.Query)
	}
	return qr, nil
}
