package endpoint

import (
	"context"
	"time"

	"github.com/go-kit/kit/endpoint"

	"github.com/blocksync/blocksync/pkg/service"
)

// ExecuteQueryResponse contains the response for a call to the
// ExecuteQuery endpoint.
type ExecuteQueryResponse struct {
	service.QueryResponse
	e error
}

// Failed indicates if there was a business logic failure.
func (r ExecuteQueryResponse) Failed() error {
	return r.e
}

// MakeAPIExecuteQueryEndpoint creates an endpoint for executing
// pipeline queries.
func MakeAPIExecuteQueryEndpoint(a service.APIService) endpoint.Endpoint {
	return func(ctx context.Context, request interface{}) (response interface{}, err error) {
		ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
		defer cancel()

		req := request.(service.QueryRequest)
		qr, err := a.ExecuteQuery(ctx, req)
		return ExecuteQueryResponse{
			QueryResponse: qr,
			e:             err,
		}, nil
	}
}
