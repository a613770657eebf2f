package http

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"fmt"
	"io"
	gohttp "net/http"

	"github.com/go-kit/kit/endpoint"
	"github.com/go-kit/kit/transport/http"
	"github.com/pkg/errors"

	"github.com/blocksync/blocksync/pkg/service"
)

// AuthHeader carries the static shared secret every request must
// present.
const AuthHeader = "X-Auth-Token"

// NewAPIHTTPHandler returns a handler that makes the API service
// endpoints available via HTTP.
//
// Requests without the shared secret in the X-Auth-Token header are
// rejected before routing; unknown routes return 404.
func NewAPIHTTPHandler(endpoint endpoint.Endpoint, secret string, options map[string][]http.ServerOption) gohttp.Handler {
	if options == nil {
		options = make(map[string][]http.ServerOption)
	}
	m := gohttp.NewServeMux()
	makeAPIExecuteQueryHandler(m, endpoint, options["ExecuteQuery"]...)
	return requireSecret(secret, m)
}

func requireSecret(secret string, next gohttp.Handler) gohttp.Handler {
	return gohttp.HandlerFunc(func(w gohttp.ResponseWriter, r *gohttp.Request) {
		token := r.Header.Get(AuthHeader)
		if subtle.ConstantTimeCompare([]byte(token), []byte(secret)) != 1 {
			w.WriteHeader(gohttp.StatusUnauthorized)
			_, _ = fmt.Fprint(w, "unauthorized")
			return
		}
		next.ServeHTTP(w, r)
	})
}

type errorResponse struct {
	Error string
}

func encodeAPIExecuteQueryResponse(_ context.Context, w gohttp.ResponseWriter, r interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	if v, ok := r.(endpoint.Failer); ok && v.Failed() != nil {
		w.WriteHeader(gohttp.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(errorResponse{Error: v.Failed().Error()})
		return nil
	}
	err := json.NewEncoder(w).Encode(r)
	return errors.WithStack(err)
}

func decodeAPIExecuteQueryRequest(_ context.Context, req *gohttp.Request) (i interface{}, e error) {
	decoder := json.NewDecoder(req.Body)
	decoder.DisallowUnknownFields()
	defer func() {
		err := req.Body.Close()
		if e != nil && err != nil {
			e = errors.Wrapf(e, "multiple errors: %s", err)
			return
		}
		if err != nil {
			e = err
		}
	}()
	var qr service.QueryRequest
	err := decoder.Decode(&qr)
	if err == io.EOF {
		err = nil
	}

	if qr.Query == "" {
		return nil, errors.New("invalid query")
	}
	return qr, errors.WithStack(err)
}

func makeAPIExecuteQueryHandler(m *gohttp.ServeMux, endpoint endpoint.Endpoint, options ...http.ServerOption) {
	handler := http.NewServer(endpoint,
		decodeAPIExecuteQueryRequest,
		encodeAPIExecuteQueryResponse,
		options...)
	hf := func(w gohttp.ResponseWriter, r *gohttp.Request) {
		if r.Method != gohttp.MethodPost {
			w.WriteHeader(gohttp.StatusMethodNotAllowed)
			_, _ = fmt.Fprintf(w, "Invalid request method %s", r.Method)
			return
		}
		handler.ServeHTTP(w, r)
	}
	m.Handle("/query", gohttp.HandlerFunc(hf))
}
