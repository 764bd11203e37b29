package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/supermq/pkg/errors"
	"github.com/go-chi/chi/v5"
	kithttp "github.com/go-kit/kit/transport/http"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const contentType = "application/json"

// MakeHandler returns the admin HTTP handler.
func MakeHandler(svc coordinator.Service, logger *slog.Logger) http.Handler {
	opts := []kithttp.ServerOption{
		kithttp.ServerErrorEncoder(encodeHTTPError(logger)),
	}

	mux := chi.NewRouter()

	mux.Post("/train", kithttp.NewServer(
		trainEndpoint(svc),
		decodeTrainRequest,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/workers", kithttp.NewServer(
		listWorkersEndpoint(svc),
		decodeEmpty,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/jobs", kithttp.NewServer(
		listJobsEndpoint(svc),
		decodeEmpty,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Get("/health", kithttp.NewServer(
		healthEndpoint(),
		decodeEmpty,
		encodeResponse,
		opts...,
	).ServeHTTP)

	mux.Handle("/metrics", promhttp.Handler())

	return otelhttp.NewHandler(mux, serviceName)
}

func decodeTrainRequest(_ context.Context, r *http.Request) (any, error) {
	if !strings.Contains(r.Header.Get("Content-Type"), contentType) {
		return nil, ErrUnsupportedType
	}

	var req trainReq
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		return nil, errors.Wrap(ErrMalformedEntity, err)
	}

	return req, nil
}

func decodeEmpty(context.Context, *http.Request) (any, error) {
	return nil, nil
}

func encodeResponse(_ context.Context, w http.ResponseWriter, resp any) error {
	w.Header().Set("Content-Type", contentType)
	if res, ok := resp.(response); ok {
		w.WriteHeader(res.Code())
	}

	return json.NewEncoder(w).Encode(resp)
}

func encodeHTTPError(logger *slog.Logger) kithttp.ErrorEncoder {
	return func(_ context.Context, err error, w http.ResponseWriter) {
		code := http.StatusInternalServerError
		switch {
		case is(err, ErrUnsupportedType):
			code = http.StatusUnsupportedMediaType
		case is(err, ErrMalformedEntity), is(err, ErrInvalidRounds):
			code = http.StatusBadRequest
		case is(err, coordinator.ErrJobNotFound):
			code = http.StatusNotFound
		}
		if code == http.StatusInternalServerError {
			logger.Error("admin request failed", slog.Any("error", err))
		}

		w.Header().Set("Content-Type", contentType)
		w.WriteHeader(code)
		if err := json.NewEncoder(w).Encode(map[string]string{"error": err.Error()}); err != nil {
			logger.Warn("failed to encode error response", slog.Any("error", err))
		}
	}
}
