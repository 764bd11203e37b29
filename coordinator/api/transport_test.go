package api_test

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/absmach/fedcoord/coordinator"
	"github.com/absmach/fedcoord/coordinator/api"
	"github.com/absmach/fedcoord/pkg/fl"
	"github.com/absmach/fedcoord/pkg/tensor"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type mockService struct {
	train   func(rounds uint64) (uuid.UUID, tensor.Map, error)
	workers []coordinator.WorkerInfo
	jobs    []coordinator.JobInfo
}

func (m *mockService) Train(_ context.Context, rounds uint64) (uuid.UUID, tensor.Map, error) {
	return m.train(rounds)
}

func (m *mockService) RegisterWorker(context.Context, string, chan<- *fl.CoordinatorMessage, <-chan struct{}) (coordinator.Worker, error) {
	return coordinator.Worker{}, nil
}

func (m *mockService) DeliverReply(context.Context, uuid.UUID, string, tensor.Map) error {
	return nil
}

func (m *mockService) Workers(context.Context) ([]coordinator.WorkerInfo, error) {
	return m.workers, nil
}

func (m *mockService) Jobs(context.Context) ([]coordinator.JobInfo, error) {
	return m.jobs, nil
}

func newHTTPServer(t *testing.T, svc coordinator.Service) *httptest.Server {
	t.Helper()

	ts := httptest.NewServer(api.MakeHandler(svc, slog.New(slog.DiscardHandler)))
	t.Cleanup(ts.Close)

	return ts
}

func TestTrainEndpoint(t *testing.T) {
	jobID := uuid.New()
	w, err := tensor.New(tensor.F32, []int{3}, []float64{1, 2, 3})
	require.NoError(t, err)

	svc := &mockService{
		train: func(rounds uint64) (uuid.UUID, tensor.Map, error) {
			if rounds == 7 {
				return jobID, nil, coordinator.ErrWorkerUnavailable
			}

			return jobID, tensor.Map{"w": w}, nil
		},
	}
	ts := newHTTPServer(t, svc)

	cases := []struct {
		desc        string
		contentType string
		body        string
		status      int
	}{
		{
			desc:        "train",
			contentType: "application/json",
			body:        `{"rounds":3}`,
			status:      http.StatusOK,
		},
		{
			desc:        "unsupported content type",
			contentType: "text/plain",
			body:        `{"rounds":3}`,
			status:      http.StatusUnsupportedMediaType,
		},
		{
			desc:        "malformed body",
			contentType: "application/json",
			body:        `{"rounds":`,
			status:      http.StatusBadRequest,
		},
		{
			desc:        "too many rounds",
			contentType: "application/json",
			body:        `{"rounds":1000000}`,
			status:      http.StatusBadRequest,
		},
		{
			desc:        "training failure",
			contentType: "application/json",
			body:        `{"rounds":7}`,
			status:      http.StatusInternalServerError,
		},
	}

	for _, tc := range cases {
		t.Run(tc.desc, func(t *testing.T) {
			res, err := http.Post(ts.URL+"/train", tc.contentType, strings.NewReader(tc.body))
			require.NoError(t, err)
			defer res.Body.Close()

			assert.Equal(t, tc.status, res.StatusCode)
			if tc.status != http.StatusOK {
				return
			}

			var body struct {
				JobID   string `json:"job_id"`
				Weights []byte `json:"weights"`
				Size    int    `json:"size"`
			}
			require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
			assert.Equal(t, jobID.String(), body.JobID)
			assert.Equal(t, len(body.Weights), body.Size)

			got, err := tensor.Decode(body.Weights)
			require.NoError(t, err)
			assert.Equal(t, []float64{1, 2, 3}, got["w"].Data)
		})
	}
}

func TestListEndpoints(t *testing.T) {
	now := time.Now().UTC().Truncate(time.Second)
	older := uuid.NewString()
	newer := uuid.NewString()

	svc := &mockService{
		workers: []coordinator.WorkerInfo{
			{Addr: "10.0.0.1:4000", Name: "brave-turing", Connected: true, RegisteredAt: now},
		},
		jobs: []coordinator.JobInfo{
			{ID: newer, Status: coordinator.JobRunning, CreatedAt: now},
			{ID: older, Status: coordinator.JobCompleted, CreatedAt: now.Add(-time.Minute)},
		},
	}
	ts := newHTTPServer(t, svc)

	t.Run("workers", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/workers")
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			Total   int                      `json:"total"`
			Workers []coordinator.WorkerInfo `json:"workers"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		assert.Equal(t, 1, body.Total)
		assert.Equal(t, svc.workers, body.Workers)
	})

	t.Run("jobs sorted by creation", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/jobs")
		require.NoError(t, err)
		defer res.Body.Close()
		require.Equal(t, http.StatusOK, res.StatusCode)

		var body struct {
			Total int                   `json:"total"`
			Jobs  []coordinator.JobInfo `json:"jobs"`
		}
		require.NoError(t, json.NewDecoder(res.Body).Decode(&body))
		require.Equal(t, 2, body.Total)
		assert.Equal(t, older, body.Jobs[0].ID)
		assert.Equal(t, newer, body.Jobs[1].ID)
	})

	t.Run("health", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/health")
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "application/json", res.Header.Get("Content-Type"))
	})

	t.Run("metrics", func(t *testing.T) {
		res, err := http.Get(ts.URL + "/metrics")
		require.NoError(t, err)
		defer res.Body.Close()
		assert.Equal(t, http.StatusOK, res.StatusCode)

		b, err := io.ReadAll(res.Body)
		require.NoError(t, err)
		assert.Contains(t, string(b), "go_goroutines")
	})
}
