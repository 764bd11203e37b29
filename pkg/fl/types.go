// Package fl defines the coordinator/worker wire protocol: the messages, the
// gRPC codec that carries them and the Command, Subscriber and Publisher
// service descriptors.
package fl

import "errors"

var ErrEmptyMessage = errors.New("message carries no payload")

// Empty is the request of Subscribe and the response of Publish.
type Empty struct{}

type TrainRequest struct {
	Rounds uint64 `cbor:"rounds"`
}

type TrainResponse struct {
	Weights []byte `cbor:"weights"`
}

// WeightsRequest asks a worker for its initial model weights.
type WeightsRequest struct {
	JobID string `cbor:"job_id"`
}

// FitRequest asks a worker to train on its local data starting from Weights.
type FitRequest struct {
	JobID   string `cbor:"job_id"`
	Weights []byte `cbor:"weights"`
}

// CoordinatorMessage is pushed on a worker's Subscribe stream. Exactly one
// field is set.
type CoordinatorMessage struct {
	WeightsRequest *WeightsRequest `cbor:"weights_request,omitempty"`
	FitRequest     *FitRequest     `cbor:"fit_request,omitempty"`
}

func (m *CoordinatorMessage) JobID() string {
	switch {
	case m.WeightsRequest != nil:
		return m.WeightsRequest.JobID
	case m.FitRequest != nil:
		return m.FitRequest.JobID
	default:
		return ""
	}
}

func (m *CoordinatorMessage) Kind() string {
	switch {
	case m.WeightsRequest != nil:
		return "WeightsRequest"
	case m.FitRequest != nil:
		return "FitRequest"
	default:
		return "Empty"
	}
}

type WeightsResponse struct {
	JobID   string `cbor:"job_id"`
	Weights []byte `cbor:"weights"`
}

type FitResponse struct {
	JobID   string `cbor:"job_id"`
	Weights []byte `cbor:"weights"`
}

// WorkerMessage is sent by a worker through Publish. Exactly one field is set.
type WorkerMessage struct {
	WeightsResponse *WeightsResponse `cbor:"weights_response,omitempty"`
	FitResponse     *FitResponse     `cbor:"fit_response,omitempty"`
}

// Reply returns the job id and encoded weights of whichever response is set.
func (m *WorkerMessage) Reply() (jobID string, weights []byte, err error) {
	switch {
	case m.WeightsResponse != nil:
		return m.WeightsResponse.JobID, m.WeightsResponse.Weights, nil
	case m.FitResponse != nil:
		return m.FitResponse.JobID, m.FitResponse.Weights, nil
	default:
		return "", nil, ErrEmptyMessage
	}
}

// Kind names the set field, for logging.
func (m *WorkerMessage) Kind() string {
	switch {
	case m.WeightsResponse != nil:
		return "WeightsResponse"
	case m.FitResponse != nil:
		return "FitResponse"
	default:
		return "Empty"
	}
}
