package api

import (
	"net/http"

	"github.com/absmach/fedcoord/coordinator"
)

type response interface {
	Code() int
}

var (
	_ response = (*trainRes)(nil)
	_ response = (*workersRes)(nil)
	_ response = (*jobsRes)(nil)
	_ response = (*healthRes)(nil)
)

type trainRes struct {
	JobID   string `json:"job_id"`
	Weights []byte `json:"weights"`
	Size    int    `json:"size"`
}

func (res trainRes) Code() int {
	return http.StatusOK
}

type workersRes struct {
	Total   int                      `json:"total"`
	Workers []coordinator.WorkerInfo `json:"workers"`
}

func (res workersRes) Code() int {
	return http.StatusOK
}

type jobsRes struct {
	Total int                   `json:"total"`
	Jobs  []coordinator.JobInfo `json:"jobs"`
}

func (res jobsRes) Code() int {
	return http.StatusOK
}

type healthRes struct {
	Status  string `json:"status"`
	Service string `json:"service"`
}

func (res healthRes) Code() int {
	return http.StatusOK
}
