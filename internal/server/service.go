package server

import "github.com/gatekeep/gatekeep/internal/service"

// Service is the surface of the namespace manager the HTTP server needs.
type Service interface {
	LoadSnapshot(namespace string, data []byte) (int, error)
	ApplyPatch(namespace string, data []byte) (int, error)
	ExportSnapshot(namespace string) ([]byte, error)
	Rollback(namespace string, steps int) bool
	DisableAll(namespace string)
	EnableAll(namespace string)
	Evaluate(namespace string, req service.EvaluateRequest) (service.EvaluateResult, error)
	EvaluateBatch(namespace string, reqs []service.EvaluateRequest) ([]service.EvaluateResult, error)
	Explain(namespace string, req service.EvaluateRequest) (service.ExplainResult, error)
}
