package api

import (
	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/pkg/quant"
)

type ErrorBody struct {
	Message string `json:"message,omitempty"`
	Type    string `json:"type,omitempty"`
	Code    string `json:"code,omitempty"`
	Param   string `json:"param,omitempty"`
}

type QuantizeRequest struct {
	Values    []float32 `json:"values"`
	Scale     float64   `json:"scale"`
	ZeroPoint int32     `json:"zero_point"`
	QMin      *int32    `json:"qmin,omitempty"`
	QMax      *int32    `json:"qmax,omitempty"`
}

type QuantizeResponse struct {
	ID     string `json:"id"`
	Object string `json:"object"`
	Stored []int  `json:"stored"`
}

type ReLURequest struct {
	Values    []float32 `json:"values"`
	Scale     float64   `json:"scale"`
	ZeroPoint int32     `json:"zero_point"`
}

type ReLUResponse struct {
	ID       string  `json:"id"`
	Object   string  `json:"object"`
	Expected []int32 `json:"expected"`
	Actual   []int32 `json:"actual"`
	Match    bool    `json:"match"`
}

// Conv2dRequest is a conformance scenario. Zero-valued dtype means quint8.
type Conv2dRequest struct {
	conformance.Scenario
}

type Conv2dResponse struct {
	ID          string                     `json:"id"`
	Object      string                     `json:"object"`
	Outcome     string                     `json:"outcome"`
	OutputShape []int                      `json:"output_shape,omitempty"`
	Reason      string                     `json:"reason,omitempty"`
	Mismatch    *conformance.MismatchError `json:"mismatch,omitempty"`
}

type CheckRequest struct {
	Trials int     `json:"trials"`
	Seed   *uint64 `json:"seed,omitempty"`
	// DTypes overrides the server's generator dtypes.
	DTypes []quant.DType `json:"dtypes,omitempty"`
}

type CheckResponse struct {
	ID     string              `json:"id"`
	Object string              `json:"object"`
	Report *conformance.Report `json:"report"`
}
