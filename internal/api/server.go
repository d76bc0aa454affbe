package api

import (
	"errors"
	"net/http"
	"slices"

	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/nn/functional"
	"github.com/samcharles93/qconv/internal/tensor"
	"github.com/samcharles93/qconv/pkg/quant"
)

// Route paths.
const (
	RouteHealth   = "/healthz"
	RouteQuantize = "/v1/quantize"
	RouteReLU     = "/v1/relu"
	RouteConv2d   = "/v1/conv2d"
	RouteCheck    = "/v1/check"
)

// Config bounds what a client may ask the server to do.
type Config struct {
	Generator conformance.GeneratorConfig
	// MaxTrials caps one /v1/check request.
	MaxTrials int
	// DefaultSeed is used when a check request omits its seed.
	DefaultSeed uint64
	Workers     int
}

// DefaultConfig returns the generator defaults with a 10k trial cap.
func DefaultConfig() Config {
	return Config{
		Generator: conformance.DefaultGeneratorConfig(),
		MaxTrials: 10000,
	}
}

type Server struct {
	cfg Config
	log logger.Logger
}

func NewServer(cfg Config, log logger.Logger) *Server {
	if cfg.MaxTrials <= 0 {
		cfg.MaxTrials = DefaultConfig().MaxTrials
	}
	if log == nil {
		log = logger.Default()
	}
	return &Server{cfg: cfg, log: log.With("component", "api")}
}

func (s *Server) Register(e *echo.Echo) {
	e.GET(RouteHealth, s.handleHealth)
	e.POST(RouteQuantize, s.handleQuantize)
	e.POST(RouteReLU, s.handleReLU)
	e.POST(RouteConv2d, s.handleConv2d)
	e.POST(RouteCheck, s.handleCheck)
}

func (s *Server) handleHealth(c *echo.Context) error {
	return reply(c, RouteHealth, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleQuantize(c *echo.Context) error {
	req, err := decodeJSON[QuantizeRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, RouteQuantize, err.Error())
	}
	qmin, qmax := quant.DefaultQMin, quant.DefaultQMax
	if req.QMin != nil {
		qmin = *req.QMin
	}
	if req.QMax != nil {
		qmax = *req.QMax
	}
	if err := validateScale(req.Scale); err != nil {
		return writeBadRequest(c, RouteQuantize, err.Error())
	}
	if qmin > qmax {
		return writeBadRequest(c, RouteQuantize, "qmin must not exceed qmax")
	}

	raw := quant.QuantizeArray(req.Values, req.Scale, req.ZeroPoint, qmin, qmax)
	stored := make([]int, len(raw))
	for i, v := range raw {
		stored[i] = int(v)
	}
	return reply(c, RouteQuantize, http.StatusOK, QuantizeResponse{
		ID:     newID("quant"),
		Object: "quantize",
		Stored: stored,
	})
}

func (s *Server) handleReLU(c *echo.Context) error {
	req, err := decodeJSON[ReLURequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, RouteReLU, err.Error())
	}
	p := quant.Params{Scale: req.Scale, ZeroPoint: req.ZeroPoint, DType: quant.QUInt8}
	if err := p.Validate(); err != nil {
		return writeBadRequest(c, RouteReLU, err.Error())
	}
	t, err := tensor.FromData(req.Values, len(req.Values))
	if err != nil {
		return writeBadRequest(c, RouteReLU, err.Error())
	}
	qx, err := tensor.QuantizePerTensor(t, p)
	if err != nil {
		return writeBadRequest(c, RouteReLU, err.Error())
	}

	y := make([]float32, len(req.Values))
	for i, v := range req.Values {
		y[i] = max(v, 0)
	}
	ref := quant.QuantizeArray(y, req.Scale, req.ZeroPoint, quant.DefaultQMin, quant.DefaultQMax)
	expected := make([]int32, len(ref))
	for i, v := range ref {
		expected[i] = int32(v)
	}
	actual := functional.ReLU(qx).IntRepr()

	return reply(c, RouteReLU, http.StatusOK, ReLUResponse{
		ID:       newID("relu"),
		Object:   "relu",
		Expected: expected,
		Actual:   actual,
		Match:    slices.Equal(expected, actual),
	})
}

func (s *Server) handleConv2d(c *echo.Context) error {
	req, err := decodeJSON[Conv2dRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, RouteConv2d, err.Error())
	}
	sc := req.Scenario
	if err := sc.Validate(); err != nil {
		return writeBadRequest(c, RouteConv2d, err.Error())
	}

	resp := Conv2dResponse{ID: newID("conv"), Object: "conv2d"}
	outcome, err := conformance.Check(sc)
	var mm *conformance.MismatchError
	switch {
	case errors.As(err, &mm):
		s.log.Warn("conv2d paths diverged", "id", resp.ID, "scenario", sc.String(), "error", mm)
		resp.Outcome = "mismatch"
		resp.Mismatch = mm
	case errors.Is(err, conformance.ErrAssumption):
		resp.Outcome = string(conformance.Skipped)
		resp.Reason = err.Error()
	case err != nil:
		return writeBadRequest(c, RouteConv2d, err.Error())
	default:
		resp.Outcome = string(outcome)
	}
	if resp.Outcome == string(conformance.Match) {
		oh, ow := sc.OutputHW()
		resp.OutputShape = []int{sc.XShape[0], oh, ow, sc.WShape[0]}
	}
	return reply(c, RouteConv2d, http.StatusOK, resp)
}

func (s *Server) handleCheck(c *echo.Context) error {
	req, err := decodeJSON[CheckRequest](c.Request().Body)
	if err != nil {
		return writeBadRequest(c, RouteCheck, err.Error())
	}
	if req.Trials <= 0 || req.Trials > s.cfg.MaxTrials {
		return writeBadRequest(c, RouteCheck, newInvalidRequest("trials must be in [1, %d]", s.cfg.MaxTrials).Error())
	}
	gen := s.cfg.Generator
	if len(req.DTypes) > 0 {
		gen.DTypes = req.DTypes
	}
	seed := s.cfg.DefaultSeed
	if req.Seed != nil {
		seed = *req.Seed
	}

	ctx := logger.WithContext(c.Request().Context(), s.log)
	rep, err := conformance.Run(ctx, conformance.RunConfig{
		Seed:      seed,
		Trials:    req.Trials,
		Generator: gen,
		Workers:   s.cfg.Workers,
	})
	var mm *conformance.MismatchError
	if err != nil && !errors.As(err, &mm) {
		if rep == nil {
			return writeBadRequest(c, RouteCheck, err.Error())
		}
		return writeError(c, RouteCheck, http.StatusServiceUnavailable, "server_error", err.Error(), "")
	}
	return reply(c, RouteCheck, http.StatusOK, CheckResponse{
		ID:     newID("check"),
		Object: "check",
		Report: rep,
	})
}

func validateScale(scale float64) error {
	return quant.Params{Scale: scale, DType: quant.QUInt8}.Validate()
}
