package api

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/labstack/echo/v5"

	"github.com/samcharles93/qconv/internal/conformance"
	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/pkg/quant"
)

func newTestEcho() *echo.Echo {
	cfg := DefaultConfig()
	cfg.MaxTrials = 50
	server := NewServer(cfg, logger.Discard())
	e := echo.New()
	server.Register(e)
	return e
}

func doJSON(t *testing.T, e *echo.Echo, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var out T
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s: %v", rec.Body.String(), err)
	}
	return out
}

func TestHealth(t *testing.T) {
	t.Parallel()

	rec := doJSON(t, newTestEcho(), http.MethodGet, RouteHealth, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"ok"`) {
		t.Fatalf("unexpected body: %s", rec.Body.String())
	}
}

func TestQuantize(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, RouteQuantize, `{"values":[0,0,0,0,0,0,1,2,3,4],"scale":2,"zero_point":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[QuantizeResponse](t, rec)
	want := []int{1, 1, 1, 1, 1, 1, 2, 2, 2, 3}
	if len(resp.Stored) != len(want) {
		t.Fatalf("stored: got %v want %v", resp.Stored, want)
	}
	for i := range want {
		if resp.Stored[i] != want[i] {
			t.Fatalf("stored: got %v want %v", resp.Stored, want)
		}
	}
	if !strings.HasPrefix(resp.ID, "quant_") {
		t.Fatalf("unexpected id %q", resp.ID)
	}

	rec = doJSON(t, e, http.MethodPost, RouteQuantize, `{"values":[300,-5],"scale":1,"zero_point":0,"qmin":10,"qmax":100}`)
	resp = decode[QuantizeResponse](t, rec)
	if resp.Stored[0] != 100 || resp.Stored[1] != 10 {
		t.Fatalf("clamped: got %v", resp.Stored)
	}
}

func TestQuantizeValidation(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	tests := []struct {
		name, body, want string
	}{
		{"zero scale", `{"values":[1],"scale":0}`, "invalid scale"},
		{"inverted bounds", `{"values":[1],"scale":1,"qmin":5,"qmax":1}`, "qmin must not exceed qmax"},
		{"unknown field", `{"values":[1],"scale":1,"bogus":true}`, "decode body"},
		{"malformed", `{"values":`, "decode body"},
	}
	for _, tc := range tests {
		rec := doJSON(t, e, http.MethodPost, RouteQuantize, tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d body=%s", tc.name, rec.Code, rec.Body.String())
		}
		if !strings.Contains(rec.Body.String(), tc.want) || !strings.Contains(rec.Body.String(), "invalid_request_error") {
			t.Fatalf("%s: unexpected body %s", tc.name, rec.Body.String())
		}
	}
}

func TestReLU(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, RouteReLU, `{"values":[-5,-4,-3,-2,-1,0,1,2,3,4],"scale":2,"zero_point":1}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[ReLUResponse](t, rec)
	if !resp.Match {
		t.Fatalf("expected match: %+v", resp)
	}
	want := []int32{1, 1, 1, 1, 1, 1, 2, 2, 2, 3}
	for i := range want {
		if resp.Actual[i] != want[i] {
			t.Fatalf("actual: got %v want %v", resp.Actual, want)
		}
	}

	rec = doJSON(t, e, http.MethodPost, RouteReLU, `{"values":[1],"scale":1,"zero_point":300}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for out-of-range zero point, got %d", rec.Code)
	}
}

func scenarioBody(t *testing.T, s conformance.Scenario) string {
	t.Helper()
	b, err := json.Marshal(s)
	if err != nil {
		t.Fatalf("encode scenario: %v", err)
	}
	return string(b)
}

func TestConv2d(t *testing.T) {
	t.Parallel()

	cfg := conformance.DefaultGeneratorConfig()
	cfg.Batch = conformance.Range{Min: 1, Max: 1}
	cfg.Height = conformance.Range{Min: 8, Max: 8}
	cfg.Width = conformance.Range{Min: 8, Max: 8}
	cfg.KernelH = conformance.Range{Min: 3, Max: 3}
	cfg.KernelW = conformance.Range{Min: 3, Max: 3}
	cfg.Padding = conformance.Range{Min: 1, Max: 1}
	cfg.Stride = conformance.Range{Min: 1, Max: 1}
	gen, err := conformance.NewGenerator(cfg, 8)
	if err != nil {
		t.Fatal(err)
	}
	s := gen.Next()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, RouteConv2d, scenarioBody(t, s))
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[Conv2dResponse](t, rec)
	if resp.Outcome != "match" {
		t.Fatalf("outcome: got %q body=%s", resp.Outcome, rec.Body.String())
	}
	want := []int{1, 8, 8, s.WShape[0]}
	if len(resp.OutputShape) != 4 || resp.OutputShape[1] != want[1] || resp.OutputShape[2] != want[2] || resp.OutputShape[3] != want[3] {
		t.Fatalf("output shape: got %v want %v", resp.OutputShape, want)
	}

	signed := s
	signed.DType = quant.QInt8
	signed.ZeroPoint = 0
	resp = decode[Conv2dResponse](t, doJSON(t, e, http.MethodPost, RouteConv2d, scenarioBody(t, signed)))
	if resp.Outcome != "error_match" {
		t.Fatalf("qint8 outcome: got %q", resp.Outcome)
	}

	padded := s
	padded.Padding = [2]int{3, 3}
	resp = decode[Conv2dResponse](t, doJSON(t, e, http.MethodPost, RouteConv2d, scenarioBody(t, padded)))
	if resp.Outcome != "skipped" || resp.Reason == "" {
		t.Fatalf("padded outcome: got %q reason %q", resp.Outcome, resp.Reason)
	}

	short := s
	short.X = short.X[:3]
	rec = doJSON(t, e, http.MethodPost, RouteConv2d, scenarioBody(t, short))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for short input, got %d", rec.Code)
	}
}

func TestCheck(t *testing.T) {
	t.Parallel()

	e := newTestEcho()
	rec := doJSON(t, e, http.MethodPost, RouteCheck, `{"trials":10,"seed":7,"dtypes":["quint8","qint8"]}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d body=%s", rec.Code, rec.Body.String())
	}
	resp := decode[CheckResponse](t, rec)
	if resp.Report == nil || resp.Report.Trials != 10 || !resp.Report.OK() {
		t.Fatalf("unexpected report: %s", rec.Body.String())
	}
	if resp.Report.Seed != 7 {
		t.Fatalf("seed: got %d", resp.Report.Seed)
	}

	for _, body := range []string{`{"trials":0}`, `{"trials":51}`, `{"trials":1,"dtypes":["float"]}`} {
		rec := doJSON(t, e, http.MethodPost, RouteCheck, body)
		if rec.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected 400, got %d body=%s", body, rec.Code, rec.Body.String())
		}
	}
}
