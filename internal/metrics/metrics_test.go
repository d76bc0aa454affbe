package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordTrial(t *testing.T) {
	before := testutil.ToFloat64(TrialsTotal.WithLabelValues("match"))
	RecordTrial("match")
	RecordTrial("match")
	after := testutil.ToFloat64(TrialsTotal.WithLabelValues("match"))
	if after-before != 2 {
		t.Fatalf("expected 2 new trials, got %v", after-before)
	}
}

func TestRecordMismatch(t *testing.T) {
	before := testutil.ToFloat64(MismatchesTotal)
	RecordMismatch()
	if got := testutil.ToFloat64(MismatchesTotal) - before; got != 1 {
		t.Fatalf("expected 1 mismatch, got %v", got)
	}
}

func TestRecordConv(t *testing.T) {
	RecordConv(PathModule, 3*time.Millisecond)
	if n := testutil.CollectAndCount(ConvDuration); n == 0 {
		t.Fatal("expected conv duration series")
	}
}

func TestStatusClass(t *testing.T) {
	tests := map[int]string{200: "2xx", 204: "2xx", 302: "3xx", 400: "4xx", 404: "4xx", 500: "5xx", 503: "5xx"}
	for status, want := range tests {
		if got := statusClass(status); got != want {
			t.Errorf("statusClass(%d): got %q want %q", status, got, want)
		}
	}
	RecordRequest("/v1/quantize", 400)
	if got := testutil.ToFloat64(RequestsTotal.WithLabelValues("/v1/quantize", "4xx")); got < 1 {
		t.Fatalf("expected request counted, got %v", got)
	}
}
