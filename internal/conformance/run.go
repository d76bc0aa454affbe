package conformance

import (
	"context"
	"errors"
	"runtime"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/sys/cpu"

	"github.com/samcharles93/qconv/internal/logger"
	"github.com/samcharles93/qconv/internal/metrics"
)

// RunConfig configures a batch of trials.
type RunConfig struct {
	Seed      uint64
	Trials    int
	Generator GeneratorConfig

	// Workers bounds module-path GEMM parallelism; <= 0 uses GOMAXPROCS.
	Workers int
}

// Failure records the trial that stopped a run.
type Failure struct {
	Trial    int            `json:"trial"`
	Scenario string         `json:"scenario"`
	Mismatch *MismatchError `json:"mismatch"`
}

// Report summarises a run.
type Report struct {
	RunID        string        `json:"run_id"`
	Seed         uint64        `json:"seed"`
	Requested    int           `json:"requested"`
	Trials       int           `json:"trials"`
	Matched      int           `json:"matched"`
	ErrorMatched int           `json:"error_matched"`
	Skipped      int           `json:"skipped"`
	StartedAt    time.Time     `json:"started_at"`
	Duration     time.Duration `json:"duration_ns"`
	Failure      *Failure      `json:"failure,omitempty"`
	Host         Host          `json:"host"`
}

// Host describes the machine a run executed on.
type Host struct {
	GoVersion string          `json:"go_version"`
	GoOS      string          `json:"go_os"`
	GoArch    string          `json:"go_arch"`
	CPUs      int             `json:"cpus"`
	Features  map[string]bool `json:"features"`
}

// OK reports whether every checked trial agreed.
func (r *Report) OK() bool { return r.Failure == nil }

// JSON renders r indented.
func (r *Report) JSON() ([]byte, error) {
	return json.MarshalIndent(r, "", "  ")
}

// Run draws cfg.Trials scenarios from cfg.Seed and checks each one.
//
// It stops at the first mismatch, returning the report together with the
// *MismatchError, or when ctx is done, returning the partial report and
// ctx.Err().
func Run(ctx context.Context, cfg RunConfig) (*Report, error) {
	if cfg.Trials < 0 {
		return nil, errors.New("conformance: negative trial count")
	}
	gen, err := NewGenerator(cfg.Generator, cfg.Seed)
	if err != nil {
		return nil, err
	}

	log := logger.FromContext(ctx).With("component", "conformance")
	rep := &Report{
		RunID:     uuid.NewString(),
		Seed:      cfg.Seed,
		Requested: cfg.Trials,
		StartedAt: time.Now(),
		Host:      hostInfo(),
	}
	log = log.With("run_id", rep.RunID)
	log.Info("conformance run started", "seed", cfg.Seed, "trials", cfg.Trials)
	defer func() { rep.Duration = time.Since(rep.StartedAt) }()

	for i := range cfg.Trials {
		if err := ctx.Err(); err != nil {
			log.Warn("conformance run cancelled", "completed", rep.Trials)
			return rep, err
		}
		s := gen.Next()
		outcome, err := check(s, cfg.Workers)
		rep.Trials++

		var mm *MismatchError
		switch {
		case errors.As(err, &mm):
			metrics.RecordMismatch()
			rep.Failure = &Failure{Trial: i, Scenario: s.String(), Mismatch: mm}
			log.Error("paths diverged", "trial", i, "scenario", s.String(), "error", mm)
			return rep, mm
		case errors.Is(err, ErrAssumption):
			rep.Skipped++
		case err != nil:
			return rep, err
		case outcome == Match:
			rep.Matched++
		case outcome == ErrorMatch:
			rep.ErrorMatched++
		}
		metrics.RecordTrial(string(outcome))
		log.Debug("trial", "n", i, "outcome", outcome, "scenario", s.String())
	}

	log.Info("conformance run finished",
		"matched", rep.Matched, "error_matched", rep.ErrorMatched, "skipped", rep.Skipped)
	return rep, nil
}

func hostInfo() Host {
	features := map[string]bool{}
	switch runtime.GOARCH {
	case "amd64", "386":
		features["AVX"] = cpu.X86.HasAVX
		features["AVX2"] = cpu.X86.HasAVX2
		features["FMA"] = cpu.X86.HasFMA
		features["AVX512F"] = cpu.X86.HasAVX512F
		features["AVX512VNNI"] = cpu.X86.HasAVX512VNNI
	case "arm64":
		features["ASIMD"] = cpu.ARM64.HasASIMD
		features["ASIMDDP"] = cpu.ARM64.HasASIMDDP
		features["SVE"] = cpu.ARM64.HasSVE
	}
	return Host{
		GoVersion: runtime.Version(),
		GoOS:      runtime.GOOS,
		GoArch:    runtime.GOARCH,
		CPUs:      runtime.NumCPU(),
		Features:  features,
	}
}
