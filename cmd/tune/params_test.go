package main

import (
	"math"
	"testing"

	"github.com/pthm-cable/seisinv/config"
)

func TestNormalizeRoundTrip(t *testing.T) {
	pv := NewParamVector()
	raw := make([]float64, pv.Dim())
	for i, spec := range pv.Specs {
		raw[i] = spec.Min + 0.3*(spec.Max-spec.Min)
	}
	back := pv.Denormalize(pv.Normalize(raw))
	for i := range raw {
		if math.Abs(back[i]-raw[i]) > 1e-9*math.Max(1, raw[i]) {
			t.Errorf("%s: %v -> %v", pv.Specs[i].Name, raw[i], back[i])
		}
	}
}

func TestLogScaleMidpoint(t *testing.T) {
	pv := NewParamVector()
	mid := make([]float64, pv.Dim())
	for i := range mid {
		mid[i] = 0.5
	}
	raw := pv.Denormalize(mid)
	for i, spec := range pv.Specs {
		want := (spec.Min + spec.Max) / 2
		if spec.Log {
			want = math.Sqrt(spec.Min * spec.Max)
		}
		if math.Abs(raw[i]-want) > 1e-9*want {
			t.Errorf("%s midpoint = %v, want %v", spec.Name, raw[i], want)
		}
	}
}

func TestClamp(t *testing.T) {
	pv := NewParamVector()
	v := make([]float64, pv.Dim())
	for i, spec := range pv.Specs {
		v[i] = spec.Max * 10
		if i%2 == 0 {
			v[i] = spec.Min - 1
		}
	}
	for i, c := range pv.Clamp(v) {
		if c < pv.Specs[i].Min || c > pv.Specs[i].Max {
			t.Errorf("%s = %v outside [%v,%v]", pv.Specs[i].Name, c, pv.Specs[i].Min, pv.Specs[i].Max)
		}
	}
}

func TestApplyAndExtract(t *testing.T) {
	cfg, err := config.Load("")
	if err != nil {
		t.Fatal(err)
	}
	pv := NewParamVector()
	values := []float64{0.02, 0.01, 1e-5, 0.2, 2, 50}
	pv.ApplyToConfig(cfg, values)

	if cfg.Sampler.LearningRate != 0.02 {
		t.Errorf("learning rate = %v", cfg.Sampler.LearningRate)
	}
	if math.Abs(cfg.Sampler.FinalLearningRate-0.0002) > 1e-15 {
		t.Errorf("final learning rate = %v, want 0.0002", cfg.Sampler.FinalLearningRate)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("applied config should validate: %v", err)
	}
	wantDec := (0.02 - 0.0002) / float64(cfg.Sampler.MaxIter)
	if math.Abs(cfg.Derived.LRDecrement-wantDec) > 1e-15 {
		t.Errorf("derived decrement not recomputed: %v", cfg.Derived.LRDecrement)
	}

	got := pv.ExtractFromConfig(cfg)
	for i := range values {
		if math.Abs(got[i]-values[i]) > 1e-12 {
			t.Errorf("%s: extracted %v, want %v", pv.Specs[i].Name, got[i], values[i])
		}
	}
}
