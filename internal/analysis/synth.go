package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os/exec"
	"strings"

	"subhalo-pipeline/internal/model"
)

// SFH is a tabular star formation history at one metallicity together with
// the stellar population parameters to synthesise it with.
type SFH struct {
	Time    []float64          `json:"time"` // bin centres, Gyr
	SFR     []float64          `json:"sfr"`  // Msun/yr
	LogZsol float64            `json:"logzsol"`
	Tage    float64            `json:"tage"` // Gyr
	Params  map[string]float64 `json:"params,omitempty"`
}

// Spectrum is a synthesised spectrum. Flux may contain NaN.
type Spectrum struct {
	Wave []float64
	Flux []float64
}

// Synthesizer turns a star formation history into a spectrum.
type Synthesizer interface {
	Synthesize(ctx context.Context, sfh SFH) (*Spectrum, error)
}

// ExecSynthesizer runs an external program per call. The program reads the
// SFH as JSON on stdin and writes {"wave": [...], "spec": [...]} on stdout,
// with null for NaN.
type ExecSynthesizer struct {
	Command string
	Args    []string
}

type execOutput struct {
	Wave []model.Float `json:"wave"`
	Spec []model.Float `json:"spec"`
}

func (s *ExecSynthesizer) Synthesize(ctx context.Context, sfh SFH) (*Spectrum, error) {
	if s.Command == "" {
		return nil, errors.New("no synthesizer command configured")
	}
	in, err := json.Marshal(sfh)
	if err != nil {
		return nil, fmt.Errorf("failed to encode SFH: %w", err)
	}

	cmd := exec.CommandContext(ctx, s.Command, s.Args...)
	cmd.Stdin = bytes.NewReader(in)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("synthesizer %s failed: %w: %s", s.Command, err, strings.TrimSpace(stderr.String()))
	}

	var out execOutput
	if err := json.Unmarshal(stdout.Bytes(), &out); err != nil {
		return nil, fmt.Errorf("failed to parse synthesizer output: %w", err)
	}
	if len(out.Wave) != len(out.Spec) {
		return nil, fmt.Errorf("synthesizer returned %d wavelengths and %d fluxes", len(out.Wave), len(out.Spec))
	}

	sp := &Spectrum{Wave: make([]float64, len(out.Wave)), Flux: make([]float64, len(out.Spec))}
	for i := range out.Wave {
		sp.Wave[i] = float64(out.Wave[i])
		sp.Flux[i] = float64(out.Spec[i])
	}
	return sp, nil
}
