package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/trackreco/internal/reco"
)

func writeConfig(t *testing.T, name, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(body), 0644))
	return path
}

func TestDefaultRecoConfig(t *testing.T) {
	t.Parallel()

	cfg := DefaultRecoConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 0.4, cfg.GetSigma())
	assert.Equal(t, 100.0, cfg.GetNominalSlopeGuess())
	assert.Equal(t, 3, cfg.GetMinLayers())
	assert.Equal(t, 0, cfg.GetMaxHitsPerChamber())
	assert.True(t, cfg.GetParallel())
	assert.Equal(t, -200.0, cfg.GetDriftTimeMin())
	assert.Equal(t, 600.0, cfg.GetDriftTimeMax())
	assert.Equal(t, 21.0, cfg.GetDWireHitMax())

	assert.Equal(t, reco.DefaultConfig(), cfg.ReconstructorConfig())
}

func TestEmptyRecoConfigMatchesDefaults(t *testing.T) {
	t.Parallel()

	empty, def := EmptyRecoConfig(), DefaultRecoConfig()
	assert.Equal(t, def.ReconstructorConfig(), empty.ReconstructorConfig())
	assert.Equal(t, def.GetWorkers(), empty.GetWorkers())
	assert.Equal(t, def.GetParallel(), empty.GetParallel())
	assert.Equal(t, def.GetDWireHitMax(), empty.GetDWireHitMax())
}

func TestLoadRecoConfig(t *testing.T) {
	t.Parallel()

	path := writeConfig(t, "reco.json", `{
  "sigma": 0.25,
  "min_layers": 4,
  "workers": 6,
  "parallel": false,
  "drift_time_max": 400
}`)

	cfg, err := LoadRecoConfig(path)
	require.NoError(t, err)

	assert.Equal(t, 0.25, cfg.GetSigma())
	assert.Equal(t, 4, cfg.GetMinLayers())
	assert.Equal(t, 6, cfg.GetWorkers())
	assert.False(t, cfg.GetParallel())
	assert.Equal(t, 400.0, cfg.GetDriftTimeMax())
	// Unset fields keep their defaults.
	assert.Equal(t, 100.0, cfg.GetNominalSlopeGuess())
	assert.Equal(t, -200.0, cfg.GetDriftTimeMin())

	rc := cfg.ReconstructorConfig()
	assert.Equal(t, 0.25, rc.Fit.Sigma)
	assert.Equal(t, 4, rc.MinLayers)
}

func TestLoadRecoConfig_Errors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		file    string
		body    string
		wantErr string
	}{
		{name: "wrong extension", file: "reco.yaml", body: `{}`, wantErr: ".json extension"},
		{name: "bad json", file: "bad.json", body: `{"sigma": "x"`, wantErr: "parse config JSON"},
		{name: "zero sigma", file: "s.json", body: `{"sigma": 0}`, wantErr: "sigma must be positive"},
		{name: "min layers too low", file: "l.json", body: `{"min_layers": 2}`, wantErr: "min_layers"},
		{name: "negative workers", file: "w.json", body: `{"workers": -1}`, wantErr: "workers"},
		{name: "inverted drift window", file: "d.json", body: `{"drift_time_min": 700}`, wantErr: "drift_time_min"},
		{name: "zero nominal slope", file: "n.json", body: `{"nominal_slope_guess": 0}`, wantErr: "nominal_slope_guess"},
	}
	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := LoadRecoConfig(writeConfig(t, tt.file, tt.body))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestLoadRecoConfig_Missing(t *testing.T) {
	t.Parallel()

	_, err := LoadRecoConfig("/nonexistent/path/to/reco.json")
	assert.Error(t, err)
}

func TestLoadRecoConfig_TooLarge(t *testing.T) {
	t.Parallel()

	body := `{"sigma": 0.4, "pad": "` + strings.Repeat("x", 1<<20) + `"}`
	_, err := LoadRecoConfig(writeConfig(t, "big.json", body))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "too large")
}

func TestMustLoadDefaultConfig(t *testing.T) {
	t.Parallel()

	cfg := MustLoadDefaultConfig()
	assert.Equal(t, DefaultRecoConfig(), cfg)
}
