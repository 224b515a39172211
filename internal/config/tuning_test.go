package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "tuning.json")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadTuningConfig_Partial(t *testing.T) {
	path := writeConfig(t, `{"min_observations": 30, "keyframe_interval": 12}`)

	cfg, err := LoadTuningConfig(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	hc := cfg.HandlerConfig()
	if hc.MinObservations != 30 {
		t.Errorf("expected min_observations 30, got %d", hc.MinObservations)
	}
	// Omitted fields keep defaults.
	if hc.MaxDropFraction != 0.6 {
		t.Errorf("expected default max_drop_fraction 0.6, got %v", hc.MaxDropFraction)
	}

	pc := cfg.PipelineConfig()
	if pc.KeyframeInterval != 12 {
		t.Errorf("expected keyframe_interval 12, got %d", pc.KeyframeInterval)
	}
	if pc.MinInitDisparity != 40.0 {
		t.Errorf("expected default min_init_disparity 40, got %v", pc.MinInitDisparity)
	}
}

func TestLoadTuningConfig_RejectsInvalidValues(t *testing.T) {
	tests := []struct {
		name string
		json string
	}{
		{"zero min_observations", `{"min_observations": 0}`},
		{"drop fraction above one", `{"max_drop_fraction": 1.5}`},
		{"negative disparity", `{"min_init_disparity": -1}`},
		{"keyframe ratio of one", `{"keyframe_obs_ratio": 1.0}`},
		{"negative optimizer budget", `{"optimize_max_points": -5}`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := writeConfig(t, tt.json)
			if _, err := LoadTuningConfig(path); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLoadTuningConfig_RejectsNonJSONExtension(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	if err := os.WriteFile(path, []byte("{}"), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadTuningConfig(path); err == nil {
		t.Error("expected extension error")
	}
}

func TestLoadTuningConfig_MissingFile(t *testing.T) {
	if _, err := LoadTuningConfig(filepath.Join(t.TempDir(), "absent.json")); err == nil {
		t.Error("expected stat error")
	}
}

func TestEmptyTuningConfigUsesDefaults(t *testing.T) {
	cfg := EmptyTuningConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("empty config must validate: %v", err)
	}

	hc := cfg.HandlerConfig()
	if hc.MinObservations != 50 || hc.TelemetryWindow != 10 {
		t.Errorf("unexpected handler defaults: %+v", hc)
	}
	pc := cfg.PipelineConfig()
	if pc.OptimizeMaxPoints != 50 || pc.OptimizeMaxIter != 5 {
		t.Errorf("unexpected pipeline defaults: %+v", pc)
	}
}
