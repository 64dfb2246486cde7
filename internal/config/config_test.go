package config

import (
	"log/slog"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, filepath.Join("data", "breast_cancer_screening.csv"), cfg.ScreeningPath())
	assert.Equal(t, 4096, cfg.CacheSize)
	assert.Equal(t, []string{"RT"}, cfg.MortalityUnits)
	assert.Empty(t, cfg.ExamDurations)
	assert.Equal(t, slog.LevelInfo, cfg.Level())
}

func TestLoadFromEnv(t *testing.T) {
	t.Setenv("AGEOFRISK_DATA_DIR", "/srv/data")
	t.Setenv("AGEOFRISK_MORTALITY_FILE", "/abs/mort.csv")
	t.Setenv("AGEOFRISK_MORTALITY_UNITS", "RT,NR")
	t.Setenv("AGEOFRISK_CACHE_SIZE", "16")
	t.Setenv("AGEOFRISK_LOG_LEVEL", "DEBUG")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "/srv/data/breast_exam_income.csv", cfg.ExamIncomePath())
	assert.Equal(t, "/abs/mort.csv", cfg.MortalityPath())
	assert.Equal(t, []string{"RT", "NR"}, cfg.MortalityUnits)
	assert.Equal(t, 16, cfg.CacheSize)
	assert.Equal(t, slog.LevelDebug, cfg.Level())
}

func TestLoadRejectsBadNumbers(t *testing.T) {
	t.Setenv("AGEOFRISK_CACHE_SIZE", "many")
	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "parse env")
}
