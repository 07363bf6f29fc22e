package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/stretchr/testify/require"
	"github.com/taskscope/taskscope/internal/taskscopeerr"
)

func TestLoadAppliesDefaultsWithNoOverrides(t *testing.T) {
	cfg, err := Load(nil, "")
	require.NoError(t, err)
	require.Equal(t, DefaultTarget, cfg.Target)
	require.Equal(t, uint64(50), cfg.WarnSelfWakePct)
}

func TestLoadRejectsUnsupportedScheme(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("target: ftp://example.com\n"), 0o600))

	_, err := Load(nil, path)
	require.Error(t, err)
	require.ErrorIs(t, err, taskscopeerr.ErrConfiguration)
}

func TestLoadReadsYAMLFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "taskscope.yaml")
	require.NoError(t, os.WriteFile(path, []byte("retain-for: 10s\nwarn-self-wake-pct: 75\n"), 0o600))

	cfg, err := Load(nil, path)
	require.NoError(t, err)
	require.Equal(t, uint64(75), cfg.WarnSelfWakePct)
}

func TestFlagsOverrideDefaults(t *testing.T) {
	flags := pflag.NewFlagSet("test", pflag.ContinueOnError)
	BindFlags(flags)
	require.NoError(t, flags.Parse([]string{"--target", "https://example.com:6669"}))

	cfg, err := Load(flags, "")
	require.NoError(t, err)
	require.Equal(t, "https://example.com:6669", cfg.Target)
}

func TestValidateRejectsOutOfRangePercentage(t *testing.T) {
	cfg := defaults()
	cfg.WarnSelfWakePct = 150
	require.Error(t, Validate(&cfg))
}
