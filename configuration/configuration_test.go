package configuration

import (
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
version: 0.1
log:
  level: debug
repositories:
  main:
    path: /srv/vsyncd/main
users:
  alice:
    public_key: YWJjZGVmZ2hpamtsbW5vcHFyc3R1dnd4eXowMTIzNDU=
    uses_repositories: [main]
`

func TestParse(t *testing.T) {
	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "debug", cfg.Log.Level)
	require.Equal(t, 30, cfg.Auth.ChallengeTTLSeconds)
	require.Equal(t, 2*60*60, cfg.Auth.SessionTTLSeconds)
	require.Contains(t, cfg.Repositories, "main")
	require.Equal(t, "/srv/vsyncd/main", cfg.Repositories["main"].Path)
	require.Contains(t, cfg.Users, "alice")
}

func TestParseEnvOverride(t *testing.T) {
	require.NoError(t, os.Setenv("VSYNCD_LOG_LEVEL", "warn"))
	defer os.Unsetenv("VSYNCD_LOG_LEVEL")

	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "warn", cfg.Log.Level)
}

func TestParseRejectsMissingRepositories(t *testing.T) {
	_, err := Parse(strings.NewReader("version: 0.1\n"))
	require.Error(t, err)
}

func TestParseRejectsBadVersion(t *testing.T) {
	_, err := Parse(strings.NewReader("version: 9.9\nrepositories:\n  a:\n    path: /x\n"))
	require.Error(t, err)
}

func TestParseEnvOverrideIntoMapOfStructField(t *testing.T) {
	require.NoError(t, os.Setenv("VSYNCD_REPOSITORIES_MAIN_PATH", "/srv/vsyncd/override"))
	defer os.Unsetenv("VSYNCD_REPOSITORIES_MAIN_PATH")

	cfg, err := Parse(strings.NewReader(sampleConfig))
	require.NoError(t, err)
	require.Equal(t, "/srv/vsyncd/override", cfg.Repositories["main"].Path)
}
