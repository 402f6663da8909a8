package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// yamlSafePath keeps Windows paths from being read as YAML escapes.
func yamlSafePath(p string) string {
	return filepath.ToSlash(p)
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "servicehost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadAppliesDefaults(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
logging:
  level: debug
data_dir: "`+yamlSafePath(dataDir)+`"
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "DEBUG", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
	assert.Equal(t, DefaultShutdownTimeout, cfg.ShutdownTimeout)
	assert.True(t, cfg.API.Enabled)
	assert.Equal(t, DefaultAPIListen, cfg.API.Listen)
	assert.True(t, cfg.Metrics.Enabled)

	require.Len(t, cfg.Services, 1)
	svc := cfg.Services[0]
	assert.Equal(t, DefaultServiceName, svc.Name)
	assert.Equal(t, filepath.Join(dataDir, "mapleserver.pid"), svc.PIDFile)
	assert.Equal(t, dataDir, svc.Dir)
	assert.Equal(t, DefaultReadyTimeout, svc.ReadyTimeout)

	assert.Equal(t, filepath.Join(dataDir, "config.yaml"), cfg.Seed.Target)
	assert.Equal(t, filepath.Join(dataDir, "maple.db"), cfg.Database.Path)
	assert.Equal(t, DefaultServiceName, cfg.Database.Service)
}

func TestLoadServices(t *testing.T) {
	dataDir := t.TempDir()
	path := writeConfig(t, `
data_dir: "`+yamlSafePath(dataDir)+`"
shutdown_timeout: 5s
services:
  - name: login
    command: mapleserver
    args: ["--login"]
    control_addr: 127.0.0.1:8484
    ready_timeout: 45s
  - name: channels
    control_addr: dns+srv://_maple._tcp.local
database:
  service: login
`)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, 5*time.Second, cfg.ShutdownTimeout)
	require.Len(t, cfg.Services, 2)
	assert.Equal(t, []string{"--login"}, cfg.Services[0].Args)
	assert.Equal(t, 45*time.Second, cfg.Services[0].ReadyTimeout)
	assert.Equal(t, DefaultStopTimeout, cfg.Services[1].StopTimeout)

	d, ok := cfg.Service("channels")
	require.True(t, ok)
	assert.Equal(t, "dns+srv://_maple._tcp.local", d.ControlAddr)
}

func TestLoadMissingFileUsesDefaults(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultServiceName, cfg.Services[0].Name)
}

func TestMustLoadRequiresFile(t *testing.T) {
	_, err := MustLoad(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestEnvironmentOverrides(t *testing.T) {
	t.Setenv("SERVICEHOST_LOGGING_LEVEL", "warn")
	t.Setenv("SERVICEHOST_API_LISTEN", "127.0.0.1:9999")
	t.Setenv("SERVICEHOST_DATA_DIR", t.TempDir())

	cfg, err := Load(writeConfig(t, "logging:\n  level: INFO\n"))
	require.NoError(t, err)
	assert.Equal(t, "WARN", cfg.Logging.Level)
	assert.Equal(t, "127.0.0.1:9999", cfg.API.Listen)
}

func TestValidation(t *testing.T) {
	dataDir := yamlSafePath(t.TempDir())
	cases := map[string]string{
		"bad level": `
data_dir: "` + dataDir + `"
logging:
  level: loud
`,
		"duplicate service": `
data_dir: "` + dataDir + `"
services:
  - {name: maple, control_addr: "127.0.0.1:1"}
  - {name: maple, control_addr: "127.0.0.1:2"}
`,
		"missing control addr": `
data_dir: "` + dataDir + `"
services:
  - {name: maple}
`,
		"unknown database owner": `
data_dir: "` + dataDir + `"
database:
  service: nobody
`,
	}

	for name, content := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := Load(writeConfig(t, content))
			assert.Error(t, err)
		})
	}
}

func TestDefault(t *testing.T) {
	t.Setenv("XDG_DATA_HOME", t.TempDir())

	cfg := Default()
	require.NoError(t, Validate(cfg))
	assert.Equal(t, filepath.Join(os.Getenv("XDG_DATA_HOME"), "servicehost"), cfg.DataDir)
}
