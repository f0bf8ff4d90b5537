package env

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testConfig struct {
	Name     string          `env:"TEST_NAME"`
	Port     int             `env:"TEST_PORT"`
	Debug    bool            `env:"TEST_DEBUG"`
	Timeout  time.Duration   `env:"TEST_TIMEOUT"`
	Backoffs []time.Duration `env:"TEST_BACKOFFS"`
	Tags     []string        `env:"TEST_TAGS"`
	Nested   nestedConfig
}

type nestedConfig struct {
	URL string `env:"TEST_NESTED_URL"`
}

func TestLoad(t *testing.T) {
	t.Setenv("TEST_NAME", "greet")
	t.Setenv("TEST_PORT", "8080")
	t.Setenv("TEST_DEBUG", "true")
	t.Setenv("TEST_TIMEOUT", "10s")
	t.Setenv("TEST_BACKOFFS", "1s, 2s,4s")
	t.Setenv("TEST_TAGS", "a, b,c")
	t.Setenv("TEST_NESTED_URL", "postgres://localhost")

	cfg := &testConfig{}
	require.NoError(t, Load(cfg))

	assert.Equal(t, "greet", cfg.Name)
	assert.Equal(t, 8080, cfg.Port)
	assert.True(t, cfg.Debug)
	assert.Equal(t, 10*time.Second, cfg.Timeout)
	assert.Equal(t, []time.Duration{time.Second, 2 * time.Second, 4 * time.Second}, cfg.Backoffs)
	assert.Equal(t, []string{"a", "b", "c"}, cfg.Tags)
	assert.Equal(t, "postgres://localhost", cfg.Nested.URL)
}

func TestLoad_UnsetLeavesZeroValues(t *testing.T) {
	cfg := &testConfig{Port: 0}
	require.NoError(t, Load(cfg))
	assert.Zero(t, cfg.Port)
	assert.Nil(t, cfg.Backoffs)
}

func TestLoad_InvalidValue(t *testing.T) {
	t.Setenv("TEST_PORT", "not-a-number")

	err := Load(&testConfig{})
	require.Error(t, err)

	var invalid ErrInvalidValue
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "TEST_PORT", invalid.EnvVar)
}

func TestLoad_InvalidBackoffSequence(t *testing.T) {
	t.Setenv("TEST_BACKOFFS", "1s,banana")

	err := Load(&testConfig{})
	var invalid ErrInvalidValue
	require.True(t, errors.As(err, &invalid))
	assert.Equal(t, "TEST_BACKOFFS", invalid.EnvVar)
}

func TestLoad_NotStructPointer(t *testing.T) {
	var notAStruct int
	assert.Error(t, Load(&notAStruct))
	assert.Error(t, Load(testConfig{}))
}

type validatingConfig struct {
	Limit int `env:"TEST_LIMIT"`
}

func (c *validatingConfig) Validate() error {
	if c.Limit < 0 {
		return errors.New("limit must be non-negative")
	}
	return nil
}

func TestLoad_RunsValidation(t *testing.T) {
	t.Setenv("TEST_LIMIT", "-1")
	assert.Error(t, Load(&validatingConfig{}))

	t.Setenv("TEST_LIMIT", "5")
	cfg := &validatingConfig{}
	require.NoError(t, Load(cfg))
	assert.Equal(t, 5, cfg.Limit)
}
