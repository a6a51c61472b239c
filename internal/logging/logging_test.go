package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogging_NoopBeforeInit(t *testing.T) {
	// Без инициализации вызовы не должны паниковать
	Info("тест %d", 1)
	GetComponentLogger("physics").Warn("тест %s", "warn")
}

func TestLogging_WritesComponentToFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creatures.log")

	opts := DefaultOptions()
	opts.Console = false
	opts.File = path
	opts.Compress = false
	opts.Level = "debug"
	require.NoError(t, InitDefaultLogger(opts))

	GetComponentLogger("world").Warn("существо %d застряло", 7)
	Debug("отладка")
	require.NoError(t, CloseDefaultLogger())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	content := string(data)
	assert.True(t, strings.Contains(content, "world"), "Имя компонента попадает в лог")
	assert.Contains(t, content, "существо 7 застряло")
	assert.Contains(t, content, "отладка")
}

func TestLogging_LevelFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "creatures.log")

	opts := DefaultOptions()
	opts.Console = false
	opts.File = path
	opts.Compress = false
	opts.Level = "warn"
	require.NoError(t, InitDefaultLogger(opts))

	Info("не должно попасть")
	Error("ошибка")
	require.NoError(t, CloseDefaultLogger())

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.NotContains(t, string(data), "не должно попасть")
	assert.Contains(t, string(data), "ошибка")
}

func TestLogging_NoOutputs(t *testing.T) {
	assert.Error(t, InitDefaultLogger(Options{Level: "info"}))
}

func TestParseLevel(t *testing.T) {
	assert.Equal(t, DEBUG, ParseLevel("DEBUG"))
	assert.Equal(t, WARN, ParseLevel("warning"))
	assert.Equal(t, INFO, ParseLevel("что-то"))
	assert.Equal(t, "ERROR", ERROR.String())
}
