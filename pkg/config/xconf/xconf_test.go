package xconf

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type redisSection struct {
	Addr string `koanf:"addr"`
	DB   int    `koanf:"db"`
}

type fileConfig struct {
	Redis    redisSection `koanf:"redis"`
	Capacity int          `koanf:"capacity"`
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
}

func TestNew(t *testing.T) {
	dir := t.TempDir()

	t.Run("yaml", func(t *testing.T) {
		path := filepath.Join(dir, "a.yaml")
		writeFile(t, path, "redis:\n  addr: 127.0.0.1:6379\n  db: 2\ncapacity: 3\n")

		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, FormatYAML, cfg.Format())
		assert.Equal(t, path, cfg.Path())

		var fc fileConfig
		require.NoError(t, cfg.Unmarshal("", &fc))
		assert.Equal(t, fileConfig{Redis: redisSection{Addr: "127.0.0.1:6379", DB: 2}, Capacity: 3}, fc)
		assert.Equal(t, 2, cfg.Client().Int("redis.db"))
	})

	t.Run("json", func(t *testing.T) {
		path := filepath.Join(dir, "a.json")
		writeFile(t, path, `{"capacity": 5}`)

		cfg, err := New(path)
		require.NoError(t, err)
		assert.Equal(t, 5, cfg.Client().Int("capacity"))
	})

	t.Run("errors", func(t *testing.T) {
		_, err := New("")
		assert.ErrorIs(t, err, ErrEmptyPath)

		_, err = New(filepath.Join(dir, "a.toml"))
		assert.ErrorIs(t, err, ErrUnsupportedFormat)

		_, err = New(filepath.Join(dir, "missing.yaml"))
		assert.ErrorIs(t, err, ErrLoadFailed)

		bad := filepath.Join(dir, "bad.json")
		writeFile(t, bad, "{not json")
		_, err = New(bad)
		assert.ErrorIs(t, err, ErrParseFailed)
	})
}

func TestNewFromBytes(t *testing.T) {
	cfg, err := NewFromBytes([]byte("redis:\n  addr: r:6379\n"), FormatYAML)
	require.NoError(t, err)
	assert.Equal(t, "r:6379", cfg.Client().String("redis.addr"))
	assert.ErrorIs(t, cfg.Reload(), ErrNotWatchable)

	empty, err := NewFromBytes(nil, FormatJSON)
	require.NoError(t, err)
	var fc fileConfig
	require.NoError(t, empty.Unmarshal("", &fc))
	assert.Zero(t, fc)

	_, err = NewFromBytes(nil, Format("toml"))
	assert.ErrorIs(t, err, ErrUnsupportedFormat)

	_, err = Watch(cfg, nil)
	assert.ErrorIs(t, err, ErrNotWatchable)
}

func TestOptions(t *testing.T) {
	cfg, err := NewFromBytes([]byte(`{"a": {"b": 1}}`), FormatJSON, WithDelim("/"), WithTag("json"), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, cfg.Client().Int("a/b"))

	var out struct {
		A struct {
			B int `json:"b"`
		} `json:"a"`
	}
	require.NoError(t, cfg.Unmarshal("", &out))
	assert.Equal(t, 1, out.A.B)
}

func TestReload_KeepsOldOnParseError(t *testing.T) {
	path := filepath.Join(t.TempDir(), "c.yaml")
	writeFile(t, path, "capacity: 1\n")
	cfg, err := New(path)
	require.NoError(t, err)

	writeFile(t, path, "capacity: [\n")
	assert.ErrorIs(t, cfg.Reload(), ErrParseFailed)
	assert.Equal(t, 1, cfg.Client().Int("capacity"))
}

func TestWatch_ReloadsOnChange(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "rsemctl.yaml")
	writeFile(t, path, "log:\n  level: info\n")

	cfg, err := New(path)
	require.NoError(t, err)

	levels := make(chan string, 8)
	w, err := Watch(cfg, func(c Config, err error) {
		if err == nil {
			levels <- c.Client().String("log.level")
		}
	}, WithDebounce(20*time.Millisecond))
	require.NoError(t, err)
	w.StartAsync()
	w.StartAsync()
	t.Cleanup(func() { assert.NoError(t, w.Stop()) })

	// 同目录其他文件不触发
	writeFile(t, filepath.Join(dir, "other.yaml"), "x: 1\n")
	writeFile(t, path, "log:\n  level: debug\n")

	select {
	case lvl := <-levels:
		assert.Equal(t, "debug", lvl)
	case <-time.After(5 * time.Second):
		t.Fatal("config change not observed")
	}
}

func TestWatcher_StopIdempotent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "s.json")
	writeFile(t, path, "{}")
	cfg, err := New(path)
	require.NoError(t, err)

	w, err := Watch(cfg, nil)
	require.NoError(t, err)
	w.StartAsync()
	require.NoError(t, w.Stop())
	require.NoError(t, w.Stop())

	// Stop 之后 Start 直接返回
	w.Start()
}
