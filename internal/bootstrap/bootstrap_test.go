package bootstrap

import (
	"context"
	"testing"

	log "github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kanshi/internal/config"
	"kanshi/internal/events"
	"kanshi/internal/sentinel"
)

func TestSetupLogging(t *testing.T) {
	prevLevel, prevFormatter := log.GetLevel(), log.StandardLogger().Formatter
	t.Cleanup(func() {
		log.SetLevel(prevLevel)
		log.SetFormatter(prevFormatter)
	})

	require.NoError(t, SetupLogging(config.LogConfig{Level: "debug", Format: "json"}))
	assert.Equal(t, log.DebugLevel, log.GetLevel())
	assert.IsType(t, &log.JSONFormatter{}, log.StandardLogger().Formatter)

	require.NoError(t, SetupLogging(config.LogConfig{}))
	assert.Equal(t, log.InfoLevel, log.GetLevel())
	assert.IsType(t, &log.TextFormatter{}, log.StandardLogger().Formatter)

	assert.Error(t, SetupLogging(config.LogConfig{Level: "loud"}))
}

func TestNewStore(t *testing.T) {
	store, err := NewStore(config.StorageConfig{Backend: config.BackendMemory})
	require.NoError(t, err)
	assert.IsType(t, &sentinel.MemoryStore{}, store)

	dir := t.TempDir()
	store, err = NewStore(config.StorageConfig{Backend: config.BackendFile, WorkDir: dir})
	require.NoError(t, err)
	fs, ok := store.(*sentinel.FileStore)
	require.True(t, ok)
	assert.Equal(t, dir, fs.Root())

	_, err = NewStore(config.StorageConfig{Backend: "redis"})
	assert.Error(t, err)
}

func TestNewCamera(t *testing.T) {
	cfg := config.Default().Camera
	cfg.Driver = config.DriverMock
	cfg.Warmup = 0

	cam, err := NewCamera(cfg)
	require.NoError(t, err)
	require.NoError(t, cam.Start(context.Background()))
	defer cam.Stop(context.Background())

	frame, err := cam.Capture(context.Background())
	require.NoError(t, err)
	assert.Equal(t, []byte{0xFF, 0xD8}, frame[:2])

	cfg.Driver = "gphoto"
	_, err = NewCamera(cfg)
	assert.Error(t, err)
}

func TestNewPublisherWithoutBroker(t *testing.T) {
	p, err := NewPublisher(config.MQTTConfig{})
	require.NoError(t, err)
	assert.Equal(t, events.Nop{}, p)
}
