package config

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/api"
	"github.com/tendant/media-registry/pkg/mediaregistry/contentstore"
	"github.com/tendant/media-registry/pkg/mediaregistry/repo/cached"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, "8080", cfg.Port)
	assert.Equal(t, "memory", cfg.DatabaseType)
	assert.Equal(t, "memory", cfg.Storage.Type)
	assert.Equal(t, "header", cfg.AuthMode)
	assert.Equal(t, api.DefaultCallerHeader, cfg.CallerHeader)
	assert.True(t, cfg.EnableEventLogging)
	assert.Equal(t, 60*time.Second, cfg.RequestTimeout)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		opts    []Option
		wantErr string
	}{
		{"postgres without url", []Option{WithDatabase("postgres", "")}, "database_url is required"},
		{"unknown database", []Option{WithDatabase("sqlite", "x")}, "database_type must be"},
		{"fs without dir", []Option{WithStorage("fs", nil)}, "base_dir is required"},
		{"s3 without bucket", []Option{WithStorage("s3", map[string]interface{}{"region": "us-east-1"})}, "bucket is required"},
		{"unknown storage", []Option{WithStorage("gcs", nil)}, "unsupported storage type"},
		{"jwt without secret", []Option{WithJWTAuth("")}, "jwt_secret is required"},
		{"zero upload limit", []Option{WithMaxUploadBytes(0)}, "max_upload_bytes"},
		{"negative cache", []Option{WithCache(-1, time.Minute)}, "cache_size"},
		{"empty port", []Option{WithPort("")}, "port is required"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Load(tt.opts...)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.wantErr)
		})
	}
}

func TestHeaderAuthRejectsEmptyHeader(t *testing.T) {
	_, err := Load(WithHeaderAuth(""))
	assert.Error(t, err)
}

func TestBuildMemory(t *testing.T) {
	ctx := context.Background()
	cfg, err := Load(WithAdmin("0xadmin"), WithCache(16, time.Minute))
	require.NoError(t, err)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	components, err := cfg.Build(ctx, logger, prometheus.NewRegistry())
	require.NoError(t, err)
	defer components.Close()

	require.NotNil(t, components.Store)
	assert.IsType(t, &cached.Repository{}, components.Repository)
	assert.IsType(t, api.HeaderIdentity{}, components.Identity)

	status, err := components.Registry.Status(ctx)
	require.NoError(t, err)
	assert.Equal(t, mediaregistry.Address("0xadmin"), status.Admin)

	ref, err := components.Store.Put(ctx, bytes.NewReader([]byte("clip")), contentstore.Attributes{Title: "Clip"})
	require.NoError(t, err)

	result, err := components.Registry.AddOwnedMedia(ctx, "0xowner", mediaregistry.AddMediaRequest{
		ContentRef: ref.String(),
		Title:      "Clip",
	})
	require.NoError(t, err)
	assert.Equal(t, uint64(1), result.OwnerIndex)
}

func TestBuildRequiresAdminForEmptyLedger(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	_, err = cfg.Build(context.Background(), nil, prometheus.NewRegistry())
	assert.Error(t, err)
}

func TestBuildWithoutStorage(t *testing.T) {
	cfg, err := Load(WithAdmin("0xadmin"), WithStorage("none", nil), WithJWTAuth("secret"))
	require.NoError(t, err)

	components, err := cfg.Build(context.Background(), nil, prometheus.NewRegistry())
	require.NoError(t, err)
	defer components.Close()

	assert.Nil(t, components.Store)
	assert.IsType(t, &api.JWTIdentity{}, components.Identity)
}

func TestBuildFileStorage(t *testing.T) {
	cfg, err := Load(WithStorage("fs", map[string]interface{}{"base_dir": t.TempDir()}))
	require.NoError(t, err)

	store, err := cfg.BuildContentStore(context.Background(), slog.Default())
	require.NoError(t, err)
	assert.Equal(t, cfg.MaxUploadBytes, store.MaxBytes())
}

func TestBuildEventSink(t *testing.T) {
	cfg, err := Load(WithEventLogging(false))
	require.NoError(t, err)

	sink := cfg.BuildEventSink(slog.Default(), nil)
	assert.IsType(t, &mediaregistry.NoopEventSink{}, sink)

	cfg.EnableEventLogging = true
	sink = cfg.BuildEventSink(slog.Default(), nil)
	assert.NoError(t, sink.Publish(context.Background(), mediaregistry.Event{Type: mediaregistry.EventPaused}))
}

func TestGetHelpers(t *testing.T) {
	m := map[string]interface{}{"s": "v", "b": true, "bs": "true", "n": 3}
	assert.Equal(t, "v", getString(m, "s", "d"))
	assert.Equal(t, "d", getString(m, "n", "d"))
	assert.True(t, getBool(m, "b", false))
	assert.True(t, getBool(m, "bs", false))
	assert.False(t, getBool(m, "missing", false))
}
