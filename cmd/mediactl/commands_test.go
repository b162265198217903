package main

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-registry/pkg/mediaregistry"
	"github.com/tendant/media-registry/pkg/mediaregistry/config"
)

func newTestApp(t *testing.T, opts ...config.Option) *app {
	t.Helper()
	opts = append([]config.Option{config.WithAdmin("0xadmin"), config.WithEventLogging(false)}, opts...)
	a := newApp(func() (*config.ServerConfig, error) {
		return config.Load(opts...)
	})
	t.Cleanup(a.close)
	return a
}

func run(t *testing.T, a *app, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := NewRootCommand(a)
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStatusAndPause(t *testing.T) {
	a := newTestApp(t)

	out, err := run(t, a, "status")
	require.NoError(t, err)
	var status mediaregistry.Status
	require.NoError(t, json.Unmarshal([]byte(out), &status))
	assert.Equal(t, mediaregistry.Address("0xadmin"), status.Admin)
	assert.False(t, status.Paused)

	_, err = run(t, a, "pause")
	require.NoError(t, err)

	_, err = run(t, a, "pause")
	assert.ErrorIs(t, err, mediaregistry.ErrAlreadyPaused)

	_, err = run(t, a, "unpause", "--as", "0xstranger")
	assert.ErrorIs(t, err, mediaregistry.ErrNotAdmin)

	_, err = run(t, a, "unpause")
	require.NoError(t, err)
}

func TestTransferAdmin(t *testing.T) {
	a := newTestApp(t)

	_, err := run(t, a, "transfer-admin", "0xnext")
	require.NoError(t, err)

	out, err := run(t, a, "status")
	require.NoError(t, err)
	assert.Contains(t, out, "0xnext")

	// REGISTRY_ADMIN no longer holds the role
	_, err = run(t, a, "pause")
	assert.ErrorIs(t, err, mediaregistry.ErrNotAdmin)
}

func TestRecordQueries(t *testing.T) {
	a := newTestApp(t)
	components, err := a.build(context.Background())
	require.NoError(t, err)

	result, err := components.Registry.AddOwnedMedia(context.Background(), "0xowner", mediaregistry.AddMediaRequest{
		ContentRef: "sha256-abc",
		Title:      "Sunset",
	})
	require.NoError(t, err)

	out, err := run(t, a, "counts", "0xowner")
	require.NoError(t, err)
	var counts mediaregistry.FileCounts
	require.NoError(t, json.Unmarshal([]byte(out), &counts))
	assert.Equal(t, uint64(1), counts.TotalAddedFiles)

	out, err = run(t, a, "get", string(result.PublicHandle))
	require.NoError(t, err)
	assert.Contains(t, out, "Sunset")

	out, err = run(t, a, "get", "--owner", "0xowner", "1")
	require.NoError(t, err)
	assert.Contains(t, out, string(result.PublicHandle))

	_, err = run(t, a, "get", "--owner", "0xother", "1")
	assert.ErrorIs(t, err, mediaregistry.ErrNotFound)

	_, err = run(t, a, "get", "--owner", "0xowner", "one")
	assert.Error(t, err)

	out, err = run(t, a, "list", "0xowner")
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(out, "public_handle"))
}

func TestMigrateRequiresPostgres(t *testing.T) {
	a := newTestApp(t)
	_, err := run(t, a, "migrate")
	assert.ErrorContains(t, err, "postgres")
}

func TestToken(t *testing.T) {
	_, err := run(t, newTestApp(t), "token", "0xowner")
	assert.ErrorContains(t, err, "JWT_SECRET")

	out, err := run(t, newTestApp(t, config.WithJWTAuth("secret")), "token", "0xowner", "--ttl", "1h")
	require.NoError(t, err)
	assert.Equal(t, 2, strings.Count(strings.TrimSpace(out), "."))
}
