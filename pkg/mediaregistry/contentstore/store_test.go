package contentstore_test

import (
	"bytes"
	"context"
	"io"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tendant/media-registry/pkg/mediaregistry/contentstore"
	"github.com/tendant/media-registry/pkg/mediaregistry/contentstore/memory"
)

func TestParseRef(t *testing.T) {
	valid := contentstore.RefPrefix + strings.Repeat("ab", 32)
	ref, err := contentstore.ParseRef(valid)
	require.NoError(t, err)
	assert.Equal(t, valid, ref.String())

	for _, s := range []string{"", "sha256-", "md5-" + strings.Repeat("ab", 32), contentstore.RefPrefix + strings.Repeat("zz", 32)} {
		_, err := contentstore.ParseRef(s)
		assert.ErrorIs(t, err, contentstore.ErrInvalidRef, s)
	}
}

func TestStorePutAndOpen(t *testing.T) {
	store, err := contentstore.New(memory.New())
	require.NoError(t, err)
	ctx := context.Background()

	ref, err := store.Put(ctx, strings.NewReader("<html><body>clip</body></html>"), contentstore.Attributes{
		Title:    "Media file title",
		Tags:     "Media file description",
		FileName: "clip.html",
	})
	require.NoError(t, err)
	_, err = contentstore.ParseRef(ref.String())
	require.NoError(t, err)

	body, meta, err := store.Open(ctx, ref)
	require.NoError(t, err)
	defer body.Close()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "<html><body>clip</body></html>", string(data))
	assert.Contains(t, meta.ContentType, "text/html")

	attrs, err := store.Attributes(ctx, ref)
	require.NoError(t, err)
	assert.Equal(t, "Media file title", attrs.Title)
	assert.Equal(t, int64(len(data)), attrs.Size)
	assert.False(t, attrs.CreatedAt.IsZero())

	t.Run("identical bytes share a reference", func(t *testing.T) {
		again, err := store.Put(ctx, strings.NewReader("<html><body>clip</body></html>"), contentstore.Attributes{Title: "other"})
		require.NoError(t, err)
		assert.Equal(t, ref, again)

		attrs, err := store.Attributes(ctx, ref)
		require.NoError(t, err)
		assert.Equal(t, "Media file title", attrs.Title)
	})

	t.Run("unknown reference", func(t *testing.T) {
		missing := contentstore.Ref(contentstore.RefPrefix + strings.Repeat("00", 32))
		_, _, err := store.Open(ctx, missing)
		assert.ErrorIs(t, err, contentstore.ErrObjectNotFound)
		_, err = store.Attributes(ctx, missing)
		assert.ErrorIs(t, err, contentstore.ErrObjectNotFound)
	})
}

func TestStoreLimits(t *testing.T) {
	store, err := contentstore.New(memory.New(), contentstore.WithMaxBytes(4))
	require.NoError(t, err)
	ctx := context.Background()

	_, err = store.Put(ctx, bytes.NewReader([]byte("12345")), contentstore.Attributes{})
	assert.ErrorIs(t, err, contentstore.ErrTooLarge)

	_, err = store.Put(ctx, bytes.NewReader(nil), contentstore.Attributes{})
	assert.ErrorIs(t, err, contentstore.ErrEmptyContent)

	_, err = store.Put(ctx, bytes.NewReader([]byte("1234")), contentstore.Attributes{})
	assert.NoError(t, err)

	_, err = contentstore.New(nil)
	assert.Error(t, err)
	_, err = contentstore.New(memory.New(), contentstore.WithMaxBytes(0))
	assert.Error(t, err)
}
