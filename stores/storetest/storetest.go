// Package storetest holds the behaviour every core.OptionStore must share.
package storetest

import (
	"context"
	"testing"
	"w9-uploads/core"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Run exercises get, put, overwrite and delete against store.
func Run(t *testing.T, store core.OptionStore) {
	t.Helper()
	ctx := context.Background()

	t.Run("missing key", func(t *testing.T) {
		_, err := store.Get(ctx, "absent_option")
		assert.ErrorIs(t, err, core.ErrOptionNotFound)
	})

	t.Run("put then get", func(t *testing.T) {
		value := []byte(`{"version":1,"jq_theme":"start","managers":[4,13]}`)
		require.NoError(t, store.Put(ctx, "stf_w9_uploads", value))

		got, err := store.Get(ctx, "stf_w9_uploads")
		require.NoError(t, err)
		assert.JSONEq(t, string(value), string(got))
	})

	t.Run("overwrite", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "overwritten", []byte(`{"managers":[4]}`)))
		require.NoError(t, store.Put(ctx, "overwritten", []byte(`{"managers":[4,13,7]}`)))

		got, err := store.Get(ctx, "overwritten")
		require.NoError(t, err)
		assert.JSONEq(t, `{"managers":[4,13,7]}`, string(got))
	})

	t.Run("delete", func(t *testing.T) {
		require.NoError(t, store.Put(ctx, "stf_pdf_uploads", []byte(`{"managers":[4]}`)))
		require.NoError(t, store.Delete(ctx, "stf_pdf_uploads"))

		_, err := store.Get(ctx, "stf_pdf_uploads")
		assert.ErrorIs(t, err, core.ErrOptionNotFound)
	})

	t.Run("delete missing key", func(t *testing.T) {
		assert.NoError(t, store.Delete(ctx, "never_stored"))
	})
}
