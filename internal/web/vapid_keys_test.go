package web

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/orcadeck/orca/internal/localdb"
)

func TestEnsurePushVAPIDKeysCreatesAndReuses(t *testing.T) {
	db, err := localdb.Open(filepath.Join(t.TempDir(), "orca.db"))
	require.NoError(t, err)
	defer db.Close()
	ctx := context.Background()

	pub1, priv1, generated, err := EnsurePushVAPIDKeys(ctx, db)
	require.NoError(t, err)
	assert.True(t, generated)
	assert.NotEmpty(t, pub1)
	assert.NotEmpty(t, priv1)

	pub2, priv2, generated, err := EnsurePushVAPIDKeys(ctx, db)
	require.NoError(t, err)
	assert.False(t, generated)
	assert.Equal(t, pub1, pub2)
	assert.Equal(t, priv1, priv2)

	stored, ok, err := db.Setting(ctx, settingVAPIDPublic)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, pub1, stored)
}
