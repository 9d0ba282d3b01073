package charstore

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := Open(conf.StoreSettings{Path: filepath.Join(t.TempDir(), "catalog.db")}, false)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seed(t *testing.T, store *SQLiteStore) {
	t.Helper()
	chars := []Character{
		{
			Slug:   "mika-blue-archive",
			Name:   "Mika",
			Series: "Blue Archive",
			Aliases: []Alias{
				{Name: "Misono Mika"},
			},
		},
		{
			Slug:   "seia-blue-archive",
			Name:   "Seia",
			Series: "Blue Archive",
		},
	}
	for i := range chars {
		require.NoError(t, store.db.Create(&chars[i]).Error)
	}
}

func TestGetReturnsCharacterWithAliases(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	seed(t, store)

	c, err := store.Get(context.Background(), 1)
	require.NoError(t, err)

	assert.Equal(t, "Mika", c.Name)
	assert.Equal(t, "Blue Archive", c.Series)
	require.Len(t, c.Aliases, 1)
	assert.Equal(t, "Misono Mika", c.Aliases[0].Name)

	identity := c.Identity()
	assert.Equal(t, "blue archive/mika", identity.Key())
	assert.Contains(t, identity.Aliases, "Misono Mika")
}

func TestGetUnknownCharacter(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	seed(t, store)

	_, err := store.Get(context.Background(), 999)
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

func TestGetBySlug(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	seed(t, store)

	c, err := store.GetBySlug(context.Background(), "seia-blue-archive")
	require.NoError(t, err)
	assert.Equal(t, "Seia", c.Name)

	_, err = store.GetBySlug(context.Background(), "nonexistent")
	assert.ErrorIs(t, err, ErrCharacterNotFound)
}

func TestSearchMatchesNameAndAlias(t *testing.T) {
	t.Parallel()

	store := openTestStore(t)
	seed(t, store)

	byName, err := store.Search(context.Background(), "mika", 10)
	require.NoError(t, err)
	require.Len(t, byName, 1)
	assert.Equal(t, "Mika", byName[0].Name)

	byAlias, err := store.Search(context.Background(), "misono", 10)
	require.NoError(t, err)
	require.Len(t, byAlias, 1)
	assert.Equal(t, "Mika", byAlias[0].Name)

	none, err := store.Search(context.Background(), "hoshino", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}
