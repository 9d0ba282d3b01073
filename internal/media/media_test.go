package media

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestKeyNormalization(t *testing.T) {
	t.Parallel()

	base := NewIdentity("Loid Forger", "Spy x Family")

	equal := []CharacterIdentity{
		NewIdentity("loid forger", "spy x family"),
		NewIdentity("LOID   FORGER", "Spy x Family"),
		NewIdentity(" Loid Forger ", "  Spy  x  Family "),
	}
	for _, id := range equal {
		assert.Equal(t, base.Key(), id.Key(), "identity %+v should normalize to the same key", id)
	}

	different := []CharacterIdentity{
		NewIdentity("Loid Forger", "Another Series"),
		NewIdentity("Yor Forger", "Spy x Family"),
	}
	for _, id := range different {
		assert.NotEqual(t, base.Key(), id.Key())
	}
}

func TestKeyIsSeriesQualified(t *testing.T) {
	t.Parallel()

	a := NewIdentity("Rem", "Re:Zero")
	b := NewIdentity("Rem", "Death Note")
	assert.NotEqual(t, a.Key(), b.Key(), "same name under different series must not collide")
}

func TestQueryTermsDeduplicates(t *testing.T) {
	t.Parallel()

	id := NewIdentity("Loid Forger", "Spy x Family", "Loid", "Twilight", "loid  forger", "")
	assert.Equal(t, []string{"loid forger", "loid", "twilight"}, id.QueryTerms())
}

func TestNewIdentityCopiesAliases(t *testing.T) {
	t.Parallel()

	aliases := []string{"Twilight"}
	id := NewIdentity("Loid Forger", "Spy x Family", aliases...)
	aliases[0] = "mutated"
	assert.Equal(t, "Twilight", id.Aliases[0])
}

func TestParseCategory(t *testing.T) {
	t.Parallel()

	c, err := ParseCategory("  Portrait ")
	require.NoError(t, err)
	assert.Equal(t, CategoryPortrait, c)

	_, err = ParseCategory("hologram")
	assert.Error(t, err)
}

func TestBundleCountAndEmpty(t *testing.T) {
	t.Parallel()

	b := &Bundle{Categories: map[Category][]Item{
		CategoryPortrait: {{URL: "https://img.example/1.jpg"}},
		CategoryGIF:      {{URL: "https://img.example/2.gif"}, {URL: "https://img.example/3.gif"}},
	}}
	assert.Equal(t, 3, b.Count())
	assert.False(t, b.Empty())

	assert.True(t, (&Bundle{}).Empty())
}
