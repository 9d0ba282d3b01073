package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/soratane/chardex-go/internal/charstore"
	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/media"
)

// FetchOnce looks a character up by slug or name, aggregates its media for
// the given categories and writes the bundle as JSON to out. Used by the
// one-shot fetch subcommand.
func FetchOnce(ctx context.Context, settings *conf.Settings, query string, categoryNames []string, out io.Writer) error {
	categories := media.AllCategories()
	if len(categoryNames) > 0 {
		categories = categories[:0]
		for _, name := range categoryNames {
			cat, err := media.ParseCategory(name)
			if err != nil {
				return err
			}
			categories = append(categories, cat)
		}
	}

	engine, err := New(settings)
	if err != nil {
		return err
	}
	defer func() { _ = engine.Close() }()

	character, err := resolveCharacter(ctx, engine.Store, query)
	if err != nil {
		return err
	}

	bundle, err := engine.Cache.Get(ctx, character.Identity(), categories)
	if err != nil {
		return fmt.Errorf("aggregating media for %q: %w", character.Name, err)
	}

	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(fetchOutput{
		Character:  character.Name,
		Series:     character.Series,
		Partial:    bundle.Partial,
		TotalItems: bundle.Count(),
		Categories: bundle.Categories,
	})
}

type fetchOutput struct {
	Character  string                          `json:"character"`
	Series     string                          `json:"series"`
	Partial    bool                            `json:"partial"`
	TotalItems int                             `json:"total_items"`
	Categories map[media.Category][]media.Item `json:"categories"`
}

// resolveCharacter tries the query as a slug first, then as a name search.
func resolveCharacter(ctx context.Context, store charstore.Store, query string) (*charstore.Character, error) {
	if c, err := store.GetBySlug(ctx, query); err == nil {
		return c, nil
	} else if !errors.Is(err, charstore.ErrCharacterNotFound) {
		return nil, err
	}

	matches, err := store.Search(ctx, query, 2)
	if err != nil {
		return nil, err
	}
	switch len(matches) {
	case 0:
		return nil, fmt.Errorf("no character matches %q", query)
	case 1:
		return &matches[0], nil
	default:
		return nil, fmt.Errorf("%q is ambiguous, use the character slug", query)
	}
}
