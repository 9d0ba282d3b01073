// Package charstore provides read access to the character catalog backing
// the bot's companion site. The catalog is written by a separate import
// pipeline; this package only looks characters up by ID or name so their
// media can be aggregated.
package charstore

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/soratane/chardex-go/internal/conf"
	"github.com/soratane/chardex-go/internal/errors"
	"github.com/soratane/chardex-go/internal/logging"
	"github.com/soratane/chardex-go/internal/media"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

// ErrCharacterNotFound reports a lookup for an unknown character.
var ErrCharacterNotFound = errors.NewStd("character not found")

// Character is one catalog entry.
type Character struct {
	ID        uint   `gorm:"primaryKey"`
	Slug      string `gorm:"uniqueIndex;size:128"`
	Name      string `gorm:"index;size:255"`
	Series    string `gorm:"index;size:255"`
	Aliases   []Alias
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Alias is an alternative name for a character, used to widen provider
// queries.
type Alias struct {
	ID          uint   `gorm:"primaryKey"`
	CharacterID uint   `gorm:"index"`
	Name        string `gorm:"index;size:255"`
}

// Identity converts the catalog entry into the media lookup identity.
func (c *Character) Identity() media.CharacterIdentity {
	aliases := make([]string, 0, len(c.Aliases))
	for _, a := range c.Aliases {
		aliases = append(aliases, a.Name)
	}
	return media.NewIdentity(c.Name, c.Series, aliases...)
}

// Store is the read interface over the character catalog.
type Store interface {
	// Get returns the character with the given ID or ErrCharacterNotFound.
	Get(ctx context.Context, id uint) (*Character, error)

	// GetBySlug returns the character with the given URL slug or
	// ErrCharacterNotFound.
	GetBySlug(ctx context.Context, slug string) (*Character, error)

	// Search returns characters whose name or alias contains the query,
	// case-insensitively, up to limit entries.
	Search(ctx context.Context, query string, limit int) ([]Character, error)

	Close() error
}

// SQLiteStore implements Store over a sqlite catalog file.
type SQLiteStore struct {
	db     *gorm.DB
	logger *slog.Logger
}

// Open opens the sqlite catalog at the configured path and migrates the
// schema.
func Open(settings conf.StoreSettings, debug bool) (*SQLiteStore, error) {
	logLevel := gormlogger.Silent
	if debug {
		logLevel = gormlogger.Warn
	}

	db, err := gorm.Open(sqlite.Open(settings.Path), &gorm.Config{
		Logger: gormlogger.Default.LogMode(logLevel),
	})
	if err != nil {
		return nil, errors.New(err).
			Component("charstore").
			Category(errors.CategoryDatabase).
			Context("path", settings.Path).
			Build()
	}

	if err := db.AutoMigrate(&Character{}, &Alias{}); err != nil {
		return nil, fmt.Errorf("migrating character catalog: %w", err)
	}

	logger := logging.ForService("charstore")
	logger.Info("Character catalog opened", "path", settings.Path)
	return &SQLiteStore{db: db, logger: logger}, nil
}

func (s *SQLiteStore) Get(ctx context.Context, id uint) (*Character, error) {
	var c Character
	err := s.db.WithContext(ctx).Preload("Aliases").First(&c, id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("looking up character %d: %w", id, err)
	}
	return &c, nil
}

func (s *SQLiteStore) GetBySlug(ctx context.Context, slug string) (*Character, error) {
	var c Character
	err := s.db.WithContext(ctx).Preload("Aliases").
		Where("slug = ?", strings.ToLower(slug)).First(&c).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrCharacterNotFound
		}
		return nil, fmt.Errorf("looking up character %q: %w", slug, err)
	}
	return &c, nil
}

func (s *SQLiteStore) Search(ctx context.Context, query string, limit int) ([]Character, error) {
	if limit <= 0 {
		limit = 20
	}
	pattern := "%" + strings.ToLower(strings.TrimSpace(query)) + "%"

	var chars []Character
	err := s.db.WithContext(ctx).Preload("Aliases").
		Where("id IN (?)", s.db.Model(&Alias{}).Select("character_id").Where("LOWER(name) LIKE ?", pattern)).
		Or("LOWER(name) LIKE ?", pattern).
		Order("name").
		Limit(limit).
		Find(&chars).Error
	if err != nil {
		return nil, fmt.Errorf("searching characters: %w", err)
	}
	return chars, nil
}

func (s *SQLiteStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
