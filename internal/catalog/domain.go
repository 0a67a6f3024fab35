// internal/catalog/domain.go
package catalog

import (
	"math"
	"regexp"
	"strings"
	"time"

	"gamelibrary/internal/apperr"

	"github.com/google/uuid"
)

const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxCoverURLLength    = 255
	// MaxPrice is the largest value NUMERIC(10,2) holds.
	MaxPrice = 99999999.99
)

// Genre is the closed set of catalog genres.
type Genre string

const (
	GenreAction     Genre = "Action"
	GenreAdventure  Genre = "Adventure"
	GenreRPG        Genre = "RPG"
	GenreStrategy   Genre = "Strategy"
	GenreSimulation Genre = "Simulation"
	GenreSports     Genre = "Sports"
	GenreRacing     Genre = "Racing"
	GenrePuzzle     Genre = "Puzzle"
	GenreHorror     Genre = "Horror"
	GenreShooter    Genre = "Shooter"
	GenreFighting   Genre = "Fighting"
	GenrePlatformer Genre = "Platformer"
)

// Genres lists every valid genre.
var Genres = []Genre{
	GenreAction, GenreAdventure, GenreRPG, GenreStrategy, GenreSimulation, GenreSports,
	GenreRacing, GenrePuzzle, GenreHorror, GenreShooter, GenreFighting, GenrePlatformer,
}

// ParseGenre matches s case-insensitively against the enumeration.
func ParseGenre(s string) (Genre, error) {
	s = strings.TrimSpace(s)
	for _, g := range Genres {
		if strings.EqualFold(string(g), s) {
			return g, nil
		}
	}
	return "", apperr.Validation("invalid game genre %q", s)
}

// coverPattern accepts http(s)/ftp URLs or local paths ending in a short file extension.
var coverPattern = regexp.MustCompile(`(?i)^((https?|ftp)://[^\s]+|([a-z]:\\|\./|/)?[^:*?<>|"\r\n]+(\.[a-z]{2,4}))$`)

// Item is a purchasable catalog entry. Fields are only mutated through the
// setters so that a constructed Item is never partially invalid.
type Item struct {
	ID          uuid.UUID `json:"id" db:"id"`
	Title       string    `json:"title" db:"title"`
	Description string    `json:"description" db:"description"`
	Price       float64   `json:"price" db:"price"`
	ReleaseDate time.Time `json:"release_date" db:"release_date"`
	Genre       Genre     `json:"genre" db:"genre"`
	CoverURL    string    `json:"cover_image_url" db:"cover_image_url"`
}

// NewItem validates every field and returns an Item with a fresh ID.
func NewItem(title, description string, price float64, releaseDate time.Time, genre Genre, coverURL string) (*Item, error) {
	item := &Item{ID: uuid.New()}
	if err := item.SetTitle(title); err != nil {
		return nil, err
	}
	if err := item.SetDescription(description); err != nil {
		return nil, err
	}
	if err := item.SetPrice(price); err != nil {
		return nil, err
	}
	if err := item.SetGenre(genre); err != nil {
		return nil, err
	}
	if err := item.SetCoverURL(coverURL); err != nil {
		return nil, err
	}
	item.ReleaseDate = normalizeTime(releaseDate)
	return item, nil
}

func (i *Item) SetTitle(title string) error {
	title = strings.TrimSpace(title)
	if title == "" {
		return apperr.Validation("title cannot be empty")
	}
	if len([]rune(title)) > MaxTitleLength {
		return apperr.Validation("title is too long (max %d characters)", MaxTitleLength)
	}
	i.Title = title
	return nil
}

func (i *Item) SetDescription(description string) error {
	description = strings.TrimSpace(description)
	if description == "" {
		return apperr.Validation("description cannot be empty")
	}
	if len([]rune(description)) > MaxDescriptionLength {
		return apperr.Validation("description is too long (max %d characters)", MaxDescriptionLength)
	}
	i.Description = description
	return nil
}

// SetPrice rejects negative and non-finite prices and rounds to cents.
func (i *Item) SetPrice(price float64) error {
	if math.IsNaN(price) || math.IsInf(price, 0) {
		return apperr.Validation("price must be a finite number")
	}
	if price < 0 {
		return apperr.Validation("price cannot be negative")
	}
	rounded := math.Round(price*100) / 100
	if rounded > MaxPrice {
		return apperr.Validation("price cannot exceed %.2f", MaxPrice)
	}
	i.Price = rounded
	return nil
}

func (i *Item) SetGenre(genre Genre) error {
	g, err := ParseGenre(string(genre))
	if err != nil {
		return err
	}
	i.Genre = g
	return nil
}

func (i *Item) SetCoverURL(url string) error {
	url = strings.TrimSpace(url)
	if url == "" {
		return apperr.Validation("cover image URL cannot be empty")
	}
	if len(url) > MaxCoverURLLength {
		return apperr.Validation("cover image URL is too long (max %d characters)", MaxCoverURLLength)
	}
	if !coverPattern.MatchString(url) {
		return apperr.Validation("invalid cover image URL format")
	}
	i.CoverURL = url
	return nil
}

// normalizeTime drops precision the store cannot keep.
func normalizeTime(t time.Time) time.Time {
	return t.UTC().Truncate(time.Microsecond)
}

// PriceStats is the numeric aggregation over mirrored item prices.
type PriceStats struct {
	Count int64   `json:"count"`
	Min   float64 `json:"min"`
	Max   float64 `json:"max"`
	Avg   float64 `json:"avg"`
	Sum   float64 `json:"sum"`
}
