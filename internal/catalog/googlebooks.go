package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/ahinestrog/campusbooks/internal/inventory"
)

const (
	DefaultGoogleBooksURL = "https://www.googleapis.com/books/v1/volumes"
	DefaultTimeout        = 5 * time.Second
)

// GoogleBooks queries the Google Books volumes API by ISBN.
type GoogleBooks struct {
	baseURL string
	apiKey  string
	hc      *http.Client
}

func NewGoogleBooks(baseURL, apiKey string, timeout time.Duration) *GoogleBooks {
	if baseURL == "" {
		baseURL = DefaultGoogleBooksURL
	}
	return &GoogleBooks{
		baseURL: baseURL,
		apiKey:  apiKey,
		hc:      &http.Client{Timeout: timeout},
	}
}

func (g *GoogleBooks) Name() string { return "google_books" }

type volumesResponse struct {
	TotalItems int      `json:"totalItems"`
	Items      []volume `json:"items"`
}

type volume struct {
	ID         string     `json:"id"`
	VolumeInfo volumeInfo `json:"volumeInfo"`
}

type volumeInfo struct {
	Title         string   `json:"title"`
	Subtitle      string   `json:"subtitle"`
	Authors       []string `json:"authors"`
	Publisher     string   `json:"publisher"`
	PublishedDate string   `json:"publishedDate"`
	Description   string   `json:"description"`
	PageCount     int64    `json:"pageCount"`
	Categories    []string `json:"categories"`
	AverageRating float64  `json:"averageRating"`
	RatingsCount  int64    `json:"ratingsCount"`
	Language      string   `json:"language"`
	ImageLinks    struct {
		SmallThumbnail string `json:"smallThumbnail"`
		Thumbnail      string `json:"thumbnail"`
	} `json:"imageLinks"`
}

func (g *GoogleBooks) Lookup(ctx context.Context, isbn string) (*inventory.Metadata, error) {
	u, err := url.Parse(g.baseURL)
	if err != nil {
		return nil, fmt.Errorf("%w: bad base url: %v", ErrUnavailable, err)
	}
	q := u.Query()
	q.Set("q", "isbn:"+isbn)
	if g.apiKey != "" {
		q.Set("key", g.apiKey)
	}
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := g.hc.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: google books returned %s", ErrUnavailable, resp.Status)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return nil, fmt.Errorf("%w: read body: %v", ErrUnavailable, err)
	}
	var vr volumesResponse
	if err := json.Unmarshal(body, &vr); err != nil {
		return nil, fmt.Errorf("%w: decode body: %v", ErrUnavailable, err)
	}
	if vr.TotalItems == 0 || len(vr.Items) == 0 {
		return nil, nil
	}

	v := vr.Items[0]
	info := v.VolumeInfo
	m := &inventory.Metadata{
		GoogleBooksID:     optString(v.ID),
		Title:             info.Title,
		Subtitle:          optString(info.Subtitle),
		Authors:           orEmpty(info.Authors),
		Publisher:         optString(info.Publisher),
		PublishedDate:     optString(info.PublishedDate),
		Description:       optString(info.Description),
		PageCount:         optInt(info.PageCount),
		Categories:        orEmpty(info.Categories),
		Language:          optString(info.Language),
		ThumbnailURL:      optString(info.ImageLinks.Thumbnail),
		SmallThumbnailURL: optString(info.ImageLinks.SmallThumbnail),
		RatingsCount:      optInt(info.RatingsCount),
		Raw:               body,
	}
	if m.Title == "" {
		m.Title = PlaceholderTitle(isbn)
	}
	if info.AverageRating != 0 {
		r := info.AverageRating
		m.AverageRating = &r
	}
	return m, nil
}

func optString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optInt(n int64) *int64 {
	if n == 0 {
		return nil
	}
	return &n
}

func orEmpty(l []string) []string {
	if l == nil {
		return []string{}
	}
	return l
}
