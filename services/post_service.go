package services

import (
	"context"
	"errors"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/cppla/geopost/geo"
	"github.com/cppla/geopost/models"
	"github.com/cppla/geopost/realtime"
	"github.com/cppla/geopost/repositories"
	"github.com/cppla/geopost/utils"
)

const (
	MaxMessageLength = 280

	DefaultRadius = 300
	MinRadius     = 100
	MaxRadius     = 3000

	// nearbyCandidateLimit caps rows read from the bounding box before distance filtering.
	nearbyCandidateLimit = 300
	publishTimeout       = 5 * time.Second
)

// Publisher pushes realtime events to connected clients.
type Publisher interface {
	Publish(ctx context.Context, evt realtime.Event) error
}

// PostView is the public shape of a post.
type PostView struct {
	ID        uint    `json:"id"`
	UserID    uint    `json:"userId"`
	Message   string  `json:"message"`
	Lat       float64 `json:"lat"`
	Lng       float64 `json:"lng"`
	CreatedAt string  `json:"createdAt"`
}

// NearbyPost is a PostView with its whole-meter distance from the search center.
type NearbyPost struct {
	PostView
	Distance int `json:"distance"`
}

// NearbyResult answers a nearby query. Items is never nil.
type NearbyResult struct {
	Items  []NearbyPost `json:"items"`
	Center geo.Point    `json:"center"`
	Radius int          `json:"radius"`
}

// NewPost is the author's input. Nil coordinates mean the field was absent or unparsable.
type NewPost struct {
	UserID  uint
	Message string
	Lat     *float64
	Lng     *float64
}

// PostService stores posts, announces them and answers radius queries.
type PostService struct {
	posts  repositories.PostRepository
	events Publisher
	wg     sync.WaitGroup
}

func NewPostService(posts repositories.PostRepository, events Publisher) *PostService {
	return &PostService{posts: posts, events: events}
}

// Create validates and stores a post, then announces it to realtime clients without
// waiting for delivery.
func (s *PostService) Create(ctx context.Context, in NewPost) (PostView, error) {
	message := strings.TrimSpace(in.Message)
	if message == "" {
		return PostView{}, utils.ValidationError("message is required")
	}
	if utf8.RuneCountInString(message) > MaxMessageLength {
		return PostView{}, utils.ValidationError("message must be at most 280 characters")
	}
	if in.Lat == nil || in.Lng == nil {
		return PostView{}, utils.ValidationError("lat and lng must be numbers")
	}
	if !geo.ValidLatLng(*in.Lat, *in.Lng) {
		return PostView{}, utils.ValidationError("lat/lng out of range")
	}

	post := &models.Post{UserID: in.UserID, Message: message, Lat: *in.Lat, Lng: *in.Lng}
	if err := s.posts.Create(ctx, post); err != nil {
		return PostView{}, err
	}

	view := toView(post)
	s.announce(view)
	return view, nil
}

func (s *PostService) announce(view PostView) {
	if s.events == nil {
		return
	}
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), publishTimeout)
		defer cancel()
		if err := s.events.Publish(ctx, realtime.Event{Event: realtime.EventPostCreated, Data: view}); err != nil {
			utils.Sugar.Warnw("publish post_created failed", "postId", view.ID, "error", err)
		}
	}()
}

// Wait blocks until pending announcements have been handed to the publisher.
func (s *PostService) Wait() {
	s.wg.Wait()
}

// ListNearby returns posts within radius meters of center, nearest first.
// radius must already be normalized with ParseRadius or ClampRadius.
func (s *PostService) ListNearby(ctx context.Context, center geo.Point, radius int) (NearbyResult, error) {
	if !center.Valid() {
		return NearbyResult{}, utils.ValidationError("lat/lng out of range")
	}
	radius = ClampRadius(radius)

	candidates, err := s.posts.InBox(ctx, geo.BoundingBox(center, float64(radius)), nearbyCandidateLimit)
	if err != nil {
		return NearbyResult{}, err
	}

	ranked := geo.Rank(center, float64(radius), candidates, func(p models.Post) geo.Point {
		return geo.Point{Lat: p.Lat, Lng: p.Lng}
	})
	items := make([]NearbyPost, 0, len(ranked))
	for _, r := range ranked {
		items = append(items, NearbyPost{PostView: toView(&r.Item), Distance: r.Distance})
	}
	return NearbyResult{Items: items, Center: center, Radius: radius}, nil
}

// ParseRadius reads a radius query value. Missing or non-integer input falls back to the default.
func ParseRadius(raw string) int {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return DefaultRadius
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		var numErr *strconv.NumError
		if errors.As(err, &numErr) && errors.Is(numErr.Err, strconv.ErrRange) {
			// out of int range: clamp by sign
			if strings.HasPrefix(raw, "-") {
				return MinRadius
			}
			return MaxRadius
		}
		return DefaultRadius
	}
	return ClampRadius(n)
}

func ClampRadius(r int) int {
	if r < MinRadius {
		return MinRadius
	}
	if r > MaxRadius {
		return MaxRadius
	}
	return r
}

func toView(p *models.Post) PostView {
	return PostView{
		ID:        p.ID,
		UserID:    p.UserID,
		Message:   p.Message,
		Lat:       p.Lat,
		Lng:       p.Lng,
		CreatedAt: FormatTimestamp(p.CreatedAt),
	}
}

// FormatTimestamp renders t in UTC as 2006-01-02T15:04:05Z, adding six fractional digits
// only when there is a sub-second part.
func FormatTimestamp(t time.Time) string {
	t = t.UTC()
	if t.Nanosecond()/1000 == 0 {
		return t.Format("2006-01-02T15:04:05Z")
	}
	return t.Truncate(time.Microsecond).Format("2006-01-02T15:04:05.000000Z")
}
