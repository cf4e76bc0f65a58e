// Package clipsearch scores a broadcaster's recent clips against search
// terms, and picks a clip for the shoutout command.
package clipsearch

import (
	"context"
	"fmt"
	"math/rand"
	"sort"
	"strings"
	"time"

	"clipbot/internal/models"
)

// ClipLister fetches a broadcaster's recent clips within a time window.
type ClipLister interface {
	GetClipsByBroadcaster(ctx context.Context, broadcasterID string, first int, startedAt, endedAt time.Time) ([]models.ClipData, error)
	GetBroadcasterIDByName(ctx context.Context, login string) (models.ClipParty, error)
}

// Config controls the search window, fuzzy-match threshold, and result
// cap.
type Config struct {
	SearchWindowDays    int
	FuzzyMatchThreshold float64
	MaxResults          int
}

// Service implements clip search and shoutout-clip selection.
type Service struct {
	clips ClipLister
	cfg   Config
}

// NewService constructs a Service.
func NewService(clips ClipLister, cfg Config) *Service {
	if cfg.MaxResults <= 0 {
		cfg.MaxResults = 10
	}
	return &Service{clips: clips, cfg: cfg}
}

type scored struct {
	clip  models.ClipData
	score float64
}

// ResolveBroadcaster resolves login to its platform identity.
func (s *Service) ResolveBroadcaster(ctx context.Context, login string) (models.ClipParty, error) {
	return s.clips.GetBroadcasterIDByName(ctx, login)
}

// SearchClip resolves broadcasterName, fetches its recent clips, scores
// them against terms, and returns the top match.
func (s *Service) SearchClip(ctx context.Context, broadcasterName, terms string) (models.ClipData, bool, error) {
	results, err := s.Search(ctx, broadcasterName, terms)
	if err != nil {
		return models.ClipData{}, false, err
	}
	if len(results) == 0 {
		return models.ClipData{}, false, nil
	}
	return results[0], true, nil
}

// Search returns every clip scoring above zero against terms, sorted
// descending, truncated to MaxResults.
func (s *Service) Search(ctx context.Context, broadcasterName, terms string) ([]models.ClipData, error) {
	broadcaster, err := s.clips.GetBroadcasterIDByName(ctx, broadcasterName)
	if err != nil {
		return nil, fmt.Errorf("clipsearch: resolve broadcaster %q: %w", broadcasterName, err)
	}
	if broadcaster.ID == "" {
		return nil, nil
	}

	window := s.cfg.SearchWindowDays
	if window <= 0 {
		window = 90
	}
	now := time.Now()
	clips, err := s.clips.GetClipsByBroadcaster(ctx, broadcaster.ID, 100, now.AddDate(0, 0, -window), now)
	if err != nil {
		return nil, fmt.Errorf("clipsearch: list clips: %w", err)
	}

	var matches []scored
	for _, clip := range clips {
		sc := s.score(clip.Title, terms)
		if sc > 0 {
			matches = append(matches, scored{clip: clip, score: sc})
		}
	}
	sort.SliceStable(matches, func(i, j int) bool { return matches[i].score > matches[j].score })

	if len(matches) > s.cfg.MaxResults {
		matches = matches[:s.cfg.MaxResults]
	}
	out := make([]models.ClipData, len(matches))
	for i, m := range matches {
		out[i] = m.clip
	}
	return out, nil
}

// score implements the title/terms scoring pipeline: whole-substring
// containment, then word overlap, then Levenshtein similarity.
func (s *Service) score(title, terms string) float64 {
	lowerTitle := strings.ToLower(title)
	lowerTerms := strings.ToLower(strings.TrimSpace(terms))
	if lowerTerms == "" {
		return 0
	}

	if strings.Contains(lowerTitle, lowerTerms) {
		return 100
	}

	termWords := strings.Fields(lowerTerms)
	titleWords := strings.Fields(lowerTitle)
	titleWordSet := make(map[string]bool, len(titleWords))
	for _, w := range titleWords {
		titleWordSet[w] = true
	}
	matched := 0
	for _, w := range termWords {
		if titleWordSet[w] {
			matched++
		}
	}
	if matched > 0 {
		return float64(matched) / float64(len(termWords)) * 80
	}

	threshold := s.cfg.FuzzyMatchThreshold
	if threshold <= 0 {
		threshold = 0.4
	}
	maxLen := len(lowerTitle)
	if len(lowerTerms) > maxLen {
		maxLen = len(lowerTerms)
	}
	if maxLen == 0 {
		return 0
	}
	dist := levenshtein(lowerTitle, lowerTerms)
	similarity := 1 - float64(dist)/float64(maxLen)
	if similarity >= threshold {
		return similarity * 60
	}
	return 0
}

// ShoutoutConfig controls shoutout clip selection and the messages sent
// alongside it.
type ShoutoutConfig struct {
	MaxClipLength         time.Duration
	UseFeaturedClipsFirst bool

	SendChatMessage    bool
	MessageTemplate    string
	MaxMessageLen      int
	SendNativeShoutout bool
}

var widenWindowsDays = []int{1, 7, 30, 90, 365}

// SelectShoutoutClip picks a clip for targetID by widening the lookback
// window until clips exist, filtering by max duration, preferring
// featured clips when configured, and choosing uniformly at random among
// survivors.
func (s *Service) SelectShoutoutClip(ctx context.Context, targetID string, cfg ShoutoutConfig) (models.ClipData, bool, error) {
	now := time.Now()
	for _, days := range widenWindowsDays {
		clips, err := s.clips.GetClipsByBroadcaster(ctx, targetID, 100, now.AddDate(0, 0, -days), now)
		if err != nil {
			return models.ClipData{}, false, fmt.Errorf("clipsearch: list clips for shoutout: %w", err)
		}
		if len(clips) == 0 {
			continue
		}

		filtered := filterByMaxLength(clips, cfg.MaxClipLength)
		if len(filtered) == 0 {
			continue
		}

		candidates := filtered
		if cfg.UseFeaturedClipsFirst {
			if featured := onlyFeatured(filtered); len(featured) > 0 {
				candidates = featured
			}
		}
		return candidates[rand.Intn(len(candidates))], true, nil
	}
	return models.ClipData{}, false, nil
}

func filterByMaxLength(clips []models.ClipData, maxLen time.Duration) []models.ClipData {
	if maxLen <= 0 {
		return clips
	}
	var out []models.ClipData
	for _, c := range clips {
		if time.Duration(c.Duration)*time.Second <= maxLen {
			out = append(out, c)
		}
	}
	return out
}

func onlyFeatured(clips []models.ClipData) []models.ClipData {
	var out []models.ClipData
	for _, c := range clips {
		if c.IsFeatured {
			out = append(out, c)
		}
	}
	return out
}
