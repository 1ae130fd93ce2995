// Package planner connects the rating engine to live player data: it loads
// a player's records from chunirec through the payload cache, assembles
// simulation inputs, runs them on the shared runner and keeps the results.
package planner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ramonehamilton/CHUNI-Companion/internal/chunirec"
	"github.com/ramonehamilton/CHUNI-Companion/internal/config"
	"github.com/ramonehamilton/CHUNI-Companion/internal/events"
	"github.com/ramonehamilton/CHUNI-Companion/internal/metrics"
	"github.com/ramonehamilton/CHUNI-Companion/internal/rating"
	"github.com/ramonehamilton/CHUNI-Companion/internal/simulation"
	"github.com/ramonehamilton/CHUNI-Companion/internal/storage"
)

const (
	defaultCacheTTL  = 10 * time.Minute
	defaultMusicTTL  = 24 * time.Hour
	defaultResultTTL = 24 * time.Hour

	musicCacheKey = "music"
)

var (
	// ErrNoToken is returned when no chunirec API token is configured.
	ErrNoToken = chunirec.ErrNoToken

	// ErrResultNotFound is returned for unknown or expired simulation ids.
	ErrResultNotFound = errors.New("simulation result not found")

	// ErrNoStore is returned by operations that need persistence when the
	// service runs without a database.
	ErrNoStore = errors.New("result storage is not configured")

	// ErrInvalidRequest wraps request validation failures.
	ErrInvalidRequest = errors.New("invalid simulation request")
)

// FetchError reports that player data could not be loaded.
type FetchError struct {
	User string
	Err  error
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("failed to fetch data for %s: %v", e.User, e.Err)
}

func (e *FetchError) Unwrap() error {
	return e.Err
}

// Output renders the failure as an engine output.
func (e *FetchError) Output() simulation.Output {
	return simulation.ErrorOutput(simulation.PhaseErrorDataFetch, e, nil)
}

// Config wires a Service. Client and Data are required.
type Config struct {
	Client *chunirec.Client
	Data   *config.DataStore

	// Store caches upstream payloads and persists results. Optional.
	Store *storage.Service
	// NoCache keeps Store for results and exclusions but always fetches
	// upstream payloads.
	NoCache bool
	// Runner executes simulations. A private runner is started when nil.
	Runner     *simulation.Runner
	Dispatcher *events.Dispatcher
	Metrics    *metrics.PlannerMetrics

	CacheTTL  time.Duration // player payloads; 0 uses the default
	MusicTTL  time.Duration // music catalog
	ResultTTL time.Duration // persisted simulations

	DefaultMode       simulation.Mode
	DefaultPreference simulation.Preference

	Logger *slog.Logger
}

// Service is the simulation driver.
type Service struct {
	client     *chunirec.Client
	data       *config.DataStore
	store      *storage.Service
	noCache    bool
	runner     *simulation.Runner
	ownsRunner bool
	dispatcher *events.Dispatcher
	metrics    *metrics.PlannerMetrics
	logger     *slog.Logger

	cacheTTL  time.Duration
	musicTTL  time.Duration
	resultTTL time.Duration

	defaultMode simulation.Mode
	defaultPref simulation.Preference

	now func() time.Time
}

// NewService creates a planner service.
func NewService(cfg Config) (*Service, error) {
	if cfg.Client == nil {
		return nil, fmt.Errorf("chunirec client is required")
	}
	if cfg.Data == nil {
		return nil, fmt.Errorf("data store is required")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = metrics.NewPlannerMetrics()
	}
	if cfg.CacheTTL <= 0 {
		cfg.CacheTTL = defaultCacheTTL
	}
	if cfg.MusicTTL <= 0 {
		cfg.MusicTTL = defaultMusicTTL
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = defaultResultTTL
	}
	if !cfg.DefaultMode.Valid() {
		cfg.DefaultMode = simulation.ModeHybrid
	}
	if !cfg.DefaultPreference.Valid() {
		cfg.DefaultPreference = simulation.PreferFloor
	}

	s := &Service{
		client:      cfg.Client,
		data:        cfg.Data,
		store:       cfg.Store,
		noCache:     cfg.NoCache,
		runner:      cfg.Runner,
		dispatcher:  cfg.Dispatcher,
		metrics:     cfg.Metrics,
		logger:      cfg.Logger,
		cacheTTL:    cfg.CacheTTL,
		musicTTL:    cfg.MusicTTL,
		resultTTL:   cfg.ResultTTL,
		defaultMode: cfg.DefaultMode,
		defaultPref: cfg.DefaultPreference,
		now:         time.Now,
	}
	if s.runner == nil {
		s.runner = simulation.NewRunner(simulation.RunnerConfig{
			Dispatcher: cfg.Dispatcher,
			Logger:     cfg.Logger,
		})
		s.ownsRunner = true
	}
	return s, nil
}

// Metrics returns the collector the service records into.
func (s *Service) Metrics() *metrics.PlannerMetrics {
	return s.metrics
}

// Data returns the current new-song and override snapshot.
func (s *Service) Data() config.DataSnapshot {
	return s.data.Snapshot()
}

// Close stops the runner if the service started it.
func (s *Service) Close() {
	if s.ownsRunner {
		s.runner.Stop()
	}
}

// Player is everything known about one player for planning.
type Player struct {
	User          string              `json:"user"`
	Profile       chunirec.Profile    `json:"profile"`
	CurrentRating float64             `json:"currentRating"`
	B30           []rating.Song       `json:"b30"`
	N20           []rating.Song       `json:"n20"`
	NewSongsPool  []rating.Song       `json:"newSongsPool"`
	AverageB30    *float64            `json:"averageB30"`
	AverageN20    *float64            `json:"averageN20"`
	FromCache     bool                `json:"fromCache"`
	FetchedAt     time.Time           `json:"fetchedAt"`
	Records       []rating.Record     `json:"-"`
	Music         []rating.Record     `json:"-"`
	Data          config.DataSnapshot `json:"-"`
}

func profileKey(user string) string    { return "user:" + user + ":profile" }
func ratingDataKey(user string) string { return "user:" + user + ":rating_data" }
func recordsKey(user string) string    { return "user:" + user + ":records" }

// UserCachePrefix is the cache key prefix of every payload of user.
func UserCachePrefix(user string) string { return "user:" + user + ":" }

// fetchCached returns the cached value for key, or calls fetch and caches
// its result. refresh skips the cache read.
func fetchCached[T any](ctx context.Context, s *Service, key string, ttl time.Duration, refresh bool, fetch func(context.Context) (T, error)) (T, bool, error) {
	var zero T
	cache := s.store != nil && !s.noCache
	if cache && !refresh {
		var cached T
		hit, _, err := s.store.GetPayload(ctx, key, &cached)
		if err != nil {
			s.logger.Warn("Payload cache read failed", "key", key, "error", err)
		}
		s.metrics.RecordCache(hit)
		if hit {
			return cached, true, nil
		}
	}

	v, err := fetch(ctx)
	if err != nil {
		return zero, false, err
	}
	if cache {
		if err := s.store.PutPayload(ctx, key, v, ttl); err != nil {
			s.logger.Warn("Payload cache write failed", "key", key, "error", err)
		}
	}
	return v, false, nil
}

// LoadPlayer fetches a player's profile, rating lists, play records and the
// music catalog, then builds the B30, the played new-song pool and the N20.
func (s *Service) LoadPlayer(ctx context.Context, user string, refresh bool) (*Player, error) {
	user = strings.TrimSpace(user)
	if user == "" {
		return nil, fmt.Errorf("%w: user name is required", ErrInvalidRequest)
	}

	profile, profileHit, err := fetchCached(ctx, s, profileKey(user), s.cacheTTL, refresh, func(ctx context.Context) (*chunirec.Profile, error) {
		return s.client.GetProfile(ctx, user)
	})
	if err != nil {
		return nil, &FetchError{User: user, Err: err}
	}
	ratingData, ratingHit, err := fetchCached(ctx, s, ratingDataKey(user), s.cacheTTL, refresh, func(ctx context.Context) (*chunirec.RatingData, error) {
		return s.client.GetRatingData(ctx, user)
	})
	if err != nil {
		return nil, &FetchError{User: user, Err: err}
	}
	records, recordsHit, err := fetchCached(ctx, s, recordsKey(user), s.cacheTTL, refresh, func(ctx context.Context) (*chunirec.UserRecords, error) {
		return s.client.GetRecords(ctx, user)
	})
	if err != nil {
		return nil, &FetchError{User: user, Err: err}
	}
	music, _, err := fetchCached(ctx, s, musicCacheKey, s.musicTTL, refresh, s.client.GetMusic)
	if err != nil {
		return nil, &FetchError{User: user, Err: err}
	}

	player := BuildPlayer(user, profile, ratingData, records.Records, music, s.data.Snapshot())
	player.FromCache = profileHit && ratingHit && recordsHit
	player.FetchedAt = s.now()

	s.logger.Info("Loaded player",
		"user", user,
		"b30", len(player.B30),
		"n20", len(player.N20),
		"pool", len(player.NewSongsPool),
		"from_cache", player.FromCache)
	if s.dispatcher != nil {
		s.dispatcher.Dispatch(events.NewTypedEvent(events.PlayerRefreshed, events.PlayerRefreshedEvent{
			User:      user,
			B30Count:  len(player.B30),
			N20Count:  len(player.N20),
			FromCache: player.FromCache,
		}, ctx))
	}
	return player, nil
}

// BuildPlayer derives the rating lists from fetched payloads. profile and
// ratingData may be nil.
func BuildPlayer(user string, profile *chunirec.Profile, ratingData *chunirec.RatingData, records, music []rating.Record, data config.DataSnapshot) *Player {
	idx := rating.NewOverrideIndex(data.Overrides)

	var best []rating.Record
	if ratingData != nil {
		best = ratingData.Best.Entries
	}
	b30 := rating.DedupeByCurrent(rating.NormalizeAll(best, idx))
	rating.SortByCurrent(b30)
	if len(b30) > rating.BestCount {
		b30 = b30[:rating.BestCount]
	}

	pool := rating.DedupeByCurrent(rating.NormalizeAll(newSongRecords(records, data.NewSongs.All()), idx))
	played := pool[:0]
	for _, s := range pool {
		if s.CurrentRating > 0 {
			played = append(played, s)
		}
	}
	rating.SortByCurrent(played)
	n20 := rating.CloneSongs(played[:min(len(played), rating.NewCount)])

	p := &Player{
		User:         user,
		B30:          b30,
		N20:          n20,
		NewSongsPool: played,
		AverageB30:   rating.Average(b30, rating.BestCount, rating.CurrentField),
		AverageN20:   rating.Average(n20, rating.NewCount, rating.CurrentField),
		Records:      records,
		Music:        music,
		Data:         data,
	}
	if profile != nil {
		p.Profile = *profile
		p.CurrentRating = float64(profile.Rating)
	}
	if p.CurrentRating <= 0 {
		p.CurrentRating = rating.Overall(p.AverageB30, p.AverageN20, len(b30), len(n20))
	}
	return p
}

func newSongRecords(records []rating.Record, titles []string) []rating.Record {
	set := make(map[string]struct{}, len(titles))
	for _, t := range titles {
		set[normalizeTitle(t)] = struct{}{}
	}
	var out []rating.Record
	for _, r := range records {
		if _, ok := set[normalizeTitle(r.Title)]; ok {
			out = append(out, r)
		}
	}
	return out
}

func normalizeTitle(title string) string {
	return strings.ToLower(strings.TrimSpace(title))
}

// Excluded returns the song keys user excluded from improvement.
func (s *Service) Excluded(ctx context.Context, user string) ([]string, error) {
	if s.store == nil {
		return []string{}, nil
	}
	return s.store.ExcludedKeys(ctx, user)
}

// SetExcluded replaces the excluded song keys of user. Keys are stored as
// "{id}_{DIFF}" with the difficulty upper-cased, without duplicates.
func (s *Service) SetExcluded(ctx context.Context, user string, keys []string) ([]string, error) {
	if s.store == nil {
		return nil, ErrNoStore
	}
	normalized := NormalizeKeys(keys)
	if err := s.store.SetExcludedKeys(ctx, user, normalized); err != nil {
		return nil, err
	}
	return normalized, nil
}

// ToggleExcluded flips one key in user's exclusion list and returns the
// new list.
func (s *Service) ToggleExcluded(ctx context.Context, user, key string) ([]string, error) {
	keys := NormalizeKeys([]string{key})
	if len(keys) == 0 {
		return nil, fmt.Errorf("%w: song key is required", ErrInvalidRequest)
	}
	key = keys[0]

	current, err := s.Excluded(ctx, user)
	if err != nil {
		return nil, err
	}
	next := make([]string, 0, len(current)+1)
	found := false
	for _, k := range NormalizeKeys(current) {
		if k == key {
			found = true
			continue
		}
		next = append(next, k)
	}
	if !found {
		next = append(next, key)
	}
	return s.SetExcluded(ctx, user, next)
}

// NormalizeKeys upper-cases the difficulty suffix of each key and drops
// blanks and duplicates, keeping the first occurrence.
func NormalizeKeys(keys []string) []string {
	seen := make(map[string]struct{}, len(keys))
	out := make([]string, 0, len(keys))
	for _, k := range keys {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if i := strings.LastIndex(k, "_"); i >= 0 {
			k = k[:i+1] + strings.ToUpper(k[i+1:])
		}
		if _, dup := seen[k]; dup {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, k)
	}
	return out
}
