// Package session holds the canonical tables of one process for its whole
// lifetime and answers view queries from them, memoizing the results.
package session

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	lru "github.com/hashicorp/golang-lru/v2"
	"golang.org/x/sync/singleflight"
	"golang.org/x/text/language"

	"ageofrisk/internal/clean"
	"ageofrisk/internal/config"
	"ageofrisk/internal/loader"
	"ageofrisk/internal/metrics"
	"ageofrisk/internal/records"
)

const defaultCacheSize = 4096

// Tables are the canonical tables. They are never modified after Open.
type Tables struct {
	Screening  []records.ScreeningRecord
	Mortality  []records.MortalityRecord
	ExamIncome []records.ExamIncomeRecord
}

// Session is the explicit replacement for process-wide cached tables. All
// methods are safe for concurrent use; results are shared between callers
// and must be treated as read-only.
type Session struct {
	ID          uuid.UUID
	Version     string
	Tables      Tables
	Diagnostics []clean.Diagnostics

	logger   *slog.Logger
	metrics  *metrics.Metrics
	locale   language.Tag
	defaultN int
	cache    *lru.Cache[string, any]
	group    singleflight.Group
}

// Option configures a Session built with New.
type Option func(*Session)

func WithLogger(l *slog.Logger) Option      { return func(s *Session) { s.logger = l } }
func WithMetrics(m *metrics.Metrics) Option { return func(s *Session) { s.metrics = m } }
func WithLocale(tag language.Tag) Option    { return func(s *Session) { s.locale = tag } }
func WithDefaultCountries(n int) Option     { return func(s *Session) { s.defaultN = n } }
func WithVersion(v string) Option           { return func(s *Session) { s.Version = v } }
func WithDiagnostics(d ...clean.Diagnostics) Option {
	return func(s *Session) { s.Diagnostics = d }
}

// New builds a session over already cleaned tables.
func New(t Tables, cacheSize int, opts ...Option) (*Session, error) {
	if cacheSize <= 0 {
		cacheSize = defaultCacheSize
	}
	cache, err := lru.New[string, any](cacheSize)
	if err != nil {
		return nil, fmt.Errorf("create memo cache: %w", err)
	}
	s := &Session{
		ID:       uuid.New(),
		Tables:   t,
		locale:   language.English,
		defaultN: 6,
		cache:    cache,
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.metrics == nil {
		s.metrics = metrics.New()
	}
	return s, nil
}

// Open loads and cleans the three source files named by cfg. A missing file
// is returned as *loader.MissingFileError; row-level problems only show up in
// Diagnostics.
func Open(ctx context.Context, cfg config.Config, logger *slog.Logger, m *metrics.Metrics) (*Session, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if m == nil {
		m = metrics.New()
	}

	var (
		t     Tables
		diags []clean.Diagnostics
		sums  []string
	)
	steps := []struct {
		path  string
		clean func(*loader.RawTable) (clean.Diagnostics, error)
	}{
		{cfg.ScreeningPath(), func(raw *loader.RawTable) (d clean.Diagnostics, err error) {
			t.Screening, d, err = clean.Screening(raw)
			return d, err
		}},
		{cfg.MortalityPath(), func(raw *loader.RawTable) (d clean.Diagnostics, err error) {
			t.Mortality, d, err = clean.Mortality(raw, clean.WithUnits(cfg.MortalityUnits...))
			return d, err
		}},
		{cfg.ExamIncomePath(), func(raw *loader.RawTable) (d clean.Diagnostics, err error) {
			t.ExamIncome, d, err = clean.ExamIncome(raw, clean.WithDurations(cfg.ExamDurations...))
			return d, err
		}},
	}
	for _, st := range steps {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		raw, err := loader.Load(st.path)
		if err != nil {
			return nil, err
		}
		d, err := st.clean(raw)
		if err != nil {
			return nil, fmt.Errorf("clean %s: %w", st.path, err)
		}
		logger.InfoContext(ctx, "dataset loaded",
			"dataset", d.Dataset,
			"path", st.path,
			"rows_read", d.RowsRead,
			"rows_kept", d.RowsKept,
			"malformed", d.Malformed,
			"filtered", d.Filtered,
			"coercion_failed", d.CoercionFailed,
			"missing_value", d.MissingValue,
			"out_of_range", d.OutOfRange,
			"duplicates", d.Duplicates,
		)
		m.ObserveDropped(d.Dataset, d.Dropped(), d.RowsKept)
		diags = append(diags, d)
		sums = append(sums, raw.Checksum)
	}

	locale, err := language.Parse(cfg.Locale)
	if err != nil {
		logger.WarnContext(ctx, "unknown locale, using English", "locale", cfg.Locale)
		locale = language.English
	}
	return New(t, cfg.CacheSize,
		WithLogger(logger),
		WithMetrics(m),
		WithLocale(locale),
		WithDefaultCountries(cfg.DefaultCountryN),
		WithVersion(version(sums...)),
		WithDiagnostics(diags...),
	)
}

// version derives the dataset version from the file checksums.
func version(sums ...string) string {
	h := sha256.New()
	for _, s := range sums {
		h.Write([]byte(s))
		h.Write([]byte{0})
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

// memo returns the cached result for key or computes it once. Identical
// concurrent misses share one computation.
func memo[T any](s *Session, key string, compute func() T) T {
	key = s.Version + "|" + key
	if v, ok := s.cache.Get(key); ok {
		s.metrics.CacheHits.Inc()
		return v.(T)
	}
	v, _, _ := s.group.Do(key, func() (any, error) {
		if v, ok := s.cache.Get(key); ok {
			return v, nil
		}
		s.metrics.CacheMisses.Inc()
		r := compute()
		s.cache.Add(key, r)
		return r, nil
	})
	return v.(T)
}
