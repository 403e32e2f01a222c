package models

import (
	"errors"
	"maps"
	"slices"
	"time"
)

// QueryKind describes what a statement does to the data source.
type QueryKind string

const (
	QueryKindQuery       QueryKind = "QUERY"
	QueryKindUpdate      QueryKind = "UPDATE"
	QueryKindBatchUpdate QueryKind = "BATCH_UPDATE"
	QueryKindProcedure   QueryKind = "PROCEDURE"
	QueryKindFunction    QueryKind = "FUNCTION"
)

// Defaults applied by DefaultQueryMetadata.
const (
	DefaultCacheExpireSeconds = 300
	DefaultQueryTimeout       = 30 * time.Second
	DefaultMaxRows            = 1000
)

// QueryMetadata carries the execution intent for a single query.
type QueryMetadata struct {
	QueryID            string         `json:"query_id,omitempty" yaml:"-"`
	Kind               QueryKind      `json:"kind" yaml:"kind"`
	Parameters         map[string]any `json:"parameters,omitempty" yaml:"-"`
	CacheResult        bool           `json:"cache_result" yaml:"cache_result"`
	CacheExpireSeconds int            `json:"cache_expire_seconds" yaml:"cache_expire_seconds"`
	Async              bool           `json:"async" yaml:"async"`
	Timeout            time.Duration  `json:"timeout" yaml:"timeout"`
	MaxRows            int            `json:"max_rows" yaml:"max_rows"`
	ReturnTotalRows    bool           `json:"return_total_rows" yaml:"return_total_rows"`
	Tags               []string       `json:"tags,omitempty" yaml:"tags"`
}

// DefaultQueryMetadata returns metadata with the documented defaults:
// no caching (300s TTL when enabled), synchronous, 30s timeout, 1000 rows.
func DefaultQueryMetadata() QueryMetadata {
	return QueryMetadata{
		Kind:               QueryKindQuery,
		CacheResult:        false,
		CacheExpireSeconds: DefaultCacheExpireSeconds,
		Async:              false,
		Timeout:            DefaultQueryTimeout,
		MaxRows:            DefaultMaxRows,
		ReturnTotalRows:    false,
	}
}

// WithDefaults fills zero-valued fields from DefaultQueryMetadata.
func (m QueryMetadata) WithDefaults() QueryMetadata {
	d := DefaultQueryMetadata()
	if m.Kind == "" {
		m.Kind = d.Kind
	}
	if m.CacheExpireSeconds == 0 {
		m.CacheExpireSeconds = d.CacheExpireSeconds
	}
	if m.Timeout == 0 {
		m.Timeout = d.Timeout
	}
	if m.MaxRows == 0 {
		m.MaxRows = d.MaxRows
	}
	return m
}

// Validate checks timeout > 0 and maxRows > 0.
func (m QueryMetadata) Validate() error {
	if m.Timeout <= 0 {
		return errors.New("timeout must be positive")
	}
	if m.MaxRows <= 0 {
		return errors.New("max rows must be positive")
	}
	if m.CacheResult && m.CacheExpireSeconds <= 0 {
		return errors.New("cache expiry must be positive when caching is enabled")
	}
	return nil
}

// CacheTTL returns the cache lifetime of a result.
func (m QueryMetadata) CacheTTL() time.Duration {
	return time.Duration(m.CacheExpireSeconds) * time.Second
}

// Clone returns a copy with its own parameter map and tag list.
func (m QueryMetadata) Clone() QueryMetadata {
	m.Parameters = maps.Clone(m.Parameters)
	m.Tags = slices.Clone(m.Tags)
	return m
}
