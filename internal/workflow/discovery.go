package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"sync"
	"time"

	"flowbridge/internal/apiclient"
	"flowbridge/pkg/logging"

	"golang.org/x/sync/singleflight"
)

// workflowListPath is the remote catalog endpoint.
const workflowListPath = "/api/v1/service/workflows/mcp"

// defaultCacheValidity is how long a fetched catalog stays fresh.
const defaultCacheValidity = 60 * time.Second

// apiGetter is what discovery needs from the API client.
type apiGetter interface {
	Get(ctx context.Context, path string, query url.Values) (*apiclient.Response, error)
}

// CacheStats describes the discovery cache for diagnostics.
type CacheStats struct {
	Size      int
	FetchedAt time.Time
	Valid     bool
	Hits      uint64
	Misses    uint64
}

// DiscoveryService fetches the remote workflow catalog, transforms entries
// into Definitions, and caches the filtered result.
//
// ListWorkflows never fails from the caller's perspective: remote errors
// degrade to the previous cached catalog (however stale) or to an empty
// list. Concurrent cache misses are collapsed onto a single remote fetch.
type DiscoveryService struct {
	client        apiGetter
	errors        *ErrorHandler
	cacheValidity time.Duration

	mu        sync.Mutex
	filters   *filterMatcher
	cached    []Definition
	fetchedAt time.Time
	hits      uint64
	misses    uint64

	group singleflight.Group

	// now is a test seam.
	now func() time.Time
}

// DiscoveryOption customizes discovery construction.
type DiscoveryOption func(*DiscoveryService)

// WithCacheValidity overrides the cache freshness window.
func WithCacheValidity(d time.Duration) DiscoveryOption {
	return func(s *DiscoveryService) {
		if d > 0 {
			s.cacheValidity = d
		}
	}
}

// NewDiscoveryService creates a discovery service with the given name
// filter patterns (empty means no filtering).
func NewDiscoveryService(client apiGetter, errorHandler *ErrorHandler, filterPatterns []string, opts ...DiscoveryOption) *DiscoveryService {
	s := &DiscoveryService{
		client:        client,
		errors:        errorHandler,
		cacheValidity: defaultCacheValidity,
		filters:       newFilterMatcher(filterPatterns),
		now:           time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ListWorkflows returns the current workflow catalog. Serves from cache when
// fresh; otherwise fetches, falling back to the stale cache (or an empty
// list) on failure. Never returns an error.
func (s *DiscoveryService) ListWorkflows(ctx context.Context) []Definition {
	s.mu.Lock()
	if s.cacheValidLocked() {
		s.hits++
		cached := copyDefinitions(s.cached)
		s.mu.Unlock()
		return cached
	}
	s.misses++
	stale := copyDefinitions(s.cached)
	s.mu.Unlock()

	defs, err := s.fetch(ctx)
	if err == nil {
		return defs
	}

	s.errors.Handle(listingFailureClass(err), "list workflows", err, nil)

	if IsAPIFormatError(err) {
		// The remote answered with an unusable shape; an empty catalog is
		// more honest than stale data that the same endpoint just disowned.
		return []Definition{}
	}
	if len(stale) > 0 {
		logging.Warn("Discovery", "Workflow fetch failed, serving %d stale cached workflows", len(stale))
		return stale
	}
	return []Definition{}
}

// RefreshWorkflows bypasses the cache and fetches the catalog. The cache is
// replaced on success and left untouched on failure.
func (s *DiscoveryService) RefreshWorkflows(ctx context.Context) ([]Definition, error) {
	return s.fetch(ctx)
}

// TestConnection probes the catalog endpoint and reports reachability.
func (s *DiscoveryService) TestConnection(ctx context.Context) bool {
	_, err := s.client.Get(ctx, workflowListPath, nil)
	if err != nil {
		logging.Debug("Discovery", "Connection test failed: %v", err)
		return false
	}
	return true
}

// ClearCache drops the cached catalog.
func (s *DiscoveryService) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cached = nil
	s.fetchedAt = time.Time{}
}

// CacheStats reports cache contents and hit counters.
func (s *DiscoveryService) CacheStats() CacheStats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return CacheStats{
		Size:      len(s.cached),
		FetchedAt: s.fetchedAt,
		Valid:     s.cacheValidLocked(),
		Hits:      s.hits,
		Misses:    s.misses,
	}
}

// SetFilterPatterns replaces the name filters and invalidates the cache so
// the next listing reflects them. Used by config hot reload.
func (s *DiscoveryService) SetFilterPatterns(patterns []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.filters = newFilterMatcher(patterns)
	s.cached = nil
	s.fetchedAt = time.Time{}
	logging.Info("Discovery", "Workflow filter patterns updated (%d patterns)", len(patterns))
}

// cacheValidLocked reports cache freshness. Callers hold s.mu. An empty
// catalog is never considered valid so transient empty results self-heal.
func (s *DiscoveryService) cacheValidLocked() bool {
	return len(s.cached) > 0 && s.now().Sub(s.fetchedAt) < s.cacheValidity
}

// fetch retrieves, transforms and filters the catalog, updating the cache
// on success. Concurrent callers share one remote call.
func (s *DiscoveryService) fetch(ctx context.Context) ([]Definition, error) {
	v, err, _ := s.group.Do("catalog", func() (interface{}, error) {
		resp, err := s.client.Get(ctx, workflowListPath, nil)
		if err != nil {
			return nil, err
		}

		raw, err := parseListing(resp.Data)
		if err != nil {
			return nil, err
		}

		s.mu.Lock()
		filters := s.filters
		s.mu.Unlock()

		defs := make([]Definition, 0, len(raw))
		for _, entry := range raw {
			def, err := transformEntry(entry)
			if err != nil {
				// One malformed entry never fails the batch.
				s.errors.Handle(FailureValidation, "transform workflow entry", err, nil)
				continue
			}
			if !filters.matches(def.Name) {
				continue
			}
			defs = append(defs, def)
		}

		s.mu.Lock()
		s.cached = copyDefinitions(defs)
		s.fetchedAt = s.now()
		s.mu.Unlock()

		logging.Debug("Discovery", "Fetched %d workflows (%d after filtering)", len(raw), len(defs))
		return defs, nil
	})
	if err != nil {
		return nil, err
	}
	return copyDefinitions(v.([]Definition)), nil
}

// listingFailureClass distinguishes a missing catalog endpoint, which means
// workflow tooling is unavailable on this account, from a transient
// discovery failure.
func listingFailureClass(err error) FailureClass {
	var apiErr *apiclient.APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
		return FailureListUnavailable
	}
	return FailureDiscovery
}

// parseListing validates the top-level catalog shape: an object with a
// results array. Anything else is an API format error.
func parseListing(data json.RawMessage) ([]json.RawMessage, error) {
	var listing struct {
		Count   int               `json:"count"`
		Results []json.RawMessage `json:"results"`
	}
	if err := json.Unmarshal(data, &listing); err != nil {
		return nil, newAPIFormatError("workflow listing is not an object with a results array: %v", err)
	}
	if listing.Results == nil {
		return nil, newAPIFormatError("workflow listing has no results array")
	}
	return listing.Results, nil
}

// transformEntry converts one raw catalog entry into a Definition.
func transformEntry(raw json.RawMessage) (Definition, error) {
	var entry struct {
		ID          interface{}            `json:"id"`
		Title       string                 `json:"title"`
		Description string                 `json:"description"`
		Inputs      map[string]interface{} `json:"inputs"`
	}
	if err := json.Unmarshal(raw, &entry); err != nil {
		return Definition{}, fmt.Errorf("malformed workflow entry: %w", err)
	}

	id := stringifyID(entry.ID)
	if id == "" {
		return Definition{}, fmt.Errorf("workflow entry has no usable id")
	}

	name := SanitizeWorkflowName(entry.Title)
	description := entry.Description
	if description == "" {
		description = fmt.Sprintf("Remote workflow %s", id)
	}

	return Definition{
		ID:            id,
		Name:          name,
		Description:   description,
		Category:      "workflow",
		Version:       "1.0.0",
		InputSchema:   schemaFromInputs(entry.Inputs),
		ExecutionType: "async",
		Metadata: Metadata{
			OriginalID:     id,
			OriginalTitle:  entry.Title,
			OriginalInputs: entry.Inputs,
			Source:         "hublead",
		},
	}, nil
}

// stringifyID normalizes the remote id field, which arrives as a JSON
// number, to a string key.
func stringifyID(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case float64:
		return strconv.FormatFloat(id, 'f', -1, 64)
	case json.Number:
		return id.String()
	case int:
		return strconv.Itoa(id)
	case int64:
		return strconv.FormatInt(id, 10)
	default:
		return ""
	}
}

// schemaPropertyTypes are the primitive types accepted from remote schemas;
// anything else degrades to string.
var schemaPropertyTypes = map[string]bool{
	"string":  true,
	"number":  true,
	"integer": true,
	"boolean": true,
	"array":   true,
	"object":  true,
}

// schemaFromInputs normalizes a remote inputs declaration. Only a
// well-formed object schema is honored; every other shape gets the default
// free-form schema, so generated tools always validate.
func schemaFromInputs(inputs map[string]interface{}) InputSchema {
	if inputs == nil {
		return DefaultInputSchema()
	}
	schemaType, _ := inputs["type"].(string)
	rawProps, ok := inputs["properties"].(map[string]interface{})
	if schemaType != "object" || !ok {
		return DefaultInputSchema()
	}

	properties := make(map[string]Property, len(rawProps))
	for name, rawProp := range rawProps {
		prop := Property{Type: "string"}
		if m, ok := rawProp.(map[string]interface{}); ok {
			if t, ok := m["type"].(string); ok && schemaPropertyTypes[t] {
				prop.Type = t
			}
			if d, ok := m["description"].(string); ok {
				prop.Description = d
			}
		}
		properties[name] = prop
	}

	required := []string{}
	if rawRequired, ok := inputs["required"].([]interface{}); ok {
		for _, r := range rawRequired {
			if name, ok := r.(string); ok {
				if _, declared := properties[name]; declared {
					required = append(required, name)
				}
			}
		}
	}

	return InputSchema{
		Type:       "object",
		Properties: properties,
		Required:   required,
	}
}

func copyDefinitions(defs []Definition) []Definition {
	if defs == nil {
		return nil
	}
	out := make([]Definition, len(defs))
	copy(out, defs)
	return out
}
