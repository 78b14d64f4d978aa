package search

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/lox/booking-search/internal/compare"
	"github.com/lox/booking-search/internal/materializer"
	"github.com/lox/booking-search/internal/messages"
	"github.com/lox/booking-search/internal/query"
	"github.com/lox/booking-search/internal/relax"
	"github.com/lox/booking-search/internal/types"
	"github.com/shopspring/decimal"
)

const (
	// DefaultThreshold is the minimum number of matches a level must produce to be accepted
	DefaultThreshold = 5

	failureMessage = "search is temporarily unavailable, please retry"
)

// Store is the read side of the relational store used by the engine
type Store interface {
	materializer.Store
	CountUnits(ctx context.Context, q *query.Query) (int, error)
	CountProperties(ctx context.Context, q *query.Query) (int, error)
}

// RatesProvider returns exchange rates relative to a search currency. It never fails.
type RatesProvider interface {
	GetRates(ctx context.Context, searchCurrency string) map[string]decimal.Decimal
}

type engineOptions struct {
	threshold           int
	rejectEmptyRequests bool
	policy              relax.Policy
	language            string
	maxUnitsPerProperty int
	queryOptions        query.Options
	generator           messages.Generator
	comparer            materializer.Comparer
}

// Option configures an Engine
type Option func(*engineOptions)

// WithThreshold sets the minimum result count accepted at a non-terminal level
func WithThreshold(threshold int) Option {
	return func(opts *engineOptions) {
		opts.threshold = threshold
	}
}

// WithRejectEmptyRequests controls whether requests without any criteria are refused up front
func WithRejectEmptyRequests(reject bool) Option {
	return func(opts *engineOptions) {
		opts.rejectEmptyRequests = reject
	}
}

// WithPolicy sets the relaxation policy
func WithPolicy(policy relax.Policy) Option {
	return func(opts *engineOptions) {
		opts.policy = policy
	}
}

// WithLanguage sets the language of user-facing messages
func WithLanguage(language string) Option {
	return func(opts *engineOptions) {
		opts.language = language
	}
}

// WithMaxUnitsPerProperty caps the matched units returned per property group
func WithMaxUnitsPerProperty(n int) Option {
	return func(opts *engineOptions) {
		opts.maxUnitsPerProperty = n
	}
}

// WithQueryOptions sets paging, guard and price window options of the query builder
func WithQueryOptions(queryOptions query.Options) Option {
	return func(opts *engineOptions) {
		opts.queryOptions = queryOptions
	}
}

// WithGenerator sets the message generator, the built-in templates are used by default
func WithGenerator(generator messages.Generator) Option {
	return func(opts *engineOptions) {
		opts.generator = generator
	}
}

// WithComparer replaces the mismatch comparison used for property groups
func WithComparer(comparer materializer.Comparer) Option {
	return func(opts *engineOptions) {
		opts.comparer = comparer
	}
}

// Engine runs searches, relaxing the request level by level until enough results are found
type Engine struct {
	store        Store
	rates        RatesProvider
	builder      *query.Builder
	materializer *materializer.Materializer
	logger       *log.Logger
	options      engineOptions
}

// NewEngine creates a search engine
func NewEngine(store Store, rates RatesProvider, logger *log.Logger, opts ...Option) *Engine {
	options := engineOptions{
		threshold:           DefaultThreshold,
		rejectEmptyRequests: true,
		policy:              relax.DefaultPolicy(),
		language:            messages.English,
	}
	for _, opt := range opts {
		opt(&options)
	}
	if options.threshold < 1 {
		options.threshold = 1
	}
	if options.generator == nil {
		options.generator = messages.NewTemplateGenerator()
	}
	if options.comparer == nil {
		options.comparer = compare.NewService()
	}
	options.policy = options.policy.Normalize()

	return &Engine{
		store:        store,
		rates:        rates,
		builder:      query.NewBuilder(options.queryOptions),
		materializer: materializer.New(store, options.comparer, logger, options.maxUnitsPerProperty),
		logger:       logger,
		options:      options,
	}
}

// SearchUnits returns a page of matching units. The only error returned is
// the context's; every other fault is reported in the result.
func (e *Engine) SearchUnits(ctx context.Context, req types.SearchRequest) (*types.SearchResult, error) {
	result := &types.SearchResult{Items: []types.UnitItem{}}
	meta, err := e.run(ctx, "units", req, e.store.CountUnits, func(ctx context.Context, q *query.Query) error {
		items, err := e.materializer.Units(ctx, q)
		if err != nil {
			return err
		}
		result.Items = items
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SearchMeta = meta
	return result, nil
}

// SearchPropertiesWithUnits returns a page of properties, each with its matching units.
// Errors are reported like SearchUnits.
func (e *Engine) SearchPropertiesWithUnits(ctx context.Context, req types.SearchRequest) (*types.PropertyWithUnitsSearchResult, error) {
	result := &types.PropertyWithUnitsSearchResult{Properties: []types.PropertyGroupResult{}}
	meta, err := e.run(ctx, "properties", req, e.store.CountProperties, func(ctx context.Context, q *query.Query) error {
		groups, err := e.materializer.Properties(ctx, q, req)
		if err != nil {
			return err
		}
		result.Properties = groups
		return nil
	})
	if err != nil {
		return nil, err
	}
	result.SearchMeta = meta
	return result, nil
}

type countFunc func(ctx context.Context, q *query.Query) (int, error)
type loadFunc func(ctx context.Context, q *query.Query) error

// run walks the relaxation ladder from Exact. A level is accepted when it reaches
// the threshold, or has any match at all when no further level can run.
func (e *Engine) run(ctx context.Context, kind string, original types.SearchRequest, count countFunc, load loadFunc) (types.SearchMeta, error) {
	start := time.Now()
	logger := e.logger.With("kind", kind)

	meta := types.SearchMeta{
		AppliedFilters:  original,
		RelaxationLevel: types.Exact,
		PageNumber:      max(original.PageNumber, 1),
		Success:         true,
	}
	finish := func() types.SearchMeta {
		meta.SearchTimeMs = time.Since(start).Milliseconds()
		return meta
	}

	if e.options.rejectEmptyRequests && !original.HasAnyCriteria() {
		logger.Info("Rejected search without criteria")
		if err := e.explain(ctx, &meta, messages.Request{Reason: messages.ReasonNoCriteria}); err != nil {
			return types.SearchMeta{}, err
		}
		return finish(), nil
	}

	var (
		level    = types.Exact
		rates    map[string]decimal.Decimal
		ratesKey string
		attempts int
		failures int
	)

	for iteration := 0; iteration < len(types.RelaxationLevels); iteration++ {
		if err := ctx.Err(); err != nil {
			return types.SearchMeta{}, err
		}

		relaxed, notes := relax.Relax(original, level, e.options.policy)
		if key := rateKey(relaxed); rates == nil || key != ratesKey {
			rates = e.rates.GetRates(ctx, relaxed.Currency)
			ratesKey = key
		}

		next := relax.NextLevel(level, e.options.policy)
		terminal := level.IsTerminal() || next == level

		meta.RelaxationLevel = level
		meta.AppliedFilters = relaxed
		meta.RelaxedFilters = notes
		meta.WasRelaxed = level != types.Exact

		attempts++
		total, q, err := e.countLevel(ctx, relaxed, original, rates, count)
		switch {
		case isContextError(ctx, err):
			return types.SearchMeta{}, ctx.Err()
		case err != nil:
			failures++
			logger.Warn("Search level failed", "level", level, "error", err)
		default:
			logger.Debug("Counted matches", "level", level, "total", total, "threshold", e.options.threshold)
			meta.PageNumber = q.PageNumber
			meta.PageSize = q.PageSize
			if total >= e.options.threshold || (terminal && total > 0) {
				err := load(ctx, q)
				if isContextError(ctx, err) {
					return types.SearchMeta{}, ctx.Err()
				}
				if err == nil {
					meta.TotalCount = total
					meta.TotalPages = totalPages(total, q.PageSize)
					if err := e.explain(ctx, &meta, messages.Request{
						Reason:         messages.ReasonResults,
						Level:          level,
						Count:          total,
						RelaxedFilters: notes,
					}); err != nil {
						return types.SearchMeta{}, err
					}
					logger.Info("Search completed", "level", level, "total", total, "duration", time.Since(start))
					return finish(), nil
				}
				failures++
				logger.Warn("Failed to load results", "level", level, "error", err)
			}
		}

		if next == level {
			break
		}
		level = next
	}

	meta.TotalCount = 0
	meta.TotalPages = 0

	if failures == attempts {
		logger.Error("Search failed at every level", "attempts", attempts)
		meta.Success = false
		meta.ErrorMessage = failureMessage
		if err := e.explain(ctx, &meta, messages.Request{Reason: messages.ReasonFailure, Level: level}); err != nil {
			return types.SearchMeta{}, err
		}
		return finish(), nil
	}

	logger.Info("No results at any level", "level", level, "duration", time.Since(start))
	if err := e.explain(ctx, &meta, messages.Request{
		Reason:         messages.ReasonNoResults,
		Level:          level,
		RelaxedFilters: meta.RelaxedFilters,
	}); err != nil {
		return types.SearchMeta{}, err
	}
	return finish(), nil
}

// countLevel builds the query for a relaxed request and counts its matches.
// Availability is always reported for the original stay.
func (e *Engine) countLevel(ctx context.Context, relaxed, original types.SearchRequest, rates map[string]decimal.Decimal, count countFunc) (int, *query.Query, error) {
	q, err := e.builder.Build(relaxed, rates)
	if err != nil {
		return 0, nil, err
	}
	q.Available = query.AvailabilityFilter(original)

	total, err := count(ctx, q)
	if err != nil {
		return 0, nil, err
	}
	return q.CapTotal(total), q, nil
}

// explain fills the message and suggested actions, falling back to the templates
func (e *Engine) explain(ctx context.Context, meta *types.SearchMeta, req messages.Request) error {
	req.Language = e.options.language
	explanation, err := e.options.generator.Explain(ctx, req)
	if err != nil {
		if isContextError(ctx, err) {
			return ctx.Err()
		}
		e.logger.Warn("Message generator failed", "reason", req.Reason, "error", err)
		explanation = messages.Template(req)
	}
	meta.Message = explanation.Message
	meta.SuggestedActions = explanation.SuggestedActions
	return nil
}

// rateKey changes whenever the rate table for a relaxed request may differ
func rateKey(req types.SearchRequest) string {
	key := strings.ToUpper(strings.TrimSpace(req.Currency))
	if req.MinPrice != nil {
		key += "|" + req.MinPrice.String()
	}
	key += "|"
	if req.MaxPrice != nil {
		key += req.MaxPrice.String()
	}
	return key
}

// isContextError reports whether err happened because the caller's context is done
func isContextError(ctx context.Context, err error) bool {
	return err != nil && ctx.Err() != nil
}

func totalPages(total, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return (total + pageSize - 1) / pageSize
}
