// Package exporter runs one activity-log export: token, filtered query,
// pagination, and a JSON array on disk.
package exporter

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/fabriziosalmi/activitylogs/internal/arrayfile"
	"github.com/fabriziosalmi/activitylogs/internal/azure"
)

// State is a step of an export run.
type State string

const (
	StateAuthenticating    State = "authenticating"
	StateFetchingFirstPage State = "fetching_first_page"
	StateWritingPage       State = "writing_page"
	StateFetchingNextPage  State = "fetching_next_page"
	StateFinalizing        State = "finalizing"
	StateDone              State = "done"
	StateFailed            State = "failed"
)

// ErrNoOutput marks a run whose output array could never be begun.
var ErrNoOutput = errors.New("exporter: output array was not created")

// Options configures a Pipeline.
type Options struct {
	Resource         string // token scope
	Endpoint         string // first-page URL
	APIVersion       string
	EventChannels    string
	ResourceProvider string
	Days             int
	OutputPath       string
	// RateLimit caps page requests per second; 0 disables pacing.
	RateLimit float64
	// Now defaults to time.Now.
	Now func() time.Time
}

// Result summarises a run. Err is the reason for StateFailed; storage
// failures never fail a run and are collected in StorageErrors instead.
type Result struct {
	RunID         uuid.UUID
	Window        azure.TimeWindow
	OutputPath    string
	State         State
	Begun         bool
	Pages         int
	Records       int64
	Err           error
	StorageErrors []error
	StartedAt     time.Time
	FinishedAt    time.Time
}

// Pipeline wires a TokenSource and a PageFetcher to an output array.
type Pipeline struct {
	tokens  TokenSource
	pages   PageFetcher
	opts    Options
	limiter *rate.Limiter
	log     *zap.Logger
}

// New creates a Pipeline.
func New(tokens TokenSource, pages PageFetcher, opts Options, log *zap.Logger) *Pipeline {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	var limiter *rate.Limiter
	if opts.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(opts.RateLimit), 1)
	}
	return &Pipeline{
		tokens:  tokens,
		pages:   pages,
		opts:    opts,
		limiter: limiter,
		log:     log,
	}
}

// Filter builds the $filter expression for now.
func (p *Pipeline) Filter(now time.Time) azure.Filter {
	return azure.Filter{
		Window:           azure.NewTimeWindow(now, p.opts.Days),
		EventChannels:    p.opts.EventChannels,
		ResourceProvider: p.opts.ResourceProvider,
	}
}

// Run executes one export. The returned error is non-nil exactly when the
// run ends in StateFailed; the Result is always populated.
//
// An auth failure stops the run before the output file is touched. Any
// later fetch failure stops pagination, keeps what was written and still
// finalizes the array.
func (p *Pipeline) Run(ctx context.Context) (*Result, error) {
	now := p.opts.Now()
	filter := p.Filter(now)
	res := &Result{
		RunID:      uuid.New(),
		Window:     filter.Window,
		OutputPath: p.opts.OutputPath,
		StartedAt:  now,
	}
	log := p.log.With(zap.String("run_id", res.RunID.String()))

	res.State = StateAuthenticating
	token, err := p.tokens.Acquire(ctx, p.opts.Resource)
	if err != nil {
		return p.fail(res, log, fmt.Errorf("acquire token: %w", err))
	}
	if token == "" {
		return p.fail(res, log, &azure.AuthError{Code: "invalid_response", Description: "empty access token"})
	}

	log.Info("creating output file", zap.String("path", p.opts.OutputPath))
	out, err := arrayfile.Begin(p.opts.OutputPath)
	if err != nil {
		p.storageFailure(res, log, "output file could not be created", err)
	} else {
		res.Begun = true
		defer p.finalize(res, log, out)
	}

	res.State = StateFetchingFirstPage
	query := url.Values{
		"api-version": {p.opts.APIVersion},
		"$filter":     {filter.String()},
	}
	log.Info("querying activity logs",
		zap.String("start", filter.Window.StartDate()),
		zap.String("end", filter.Window.EndDate()),
		zap.String("filter", filter.String()),
	)
	page, err := p.fetch(ctx, p.opts.Endpoint, token, query)
	if err != nil {
		return p.fail(res, log, fmt.Errorf("first page: %w", err))
	}

	for {
		res.State = StateWritingPage
		res.Pages++
		p.write(res, log, out, page)

		if !page.HasNext() {
			break
		}

		res.State = StateFetchingNextPage
		log.Info("paged results returned", zap.String("next_link", page.NextLink))
		next, err := p.fetch(ctx, page.NextLink, token, nil)
		if err != nil {
			return p.fail(res, log, fmt.Errorf("page %d: %w", res.Pages+1, err))
		}
		page = next
	}

	if !res.Begun {
		// Pagination completed but nothing reached disk.
		return p.fail(res, log, fmt.Errorf("%w: %w", ErrNoOutput, res.StorageErrors[0]))
	}
	res.State = StateFinalizing
	return res, nil
}

func (p *Pipeline) fetch(ctx context.Context, rawURL, token string, query url.Values) (*azure.Page, error) {
	if p.limiter != nil {
		if err := p.limiter.Wait(ctx); err != nil {
			return nil, fmt.Errorf("rate limiter: %w", err)
		}
	}
	page, err := p.pages.FetchPage(ctx, rawURL, token, query)
	if err != nil {
		return nil, err
	}
	if page == nil {
		return nil, &azure.TransportError{URL: rawURL, Op: "decode response", Err: errors.New("empty page")}
	}
	return page, nil
}

func (p *Pipeline) write(res *Result, log *zap.Logger, out *arrayfile.Writer, page *azure.Page) {
	if out == nil {
		if len(page.Value) > 0 {
			log.Error("output file unavailable, page records dropped", zap.Int("records", len(page.Value)))
		}
		return
	}
	if err := out.Append(page.Value); err != nil {
		p.storageFailure(res, log, "unable to append to output file", err)
		return
	}
	res.Records += int64(len(page.Value))
	log.Debug("page written", zap.Int("page", res.Pages), zap.Int("records", len(page.Value)))
}

// finalize runs on every exit path once the array has been begun.
func (p *Pipeline) finalize(res *Result, log *zap.Logger, out *arrayfile.Writer) {
	failed := res.State == StateFailed
	if !failed {
		res.State = StateFinalizing
	}

	log.Info("formatting output file", zap.String("path", out.Path()))
	if err := out.Finalize(); err != nil {
		p.storageFailure(res, log, "unable to format output file", err)
	} else {
		log.Info("output file created successfully",
			zap.String("path", out.Path()),
			zap.Int("pages", res.Pages),
			zap.Int64("records", res.Records),
		)
	}

	res.FinishedAt = p.opts.Now()
	if !failed {
		res.State = StateDone
	}
}

func (p *Pipeline) fail(res *Result, log *zap.Logger, err error) (*Result, error) {
	res.State = StateFailed
	res.Err = err
	res.FinishedAt = p.opts.Now()
	log.Error("export failed", zap.Int("pages", res.Pages), zap.Int64("records", res.Records), zap.Error(err))
	return res, err
}

func (p *Pipeline) storageFailure(res *Result, log *zap.Logger, msg string, err error) {
	res.StorageErrors = append(res.StorageErrors, err)
	log.Error(msg, zap.Error(err))
}
