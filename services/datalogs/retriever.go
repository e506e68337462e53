package datalogs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/internal/observability"
	"github.com/openhumans/loggather/services"
)

// Fetcher returns every record an access-log endpoint reports for a range,
// following pagination until exhausted.
type Fetcher interface {
	FetchAll(ctx context.Context, endpoint, accessToken string, dr DateRange) ([]LogRecord, error)
}

// Uploader delivers one export file to the member's storage.
type Uploader interface {
	Upload(ctx context.Context, accessToken string, file ExportFile) error
}

// Result summarizes one log type run.
type Result struct {
	LogType  LogType
	Fetched  int
	Skipped  int
	Uploaded []string
	Failed   []string
}

// Retriever runs the fetch, normalize, group, render and upload stages for
// each log type. It holds no per-run state and is safe for concurrent use.
type Retriever struct {
	fetcher  Fetcher
	uploader Uploader
	render   Renderer
	metrics  observability.Metrics
	logger   *zap.Logger
	now      func() time.Time
}

// Option configures a Retriever.
type Option func(*Retriever)

func WithRenderer(r Renderer) Option {
	return func(rt *Retriever) { rt.render = r }
}

func WithMetrics(m observability.Metrics) Option {
	return func(rt *Retriever) { rt.metrics = m }
}

// WithClock overrides the generation timestamp source.
func WithClock(now func() time.Time) Option {
	return func(rt *Retriever) { rt.now = now }
}

func NewRetriever(fetcher Fetcher, uploader Uploader, logger *zap.Logger, opts ...Option) *Retriever {
	rt := &Retriever{
		fetcher:  fetcher,
		uploader: uploader,
		render:   RenderCSV,
		metrics:  observability.NopMetrics{},
		logger:   logger,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(rt)
	}
	if rt.logger == nil {
		rt.logger = zap.NewNop()
	}
	return rt
}

// Run executes the pipeline for one schema. A fetch failure aborts the run
// before anything is uploaded. An upload failure only loses that project's
// file; the remaining projects are still uploaded and the failures are
// returned joined.
func (rt *Retriever) Run(ctx context.Context, schema *Schema, accessToken string, dr DateRange) (*Result, error) {
	logType := schema.Type.String()
	res := &Result{LogType: schema.Type}
	generated := rt.now()

	records, err := rt.fetcher.FetchAll(ctx, schema.Endpoint, accessToken, dr)
	rt.metrics.RecordFetch(logType, len(records), err)
	if err != nil {
		if !services.IsRemoteFetchError(err) {
			err = services.NewRemoteFetchError(schema.Endpoint, err)
		}
		return res, err
	}
	res.Fetched = len(records)

	normalized, skipped := schema.NormalizeAll(records)
	res.Skipped = skipped
	if skipped > 0 {
		rt.metrics.RecordSkipped(logType, skipped)
	}

	groups := GroupByProject(normalized)
	files := schema.BuildExports(groups, dr, generated, rt.render)

	rt.logger.Info("access logs grouped",
		zap.String("log_type", logType),
		zap.Int("fetched", res.Fetched),
		zap.Int("skipped", skipped),
		zap.Int("projects", len(files)),
	)

	var errs []error
	for _, f := range files {
		err := rt.uploader.Upload(ctx, accessToken, f)
		rt.metrics.RecordUpload(logType, err)
		if err != nil {
			rt.logger.Error("export upload failed",
				zap.String("log_type", logType),
				zap.String("project", f.Project),
				zap.String("filename", f.Name),
				zap.Error(err),
			)
			res.Failed = append(res.Failed, f.Name)
			if !services.IsUploadError(err) {
				err = services.NewUploadError(f.Name, err)
			}
			errs = append(errs, err)
			continue
		}
		res.Uploaded = append(res.Uploaded, f.Name)
	}

	return res, errors.Join(errs...)
}

// RunAll runs every log type in sequence. A failing log type does not stop
// the others; all failures are returned joined.
func (rt *Retriever) RunAll(ctx context.Context, accessToken string, dr DateRange) ([]*Result, error) {
	results := make([]*Result, 0, len(LogTypes))
	var errs []error
	for _, t := range LogTypes {
		schema, err := SchemaFor(t)
		if err != nil {
			return results, err
		}
		res, err := rt.Run(ctx, schema, accessToken, dr)
		results = append(results, res)
		if err != nil {
			rt.logger.Warn("log type retrieval failed",
				zap.String("log_type", t.String()),
				zap.Error(err),
			)
			errs = append(errs, fmt.Errorf("%s: %w", t, err))
		}
	}
	return results, errors.Join(errs...)
}
