package retrieval

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/openhumans/loggather/internal/observability"
	"github.com/openhumans/loggather/models"
	"github.com/openhumans/loggather/services/datalogs"
)

// CredentialSource yields a usable Open Humans access token for a member
type CredentialSource interface {
	AccessToken(ctx context.Context, memberID uuid.UUID) (string, error)
}

// UploaderFactory picks the destination for one member's exports
type UploaderFactory func(memberID uuid.UUID) datalogs.Uploader

// StaticUploader returns a factory that sends every member's exports to u
func StaticUploader(u datalogs.Uploader) UploaderFactory {
	return func(uuid.UUID) datalogs.Uploader { return u }
}

// Runner executes a single retrieval job end to end
type Runner struct {
	creds     CredentialSource
	fetcher   datalogs.Fetcher
	uploaders UploaderFactory
	opts      []datalogs.Option
	logger    *zap.Logger
}

// NewRunner creates a job runner. opts are applied to every Retriever it builds.
func NewRunner(creds CredentialSource, fetcher datalogs.Fetcher, uploaders UploaderFactory, logger *zap.Logger, opts ...datalogs.Option) *Runner {
	return &Runner{
		creds:     creds,
		fetcher:   fetcher,
		uploaders: uploaders,
		opts:      opts,
		logger:    logger,
	}
}

// Run resolves the member's credential and exports both log types for the
// job's date range.
func (r *Runner) Run(ctx context.Context, job *models.RetrievalJob) ([]*datalogs.Result, error) {
	logger := observability.LoggerFrom(ctx, r.logger.With(
		zap.String("job_id", job.ID.String()),
		zap.String("member_id", job.MemberID.String()),
	))

	token, err := r.creds.AccessToken(ctx, job.MemberID)
	if err != nil {
		return nil, err
	}

	rt := datalogs.NewRetriever(r.fetcher, r.uploaders(job.MemberID), logger, r.opts...)
	results, err := rt.RunAll(ctx, token, datalogs.DateRange{Start: job.StartDate, End: job.EndDate})

	for _, res := range results {
		logger.Info("log type exported",
			zap.String("log_type", res.LogType.String()),
			zap.Int("fetched", res.Fetched),
			zap.Int("skipped", res.Skipped),
			zap.Int("uploaded", len(res.Uploaded)),
			zap.Int("failed", len(res.Failed)))
	}
	return results, err
}
