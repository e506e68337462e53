package openhumans

import (
	"context"
	"fmt"
	"net/url"

	"go.uber.org/zap"

	"github.com/openhumans/loggather/services"
	"github.com/openhumans/loggather/services/datalogs"
)

type logPage struct {
	Results []datalogs.LogRecord `json:"results"`
	Next    *string              `json:"next"`
}

// FetchAll returns every access-log record the endpoint reports for the
// range, following "next" links until the API reports none. Any transport
// error or non-2xx page fails the whole fetch; nothing is retried.
func (c *Client) FetchAll(ctx context.Context, endpoint, accessToken string, dr datalogs.DateRange) ([]datalogs.LogRecord, error) {
	q := url.Values{}
	if dr.Start != "" {
		q.Set("start_date", dr.Start)
	}
	if dr.End != "" {
		q.Set("end_date", dr.End)
	}
	next := c.endpoint(fmt.Sprintf("/data-management/%s/", endpoint), accessToken, q)

	var records []datalogs.LogRecord
	pages := 0
	for next != "" {
		if err := c.pageLimiter.Wait(ctx); err != nil {
			return nil, services.NewRemoteFetchError(endpoint, err)
		}

		c.logger.Debug("fetching access log page",
			zap.String("endpoint", endpoint),
			zap.String("url", redact(next)),
		)

		var page logPage
		if err := c.getJSON(ctx, next, &page); err != nil {
			return nil, services.NewRemoteFetchError(endpoint, err).
				WithDetail("page", pages+1)
		}
		pages++
		records = append(records, page.Results...)

		next = ""
		if page.Next != nil {
			next = *page.Next
		}
	}

	c.logger.Info("fetched access logs",
		zap.String("endpoint", endpoint),
		zap.Int("pages", pages),
		zap.Int("records", len(records)),
	)
	return records, nil
}
