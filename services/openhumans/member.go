package openhumans

import (
	"context"
	"encoding/json"
	"errors"

	"github.com/openhumans/loggather/services"
)

// DataFile is one file stored for the member in this project.
type DataFile struct {
	ID          json.Number    `json:"id"`
	Basename    string         `json:"basename"`
	Created     string         `json:"created"`
	DownloadURL string         `json:"download_url"`
	Source      string         `json:"source"`
	Metadata    map[string]any `json:"metadata"`
}

// MemberInfo is the exchange-member response for an access token.
type MemberInfo struct {
	ProjectMemberID string     `json:"project_member_id"`
	Username        string     `json:"username"`
	Data            []DataFile `json:"data"`
}

// ExchangeMember looks up the project member that owns accessToken.
func (c *Client) ExchangeMember(ctx context.Context, accessToken string) (*MemberInfo, error) {
	var info MemberInfo
	err := c.getJSON(ctx, c.endpoint("/api/direct-sharing/project/exchange-member/", accessToken, nil), &info)
	if err != nil {
		if isUnauthorized(err) {
			return nil, services.NewDomainError(services.ErrorTypeUnauthorized, "open humans rejected access token", err)
		}
		return nil, services.WrapExternal("exchange member", err)
	}
	return &info, nil
}

// ListFiles returns the member's current files in this project.
func (c *Client) ListFiles(ctx context.Context, accessToken string) ([]DataFile, error) {
	info, err := c.ExchangeMember(ctx, accessToken)
	if err != nil {
		return nil, err
	}
	return info.Data, nil
}

func isUnauthorized(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == 401
}
