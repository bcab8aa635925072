package authsdk

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"path/filepath"
)

// Campaign endpoints.
const (
	CampaignsPath      = "/api/campaigns/"
	CampaignCheckPath  = "/api/campaigns/check_user_campaigns/"
	EmailEntriesPath   = "/api/email-entries/"
	attachmentsSegment = "upload_attachments/"
)

// CreateCampaign stores a new campaign for the logged-in user.
func (c *Client) CreateCampaign(ctx context.Context, req CampaignRequest) (*Campaign, error) {
	var out Campaign
	if err := c.PostJSON(ctx, CampaignsPath, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ListCampaigns returns the user's campaigns, newest first.
func (c *Client) ListCampaigns(ctx context.Context) ([]Campaign, error) {
	var out []Campaign
	if err := c.GetJSON(ctx, CampaignsPath, nil, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// GetCampaign returns one campaign by ID.
func (c *Client) GetCampaign(ctx context.Context, id string) (*Campaign, error) {
	var out Campaign
	if err := c.GetJSON(ctx, campaignPath(id), nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CheckUserCampaigns reports whether the user has any campaigns.
func (c *Client) CheckUserCampaigns(ctx context.Context) (*CampaignSummary, error) {
	var out CampaignSummary
	if err := c.GetJSON(ctx, CampaignCheckPath, nil, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// File is one attachment to upload.
type File struct {
	Name        string
	ContentType string
	Content     io.Reader
}

// UploadAttachments sends files as a multipart form under the field "files".
// The form is buffered so it can be replayed after a credential refresh.
// Each attempt is bounded by Config.UploadTimeout.
func (c *Client) UploadAttachments(ctx context.Context, campaignID string, files ...File) ([]Attachment, error) {
	if len(files) == 0 {
		return nil, errors.New("authsdk: no files to upload")
	}

	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	for _, f := range files {
		h := make(textproto.MIMEHeader)
		h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="files"; filename=%q`, filepath.Base(f.Name)))
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		h.Set("Content-Type", ct)

		part, err := mw.CreatePart(h)
		if err != nil {
			return nil, fmt.Errorf("failed to create form part: %w", err)
		}
		if _, err := io.Copy(part, f.Content); err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", f.Name, err)
		}
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish form: %w", err)
	}

	resp, err := c.Do(ctx, Request{
		Method:  http.MethodPost,
		Path:    campaignPath(campaignID) + attachmentsSegment,
		Header:  http.Header{"Content-Type": {mw.FormDataContentType()}},
		Body:    buf.Bytes(),
		Timeout: c.cfg.UploadTimeout,
	})
	if err != nil {
		return nil, err
	}

	var out []Attachment
	if err := resp.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}

func campaignPath(id string) string {
	return CampaignsPath + url.PathEscape(id) + "/"
}
