package authsdk

import (
	"context"
	"errors"
	"net/http"
	"net/url"
)

// SubmitEmailEntry records a single recipient. An address that already
// exists fails with an error matching ErrConflict.
func (c *Client) SubmitEmailEntry(ctx context.Context, req EmailEntryRequest) (*EntryResult, error) {
	var out EntryResult
	if _, err := c.doJSON(ctx, http.MethodPost, EmailEntriesPath, nil, req, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SubmitEmailEntries records recipients in bulk. Addresses already stored are
// skipped and reported in the result; the server answers 207 in that case.
// When the batch itself repeats an address nothing is stored, and the result
// lists the repeats alongside an error matching ErrValidation.
func (c *Client) SubmitEmailEntries(ctx context.Context, campaignID string, entries []EmailEntryRequest) (*BulkResult, error) {
	var query url.Values
	if campaignID != "" {
		query = url.Values{"campaign_id": {campaignID}}
	}

	var out BulkResult
	resp, err := c.doJSON(ctx, http.MethodPost, EmailEntriesPath, query, entries, &out)
	if err != nil {
		var apiErr *APIError
		if errors.As(err, &apiErr) && apiErr.Status == EntryStatusDuplicateInRequest {
			var dup BulkResult
			if derr := apiErr.DecodeBody(&dup); derr == nil {
				dup.TotalProcessed = len(entries)
				return &dup, err
			}
		}
		return nil, err
	}

	if out.Status == "" {
		out.Status = EntryStatusCompleted
	}
	if resp.StatusCode == http.StatusMultiStatus && out.Duplicates == 0 {
		out.Duplicates = len(out.DuplicateEmails)
	}
	return &out, nil
}
