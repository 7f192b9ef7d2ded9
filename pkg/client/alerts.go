package client

import (
	"context"
	"net/url"
	"strconv"
)

// AlertService handles alert dispatch and history
type AlertService struct {
	client *Client
}

// ListOptions filters and pages the alert history
type ListOptions struct {
	Name     string
	Severity string
	SourceIP string
	Page     int
	PageSize int
}

// Send dispatches a single alert and returns where it was delivered
func (s *AlertService) Send(ctx context.Context, a Alert) (*DispatchResult, error) {
	var res DispatchResult
	if err := s.client.doRequest(ctx, "POST", "/api/v1/alerts", a, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// SendWebhook dispatches an Alertmanager style batch
func (s *AlertService) SendWebhook(ctx context.Context, payload WebhookPayload) (*WebhookResult, error) {
	var res WebhookResult
	if err := s.client.doRequest(ctx, "POST", "/api/v1/alerts/alertmanager", payload, &res); err != nil {
		return nil, err
	}
	return &res, nil
}

// List retrieves persisted alerts, newest first
func (s *AlertService) List(ctx context.Context, opts *ListOptions) (*HistoryPage, error) {
	query := url.Values{}
	if opts != nil {
		if opts.Name != "" {
			query.Set("name", opts.Name)
		}
		if opts.Severity != "" {
			query.Set("severity", opts.Severity)
		}
		if opts.SourceIP != "" {
			query.Set("source_ip", opts.SourceIP)
		}
		if opts.Page > 0 {
			query.Set("page", strconv.Itoa(opts.Page))
		}
		if opts.PageSize > 0 {
			query.Set("page_size", strconv.Itoa(opts.PageSize))
		}
	}

	path := "/api/v1/alerts"
	if len(query) > 0 {
		path += "?" + query.Encode()
	}

	var page HistoryPage
	if err := s.client.doRequest(ctx, "GET", path, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}
