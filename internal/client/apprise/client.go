package apprise

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"

	"github.com/fusionn-srt/internal/config"
	"github.com/fusionn-srt/pkg/logger"
)

// Client posts job notifications to an Apprise API server.
type Client struct {
	cfg    config.AppriseConfig
	client *resty.Client
}

// NewClient creates a new Apprise client. A disabled client accepts every
// call and sends nothing.
func NewClient(cfg config.AppriseConfig) *Client {
	client := resty.New().
		SetBaseURL(strings.TrimRight(cfg.BaseURL, "/")).
		SetTimeout(30 * time.Second).
		SetRetryCount(2).
		SetRetryWaitTime(1 * time.Second)

	return &Client{
		cfg:    cfg,
		client: client,
	}
}

// Enabled reports whether notifications are sent.
func (c *Client) Enabled() bool {
	return c.cfg.Enabled && c.cfg.BaseURL != ""
}

// NotifyRequest is the request body for Apprise.
type NotifyRequest struct {
	Body  string `json:"body"`
	Title string `json:"title,omitempty"`
	Type  string `json:"type,omitempty"` // info, success, warning, failure
	Tag   string `json:"tag,omitempty"`
}

// Notify sends a notification via Apprise.
func (c *Client) Notify(title, body, notifyType string) error {
	if !c.Enabled() {
		return nil
	}

	tag := c.cfg.Tag
	if tag == "" {
		tag = "all"
	}

	resp, err := c.client.R().
		SetHeader("Content-Type", "application/json").
		SetPathParam("key", c.cfg.Key).
		SetBody(NotifyRequest{
			Title: title,
			Body:  body,
			Type:  notifyType,
			Tag:   tag,
		}).
		Post("/notify/{key}")
	if err != nil {
		return fmt.Errorf("apprise request: %w", err)
	}

	if resp.IsError() {
		return fmt.Errorf("apprise error (status %d): %s", resp.StatusCode(), strings.TrimSpace(resp.String()))
	}

	logger.Debugf("🔔 Notification sent: %s", title)
	return nil
}

// NotifySuccess sends a success notification.
func (c *Client) NotifySuccess(title, body string) error {
	return c.Notify(title, body, "success")
}

// NotifyError sends a failure notification.
func (c *Client) NotifyError(title, body string) error {
	return c.Notify(title, body, "failure")
}
