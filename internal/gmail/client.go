package gmail

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/oauth2"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/teemow/inbleach/internal/instrumentation"
	"github.com/teemow/inbleach/internal/logging"
)

// userID addresses the authenticated user in every Gmail API call
const userID = "me"

// ClientConfig configures a Client
type ClientConfig struct {
	// TokenSource authorizes Gmail API calls. It may be nil when Options
	// carry their own credentials or HTTP client.
	TokenSource oauth2.TokenSource
	// Options are appended after the token source, so an explicit
	// option.WithHTTPClient or option.WithEndpoint wins.
	Options  []option.ClientOption
	Resolver *Resolver
	Logger   logging.Logger
	Metrics  *instrumentation.Metrics
}

// Client wraps the Gmail Users service for one authenticated user
type Client struct {
	svc      *gmail.UsersService
	resolver *Resolver
	logger   logging.Logger
	metrics  *instrumentation.Metrics
}

// NewClient creates a Gmail client from cfg
func NewClient(ctx context.Context, cfg ClientConfig) (*Client, error) {
	var opts []option.ClientOption
	if cfg.TokenSource != nil {
		opts = append(opts, option.WithTokenSource(cfg.TokenSource))
	}
	opts = append(opts, cfg.Options...)

	svc, err := gmail.NewService(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create Gmail service: %w", err)
	}

	logger := logging.OrDefault(cfg.Logger)
	resolver := cfg.Resolver
	if resolver == nil {
		resolver = NewResolver(ResolverConfig{Logger: logger, Metrics: cfg.Metrics})
	}

	return &Client{
		svc:      svc.Users,
		resolver: resolver,
		logger:   logger,
		metrics:  cfg.Metrics,
	}, nil
}

// Resolver returns the unsubscribe resolver used by BulkUnsubscribe
func (c *Client) Resolver() *Resolver {
	return c.resolver
}

// ListMessages returns references to every message received after the
// calendar date of since, following pagination until the last page.
func (c *Client) ListMessages(ctx context.Context, since time.Time) ([]MessageRef, error) {
	query := "after:" + since.Format("2006/01/02")
	refs := []MessageRef{}

	err := c.observe(ctx, "list", nil, func(ctx context.Context) error {
		pageToken := ""
		for {
			req := c.svc.Messages.List(userID).Q(query).Context(ctx)
			if pageToken != "" {
				req.PageToken(pageToken)
			}
			res, err := req.Do()
			if err != nil {
				return wrapAPIError("list", err)
			}
			for _, m := range res.Messages {
				if m == nil {
					continue
				}
				refs = append(refs, MessageRef{ID: m.Id, ThreadID: m.ThreadId})
			}
			if res.NextPageToken == "" {
				return nil
			}
			pageToken = res.NextPageToken
		}
	})
	if err != nil {
		return nil, err
	}

	c.logger.Debug("listed messages", "query", query, "count", len(refs))
	return refs, nil
}

// GetMessage fetches the full message with the given ID. An unknown ID
// yields an error wrapping ErrNotFound.
func (c *Client) GetMessage(ctx context.Context, id string) (*Message, error) {
	var msg *Message
	err := c.observe(ctx, "get", []attribute.KeyValue{attribute.String(instrumentation.SpanAttrMessageID, id)},
		func(ctx context.Context) error {
			res, err := c.svc.Messages.Get(userID, id).Format("full").Context(ctx).Do()
			if err != nil {
				return wrapAPIError("get", err)
			}
			msg, err = newMessage(res)
			return err
		})
	if err != nil {
		return nil, err
	}
	return msg, nil
}

// BulkUnsubscribe attempts to unsubscribe from the sender of every message
// in ids, sequentially and in input order. A failure for one message never
// stops the batch; it only lands the ID in Failed.
func (c *Client) BulkUnsubscribe(ctx context.Context, ids []string) *UnsubscribeResult {
	result := NewUnsubscribeResult()
	c.metrics.RecordBulkBatch(ctx, len(ids))

	for _, raw := range ids {
		id := normalizeID(raw)
		if id == "" {
			continue
		}

		msg, err := c.GetMessage(ctx, id)
		if err != nil {
			c.logger.Warn("failed to fetch message for unsubscribe", logging.MessageID(id), logging.Err(err))
			result.Failed = append(result.Failed, id)
			continue
		}

		c.logger.Info("processing message", logging.MessageID(id), "subject", msg.Subject())
		if c.resolver.Unsubscribe(ctx, msg) {
			result.Success = append(result.Success, id)
		} else {
			result.Failed = append(result.Failed, id)
		}
	}

	c.logger.Info("bulk unsubscribe finished",
		"requested", len(ids),
		"success", len(result.Success),
		"failed", len(result.Failed))
	return result
}

// normalizeID strips whitespace and surrounding double quotes that clients
// tend to leave on IDs split from a comma separated list.
func normalizeID(raw string) string {
	return strings.TrimSpace(strings.Trim(strings.TrimSpace(raw), `"`))
}

// observe wraps a Gmail API call in a span and records its outcome
func (c *Client) observe(ctx context.Context, op string, attrs []attribute.KeyValue, fn func(context.Context) error) error {
	ctx, span := instrumentation.StartGoogleAPISpan(ctx, instrumentation.ServiceGmail, op, attrs...)
	defer span.End()

	start := time.Now()
	err := fn(ctx)
	status := instrumentation.StatusSuccess
	if err != nil {
		status = instrumentation.StatusError
		instrumentation.SetSpanError(span, err)
	} else {
		instrumentation.SetSpanSuccess(span)
	}
	c.metrics.RecordGoogleAPIOperation(ctx, instrumentation.ServiceGmail, op, status, time.Since(start))
	return err
}
