package gmail

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"go.opentelemetry.io/otel/attribute"

	"github.com/teemow/inbleach/internal/instrumentation"
	"github.com/teemow/inbleach/internal/logging"
)

const (
	// DefaultUnsubscribeTimeout bounds a single unsubscribe link request,
	// redirects included.
	DefaultUnsubscribeTimeout = 10 * time.Second

	// DefaultUserAgent is sent with unsubscribe requests. Several mailing
	// list providers reject requests without a browser-like agent.
	DefaultUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36"

	// DefaultPromotionalLabel is the Gmail category label of marketing mail
	DefaultPromotionalLabel = "CATEGORY_PROMOTIONS"

	// maxDrainBytes caps how much of an unsubscribe response body is read
	maxDrainBytes = 1 << 20
)

// Source tells where an unsubscribe link was found
type Source string

const (
	SourceNone   Source = "none"
	SourceHeader Source = "header"
	SourceHTML   Source = "html"
)

// UnsubscribeMethod represents a single entry of a List-Unsubscribe header
type UnsubscribeMethod struct {
	Type string // "mailto", "http", "https" or another URL scheme
	URL  string
}

// ResolverConfig configures a Resolver. Zero values fall back to defaults.
type ResolverConfig struct {
	HTTPClient       *http.Client
	Timeout          time.Duration
	UserAgent        string
	PromotionalLabel string
	// ProcessAll disables the promotional label check
	ProcessAll bool
	Logger     logging.Logger
	Metrics    *instrumentation.Metrics
}

// Resolver decides whether a message should be unsubscribed from, finds its
// unsubscribe link and visits it. It holds no per-message state and is safe
// for concurrent use.
type Resolver struct {
	httpClient       *http.Client
	timeout          time.Duration
	userAgent        string
	promotionalLabel string
	processAll       bool
	logger           logging.Logger
	metrics          *instrumentation.Metrics
}

// NewResolver creates a Resolver from cfg
func NewResolver(cfg ResolverConfig) *Resolver {
	r := &Resolver{
		httpClient:       cfg.HTTPClient,
		timeout:          cfg.Timeout,
		userAgent:        cfg.UserAgent,
		promotionalLabel: cfg.PromotionalLabel,
		processAll:       cfg.ProcessAll,
		logger:           logging.OrDefault(cfg.Logger),
		metrics:          cfg.Metrics,
	}
	if r.httpClient == nil {
		r.httpClient = &http.Client{}
	}
	if r.timeout <= 0 {
		r.timeout = DefaultUnsubscribeTimeout
	}
	if r.userAgent == "" {
		r.userAgent = DefaultUserAgent
	}
	if r.promotionalLabel == "" {
		r.promotionalLabel = DefaultPromotionalLabel
	}
	return r
}

// Eligible reports whether the message may be unsubscribed from
func (r *Resolver) Eligible(m *Message) bool {
	if m == nil {
		return false
	}
	if r.processAll {
		return true
	}
	return m.HasLabel(r.promotionalLabel)
}

// ResolveURL finds the unsubscribe link of a message. The List-Unsubscribe
// header wins; the HTML body is scanned only when the header yields nothing.
// Eligibility is not checked here.
func (r *Resolver) ResolveURL(m *Message) (string, Source) {
	if m == nil {
		return "", SourceNone
	}

	for _, method := range parseListUnsubscribe(m.HeaderValue("List-Unsubscribe")) {
		if strings.Contains(method.URL, "://") {
			return method.URL, SourceHeader
		}
	}

	html, ok := ExtractHTML(m)
	if !ok {
		return "", SourceNone
	}
	if link := findUnsubscribeAnchor(html); link != "" {
		return link, SourceHTML
	}
	return "", SourceNone
}

// Unsubscribe makes exactly one attempt to unsubscribe from the message's
// sender. Every failure is logged and reported as false.
func (r *Resolver) Unsubscribe(ctx context.Context, m *Message) bool {
	if m == nil {
		return false
	}

	ctx, span := instrumentation.StartUnsubscribeSpan(ctx, m.ID)
	defer span.End()

	log := r.logger.With(logging.MessageID(m.ID), logging.SenderDomain(m.HeaderValue("From")))

	if !r.Eligible(m) {
		log.Debug("skipping message without promotional label", "label", r.promotionalLabel)
		r.metrics.RecordUnsubscribeAttempt(ctx, instrumentation.UnsubscribeResultIneligible, string(SourceNone), "", 0)
		return false
	}

	link, source := r.ResolveURL(m)
	span.SetAttributes(attribute.String(instrumentation.SpanAttrUnsubscribeSource, string(source)))
	if link == "" {
		log.Info("no unsubscribe link found")
		r.metrics.RecordUnsubscribeAttempt(ctx, instrumentation.UnsubscribeResultNoLink, string(source), "", 0)
		return false
	}

	host := linkHost(link)
	span.SetAttributes(attribute.String(instrumentation.SpanAttrUnsubscribeHost, host))

	start := time.Now()
	err := r.visit(ctx, link)
	elapsed := time.Since(start)

	if err != nil {
		instrumentation.SetSpanError(span, err)
		log.Warn("unsubscribe request failed",
			logging.URL(link),
			"source", string(source),
			logging.Err(err))
		r.metrics.RecordUnsubscribeAttempt(ctx, instrumentation.UnsubscribeResultFailed, string(source), host, elapsed)
		return false
	}

	instrumentation.SetSpanSuccess(span)
	log.Info("unsubscribed",
		logging.URL(link),
		"source", string(source),
		logging.Status(logging.StatusSuccess))
	r.metrics.RecordUnsubscribeAttempt(ctx, instrumentation.UnsubscribeResultSuccess, string(source), host, elapsed)
	return true
}

// visit performs the HTTP GET against an unsubscribe link, following redirects
func (r *Resolver) visit(ctx context.Context, link string) error {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	// Some unsubscribe links require a user agent
	req.Header.Set("User-Agent", r.userAgent)

	resp, err := r.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send unsubscribe request: %w", err)
	}
	defer resp.Body.Close()

	// Discard the body, only the status matters
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, maxDrainBytes))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return fmt.Errorf("unsubscribe request failed with status %d", resp.StatusCode)
	}

	return nil
}

// parseListUnsubscribe parses the List-Unsubscribe header value.
// Format: <mailto:unsub@example.com>, <https://example.com/unsub>
func parseListUnsubscribe(header string) []UnsubscribeMethod {
	var methods []UnsubscribeMethod

	parts := strings.Split(header, "<")
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		endIdx := strings.Index(part, ">")
		if endIdx == -1 {
			continue
		}

		link := strings.TrimSpace(part[:endIdx])
		if link == "" || strings.ContainsAny(link, " \t\r\n") {
			continue
		}

		if strings.HasPrefix(strings.ToLower(link), "mailto:") {
			methods = append(methods, UnsubscribeMethod{Type: "mailto", URL: link})
			continue
		}

		scheme, _, ok := strings.Cut(link, "://")
		if !ok || !validScheme(scheme) {
			continue
		}
		methods = append(methods, UnsubscribeMethod{Type: strings.ToLower(scheme), URL: link})
	}

	return methods
}

// validScheme checks the RFC 3986 scheme grammar: ALPHA *( ALPHA / DIGIT / "+" / "-" / "." )
func validScheme(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z':
		case i > 0 && (c >= '0' && c <= '9' || c == '+' || c == '-' || c == '.'):
		default:
			return false
		}
	}
	return true
}

// findUnsubscribeAnchor returns the href of the first anchor, in document
// order, whose href or visible text mentions "unsubscribe" and whose href is
// an absolute http(s) URL.
func findUnsubscribeAnchor(html string) string {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return ""
	}

	var found string
	doc.Find("a").EachWithBreak(func(_ int, s *goquery.Selection) bool {
		href, ok := s.Attr("href")
		if !ok {
			return true
		}
		href = strings.TrimSpace(href)
		if !mentionsUnsubscribe(href) && !mentionsUnsubscribe(s.Text()) {
			return true
		}
		if !isAbsoluteHTTP(href) {
			return true
		}
		found = href
		return false
	})
	return found
}

func mentionsUnsubscribe(s string) bool {
	return strings.Contains(strings.ToLower(s), "unsubscribe")
}

func isAbsoluteHTTP(link string) bool {
	u, err := url.Parse(link)
	if err != nil || u.Host == "" {
		return false
	}
	scheme := strings.ToLower(u.Scheme)
	return scheme == "http" || scheme == "https"
}

func linkHost(link string) string {
	u, err := url.Parse(link)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
