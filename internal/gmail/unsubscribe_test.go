package gmail

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestParseListUnsubscribe(t *testing.T) {
	tests := []struct {
		name     string
		header   string
		expected []UnsubscribeMethod
	}{
		{
			name:   "single mailto",
			header: "<mailto:unsubscribe@example.com>",
			expected: []UnsubscribeMethod{
				{Type: "mailto", URL: "mailto:unsubscribe@example.com"},
			},
		},
		{
			name:   "single https",
			header: "<https://example.com/unsubscribe>",
			expected: []UnsubscribeMethod{
				{Type: "https", URL: "https://example.com/unsubscribe"},
			},
		},
		{
			name:   "multiple methods",
			header: "<mailto:unsubscribe@example.com>, <http://example.com/unsubscribe>",
			expected: []UnsubscribeMethod{
				{Type: "mailto", URL: "mailto:unsubscribe@example.com"},
				{Type: "http", URL: "http://example.com/unsubscribe"},
			},
		},
		{
			name:   "whitespace inside brackets",
			header: "< https://example.com/u?id=1 >",
			expected: []UnsubscribeMethod{
				{Type: "https", URL: "https://example.com/u?id=1"},
			},
		},
		{
			name:   "other scheme",
			header: "<ftp://example.com/unsub>",
			expected: []UnsubscribeMethod{
				{Type: "ftp", URL: "ftp://example.com/unsub"},
			},
		},
		{
			name:     "unbracketed url",
			header:   "https://example.com/unsubscribe",
			expected: nil,
		},
		{
			name:     "missing scheme",
			header:   "<//example.com/unsub>, <example.com/unsub>",
			expected: nil,
		},
		{
			name:     "unterminated bracket",
			header:   "<https://example.com/unsub",
			expected: nil,
		},
		{
			name:     "empty header",
			header:   "",
			expected: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseListUnsubscribe(tt.header))
		})
	}
}

func TestResolver_ResolveURL(t *testing.T) {
	r := NewResolver(ResolverConfig{})

	tests := []struct {
		name       string
		msg        *Message
		wantURL    string
		wantSource Source
	}{
		{
			name: "first header url wins",
			msg: &Message{Headers: []Header{
				{Name: "List-Unsubscribe", Value: "<https://a.example/u>, <https://b.example/u>"},
			}},
			wantURL:    "https://a.example/u",
			wantSource: SourceHeader,
		},
		{
			name: "mailto entries are skipped",
			msg: &Message{Headers: []Header{
				{Name: "list-unsubscribe", Value: "<mailto:u@example.com>, <https://b.example/u>"},
			}},
			wantURL:    "https://b.example/u",
			wantSource: SourceHeader,
		},
		{
			name: "header wins over html",
			msg: &Message{
				Headers: []Header{{Name: "List-Unsubscribe", Value: "<https://header.example/u>"}},
				Payload: htmlPart(b64url(`<a href="https://html.example/unsubscribe">x</a>`)),
			},
			wantURL:    "https://header.example/u",
			wantSource: SourceHeader,
		},
		{
			name:       "anchor text match",
			msg:        &Message{Payload: htmlPart(b64url(`<p><a href="https://x.example/unsub">click here to Unsubscribe</a></p>`))},
			wantURL:    "https://x.example/unsub",
			wantSource: SourceHTML,
		},
		{
			name: "mailto-only header falls back to html",
			msg: &Message{
				Headers: []Header{{Name: "List-Unsubscribe", Value: "<mailto:u@example.com>"}},
				Payload: htmlPart(b64url(`<a href="https://x.example/UNSUBSCRIBE?id=1">manage</a>`)),
			},
			wantURL:    "https://x.example/UNSUBSCRIBE?id=1",
			wantSource: SourceHTML,
		},
		{
			name: "relative and non-http anchors are skipped",
			msg: &Message{Payload: htmlPart(b64url(
				`<a href="/unsubscribe">unsubscribe</a>` +
					`<a href="javascript:unsubscribe()">unsubscribe</a>` +
					`<a href="mailto:unsubscribe@example.com">unsubscribe</a>` +
					`<a href="https://shop.example/home">home</a>` +
					`<a href="http://shop.example/prefs">Unsubscribe here</a>`,
			))},
			wantURL:    "http://shop.example/prefs",
			wantSource: SourceHTML,
		},
		{
			name:       "no link anywhere",
			msg:        &Message{Payload: htmlPart(b64url(`<a href="https://shop.example">shop</a>`))},
			wantURL:    "",
			wantSource: SourceNone,
		},
		{
			name:       "no html and no header",
			msg:        &Message{Payload: &Part{MimeType: "text/plain", Data: b64url("unsubscribe https://x")}},
			wantURL:    "",
			wantSource: SourceNone,
		},
		{
			name:       "nil message",
			msg:        nil,
			wantURL:    "",
			wantSource: SourceNone,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gotURL, gotSource := r.ResolveURL(tt.msg)
			assert.Equal(t, tt.wantURL, gotURL)
			assert.Equal(t, tt.wantSource, gotSource)
		})
	}
}

func TestResolver_Eligible(t *testing.T) {
	promo := &Message{LabelIDs: []string{DefaultPromotionalLabel}}
	plain := &Message{LabelIDs: []string{"INBOX"}}

	strict := NewResolver(ResolverConfig{})
	assert.True(t, strict.Eligible(promo))
	assert.False(t, strict.Eligible(plain))
	assert.False(t, strict.Eligible(nil))

	all := NewResolver(ResolverConfig{ProcessAll: true})
	assert.True(t, all.Eligible(plain))

	custom := NewResolver(ResolverConfig{PromotionalLabel: "Label_42"})
	assert.False(t, custom.Eligible(promo))
	assert.True(t, custom.Eligible(&Message{LabelIDs: []string{"Label_42"}}))
}

// unsubscribeTarget is a fake unsubscribe endpoint counting its hits
type unsubscribeTarget struct {
	*httptest.Server
	hits      atomic.Int32
	userAgent atomic.Value
}

func newUnsubscribeTarget(t *testing.T, handler http.HandlerFunc) *unsubscribeTarget {
	t.Helper()

	target := &unsubscribeTarget{}
	target.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		target.hits.Add(1)
		target.userAgent.Store(r.UserAgent())
		handler(w, r)
	}))
	t.Cleanup(target.Close)
	return target
}

func promoWithLink(link string) *Message {
	return &Message{
		ID:       "m1",
		LabelIDs: []string{DefaultPromotionalLabel},
		Headers:  []Header{{Name: "List-Unsubscribe", Value: "<" + link + ">"}},
	}
}

func TestResolver_Unsubscribe(t *testing.T) {
	ok := func(w http.ResponseWriter, _ *http.Request) { w.WriteHeader(http.StatusOK) }

	t.Run("success sends browser user agent", func(t *testing.T) {
		target := newUnsubscribeTarget(t, ok)
		r := NewResolver(ResolverConfig{})

		assert.True(t, r.Unsubscribe(context.Background(), promoWithLink(target.URL+"/u?id=1")))
		assert.Equal(t, int32(1), target.hits.Load())
		assert.Equal(t, DefaultUserAgent, target.userAgent.Load())
	})

	t.Run("redirects are followed", func(t *testing.T) {
		target := newUnsubscribeTarget(t, func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path == "/start" {
				http.Redirect(w, r, "/done", http.StatusFound)
				return
			}
			w.WriteHeader(http.StatusOK)
		})
		r := NewResolver(ResolverConfig{UserAgent: "test-agent"})

		assert.True(t, r.Unsubscribe(context.Background(), promoWithLink(target.URL+"/start")))
		assert.Equal(t, int32(2), target.hits.Load())
		assert.Equal(t, "test-agent", target.userAgent.Load())
	})

	t.Run("server error fails", func(t *testing.T) {
		target := newUnsubscribeTarget(t, func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(http.StatusInternalServerError)
		})
		r := NewResolver(ResolverConfig{})

		assert.False(t, r.Unsubscribe(context.Background(), promoWithLink(target.URL)))
		assert.Equal(t, int32(1), target.hits.Load(), "exactly one attempt, no retry")
	})

	t.Run("not found fails", func(t *testing.T) {
		target := newUnsubscribeTarget(t, http.NotFound)
		r := NewResolver(ResolverConfig{})

		assert.False(t, r.Unsubscribe(context.Background(), promoWithLink(target.URL)))
	})

	t.Run("timeout fails", func(t *testing.T) {
		target := newUnsubscribeTarget(t, func(w http.ResponseWriter, r *http.Request) {
			select {
			case <-r.Context().Done():
			case <-time.After(2 * time.Second):
			}
		})
		r := NewResolver(ResolverConfig{Timeout: 50 * time.Millisecond})

		start := time.Now()
		assert.False(t, r.Unsubscribe(context.Background(), promoWithLink(target.URL)))
		assert.Less(t, time.Since(start), time.Second)
	})

	t.Run("unreachable host fails", func(t *testing.T) {
		target := newUnsubscribeTarget(t, ok)
		link := target.URL
		target.Close()

		r := NewResolver(ResolverConfig{})
		assert.False(t, r.Unsubscribe(context.Background(), promoWithLink(link)))
	})

	t.Run("ineligible message makes no request", func(t *testing.T) {
		target := newUnsubscribeTarget(t, ok)
		msg := promoWithLink(target.URL)
		msg.LabelIDs = []string{"INBOX"}

		r := NewResolver(ResolverConfig{})
		assert.False(t, r.Unsubscribe(context.Background(), msg))
		assert.Equal(t, int32(0), target.hits.Load())
	})

	t.Run("process all visits non-promotional mail", func(t *testing.T) {
		target := newUnsubscribeTarget(t, ok)
		msg := &Message{
			ID:      "m2",
			Payload: htmlPart(b64url(`<a href="` + target.URL + `/x">unsubscribe</a>`)),
		}

		r := NewResolver(ResolverConfig{ProcessAll: true})
		assert.True(t, r.Unsubscribe(context.Background(), msg))
		assert.Equal(t, int32(1), target.hits.Load())
	})

	t.Run("no link fails", func(t *testing.T) {
		msg := &Message{ID: "m3", LabelIDs: []string{DefaultPromotionalLabel}}

		r := NewResolver(ResolverConfig{})
		assert.False(t, r.Unsubscribe(context.Background(), msg))
	})

	t.Run("unsupported scheme fails", func(t *testing.T) {
		r := NewResolver(ResolverConfig{})
		assert.False(t, r.Unsubscribe(context.Background(), promoWithLink("ftp://example.invalid/u")))
	})

	t.Run("nil message", func(t *testing.T) {
		r := NewResolver(ResolverConfig{})
		assert.False(t, r.Unsubscribe(context.Background(), nil))
	})
}
