package gmail

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	gmail "google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"
)

// fakeGmail serves the subset of the Gmail REST API used by Client
type fakeGmail struct {
	*httptest.Server

	mu       sync.Mutex
	pages    [][]*gmail.Message
	messages map[string]*gmail.Message
	queries  []string
	gets     []string
	status   int
}

func newFakeGmail(t *testing.T) *fakeGmail {
	t.Helper()

	f := &fakeGmail{messages: map[string]*gmail.Message{}}
	mux := http.NewServeMux()
	mux.HandleFunc("GET /gmail/v1/users/me/messages", f.list)
	mux.HandleFunc("GET /gmail/v1/users/me/messages/{id}", f.get)
	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeGmail) client(t *testing.T, resolver *Resolver) *Client {
	t.Helper()

	c, err := NewClient(context.Background(), ClientConfig{
		Options: []option.ClientOption{
			option.WithEndpoint(f.URL + "/"),
			option.WithHTTPClient(f.Client()),
		},
		Resolver: resolver,
	})
	require.NoError(t, err)
	return c
}

func (f *fakeGmail) list(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.queries = append(f.queries, r.URL.Query().Get("q")+"|"+r.URL.Query().Get("pageToken"))
	if f.status != 0 {
		writeAPIError(w, f.status)
		return
	}

	page := 0
	if token := r.URL.Query().Get("pageToken"); token != "" {
		page, _ = strconv.Atoi(strings.TrimPrefix(token, "page-"))
	}
	res := &gmail.ListMessagesResponse{}
	if page < len(f.pages) {
		res.Messages = f.pages[page]
	}
	if page+1 < len(f.pages) {
		res.NextPageToken = pageToken(page + 1)
	}
	writeJSON(w, res)
}

func (f *fakeGmail) get(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	id := r.PathValue("id")
	f.gets = append(f.gets, id+"|"+r.URL.Query().Get("format"))
	if f.status != 0 {
		writeAPIError(w, f.status)
		return
	}
	msg, ok := f.messages[id]
	if !ok {
		writeAPIError(w, http.StatusNotFound)
		return
	}
	writeJSON(w, msg)
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(map[string]any{
		"error": map[string]any{"code": code, "message": http.StatusText(code)},
	})
}

func pageToken(n int) string {
	return "page-" + strconv.Itoa(n)
}

func refs(ids ...string) []*gmail.Message {
	out := make([]*gmail.Message, 0, len(ids))
	for _, id := range ids {
		out = append(out, &gmail.Message{Id: id, ThreadId: "t-" + id})
	}
	return out
}

func TestClient_ListMessages(t *testing.T) {
	f := newFakeGmail(t)
	f.pages = [][]*gmail.Message{refs("a", "b"), refs("c"), refs("a")}
	c := f.client(t, nil)

	since := time.Date(2024, time.March, 5, 17, 30, 0, 0, time.UTC)
	got, err := c.ListMessages(context.Background(), since)
	require.NoError(t, err)

	assert.Equal(t, []MessageRef{
		{ID: "a", ThreadID: "t-a"},
		{ID: "b", ThreadID: "t-b"},
		{ID: "c", ThreadID: "t-c"},
		{ID: "a", ThreadID: "t-a"},
	}, got, "pages are concatenated in order without dedupe")
	assert.Equal(t, []string{
		"after:2024/03/05|",
		"after:2024/03/05|page-1",
		"after:2024/03/05|page-2",
	}, f.queries)
}

func TestClient_ListMessages_Empty(t *testing.T) {
	f := newFakeGmail(t)
	c := f.client(t, nil)

	got, err := c.ListMessages(context.Background(), time.Now())
	require.NoError(t, err)
	assert.NotNil(t, got)
	assert.Empty(t, got)
}

func TestClient_ListMessages_ProviderError(t *testing.T) {
	f := newFakeGmail(t)
	f.status = http.StatusForbidden
	c := f.client(t, nil)

	_, err := c.ListMessages(context.Background(), time.Now())
	require.Error(t, err)

	var perr *ProviderError
	require.True(t, errors.As(err, &perr))
	assert.Equal(t, http.StatusForbidden, perr.Code)
	assert.Equal(t, "list", perr.Op)
}

func TestClient_GetMessage(t *testing.T) {
	f := newFakeGmail(t)
	f.messages["m1"] = &gmail.Message{
		Id:       "m1",
		ThreadId: "t1",
		LabelIds: []string{"INBOX"},
		Payload: &gmail.MessagePart{
			MimeType: "text/html",
			Headers:  []*gmail.MessagePartHeader{{Name: "Subject", Value: "Hello"}},
			Body:     &gmail.MessagePartBody{Data: b64url("<p>hi</p>")},
		},
	}
	c := f.client(t, nil)

	msg, err := c.GetMessage(context.Background(), "m1")
	require.NoError(t, err)

	assert.Equal(t, "m1", msg.ID)
	assert.Equal(t, "Hello", msg.Subject())
	html, ok := ExtractHTML(msg)
	assert.True(t, ok)
	assert.Equal(t, "<p>hi</p>", html)
	assert.Equal(t, []string{"m1|full"}, f.gets)
}

func TestClient_GetMessage_NotFound(t *testing.T) {
	f := newFakeGmail(t)
	c := f.client(t, nil)

	_, err := c.GetMessage(context.Background(), "missing")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestClient_BulkUnsubscribe(t *testing.T) {
	good := newUnsubscribeTarget(t, func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	dead := newUnsubscribeTarget(t, func(w http.ResponseWriter, _ *http.Request) {})
	deadURL := dead.URL
	dead.Close()

	promo := func(id, link string) *gmail.Message {
		return &gmail.Message{
			Id:       id,
			LabelIds: []string{DefaultPromotionalLabel},
			Payload: &gmail.MessagePart{
				MimeType: "text/plain",
				Headers: []*gmail.MessagePartHeader{
					{Name: "List-Unsubscribe", Value: "<" + link + ">"},
					{Name: "Subject", Value: "Deals for " + id},
				},
			},
		}
	}

	f := newFakeGmail(t)
	f.messages["id1"] = promo("id1", good.URL+"/u")
	f.messages["id2"] = promo("id2", deadURL+"/u")
	f.messages["id3"] = &gmail.Message{Id: "id3", LabelIds: []string{"INBOX"}}
	c := f.client(t, NewResolver(ResolverConfig{}))

	result := c.BulkUnsubscribe(context.Background(), []string{`"id1"`, "id2", " ", "missing", "id3", `""`})

	assert.Equal(t, []string{"id1"}, result.Success)
	assert.Equal(t, []string{"id2", "missing", "id3"}, result.Failed)
	assert.NotNil(t, result.Queued)
	assert.Empty(t, result.Queued)
	assert.Equal(t, int32(1), good.hits.Load())
	assert.Equal(t, []string{"id1|full", "id2|full", "missing|full", "id3|full"}, f.gets)
}

func TestClient_BulkUnsubscribe_Empty(t *testing.T) {
	f := newFakeGmail(t)
	c := f.client(t, nil)

	result := c.BulkUnsubscribe(context.Background(), nil)

	out, err := json.Marshal(result)
	require.NoError(t, err)
	assert.JSONEq(t, `{"queued":[],"success":[],"failed":[]}`, string(out))
	assert.Empty(t, f.gets)
}

func TestNormalizeID(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"abc", "abc"},
		{`"abc"`, "abc"},
		{` "abc" `, "abc"},
		{`""`, ""},
		{"  ", ""},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, normalizeID(tt.in))
		})
	}
}
