package gmail

import (
	"fmt"
	"strings"

	"github.com/emersion/go-message/mail"
	gmail "google.golang.org/api/gmail/v1"
)

// Header is a single message or part header
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// Part is one node of a message body tree. Data holds the base64url payload
// exactly as the provider returned it (padding is often missing).
type Part struct {
	PartID   string   `json:"partId,omitempty"`
	MimeType string   `json:"mimeType"`
	Filename string   `json:"filename,omitempty"`
	Headers  []Header `json:"headers,omitempty"`
	Data     string   `json:"data,omitempty"`
	Parts    []*Part  `json:"parts,omitempty"`
}

// Message is an immutable snapshot of a provider message
type Message struct {
	ID       string   `json:"id"`
	ThreadID string   `json:"threadId,omitempty"`
	LabelIDs []string `json:"labelIds,omitempty"`
	Snippet  string   `json:"snippet,omitempty"`
	Headers  []Header `json:"headers,omitempty"`
	Payload  *Part    `json:"payload,omitempty"`
}

// MessageRef identifies a message returned by a list call
type MessageRef struct {
	ID       string `json:"id"`
	ThreadID string `json:"threadId,omitempty"`
}

// UnsubscribeResult partitions the message IDs of a bulk unsubscribe run.
// Queued is always empty once a run returns; it is kept for API compatibility.
type UnsubscribeResult struct {
	Queued  []string `json:"queued"`
	Success []string `json:"success"`
	Failed  []string `json:"failed"`
}

// NewUnsubscribeResult returns a result with empty, non-nil buckets
func NewUnsubscribeResult() *UnsubscribeResult {
	return &UnsubscribeResult{
		Queued:  []string{},
		Success: []string{},
		Failed:  []string{},
	}
}

// HeaderValue returns the first header with the given name, compared
// case-insensitively, or "" if absent.
func (m *Message) HeaderValue(name string) string {
	if m == nil {
		return ""
	}
	return headerValue(m.Headers, name)
}

// HasLabel reports whether the message carries the given label ID
func (m *Message) HasLabel(label string) bool {
	if m == nil {
		return false
	}
	for _, l := range m.LabelIDs {
		if l == label {
			return true
		}
	}
	return false
}

// Subject returns the decoded Subject header. RFC 2047 encoded words are
// decoded; undecodable values are returned as is.
func (m *Message) Subject() string {
	raw := m.HeaderValue("Subject")
	if raw == "" {
		return ""
	}
	var h mail.Header
	h.Set("Subject", raw)
	subject, err := h.Subject()
	if err != nil {
		return raw
	}
	return subject
}

func headerValue(headers []Header, name string) string {
	for _, h := range headers {
		if strings.EqualFold(h.Name, name) {
			return h.Value
		}
	}
	return ""
}

// newMessage validates a provider message and converts it into a Message
func newMessage(m *gmail.Message) (*Message, error) {
	if m == nil {
		return nil, fmt.Errorf("provider returned an empty message")
	}
	if m.Id == "" {
		return nil, fmt.Errorf("provider returned a message without an ID")
	}

	msg := &Message{
		ID:       m.Id,
		ThreadID: m.ThreadId,
		LabelIDs: append([]string(nil), m.LabelIds...),
		Snippet:  m.Snippet,
		Payload:  newPart(m.Payload),
	}
	if msg.Payload != nil {
		msg.Headers = msg.Payload.Headers
	}
	return msg, nil
}

func newPart(p *gmail.MessagePart) *Part {
	if p == nil {
		return nil
	}

	part := &Part{
		PartID:   p.PartId,
		MimeType: p.MimeType,
		Filename: p.Filename,
	}
	for _, h := range p.Headers {
		if h == nil {
			continue
		}
		part.Headers = append(part.Headers, Header{Name: h.Name, Value: h.Value})
	}
	if p.Body != nil {
		part.Data = p.Body.Data
	}
	for _, sub := range p.Parts {
		if child := newPart(sub); child != nil {
			part.Parts = append(part.Parts, child)
		}
	}
	return part
}
