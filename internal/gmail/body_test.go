package gmail

import (
	"encoding/base64"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func b64url(s string) string {
	return base64.RawURLEncoding.EncodeToString([]byte(s))
}

func htmlPart(data string, headers ...Header) *Part {
	return &Part{MimeType: "text/html", Data: data, Headers: headers}
}

func TestWalkParts(t *testing.T) {
	tests := []struct {
		name      string
		part      *Part
		wantOrder []string
	}{
		{
			name:      "single part",
			part:      &Part{PartID: "0", MimeType: "text/plain"},
			wantOrder: []string{"0"},
		},
		{
			name: "deeply nested parts",
			part: &Part{
				PartID:   "0",
				MimeType: "multipart/mixed",
				Parts: []*Part{
					{
						PartID:   "0.0",
						MimeType: "multipart/alternative",
						Parts: []*Part{
							{PartID: "0.0.0", MimeType: "text/plain"},
							{PartID: "0.0.1", MimeType: "text/html"},
						},
					},
					{PartID: "0.1", MimeType: "application/pdf"},
				},
			},
			wantOrder: []string{"0", "0.0", "0.0.0", "0.0.1", "0.1"},
		},
		{
			name:      "nil part",
			part:      nil,
			wantOrder: nil,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var visited []string
			walkParts(tt.part, func(p *Part) bool {
				visited = append(visited, p.PartID)
				return true
			})
			assert.Equal(t, tt.wantOrder, visited)
		})
	}
}

func TestWalkParts_StopsEarly(t *testing.T) {
	part := &Part{
		PartID: "0",
		Parts: []*Part{
			{PartID: "1", Parts: []*Part{{PartID: "1.1"}}},
			{PartID: "2"},
		},
	}

	var visited []string
	completed := walkParts(part, func(p *Part) bool {
		visited = append(visited, p.PartID)
		return p.PartID != "1"
	})

	assert.False(t, completed)
	assert.Equal(t, []string{"0", "1"}, visited)
}

func TestExtractHTML(t *testing.T) {
	tests := []struct {
		name   string
		msg    *Message
		want   string
		wantOK bool
	}{
		{
			name:   "nil message",
			msg:    nil,
			wantOK: false,
		},
		{
			name:   "no payload",
			msg:    &Message{ID: "m"},
			wantOK: false,
		},
		{
			name:   "plain text only",
			msg:    &Message{Payload: &Part{MimeType: "text/plain", Data: b64url("hello")}},
			wantOK: false,
		},
		{
			name:   "single html part without padding",
			msg:    &Message{Payload: htmlPart(b64url("<p>hi</p>"))},
			want:   "<p>hi</p>",
			wantOK: true,
		},
		{
			name:   "padded payload",
			msg:    &Message{Payload: htmlPart(base64.URLEncoding.EncodeToString([]byte("<b>x</b>")))},
			want:   "<b>x</b>",
			wantOK: true,
		},
		{
			name: "html nested in alternative",
			msg: &Message{Payload: &Part{
				MimeType: "multipart/mixed",
				Parts: []*Part{
					{
						MimeType: "multipart/alternative",
						Parts: []*Part{
							{MimeType: "text/plain", Data: b64url("plain")},
							htmlPart(b64url("<p>first</p>")),
						},
					},
					htmlPart(b64url("<p>second</p>")),
				},
			}},
			want:   "<p>first</p>",
			wantOK: true,
		},
		{
			name: "latin-1 charset",
			msg: &Message{Payload: htmlPart(
				b64url("caf\xe9"),
				Header{Name: "Content-Type", Value: `text/html; charset="ISO-8859-1"`},
			)},
			want:   "café",
			wantOK: true,
		},
		{
			name: "lower case header name",
			msg: &Message{Payload: htmlPart(
				b64url("caf\xe9"),
				Header{Name: "content-type", Value: "text/html; charset=iso-8859-1"},
			)},
			want:   "café",
			wantOK: true,
		},
		{
			name: "unknown charset falls back to utf-8",
			msg: &Message{Payload: htmlPart(
				b64url("naïve"),
				Header{Name: "Content-Type", Value: "text/html; charset=x-made-up"},
			)},
			want:   "naïve",
			wantOK: true,
		},
		{
			name:   "invalid utf-8 is replaced",
			msg:    &Message{Payload: htmlPart(b64url("ab\xffcd"))},
			want:   "ab�cd",
			wantOK: true,
		},
		{
			name:   "empty html part",
			msg:    &Message{Payload: htmlPart("")},
			want:   "",
			wantOK: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractHTML(tt.msg)
			assert.Equal(t, tt.wantOK, ok)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestDecodeBase64URL(t *testing.T) {
	payload := "<a href=\"x\">subjects?</a>>>"

	tests := []struct {
		name string
		in   string
		want string
	}{
		{"raw url alphabet", base64.RawURLEncoding.EncodeToString([]byte(payload)), payload},
		{"padded url alphabet", base64.URLEncoding.EncodeToString([]byte(payload)), payload},
		{"standard alphabet", base64.StdEncoding.EncodeToString([]byte(payload)), payload},
		{"wrapped lines", wrap(base64.URLEncoding.EncodeToString([]byte(payload)), 8), payload},
		{"empty", "", ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, string(decodeBase64URL(tt.in)))
		})
	}
}

func TestDecodeBase64URL_GarbageNeverPanics(t *testing.T) {
	assert.NotPanics(t, func() {
		_ = decodeBase64URL("%%%not base64%%%")
	})
}

func TestPartCharset(t *testing.T) {
	tests := []struct {
		name string
		ct   string
		want string
	}{
		{"missing header", "", "utf-8"},
		{"no charset param", "text/html", "utf-8"},
		{"quoted upper case", `text/html; charset="UTF-8"`, "utf-8"},
		{"windows-1252", "text/html; charset=windows-1252", "windows-1252"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Part{MimeType: "text/html"}
			if tt.ct != "" {
				p.Headers = []Header{{Name: "Content-Type", Value: tt.ct}}
			}
			assert.Equal(t, tt.want, partCharset(p))
		})
	}
}

func wrap(s string, width int) string {
	var b strings.Builder
	for len(s) > width {
		b.WriteString(s[:width])
		b.WriteString("\r\n")
		s = s[width:]
	}
	b.WriteString(s)
	return b.String()
}
