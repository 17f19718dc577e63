package gmail

import (
	"bytes"
	"encoding/base64"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/emersion/go-message"
	"github.com/emersion/go-message/charset"
	xunicode "golang.org/x/text/encoding/unicode"
)

const (
	mimeTypeHTML   = "text/html"
	defaultCharset = "utf-8"
)

// ExtractHTML returns the decoded content of the first text/html part of the
// message body, found by a depth-first pre-order walk. The second return value
// is false when no such part exists. Decoding never fails: unknown charsets and
// undecodable bytes fall back to UTF-8 with U+FFFD replacement.
func ExtractHTML(m *Message) (string, bool) {
	if m == nil {
		return "", false
	}

	var html *Part
	walkParts(m.Payload, func(p *Part) bool {
		if p.MimeType == mimeTypeHTML {
			html = p
			return false
		}
		return true
	})
	if html == nil {
		return "", false
	}

	return decodeText(decodeBase64URL(html.Data), partCharset(html)), true
}

// walkParts visits part and its descendants in pre-order until fn returns false
func walkParts(part *Part, fn func(*Part) bool) bool {
	if part == nil {
		return true
	}
	if !fn(part) {
		return false
	}
	for _, sub := range part.Parts {
		if !walkParts(sub, fn) {
			return false
		}
	}
	return true
}

// decodeBase64URL decodes a base64url payload with or without padding.
// Whatever could be decoded before an invalid byte is returned.
func decodeBase64URL(data string) []byte {
	data = strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return r
	}, data)
	data = strings.TrimRight(data, "=")

	decoded, err := base64.RawURLEncoding.DecodeString(data)
	if err == nil {
		return decoded
	}
	// Some senders ship the standard alphabet
	if std, stdErr := base64.RawStdEncoding.DecodeString(data); stdErr == nil {
		return std
	}
	return decoded
}

// partCharset reads the charset parameter of the part's Content-Type header
func partCharset(p *Part) string {
	ct := headerValue(p.Headers, "Content-Type")
	if ct == "" {
		return defaultCharset
	}

	var h message.Header
	h.Set("Content-Type", ct)
	if _, params, err := h.ContentType(); err == nil {
		if cs := strings.TrimSpace(params["charset"]); cs != "" {
			return strings.ToLower(cs)
		}
		return defaultCharset
	}

	// Malformed parameter lists still tend to carry a usable charset
	lower := strings.ToLower(ct)
	idx := strings.Index(lower, "charset=")
	if idx < 0 {
		return defaultCharset
	}
	cs := lower[idx+len("charset="):]
	if end := strings.IndexByte(cs, ';'); end >= 0 {
		cs = cs[:end]
	}
	cs = strings.Trim(strings.TrimSpace(cs), `"'`)
	if cs == "" {
		return defaultCharset
	}
	return cs
}

// decodeText decodes raw using the named charset, falling back to lossy UTF-8
func decodeText(raw []byte, name string) string {
	r, err := charset.Reader(name, bytes.NewReader(raw))
	if err == nil {
		decoded, readErr := io.ReadAll(r)
		if readErr == nil && utf8.Valid(decoded) {
			return string(decoded)
		}
	}
	return lossyUTF8(raw)
}

func lossyUTF8(raw []byte) string {
	out, err := xunicode.UTF8.NewDecoder().Bytes(raw)
	if err != nil {
		return strings.ToValidUTF8(string(raw), string(utf8.RuneError))
	}
	return string(out)
}
