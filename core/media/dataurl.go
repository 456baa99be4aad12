package media

import (
	"encoding/base64"
	"fmt"
	"net/url"
	"strings"
)

// DataURL is a decoded data: URL.
type DataURL struct {
	MIMEType string
	Data     []byte
}

// ParseDataURL decodes "data:[<mediatype>][;base64],<data>".
func ParseDataURL(s string) (DataURL, error) {
	s = strings.TrimSpace(s)
	if !IsDataURL(s) {
		return DataURL{}, fmt.Errorf("not a data URL")
	}
	header, payload, ok := strings.Cut(s[len("data:"):], ",")
	if !ok {
		return DataURL{}, fmt.Errorf("data URL has no payload separator")
	}

	params := strings.Split(header, ";")
	mimeType := strings.ToLower(strings.TrimSpace(params[0]))
	if mimeType == "" {
		mimeType = "text/plain"
	}
	isBase64 := false
	for _, p := range params[1:] {
		if strings.EqualFold(strings.TrimSpace(p), "base64") {
			isBase64 = true
		}
	}

	if !isBase64 {
		decoded, err := url.PathUnescape(payload)
		if err != nil {
			return DataURL{}, fmt.Errorf("unescaping data URL: %w", err)
		}
		return DataURL{MIMEType: mimeType, Data: []byte(decoded)}, nil
	}

	payload = strings.Map(func(r rune) rune {
		switch r {
		case ' ', '\n', '\r', '\t':
			return -1
		}
		return r
	}, payload)
	if unescaped, err := url.PathUnescape(payload); err == nil {
		payload = unescaped
	}
	data, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		data, err = base64.RawStdEncoding.DecodeString(strings.TrimRight(payload, "="))
		if err != nil {
			return DataURL{}, fmt.Errorf("decoding base64 payload: %w", err)
		}
	}
	return DataURL{MIMEType: mimeType, Data: data}, nil
}

// EncodeDataURL renders data as a base64 data URL.
func EncodeDataURL(mimeType string, data []byte) string {
	return "data:" + mimeType + ";base64," + base64.StdEncoding.EncodeToString(data)
}
