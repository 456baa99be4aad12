package media

import (
	"fmt"
	"mime"
	"net/url"
	"path"
	"regexp"
	"strings"
)

// imageExtensions maps file extensions to image media types.
var imageExtensions = map[string]string{
	".png": "image/png", ".jpg": "image/jpeg", ".jpeg": "image/jpeg",
	".gif": "image/gif", ".svg": "image/svg+xml", ".webp": "image/webp",
	".bmp": "image/bmp", ".ico": "image/x-icon", ".avif": "image/avif",
}

var (
	cssURL        = regexp.MustCompile(`(?i)url\(\s*(?:"([^"]*)"|'([^']*)'|([^)\s]*))\s*\)`)
	nameSanitizer = regexp.MustCompile(`[^a-zA-Z0-9._-]`)
)

// IsDataURL reports whether ref is an inline-encoded data: URL.
func IsDataURL(ref string) bool {
	return strings.HasPrefix(strings.ToLower(strings.TrimSpace(ref)), "data:")
}

// ResolveReference resolves a possibly relative reference against base.
// Empty, fragment-only and script references resolve to "".
func ResolveReference(ref string, base *url.URL) string {
	ref = strings.TrimSpace(ref)
	if ref == "" || strings.HasPrefix(ref, "#") || strings.HasPrefix(strings.ToLower(ref), "javascript:") {
		return ""
	}
	if IsDataURL(ref) {
		return ref
	}
	parsed, err := url.Parse(ref)
	if err != nil {
		return ""
	}
	if base != nil {
		parsed = base.ResolveReference(parsed)
	}
	if parsed.Scheme == "" || parsed.Host == "" {
		return ""
	}
	parsed.Fragment = ""
	return parsed.String()
}

// CSSImageURL returns the first url(...) of a CSS background value.
func CSSImageURL(value string) string {
	m := cssURL.FindStringSubmatch(value)
	if m == nil {
		return ""
	}
	for _, g := range m[1:] {
		if g != "" {
			return strings.TrimSpace(g)
		}
	}
	return ""
}

// MIMEFromPath guesses an image media type from the reference's extension.
func MIMEFromPath(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return ""
	}
	return imageExtensions[strings.ToLower(path.Ext(parsed.Path))]
}

// NameFor derives a file name for a retrieved image. The URL's last path
// segment is used when present, otherwise "image-<n>" with an extension
// inferred from mimeType.
func NameFor(rawURL, mimeType string, n int) string {
	name := ""
	if parsed, err := url.Parse(rawURL); err == nil {
		name = path.Base(parsed.Path)
	}
	if name == "" || name == "/" || name == "." {
		name = fmt.Sprintf("image-%d", n)
	}
	name = nameSanitizer.ReplaceAllString(name, "_")
	if path.Ext(name) == "" {
		name += ExtensionFor(mimeType)
	}
	return name
}

var extByMIME = map[string]string{
	"image/png": ".png", "image/jpeg": ".jpg", "image/gif": ".gif",
	"image/svg+xml": ".svg", "image/webp": ".webp", "text/plain": ".txt",
}

// ExtensionFor returns the file extension for a media type, or "".
func ExtensionFor(mimeType string) string {
	mt, _, err := mime.ParseMediaType(mimeType)
	if err != nil {
		return ""
	}
	return extByMIME[mt]
}
