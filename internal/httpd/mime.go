package httpd

import (
	"path"
	"strings"
)

// Content types.
const (
	MIMEHTML        = "text/html"
	MIMECSS         = "text/css"
	MIMEPNG         = "image/png"
	MIMEJPEG        = "image/jpeg"
	MIMEGIF         = "image/gif"
	MIMEJavaScript  = "application/javascript"
	MIMEOctetStream = "application/octet-stream"
)

var contentTypes = map[string]string{
	"html": MIMEHTML,
	"css":  MIMECSS,
	"png":  MIMEPNG,
	"jpg":  MIMEJPEG,
	"jpeg": MIMEJPEG,
	"gif":  MIMEGIF,
	"js":   MIMEJavaScript,
}

// ContentType maps a file name to its content type by extension. A name
// without an extension is served as HTML; an unknown extension as
// application/octet-stream.
func ContentType(name string) string {
	ext := strings.TrimPrefix(path.Ext(name), ".")
	if ext == "" {
		return MIMEHTML
	}
	if ct, ok := contentTypes[strings.ToLower(ext)]; ok {
		return ct
	}

	return MIMEOctetStream
}
