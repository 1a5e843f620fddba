package content

import (
	"encoding/json"
	"regexp"
	"strings"
)

var imageExt = regexp.MustCompile(`(?i)\.(jpe?g|png|gif|webp|svg)(\?.*)?$`)

// ResolveMediaURL turns a service-relative media reference into an absolute URL.
func ResolveMediaURL(base, ref string) string {
	if ref == "" {
		return ""
	}
	if strings.HasPrefix(ref, "/") {
		return strings.TrimRight(base, "/") + ref
	}
	return ref
}

// IsImage reports whether a media URL points at an image the client can inline.
func IsImage(ref string) bool {
	return imageExt.MatchString(ref)
}

func jsonBody(payload any) ([]byte, error) {
	if payload == nil {
		return nil, nil
	}
	return json.Marshal(payload)
}
