package utils

import (
	"io"
	"strings"
)

// DrainAndClose drains and closes the given ReadCloser so the transport can reuse the connection.
func DrainAndClose(rc io.ReadCloser) error {
	if rc == nil {
		return nil
	}
	_, _ = io.Copy(io.Discard, rc)
	return rc.Close()
}

// ReadSnippet reads at most max bytes from r and returns them trimmed.
// Used to keep a short server-provided reason on non-2xx responses.
func ReadSnippet(r io.Reader, max int64) string {
	if r == nil || max <= 0 {
		return ""
	}
	b, err := io.ReadAll(io.LimitReader(r, max))
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(b))
}
