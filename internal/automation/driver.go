package automation

import (
	"context"
	"strings"
)

// Cookie is one entry of the exported session blob.
type Cookie struct {
	Name   string `json:"name"`
	Value  string `json:"value"`
	Domain string `json:"domain"`
	Path   string `json:"path"`
	Secure bool   `json:"secure,omitempty"`
	Expiry uint   `json:"expiry,omitempty"`
}

// Artifact is a backup file retrieved for one target and filed under the
// backup root.
type Artifact struct {
	Path   string `json:"path"`
	Name   string `json:"name"`
	Size   int64  `json:"size"`
	SHA256 string `json:"sha256"`
}

// Browser is one live automation session. It is not safe for concurrent use.
type Browser interface {
	Open(ctx context.Context, url string) error
	// Authenticated is false when the current page is a login or MFA page.
	Authenticated(ctx context.Context) (bool, error)
	// ExecuteBackup runs the download sequence for one target. Failures are
	// ErrAuthRequired, ErrArtifactNotFound or a *DriverError.
	ExecuteBackup(ctx context.Context, name, locator string) (*Artifact, error)
	ExportSession(ctx context.Context) ([]Cookie, error)
	ImportSession(ctx context.Context, cookies []Cookie) error
	Close() error
}

// Driver creates browser sessions.
type Driver interface {
	Start(ctx context.Context) (Browser, error)
	// Cleanup releases anything left behind by earlier sessions. It is a
	// no-op when nothing leaked.
	Cleanup() error
}

// IsAuthSurface reports whether url is a login or second-factor page.
func IsAuthSurface(url string) bool {
	u := strings.ToLower(url)
	return strings.Contains(u, "/login") || strings.Contains(u, "/mfa")
}
