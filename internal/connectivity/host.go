package connectivity

import (
	"net/url"
	"os"
	"strings"
)

// wellKnownHosts maps cloud backends whose locator carries no hostname to a
// representative endpoint for reachability probing.
var wellKnownHosts = map[string]string{
	"b2":    "api.backblazeb2.com",
	"gs":    "storage.googleapis.com",
	"azure": "blob.core.windows.net",
}

// IsLocalPath reports whether locator names an existing local directory,
// with or without a "local:" prefix.
func IsLocalPath(locator string) bool {
	locator = strings.TrimPrefix(strings.TrimSpace(locator), "local:")
	if locator == "" {
		return false
	}
	info, err := os.Stat(locator)
	return err == nil && info.IsDir()
}

// DeriveHost extracts the hostname to probe from a repository locator.
// It returns false when no hostname can be derived (rclone remotes, opaque
// schemes, empty locators).
func DeriveHost(locator string) (string, bool) {
	locator = strings.TrimSpace(locator)
	if locator == "" {
		return "", false
	}

	scheme, rest, hasScheme := strings.Cut(locator, ":")
	if hasScheme && !strings.HasPrefix(rest, "//") {
		scheme = strings.ToLower(scheme)
		if host, ok := wellKnownHosts[scheme]; ok {
			return host, true
		}
		switch scheme {
		case "rclone", "local":
			return "", false
		case "swift":
			return hostFromURL(os.Getenv("OS_AUTH_URL"))
		case "s3", "sftp", "rest":
			if strings.Contains(rest, "://") {
				return hostFromURL(rest)
			}
			return hostFromAuthority(rest)
		}
		return "", false
	}
	if strings.Contains(locator, "://") {
		return hostFromURL(locator)
	}
	return "", false
}

func hostFromURL(raw string) (string, bool) {
	if strings.TrimSpace(raw) == "" {
		return "", false
	}
	parsed, err := url.Parse(raw)
	if err != nil {
		return "", false
	}
	host := parsed.Hostname()
	return host, host != ""
}

// hostFromAuthority handles scp-like forms: user@host:/path, host/bucket,
// host:port/path and [v6addr]:port/path.
func hostFromAuthority(rest string) (string, bool) {
	rest = strings.TrimLeft(rest, "/")
	if end := strings.IndexByte(rest, '/'); end >= 0 {
		if at := strings.LastIndexByte(rest[:end], '@'); at >= 0 {
			rest = rest[at+1:]
		}
	} else if at := strings.LastIndexByte(rest, '@'); at >= 0 {
		rest = rest[at+1:]
	}
	if strings.HasPrefix(rest, "[") {
		if end := strings.IndexByte(rest, ']'); end > 1 {
			return rest[1:end], true
		}
		return "", false
	}
	host := rest
	if end := strings.IndexAny(host, ":/"); end >= 0 {
		host = host[:end]
	}
	host = strings.TrimSpace(host)
	return host, host != ""
}
