package urlutil

import (
	"net/url"
	"path"
	"strings"
)

// JoinPath safely joins URL paths, handling trailing and leading slashes correctly.
// A trailing slash on the last element is preserved, which matters for backends
// that route "/api/auth/profile/" and "/api/auth/profile" differently.
func JoinPath(base string, paths ...string) (string, error) {
	u, err := url.Parse(base)
	if err != nil {
		return "", err
	}

	allPaths := append([]string{u.Path}, paths...)
	u.Path = path.Join(allPaths...)
	if !strings.HasPrefix(u.Path, "/") {
		u.Path = "/" + u.Path
	}

	if len(paths) > 0 && strings.HasSuffix(paths[len(paths)-1], "/") && !strings.HasSuffix(u.Path, "/") {
		u.Path += "/"
	}

	return u.String(), nil
}
