package kvfs

import (
	"path"
	"strings"
)

// DefaultScheme is the scheme a FileSystem answers to unless WithScheme is
// used.
const DefaultScheme = "cachefs"

// splitScheme splits "scheme:/rest" into its parts. Names without a scheme,
// including relative names that happen to contain a colon, are reported as
// such.
func splitScheme(name string) (scheme, rest string, ok bool) {
	i := strings.Index(name, ":")
	if i <= 0 || strings.Contains(name[:i], "/") {
		return "", name, false
	}
	rest = name[i+1:]
	if !strings.HasPrefix(rest, "/") {
		return "", name, false
	}
	return name[:i], rest, true
}

// cleanPath takes an absolute path, a relative path, or a URL in the file
// system's scheme and returns the cleaned absolute path.
func (fs *FileSystem) cleanPath(name string) (string, error) {
	p := strings.ReplaceAll(name, "\\", "/")
	if scheme, rest, ok := splitScheme(p); ok {
		if scheme != fs.scheme {
			return "", ErrInvalidArgument
		}
		p = "/" + strings.TrimLeft(rest, "/")
	} else if !path.IsAbs(p) {
		p = path.Join(fs.Cwd(), p)
	}
	return path.Clean(p), nil
}

// key returns the cache key of the cleaned absolute path p.
func (fs *FileSystem) key(p string) string {
	return fs.scheme + "://" + strings.TrimPrefix(p, "/")
}

// childPrefix returns the prefix shared by the keys of all entries below the
// directory p.
func (fs *FileSystem) childPrefix(p string) string {
	if p == "/" {
		return fs.key(p)
	}
	return fs.key(p) + "/"
}

// URL returns the scheme form of name, e.g. "/a/b" becomes "cachefs://a/b".
func (fs *FileSystem) URL(name string) (string, error) {
	p, err := fs.cleanPath(name)
	if err != nil {
		return "", err
	}
	return fs.key(p), nil
}

// Scheme returns the scheme the file system answers to.
func (fs *FileSystem) Scheme() string {
	return fs.scheme
}
