// Package ioutil collects small I/O helpers shared across the storage
// backends, matching the teacher's utils/ioutil package.
package ioutil

import "io"

// CheckClose closes c and, if err (the caller's named return) is nil,
// assigns the close error to it. Used in defer so a close failure is
// never silently swallowed when the primary operation succeeded.
func CheckClose(c io.Closer, err *error) {
	if cerr := c.Close(); cerr != nil && *err == nil {
		*err = cerr
	}
}

// NewReadCloser pairs an io.Reader with an unrelated io.Closer, for
// callers that need to hand back a single io.ReadCloser.
func NewReadCloser(r io.Reader, c io.Closer) io.ReadCloser {
	return &readCloser{r: r, c: c}
}

type readCloser struct {
	r io.Reader
	c io.Closer
}

func (rc *readCloser) Read(p []byte) (int, error) { return rc.r.Read(p) }
func (rc *readCloser) Close() error                { return rc.c.Close() }
