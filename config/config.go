// Package config reads and writes the narrow slice of .git/config the
// storage engine itself consults: the [core] section's
// repositoryformatversion and logallrefupdates, used by the reference
// store's reflog policy (spec §4.H). Remotes, branches, and submodules
// are porcelain concerns and out of scope.
package config

import (
	"fmt"
	"io"

	"github.com/go-git/gcfg"
)

// ErrConfigNotFound is returned when no config file exists yet for a
// repository; callers treat it as "use the zero-value Config".
var ErrConfigNotFound = fmt.Errorf("config: file not found")

// Config is the in-memory form of a .git/config file, restricted to
// the [core] keys this engine reads.
type Config struct {
	Core struct {
		// RepositoryFormatVersion gates which config extensions are
		// legal to interpret; this engine only understands version 0.
		RepositoryFormatVersion int
		// LogAllRefUpdates, when true, makes every HEAD/branch/remote/
		// stash ref update append a reflog entry even if no reflog
		// file exists yet for that ref.
		LogAllRefUpdates bool
		// Bare marks a repository with no associated working tree.
		Bare bool
	} `gcfg:"core"`
}

// NewConfig returns the all-defaults Config used when no config file
// is present on disk yet (a brand new repository).
func NewConfig() *Config {
	return &Config{}
}

// Decoder reads a Config from a .git/config-formatted stream.
type Decoder struct {
	r io.Reader
}

// NewDecoder returns a Decoder reading from r.
func NewDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode parses the stream into cfg. A missing [core] section simply
// leaves Config's zero values in place.
func (d *Decoder) Decode(cfg *Config) error {
	return gcfg.FatalOnly(gcfg.ReadInto(cfg, d.r))
}

// Encoder writes a Config back out in .git/config's INI-like format.
// Only the keys this package understands are round-tripped; any other
// section present in the original file is, by construction, never
// read into Config in the first place and so is dropped on rewrite —
// acceptable because this engine never owns a config file with
// porcelain sections (those live in the full go-git config package,
// out of scope here).
type Encoder struct {
	w io.Writer
}

// NewEncoder returns an Encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes cfg's [core] section.
func (e *Encoder) Encode(cfg *Config) error {
	_, err := fmt.Fprintf(e.w, "[core]\n\trepositoryformatversion = %d\n\tbare = %t\n\tlogallrefupdates = %t\n",
		cfg.Core.RepositoryFormatVersion, cfg.Core.Bare, cfg.Core.LogAllRefUpdates)
	return err
}
