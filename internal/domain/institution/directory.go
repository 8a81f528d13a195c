// Package institution holds the read-only school directory and the
// per-institution usage summarizer. Directory data comes from the public
// annuaire CSV; usage patterns are derived from teacher profiles.
package institution

import (
	"github.com/mathadata/usage-insights/internal/domain/shared"
)

// UnknownName is the placeholder for institutions absent from the directory.
const UnknownName = "Inconnu"

// Info is one directory entry. Numeric fields are pointers because the
// annuaire leaves them blank for some institutions.
type Info struct {
	Code shared.InstitutionCode

	Name     string
	City     string
	Academie string
	Type     string
	Sector   string

	// IPS is the social-position index published for the institution.
	IPS       *float64
	Latitude  *float64
	Longitude *float64
}

// Directory is an immutable code-to-info lookup table, loaded once before
// the export run and safe for concurrent reads.
type Directory struct {
	entries map[shared.InstitutionCode]Info
}

// NewDirectory builds a directory from loaded entries. Entries with an
// empty code are skipped.
func NewDirectory(entries []Info) *Directory {
	m := make(map[shared.InstitutionCode]Info, len(entries))
	for _, e := range entries {
		if e.Code == "" {
			continue
		}
		m[e.Code] = e
	}
	return &Directory{entries: m}
}

// Len returns the number of known institutions.
func (d *Directory) Len() int {
	if d == nil {
		return 0
	}
	return len(d.entries)
}

// Lookup returns the directory entry for a code. Unknown codes yield a
// placeholder entry rather than an error; every code resolves to something.
func (d *Directory) Lookup(code shared.InstitutionCode) Info {
	if d != nil {
		if info, ok := d.entries[code]; ok {
			return info
		}
	}
	return Info{Code: code, Name: UnknownName}
}

// Known reports whether the code has a real directory entry.
func (d *Directory) Known(code shared.InstitutionCode) bool {
	if d == nil {
		return false
	}
	_, ok := d.entries[code]
	return ok
}
