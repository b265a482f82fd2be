package version

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

const componentCount = 4

// ErrInvalidVersion indicates that a version string is not four dot-separated unsigned integers.
var ErrInvalidVersion = errors.New("version: invalid database version")

// Supported is the database generation this build reads and writes.
var Supported = DatabaseVersion{Schema: 2}

// DatabaseVersion identifies the content of a database file.
// The zero value is the invalid version.
type DatabaseVersion struct {
	Schema       uint32
	FullDownload uint32
	BuildDate    uint32
	BuildCount   uint32
}

// Parse reads "<schema>.<fullDownload>.<buildDate>.<buildCount>".
// On failure the invalid version is returned together with ErrInvalidVersion.
func Parse(rawInput string) (DatabaseVersion, error) {
	parts := strings.Split(strings.TrimSpace(rawInput), ".")
	if len(parts) != componentCount {
		return DatabaseVersion{}, fmt.Errorf("%w: %q has %d components", ErrInvalidVersion, rawInput, len(parts))
	}

	values := make([]uint32, componentCount)
	for index, part := range parts {
		value, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			return DatabaseVersion{}, fmt.Errorf("%w: %q: %v", ErrInvalidVersion, rawInput, err)
		}
		values[index] = uint32(value)
	}

	return DatabaseVersion{
		Schema:       values[0],
		FullDownload: values[1],
		BuildDate:    values[2],
		BuildCount:   values[3],
	}, nil
}

// MustParse is Parse for literals known to be well formed.
func MustParse(rawInput string) DatabaseVersion {
	parsed, err := Parse(rawInput)
	if err != nil {
		panic(err)
	}
	return parsed
}

// IsValid reports whether any component is set.
func (v DatabaseVersion) IsValid() bool {
	return v != DatabaseVersion{}
}

// SchemaCompatible reports whether a database of this version can be read by this build.
func (v DatabaseVersion) SchemaCompatible() bool {
	return v.IsValid() && v.Schema == Supported.Schema
}

// IsNewerThan answers "does this version replace other": same schema and a
// strictly greater full-download component. Build date and count are ignored.
func (v DatabaseVersion) IsNewerThan(other DatabaseVersion) bool {
	if !v.IsValid() {
		return false
	}
	return v.Schema == other.Schema && v.FullDownload > other.FullDownload
}

// GreaterThan orders versions by full-download, then build date, then build
// count. The schema component does not take part. This is deliberately a
// different question from IsNewerThan.
func (v DatabaseVersion) GreaterThan(other DatabaseVersion) bool {
	if v.FullDownload != other.FullDownload {
		return v.FullDownload > other.FullDownload
	}
	if v.BuildDate != other.BuildDate {
		return v.BuildDate > other.BuildDate
	}
	return v.BuildCount > other.BuildCount
}

// String renders the dotted form accepted by Parse.
func (v DatabaseVersion) String() string {
	return fmt.Sprintf("%d.%d.%d.%d", v.Schema, v.FullDownload, v.BuildDate, v.BuildCount)
}
