package objectclient

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"path"
	"strings"
)

// Object key layout. Templates, samples and generated documents live under
// separate prefixes so a generated file can never overwrite a stored template.
const (
	TemplatesPrefix = "templates"
	SamplesPrefix   = "samples"
	GeneratedPrefix = "generated"
)

const digestLen = 12

func TemplateKey(tenantID, name string, version int, ext string) string {
	return path.Join(TemplatesPrefix, segment(tenantID), fmt.Sprintf("%s_v%d%s", segment(name), version, ext))
}

func SampleKey(tenantID, name string, version, index int, ext string) string {
	return path.Join(SamplesPrefix, segment(tenantID), fmt.Sprintf("%s_v%d_sample_%d%s", segment(name), version, index, ext))
}

// GeneratedKey places fileName under the tenant's prefix. Callers pass names that
// already satisfy SafeName; anything else is sanitized.
func GeneratedKey(tenantID, fileName string) string {
	return path.Join(GeneratedPrefix, segment(tenantID), SafeName(fileName))
}

// segment is a readable key segment for an arbitrary tenant or template name.
// SafeName alone maps "a b" and "a/b" to the same text, so the digest of the raw
// value keeps distinct inputs on distinct keys.
func segment(s string) string {
	sum := sha256.Sum256([]byte(s))
	return SafeName(s) + "-" + hex.EncodeToString(sum[:])[:digestLen]
}

// SafeName strips path separators and other characters that cannot appear in a
// single key segment. Unicode letters are kept. The mapping is lossy.
func SafeName(s string) string {
	s = strings.TrimSpace(s)
	s = strings.Map(func(r rune) rune {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|', 0:
			return '_'
		case ' ':
			return '_'
		}
		return r
	}, s)
	s = strings.Trim(s, ".")
	if s == "" {
		return "_"
	}
	return s
}
