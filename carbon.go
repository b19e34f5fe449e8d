package monitor

import (
	"math"
	"strconv"
	"strings"
	"unicode"
)

// JoinPath joins the non-empty parts of a metric path with dots.
func JoinPath(parts ...string) string {
	var sb strings.Builder
	for _, p := range parts {
		if p == "" {
			continue
		}
		if sb.Len() > 0 {
			sb.WriteByte('.')
		}
		sb.WriteString(p)
	}
	return sb.String()
}

// AppendLine appends one plaintext protocol record
//
//	<path>[.<facet>] <value> <timestamp>\n
//
// to dst and returns the extended buffer.
func AppendLine(dst []byte, path, facet string, value float64, timestamp int64) []byte {
	dst = append(dst, path...)
	if facet != "" {
		dst = append(dst, '.')
		dst = append(dst, facet...)
	}
	dst = append(dst, ' ')
	dst = strconv.AppendFloat(dst, value, 'f', -1, 64)
	dst = append(dst, ' ')
	dst = strconv.AppendInt(dst, timestamp, 10)
	return append(dst, '\n')
}

// Encode renders a single record for metric name under prefix.
func Encode(prefix, name, facet string, value float64, timestamp int64) string {
	return string(AppendLine(nil, JoinPath(prefix, name), facet, value, timestamp))
}

// FacetPath renders the part of a line path owned by f: its name followed
// by each label as name.value, e.g. "method.GET.code.200".
func FacetPath(f Facet) string {
	if len(f.Labels) == 0 {
		return f.Name
	}
	parts := make([]string, 0, 1+2*len(f.Labels))
	parts = append(parts, f.Name)
	for _, l := range f.Labels {
		parts = append(parts, pathPart(l.Name), pathPart(l.Value))
	}
	return JoinPath(parts...)
}

// pathPart makes s safe as a single path component.
func pathPart(s string) string {
	if s == "" {
		return "_"
	}
	return strings.Map(func(r rune) rune {
		if r == '.' || unicode.IsSpace(r) {
			return '_'
		}
		return r
	}, s)
}

// finite reports whether v can be rendered as a decimal number.
func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
