package binpack

import (
	"strconv"
	"strings"
)

// tagSpec is a parsed `wire:"kind,opt=val,flag"` struct tag.
type tagSpec struct {
	kind  string
	opts  map[string]string
	flags map[string]bool
}

func parseTag(tag string) (tagSpec, bool) {
	if tag == "" || tag == "-" {
		return tagSpec{}, false
	}
	parts := strings.Split(tag, ",")
	spec := tagSpec{kind: parts[0], opts: map[string]string{}, flags: map[string]bool{}}
	for _, p := range parts[1:] {
		if idx := strings.IndexByte(p, '='); idx >= 0 {
			spec.opts[p[:idx]] = p[idx+1:]
		} else if p != "" {
			spec.flags[p] = true
		}
	}
	return spec, true
}

func (s tagSpec) intOpt(name string, def int) int {
	v, ok := s.opts[name]
	if !ok {
		return def
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return def
	}
	return n
}

func (s tagSpec) strOpt(name string, def string) string {
	v, ok := s.opts[name]
	if !ok {
		return def
	}
	return v
}
