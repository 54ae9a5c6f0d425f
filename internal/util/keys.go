package util

import (
	"sort"
	"strings"
)

// ExpandKey fills {name} placeholders in tmpl from args.
// Unknown placeholders are left as is so a typo shows up in the stored key.
func ExpandKey(tmpl string, args map[string]string) string {
	if len(args) == 0 || !strings.Contains(tmpl, "{") {
		return tmpl
	}
	// deterministic replacement order
	names := make([]string, 0, len(args))
	for k := range args {
		names = append(names, k)
	}
	sort.Strings(names)

	pairs := make([]string, 0, 2*len(names))
	for _, k := range names {
		pairs = append(pairs, "{"+k+"}", args[k])
	}
	return strings.NewReplacer(pairs...).Replace(tmpl)
}

// Placeholders lists the {name} placeholders of tmpl in order of appearance.
func Placeholders(tmpl string) []string {
	var out []string
	for {
		i := strings.IndexByte(tmpl, '{')
		if i < 0 {
			return out
		}
		j := strings.IndexByte(tmpl[i+1:], '}')
		if j < 0 {
			return out
		}
		if name := tmpl[i+1 : i+1+j]; name != "" {
			out = append(out, name)
		}
		tmpl = tmpl[i+2+j:]
	}
}
