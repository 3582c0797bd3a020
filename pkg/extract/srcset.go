package extract

import "strings"

// ParseSrcset splits an img/source srcset attribute into its candidate
// URLs, dropping the width/density descriptors. Candidates are separated by
// commas, but a comma may also appear inside a URL, so a separator comma is
// only recognized when followed by whitespace or when the previous candidate
// already carries a descriptor.
func ParseSrcset(value string) []string {
	var urls []string
	for _, candidate := range splitCandidates(value) {
		fields := strings.Fields(candidate)
		if len(fields) == 0 {
			continue
		}
		url := strings.TrimSpace(fields[0])
		if url != "" {
			urls = append(urls, url)
		}
	}
	return urls
}

func splitCandidates(value string) []string {
	var out []string
	start := 0
	for i := 0; i < len(value); i++ {
		if value[i] != ',' {
			continue
		}
		// A comma splits candidates when followed by whitespace or when the
		// candidate so far already contains a descriptor separator.
		rest := value[i+1:]
		cur := value[start:i]
		if strings.ContainsAny(strings.TrimSpace(cur), " \t") ||
			rest == "" || rest[0] == ' ' || rest[0] == '\t' || rest[0] == '\n' {
			out = append(out, cur)
			start = i + 1
		}
	}
	out = append(out, value[start:])
	return out
}
