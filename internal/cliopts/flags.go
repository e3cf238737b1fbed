package cliopts

import (
	"fmt"
	"strconv"
	"strings"
)

// byteUnits maps the suffixes wget accepts on --quota and --chunk-size
// to their multiplier. Binary (Ki/Mi/Gi) and decimal (k/M/G) forms are
// both accepted; a bare number is bytes.
var byteUnits = []struct {
	suffix string
	factor int64
}{
	{"kib", 1024},
	{"mib", 1024 * 1024},
	{"gib", 1024 * 1024 * 1024},
	{"k", 1000},
	{"m", 1000 * 1000},
	{"g", 1000 * 1000 * 1000},
}

// parseByteSize parses strings like "1MiB", "100m", "2048" into a byte
// count. An empty string parses to 0 with no error (meaning "unset").
func parseByteSize(s string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, nil
	}
	lower := strings.ToLower(s)
	for _, u := range byteUnits {
		if strings.HasSuffix(lower, u.suffix) {
			numPart := strings.TrimSuffix(lower, u.suffix)
			n, err := strconv.ParseFloat(numPart, 64)
			if err != nil {
				return 0, fmt.Errorf("invalid size %q: %w", s, err)
			}
			return int64(n * float64(u.factor)), nil
		}
	}
	n, err := strconv.ParseInt(lower, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size %q: %w", s, err)
	}
	return n, nil
}
