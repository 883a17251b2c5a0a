package export

import (
	"fmt"
	"slices"
	"strconv"
	"strings"
)

// ParseRows parses a 1-based row list such as "1,3,5-7" into sorted, unique
// 0-based indices checked against n rows. An empty list returns nil.
func ParseRows(list string, n int) ([]int, error) {
	list = strings.TrimSpace(list)
	if list == "" {
		return nil, nil
	}

	seen := make(map[int]bool)
	var out []int
	add := func(row int) error {
		if row < 1 || row > n {
			return fmt.Errorf("%w: row %d (source has %d rows)", ErrRowOutOfRange, row, n)
		}
		if !seen[row-1] {
			seen[row-1] = true
			out = append(out, row-1)
		}
		return nil
	}

	for _, part := range strings.Split(list, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}

		lo, hi, isRange := strings.Cut(part, "-")
		first, err := strconv.Atoi(strings.TrimSpace(lo))
		if err != nil {
			return nil, fmt.Errorf("invalid row %q", part)
		}
		last := first
		if isRange {
			if last, err = strconv.Atoi(strings.TrimSpace(hi)); err != nil {
				return nil, fmt.Errorf("invalid row range %q", part)
			}
			if last < first {
				return nil, fmt.Errorf("invalid row range %q: end before start", part)
			}
		}

		for row := first; row <= last; row++ {
			if err := add(row); err != nil {
				return nil, err
			}
		}
	}

	slices.Sort(out)
	return out, nil
}
