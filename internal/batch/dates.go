package batch

import (
	"fmt"
	"time"
)

const serviceDateLayout = "20060102"

// ServiceDates lists every YYYYMMDD date from start to end inclusive. An empty
// end means start only.
func ServiceDates(start, end string) ([]string, error) {
	from, err := time.Parse(serviceDateLayout, start)
	if err != nil {
		return nil, fmt.Errorf("invalid start date: %q", start)
	}
	if end == "" {
		return []string{start}, nil
	}
	to, err := time.Parse(serviceDateLayout, end)
	if err != nil {
		return nil, fmt.Errorf("invalid end date: %q", end)
	}
	if to.Before(from) {
		return nil, fmt.Errorf("end date %s before start date %s", end, start)
	}
	var out []string
	for d := from; !d.After(to); d = d.AddDate(0, 0, 1) {
		out = append(out, d.Format(serviceDateLayout))
	}
	return out, nil
}
