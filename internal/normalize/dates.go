package normalize

import "time"

// NextEligibleDates returns count labels for the days after from, skipping the excluded weekday.
// Days are civil dates in from's location.
func NextEligibleDates(from time.Time, count int, excluded time.Weekday, cal Calendar) []string {
	if count <= 0 {
		return nil
	}
	if cal == nil {
		cal = Gregorian{}
	}

	labels := make([]string, 0, count)
	y, m, d := from.Date()
	for offset := 1; len(labels) < count; offset++ {
		// noon keeps DST shifts from rolling the civil date
		day := time.Date(y, m, d+offset, 12, 0, 0, 0, from.Location())
		if day.Weekday() == excluded {
			continue
		}
		labels = append(labels, cal.Format(day))
	}
	return labels
}
