package collect

import "time"

// midnight возвращает начало суток для момента t в локации loc.
func midnight(t time.Time, loc *time.Location) time.Time {
	year, month, day := t.In(loc).Date()
	return time.Date(year, month, day, 0, 0, 0, 0, loc)
}

// Yesterday возвращает полуоткрытое окно вчерашних суток [00:00 вчера, 00:00 сегодня).
func Yesterday(now time.Time, loc *time.Location) (time.Time, time.Time) {
	end := midnight(now, loc)
	return end.AddDate(0, 0, -1), end
}

// Today возвращает полуоткрытое окно текущих суток до текущего момента
// [00:00 сегодня, now).
func Today(now time.Time, loc *time.Location) (time.Time, time.Time) {
	return midnight(now, loc), now
}

// LastHours возвращает окно [now-hours, now).
func LastHours(now time.Time, hours int) (time.Time, time.Time) {
	if hours <= 0 {
		hours = 24
	}
	return now.Add(-time.Duration(hours) * time.Hour), now
}
