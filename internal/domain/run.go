package domain

import (
	"fmt"
	"time"
)

const (
	runDateLayout = "20060102"
	runCycle      = 6 * time.Hour
)

// ForecastRun identifies one initialisation of the ensemble.
type ForecastRun struct {
	Date time.Time // UTC midnight of the run day
	Hour RunHour
}

// ParseRun parses a run date (YYYYMMDD) and run hour.
func ParseRun(date, hour string) (ForecastRun, error) {
	d, err := time.ParseInLocation(runDateLayout, date, time.UTC)
	if err != nil {
		return ForecastRun{}, fmt.Errorf("invalid run date %q: %w", date, err)
	}
	h, err := ParseRunHour(hour)
	if err != nil {
		return ForecastRun{}, err
	}
	return ForecastRun{Date: d, Hour: h}, nil
}

// LatestRun returns the newest run expected to be fully published at now,
// given that data appears delay after the nominal run time.
func LatestRun(now time.Time, delay time.Duration) ForecastRun {
	t := now.UTC().Add(-delay).Truncate(runCycle)
	return ForecastRun{
		Date: time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC),
		Hour: RunHour(t.Hour()),
	}
}

// LatestRunNow is LatestRun evaluated against the package clock.
func LatestRunNow(delay time.Duration) ForecastRun {
	return LatestRun(Now(), delay)
}

// Time is the initialisation time of the run.
func (r ForecastRun) Time() time.Time {
	return r.Date.Add(time.Duration(r.Hour) * time.Hour)
}

// DateString formats the run day as YYYYMMDD.
func (r ForecastRun) DateString() string {
	return r.Date.Format(runDateLayout)
}

// Steps returns the lead-time schedule for the run.
func (r ForecastRun) Steps() ([]int, error) {
	return ComputeSteps(r.Hour)
}

// ValidTimes returns the valid time of every step of the run.
func (r ForecastRun) ValidTimes() ([]time.Time, error) {
	steps, err := r.Steps()
	if err != nil {
		return nil, err
	}
	base := r.Time()
	out := make([]time.Time, len(steps))
	for i, s := range steps {
		out[i] = base.Add(time.Duration(s) * time.Hour)
	}
	return out, nil
}

func (r ForecastRun) String() string {
	return fmt.Sprintf("%s %s UTC", r.DateString(), r.Hour)
}
