package db

import (
	"time"

	"cloud.google.com/go/civil"
)

// DateArg converts a calendar date into a value pgx encodes as DATE.
func DateArg(d civil.Date) time.Time {
	return d.In(time.UTC)
}

// CivilDate converts a scanned DATE column back to a calendar date.
func CivilDate(t time.Time) civil.Date {
	return civil.DateOf(t)
}
