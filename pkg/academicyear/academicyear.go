// Package academicyear implements the September-to-August year bucketing
// used to scope sessions, cohorts and vaccination recency.
package academicyear

import "time"

// StartMonth is the first month of an academic year.
const StartMonth = time.September

// Of returns the academic year a date falls in, named by the calendar year
// in which it starts. 2024-09-01 and 2025-08-31 are both in 2024.
func Of(t time.Time) int {
	if t.Month() >= StartMonth {
		return t.Year()
	}
	return t.Year() - 1
}

// Current returns the academic year of now.
func Current(now time.Time) int {
	return Of(now)
}

// BirthAcademicYear is the academic year a child was born in. Children
// sharing a birth academic year share a school year group.
func BirthAcademicYear(dateOfBirth time.Time) int {
	return Of(dateOfBirth)
}

// YearGroup returns the school year group of a child born in
// birthAcademicYear during academicYear. Reception is 0.
func YearGroup(birthAcademicYear, academicYear int) int {
	return academicYear - birthAcademicYear - 5
}

// BirthAcademicYearForYearGroup is the inverse of YearGroup.
func BirthAcademicYearForYearGroup(yearGroup, academicYear int) int {
	return academicYear - yearGroup - 5
}

// Range returns the first and last day of an academic year.
func Range(academicYear int) (time.Time, time.Time) {
	start := time.Date(academicYear, StartMonth, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(academicYear+1, StartMonth, 1, 0, 0, 0, 0, time.UTC).Add(-time.Nanosecond)
	return start, end
}
