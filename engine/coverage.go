/*
coverage.go - Per-day staffing coverage conflict detection

PURPOSE:
  Given absence intervals expanded to individual dates and tagged with a job
  role, flags calendar days where simultaneous absences in a role meet or
  exceed the configured staffing threshold. Also classifies each day's
  overall absence "heat" for calendar display.

FILTERING:
  Kind/employee/role filters are applied BEFORE counting: the threshold
  check operates on the visible absence set, not the raw one.

SEVERITY:
  count >= threshold        -> conflict (medium)
  count >= threshold * 1.5  -> high
  Roles without a configured threshold never conflict.
*/
package engine

import "sort"

// =============================================================================
// ABSENCE ENTRIES
// =============================================================================

// AbsenceEntry is the per-date expansion of one absence: one entry per
// (date, employee, role, kind).
type AbsenceEntry struct {
	Date       Date
	EmployeeID string
	Role       string
	Kind       RequestKind
}

// EntryFilter narrows the visible absence set before conflict counting.
// Empty slices mean "no restriction".
type EntryFilter struct {
	Kinds       []RequestKind
	EmployeeIDs []string
	Roles       []string
}

// Apply returns the entries matching every configured restriction.
func (f EntryFilter) Apply(entries []AbsenceEntry) []AbsenceEntry {
	if len(f.Kinds) == 0 && len(f.EmployeeIDs) == 0 && len(f.Roles) == 0 {
		return entries
	}
	var out []AbsenceEntry
	for _, e := range entries {
		if len(f.Kinds) > 0 && !containsKind(f.Kinds, e.Kind) {
			continue
		}
		if len(f.EmployeeIDs) > 0 && !containsString(f.EmployeeIDs, e.EmployeeID) {
			continue
		}
		if len(f.Roles) > 0 && !containsString(f.Roles, e.Role) {
			continue
		}
		out = append(out, e)
	}
	return out
}

func containsKind(kinds []RequestKind, k RequestKind) bool {
	for _, c := range kinds {
		if c == k {
			return true
		}
	}
	return false
}

func containsString(ss []string, s string) bool {
	for _, c := range ss {
		if c == s {
			return true
		}
	}
	return false
}

// =============================================================================
// CONFLICT DETECTION
// =============================================================================

// Severity grades a coverage conflict.
type Severity string

const (
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Conflict is one role's coverage problem on a single date.
type Conflict struct {
	Role      string
	Count     int
	Threshold int
	Severity  Severity
}

// ConflictMap indexes each day's conflicts, ordered by role.
type ConflictMap map[Date][]Conflict

// DetectConflicts groups the visible entries by (date, role), counts
// occurrences, and flags every role whose absence count meets or exceeds
// its configured threshold. Dates outside the period are ignored.
func DetectConflicts(entries []AbsenceEntry, thresholds CoverageThresholdConfig, period Period) ConflictMap {
	counts := make(map[Date]map[string]int)
	for _, e := range entries {
		if !period.Contains(e.Date) {
			continue
		}
		byRole := counts[e.Date]
		if byRole == nil {
			byRole = make(map[string]int)
			counts[e.Date] = byRole
		}
		byRole[e.Role]++
	}

	result := make(ConflictMap)
	for date, byRole := range counts {
		var conflicts []Conflict
		for role, count := range byRole {
			threshold, ok := thresholds[role]
			if !ok || threshold <= 0 {
				// Unset thresholds mean the role can never conflict.
				continue
			}
			if count < threshold {
				continue
			}
			severity := SeverityMedium
			// count >= threshold*1.5, kept integral.
			if 2*count >= 3*threshold {
				severity = SeverityHigh
			}
			conflicts = append(conflicts, Conflict{
				Role:      role,
				Count:     count,
				Threshold: threshold,
				Severity:  severity,
			})
		}
		if len(conflicts) > 0 {
			sort.Slice(conflicts, func(i, j int) bool {
				return conflicts[i].Role < conflicts[j].Role
			})
			result[date] = conflicts
		}
	}
	return result
}

// =============================================================================
// HEAT CLASSIFICATION
// =============================================================================

// HeatLevel is a day's display bucket over total absences regardless of
// role. Weekend/holiday are fixed display categories that override the
// bucket but never suppress conflict detection.
type HeatLevel string

const (
	HeatNone    HeatLevel = "none"
	HeatLow     HeatLevel = "low"     // 1-3 absences
	HeatMedium  HeatLevel = "medium"  // 4-6 absences
	HeatHigh    HeatLevel = "high"    // >=7 absences
	HeatWeekend HeatLevel = "weekend"
	HeatHoliday HeatLevel = "holiday"
)

// HeatByDate buckets every day of the period by its total visible absence
// count, with weekend/holiday overrides.
func HeatByDate(entries []AbsenceEntry, period Period, calendar HolidayCalendar) map[Date]HeatLevel {
	if calendar == nil {
		calendar = DefaultHolidayCalendar{}
	}

	totals := make(map[Date]int)
	for _, e := range entries {
		if period.Contains(e.Date) {
			totals[e.Date]++
		}
	}

	heat := make(map[Date]HeatLevel)
	for _, day := range period.Days() {
		switch {
		case calendar.IsHoliday(day):
			heat[day] = HeatHoliday
		case day.IsWeekend():
			heat[day] = HeatWeekend
		default:
			heat[day] = heatBucket(totals[day])
		}
	}
	return heat
}

func heatBucket(total int) HeatLevel {
	switch {
	case total == 0:
		return HeatNone
	case total <= 3:
		return HeatLow
	case total <= 6:
		return HeatMedium
	default:
		return HeatHigh
	}
}
