package absence

import (
	"context"
	"time"

	"github.com/staffo/absence-engine/engine"
)

// =============================================================================
// COVERAGE SERVICE - Expansion + detection
// =============================================================================

// CoverageService expands stored absences into per-date entries tagged with
// each employee's role and runs the conflict detector and heat classifier
// over them.
type CoverageService struct {
	Store Store
}

func NewCoverageService(store Store) *CoverageService {
	return &CoverageService{Store: store}
}

// CoverageReport is one scope's coverage picture.
type CoverageReport struct {
	Period    engine.Period
	Conflicts engine.ConflictMap
	Heat      map[engine.Date]engine.HeatLevel
}

// Report builds the coverage report for a period. The filter is applied
// before conflict counting: thresholds operate on the visible absence set.
// Weekends and holidays get fixed heat categories but conflicts are still
// detected on them.
func (s *CoverageService) Report(ctx context.Context, period engine.Period, filter engine.EntryFilter) (*CoverageReport, error) {
	if !period.Valid() {
		return nil, &engine.ValidationError{Field: "period", Message: "end before start"}
	}

	entries, err := s.expand(ctx, period)
	if err != nil {
		return nil, err
	}
	entries = filter.Apply(entries)

	thresholds, err := s.Store.GetThresholds(ctx)
	if err != nil {
		return nil, err
	}

	calendar, err := s.holidayCalendar(ctx, period)
	if err != nil {
		return nil, err
	}

	return &CoverageReport{
		Period:    period,
		Conflicts: engine.DetectConflicts(entries, thresholds, period),
		Heat:      engine.HeatByDate(entries, period, calendar),
	}, nil
}

// Month reports on a single calendar month.
func (s *CoverageService) Month(ctx context.Context, year int, month time.Month, filter engine.EntryFilter) (*CoverageReport, error) {
	return s.Report(ctx, engine.MonthPeriod(year, month), filter)
}

// Year reports on a full calendar year.
func (s *CoverageService) Year(ctx context.Context, year int, filter engine.EntryFilter) (*CoverageReport, error) {
	return s.Report(ctx, engine.YearPeriod(year), filter)
}

// expand turns approved absences overlapping the period into one entry per
// (date, employee). Partially cancelled requests contribute only their
// remaining effective dates; sales have no calendar days and never appear.
func (s *CoverageService) expand(ctx context.Context, period engine.Period) ([]engine.AbsenceEntry, error) {
	requests, err := s.Store.ListRequestsOverlapping(ctx, period)
	if err != nil {
		return nil, err
	}

	employees, err := s.Store.ListEmployees(ctx)
	if err != nil {
		return nil, err
	}
	roles := make(map[string]string, len(employees))
	for _, emp := range employees {
		roles[emp.ID] = emp.Role
	}

	var entries []engine.AbsenceEntry
	for i := range requests {
		req := &requests[i]
		if req.Status != engine.StatusApproved && req.Status != engine.StatusPartiallyCancelled {
			continue
		}
		for _, d := range req.EffectiveDates() {
			if !period.Contains(d) {
				continue
			}
			entries = append(entries, engine.AbsenceEntry{
				Date:       d,
				EmployeeID: req.EmployeeID,
				Role:       roles[req.EmployeeID],
				Kind:       req.Kind,
			})
		}
	}
	return entries, nil
}

func (s *CoverageService) holidayCalendar(ctx context.Context, period engine.Period) (engine.HolidayCalendar, error) {
	var holidays []engine.Holiday
	for year := period.Start.Year(); year <= period.End.Year(); year++ {
		hs, err := s.Store.ListHolidays(ctx, year)
		if err != nil {
			return nil, err
		}
		holidays = append(holidays, hs...)
	}
	return engine.NewStaticHolidayCalendar(holidays), nil
}
