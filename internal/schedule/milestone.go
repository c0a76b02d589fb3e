package schedule

// AggregateMilestone derives m's date range from its member tasks: the
// earliest start and the latest end. Ids missing from tasks are ignored; a
// milestone without any known member yields zero dates.
func AggregateMilestone(m Milestone, tasks map[string]Task) MilestoneDates {
	dates := MilestoneDates{}
	for _, id := range m.TaskIDs {
		if t, ok := tasks[id]; ok {
			dates = widen(dates, t)
		}
	}
	return dates
}

func widen(dates MilestoneDates, t Task) MilestoneDates {
	dates.Start = MinDate(dates.Start, t.StartDate)
	dates.End = MaxDate(dates.End, t.EndDate)
	return dates
}
