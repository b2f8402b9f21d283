package trace

// TraceSummary aggregates statistics from a MatchTrace.
type TraceSummary struct {
	TotalActions  int            // records other than deaths
	Turns         int            // highest turn number seen
	Deaths        int            // died records
	Forfeits      int            // forfeit records
	Timeouts      int            // timeout records
	DecodeErrors  int            // decode-error records
	KindCounts    map[string]int // action kind -> count, deaths excluded
	PerController map[string]int // controller -> actions taken
	Casualties    map[string]int // controller -> units lost
}

// Summarize computes aggregate statistics from a MatchTrace.
// Safe for nil or empty traces (returns zero-value fields).
func Summarize(mt *MatchTrace) *TraceSummary {
	summary := &TraceSummary{
		KindCounts:    make(map[string]int),
		PerController: make(map[string]int),
		Casualties:    make(map[string]int),
	}
	if mt == nil {
		return summary
	}

	for _, r := range mt.Records {
		if r.Turn > summary.Turns {
			summary.Turns = r.Turn
		}
		switch r.Outcome {
		case OutcomeDied:
			summary.Deaths++
			summary.Casualties[r.Controller]++
			continue
		case OutcomeForfeit:
			summary.Forfeits++
		case OutcomeTimeout:
			summary.Timeouts++
		case OutcomeDecodeError:
			summary.DecodeErrors++
		}
		summary.TotalActions++
		summary.KindCounts[r.Kind]++
		summary.PerController[r.Controller]++
	}
	return summary
}
