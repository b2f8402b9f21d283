package trace

// TraceLevel controls the verbosity of turn logging.
type TraceLevel string

const (
	// TraceLevelNone disables recording (zero overhead).
	TraceLevelNone TraceLevel = "none"
	// TraceLevelActions records every resolved action and death.
	TraceLevelActions TraceLevel = "actions"
)

var validTraceLevels = map[TraceLevel]bool{
	TraceLevelNone:    true,
	TraceLevelActions: true,
	"":                true, // empty defaults to none
}

// IsValidTraceLevel returns true if the given level string is a recognized trace level.
func IsValidTraceLevel(level string) bool {
	return validTraceLevels[TraceLevel(level)]
}

// TraceConfig controls trace collection behavior.
type TraceConfig struct {
	Level TraceLevel
}

// Header describes the match a turn log belongs to.
type Header struct {
	Version     int      `yaml:"turn_log_version"`
	MatchID     string   `yaml:"match_id"`
	CreatedAt   string   `yaml:"created_at,omitempty"`
	GridSide    int      `yaml:"grid_side"`
	StartingHP  int      `yaml:"starting_hp"`
	ArmySize    int      `yaml:"army_size"`
	MaxRounds   int      `yaml:"max_rounds"`
	Seed        int64    `yaml:"seed"`
	Controllers []string `yaml:"controllers"`
}

// CurrentVersion is written into every new Header.
const CurrentVersion = 1

// MatchTrace collects action records during a match.
type MatchTrace struct {
	Config  TraceConfig
	Header  Header
	Records []ActionRecord
}

// NewMatchTrace creates a MatchTrace ready for recording.
func NewMatchTrace(config TraceConfig, header Header) *MatchTrace {
	if header.Version == 0 {
		header.Version = CurrentVersion
	}
	return &MatchTrace{
		Config:  config,
		Header:  header,
		Records: make([]ActionRecord, 0),
	}
}

// RecordAction appends a record unless tracing is disabled.
func (mt *MatchTrace) RecordAction(record ActionRecord) {
	if mt.Config.Level != TraceLevelActions {
		return
	}
	mt.Records = append(mt.Records, record)
}

// Turn returns the records of one turn in recorded order.
func (mt *MatchTrace) Turn(turn int) []ActionRecord {
	var out []ActionRecord
	for _, r := range mt.Records {
		if r.Turn == turn {
			out = append(out, r)
		}
	}
	return out
}

// LastTurn returns the highest turn number recorded, or -1 for an empty trace.
func (mt *MatchTrace) LastTurn() int {
	last := -1
	for _, r := range mt.Records {
		if r.Turn > last {
			last = r.Turn
		}
	}
	return last
}
