package pipeline

// Stage is a state of a monitoring run.
type Stage int

const (
	Idle Stage = iota
	Fetching
	Extracting
	Filtering
	Deduplicating
	Persisting
	Notifying
	Capturing
	Done
	Failed
)

var stageNames = [...]string{
	Idle:          "idle",
	Fetching:      "fetching",
	Extracting:    "extracting",
	Filtering:     "filtering",
	Deduplicating: "deduplicating",
	Persisting:    "persisting",
	Notifying:     "notifying",
	Capturing:     "capturing",
	Done:          "done",
	Failed:        "failed",
}

func (s Stage) String() string {
	if s < 0 || int(s) >= len(stageNames) {
		return "unknown"
	}
	return stageNames[s]
}

// Policy is what a run does when a stage returns an error.
type Policy int

const (
	// Fatal ends the run Failed at the stage.
	Fatal Policy = iota
	// EndEmpty ends the run Done with zero new records.
	EndEmpty
	// Degrade continues as if the stage had been skipped and flags the run degraded.
	Degrade
	// NotifyThenFail keeps the in-memory records, still notifies, then ends the run Failed.
	NotifyThenFail
	// Continue logs the error and moves on.
	Continue
)

func (p Policy) String() string {
	switch p {
	case Fatal:
		return "fatal"
	case EndEmpty:
		return "end-empty"
	case Degrade:
		return "degrade"
	case NotifyThenFail:
		return "notify-then-fail"
	case Continue:
		return "continue"
	default:
		return "unknown"
	}
}

// policies is the declared error policy per stage. Cancellation of the run
// itself overrides it, see policy.
var policies = map[Stage]Policy{
	Fetching:      Fatal,
	Extracting:    EndEmpty,
	Filtering:     Degrade,
	Deduplicating: Fatal,
	Persisting:    NotifyThenFail,
	Notifying:     Continue,
	Capturing:     Continue,
}

// PolicyFor returns the declared policy for stage.
func PolicyFor(stage Stage) Policy {
	if p, ok := policies[stage]; ok {
		return p
	}
	return Fatal
}

// NotifyStatus reports what happened to the notification for a run.
type NotifyStatus string

const (
	NotifySkipped  NotifyStatus = "skipped"  // no new records
	NotifySent     NotifyStatus = "sent"
	NotifyFailed   NotifyStatus = "failed"
	NotifyDisabled NotifyStatus = "disabled" // new records, notifications turned off
)
