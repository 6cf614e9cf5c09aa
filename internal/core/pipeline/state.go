package pipeline

// State is a step of one request run.
type State int

const (
	Idle State = iota
	Classifying
	Answering
	Extracting
	Materializing
	Recording
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Classifying:
		return "classifying"
	case Answering:
		return "answering"
	case Extracting:
		return "extracting"
	case Materializing:
		return "materializing"
	case Recording:
		return "recording"
	}
	return "unknown"
}
