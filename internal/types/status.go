package types

import "fmt"

// Status is the lifecycle state of a download job.
type Status int

const (
	StatusIdle Status = iota
	StatusInProgress
	StatusPausedByUser
	StatusPausedNoNetwork
	StatusFailed
	StatusSucceeded
)

var statusNames = map[Status]string{
	StatusIdle:            "idle",
	StatusInProgress:      "in-progress",
	StatusPausedByUser:    "paused-by-user",
	StatusPausedNoNetwork: "paused-no-network",
	StatusFailed:          "failed",
	StatusSucceeded:       "succeeded",
}

func (s Status) String() string {
	if name, ok := statusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("status(%d)", int(s))
}

func ParseStatus(text string) (Status, error) {
	for status, name := range statusNames {
		if name == text {
			return status, nil
		}
	}
	return StatusIdle, fmt.Errorf("unknown job status %q", text)
}

func (s Status) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *Status) UnmarshalText(text []byte) error {
	parsed, err := ParseStatus(string(text))
	if err != nil {
		return err
	}
	*s = parsed
	return nil
}

// IsPaused reports whether a resume action can restart the job.
func (s Status) IsPaused() bool {
	return s == StatusPausedByUser || s == StatusPausedNoNetwork
}

// IsTerminal reports whether the current run attempt is over for good.
func (s Status) IsTerminal() bool {
	return s == StatusFailed || s == StatusSucceeded
}
