package playback

import "time"

// Clock abstracts waiting so scheduler timing is testable without real
// sleeps.
type Clock interface {
	Now() time.Time
	After(d time.Duration) <-chan time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func (realClock) After(d time.Duration) <-chan time.Time {
	return time.After(d)
}

func NewClock() Clock {
	return realClock{}
}
