package services

import "time"

// Clock supplies wall-clock reads. All duration math goes through it so
// expiry logic is deterministic under test.
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now()
}

func NewRealClock() Clock {
	return realClock{}
}
