package bpfreg

import "fmt"

// ErrProgramNotFound is returned when an operation names a program
// that is not in the registry.
type ErrProgramNotFound struct {
	ID uint64
}

func (e ErrProgramNotFound) Error() string {
	return fmt.Sprintf("program %d is not registered", e.ID)
}

// ErrLinkNotFound is returned when an operation names a link that is
// not in the registry.
type ErrLinkNotFound struct {
	ID uint64
}

func (e ErrLinkNotFound) Error() string {
	return fmt.Sprintf("link %d is not registered", e.ID)
}

// ErrMapNotFound is returned when an operation names a map that is
// not in the registry.
type ErrMapNotFound struct {
	ID uint64
}

func (e ErrMapNotFound) Error() string {
	return fmt.Sprintf("map %d is not registered", e.ID)
}
