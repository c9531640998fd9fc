package threshold

import (
	"errors"
	"fmt"
)

// Cutoff is a pair of inclusive lower bounds, in mmHg.
type Cutoff struct {
	Systolic  int `json:"systolic"`
	Diastolic int `json:"diastolic"`
}

// Set holds the two severity boundaries a reading is classified against.
type Set struct {
	Red    Cutoff `json:"red"`
	Yellow Cutoff `json:"yellow"`
}

func DefaultSet() Set {
	return Set{
		Red:    Cutoff{Systolic: 160, Diastolic: 100},
		Yellow: Cutoff{Systolic: 140, Diastolic: 90},
	}
}

var ErrInvalidSet = errors.New("invalid threshold set")

// Validate rejects sets that would make classification non-monotonic.
func (s Set) Validate() error {
	if s.Red.Systolic <= 0 || s.Red.Diastolic <= 0 || s.Yellow.Systolic <= 0 || s.Yellow.Diastolic <= 0 {
		return fmt.Errorf("%w: cutoffs must be positive", ErrInvalidSet)
	}
	if s.Yellow.Systolic > s.Red.Systolic {
		return fmt.Errorf("%w: yellow systolic cutoff (%d) exceeds red (%d)", ErrInvalidSet, s.Yellow.Systolic, s.Red.Systolic)
	}
	if s.Yellow.Diastolic > s.Red.Diastolic {
		return fmt.Errorf("%w: yellow diastolic cutoff (%d) exceeds red (%d)", ErrInvalidSet, s.Yellow.Diastolic, s.Red.Diastolic)
	}
	return nil
}
