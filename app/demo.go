package app

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/SanteonNL/bptrafficlight/lib/logging"
	"github.com/SanteonNL/bptrafficlight/reading"
)

const demoDays = 30

// UseDemoMode switches to demo mode. If there are no readings yet, 30 days of sample readings are generated.
func (s *Service) UseDemoMode(ctx context.Context) Status {
	s.mux.Lock()
	defer s.mux.Unlock()
	s.state.Mode = ModeDemo
	s.state.EHR = nil
	s.state.PatientID = ""
	s.state.PatientName = ""
	if len(s.state.Readings) == 0 {
		if _, err := s.mergeLocked(ctx, generateDemoReadings(s.now()), reading.SourceDemo); err != nil {
			slog.WarnContext(ctx, "Demo readings could not be persisted", slog.String(logging.FieldError, err.Error()))
		}
	}
	return s.statusLocked()
}

// generateDemoReadings returns one reading per day, ending at now. Systolic is 110-149, diastolic 65-94.
func generateDemoReadings(now time.Time) reading.Collection {
	result := make(reading.Collection, 0, demoDays)
	for i := 0; i < demoDays; i++ {
		result = append(result, reading.Reading{
			Systolic:  120 + rand.IntN(40) - 10,
			Diastolic: 70 + rand.IntN(30) - 5,
			DateTime:  reading.FormatTime(now.AddDate(0, 0, -i)),
			Source:    reading.SourceDemo,
		})
	}
	return result
}
