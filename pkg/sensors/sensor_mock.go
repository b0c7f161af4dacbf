package sensors

import "github.com/stretchr/testify/mock"

type SensorMock struct {
	mock.Mock
}

func (s *SensorMock) Read() (float64, error) {
	args := s.Called()
	return args.Get(0).(float64), args.Error(1)
}

// MotionMock plays back a fixed sequence of levels, repeating the last one.
type MotionMock struct {
	Levels []bool
	calls  int
}

func (m *MotionMock) Detected() (bool, error) {
	if len(m.Levels) == 0 {
		return false, nil
	}
	idx := m.calls
	if idx >= len(m.Levels) {
		idx = len(m.Levels) - 1
	}
	m.calls++
	return m.Levels[idx], nil
}
