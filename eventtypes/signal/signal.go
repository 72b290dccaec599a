package signal

// IsSignal returns whether the event is a signal type
func (s *Signal) IsSignal() bool {
	return true
}

// GetDirection returns the direction
func (s *Signal) GetDirection() Direction {
	return s.Direction
}

// SetDirection sets the direction
func (s *Signal) SetDirection(d Direction) {
	s.Direction = d
}

// IsNil says if the event is nil
func (s *Signal) IsNil() bool {
	return s == nil
}
