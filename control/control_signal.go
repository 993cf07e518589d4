package control

import "sync"

// Signal holds any data passed between blocks.
type Signal struct {
	mu        sync.Mutex
	name      string
	blockType BlockType
	signal    []float64
}

// NewSignal returns a zeroed signal of the given dimension.
func NewSignal(name string, dimension int) *Signal {
	return makeSignal(name, "", dimension)
}

func makeSignal(name string, blockType BlockType, dimension int) *Signal {
	return &Signal{
		name:      name,
		blockType: blockType,
		signal:    make([]float64, dimension),
	}
}

// Name returns the name of the block that produced the signal.
func (s *Signal) Name() string {
	return s.name
}

// Dimension returns the number of values carried by the signal.
func (s *Signal) Dimension() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.signal)
}

// GetSignalValueAt returns the value of the signal at an index, 0 when out of range.
func (s *Signal) GetSignalValueAt(i int) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i > len(s.signal)-1 {
		return 0.0
	}
	return s.signal[i]
}

// SetSignalValueAt sets the value of the signal at an index, ignoring out of range indices.
func (s *Signal) SetSignalValueAt(i int, val float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if i < 0 || i > len(s.signal)-1 {
		return
	}
	s.signal[i] = val
}

// Values returns a copy of the signal values.
func (s *Signal) Values() []float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]float64, len(s.signal))
	copy(out, s.signal)
	return out
}

// SetValues replaces the signal values, resizing when needed.
func (s *Signal) SetValues(vals []float64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.signal) != len(vals) {
		s.signal = make([]float64, len(vals))
	}
	copy(s.signal, vals)
}
