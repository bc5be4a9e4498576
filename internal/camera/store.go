package camera

import "sync/atomic"

// Store publishes the current camera model to readers on other goroutines.
//
// Writers replace the whole model; readers take one snapshot per frame and
// never see a partially updated calibration.
type Store struct {
	model   atomic.Pointer[Model]
	version atomic.Uint64
}

// NewStore returns a store holding m. A nil m stores DefaultModel.
func NewStore(m *Model) *Store {
	if m == nil {
		m = DefaultModel()
	}
	s := &Store{}
	s.model.Store(m)
	return s
}

// Load returns the current model.
func (s *Store) Load() *Model {
	return s.model.Load()
}

// Swap publishes m after validating it and returns the previous model.
func (s *Store) Swap(m *Model) (*Model, error) {
	if err := m.CheckValid(); err != nil {
		return nil, err
	}
	old := s.model.Swap(m)
	s.version.Add(1)
	return old, nil
}

// Version counts successful swaps since the store was created.
func (s *Store) Version() uint64 {
	return s.version.Load()
}
