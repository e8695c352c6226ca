package bundle

import "errors"

// ReadyErr returns an error if no release has been installed
func (s *State) ReadyErr() error {
	if _, ok := s.Get(); !ok {
		return errors.New("bundle: no release installed")
	}
	return nil
}
