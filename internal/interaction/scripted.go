package interaction

import (
	"fmt"
	"sync"
)

// Scripted answers prompts from a fixed list of responses, in order. It is
// used for scripted sessions and tests. Confirm accepts "y"/"yes".
type Scripted struct {
	mu        sync.Mutex
	responses []string
	Asked     []string
}

func NewScripted(responses ...string) *Scripted {
	return &Scripted{responses: responses}
}

func (s *Scripted) next(title string) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.Asked = append(s.Asked, title)
	if len(s.responses) == 0 {
		return "", fmt.Errorf("%w: %s (script exhausted)", ErrNonInteractive, title)
	}
	r := s.responses[0]
	s.responses = s.responses[1:]
	return r, nil
}

func (s *Scripted) Input(title string, _ []string) (string, error) { return s.next(title) }

func (s *Scripted) Secret(title string) (string, error) { return s.next(title) }

func (s *Scripted) Select(title string, _ []string) (string, error) { return s.next(title) }

func (s *Scripted) SelectValue(title string, _ []SelectOption) (string, error) {
	return s.next(title)
}

func (s *Scripted) Confirm(title string) (bool, error) {
	r, err := s.next(title)
	if err != nil {
		return false, err
	}
	return r == "y" || r == "yes", nil
}
