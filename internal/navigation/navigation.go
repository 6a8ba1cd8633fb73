// Package navigation is the screen router: a current screen plus a LIFO
// history of the screens that led to it.
package navigation

import "sync"

type Screen string

const (
	Splash       Screen = "splash"
	Home         Screen = "home"
	PoemDisplay  Screen = "poem_display"
	CardExplorer Screen = "card_explorer"
	Letter       Screen = "letter"
	Collection   Screen = "collection"

	// SingleCardDetail is reachable from Collection only and is not part of
	// the primary screen set.
	SingleCardDetail Screen = "single_card_detail"
)

// Controller is safe for concurrent use. All operations are total.
type Controller struct {
	mu      sync.Mutex
	current Screen
	history []Screen
}

// New starts at initial with an empty history.
func New(initial Screen) *Controller {
	return &Controller{current: initial}
}

// NavigateTo pushes the current screen and moves to target. target is not
// validated.
func (c *Controller) NavigateTo(target Screen) Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.history = append(c.history, c.current)
	c.current = target
	return c.current
}

// GoBack pops the most recent screen, or lands on Home when there is none.
func (c *Controller) GoBack() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	if n := len(c.history); n > 0 {
		c.current = c.history[n-1]
		c.history = c.history[:n-1]
	} else {
		c.current = Home
	}
	return c.current
}

// Replace swaps the current screen without touching the history.
func (c *Controller) Replace(target Screen) Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.current = target
	return c.current
}

func (c *Controller) Current() Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// History returns a copy of the stack, oldest first.
func (c *Controller) History() []Screen {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Screen(nil), c.history...)
}
