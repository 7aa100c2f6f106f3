package checkout

import (
	"fmt"
	"sync"
)

// Navigator moves the client to another view after a state transition.
type Navigator interface {
	Navigate(path string)
}

// OrderRoute is the confirmation view of a saved order.
func OrderRoute(id int64) string {
	return fmt.Sprintf("/order/%d", id)
}

// RouteRecorder remembers the latest navigation so the BFF can hand the target
// route back to the UI.
type RouteRecorder struct {
	mu   sync.Mutex
	last string
}

func (r *RouteRecorder) Navigate(path string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.last = path
}

// Last returns the most recent route, or "" when nothing navigated yet.
func (r *RouteRecorder) Last() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.last
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(path string)

func (f NavigatorFunc) Navigate(path string) { f(path) }
