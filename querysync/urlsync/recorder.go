package urlsync

import "sync"

// Navigation is one recorded Navigator call
type Navigation struct {
	Replace bool
	URL     string
}

// Recorder is a Navigator that remembers navigations instead of performing
// them. The HTTP server turns the last one into a redirect.
type Recorder struct {
	mu      sync.Mutex
	history []Navigation
}

// Replace implements Navigator.Replace
func (r *Recorder) Replace(url string) {
	r.record(Navigation{Replace: true, URL: url})
}

// Push implements Navigator.Push
func (r *Recorder) Push(url string) {
	r.record(Navigation{URL: url})
}

func (r *Recorder) record(n Navigation) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = append(r.history, n)
}

// Last returns the most recent navigation, if any
func (r *Recorder) Last() (Navigation, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.history) == 0 {
		return Navigation{}, false
	}
	return r.history[len(r.history)-1], true
}

// History returns every recorded navigation in order
func (r *Recorder) History() []Navigation {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Navigation(nil), r.history...)
}

// Reset forgets all navigations
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.history = nil
}
