package audio

import "sync"

// Handle is the exclusive owner of at most one live [Playback].
//
// Swapping in a new resource always releases the previous one first, so
// there is never a window in which two resources are simultaneously owned.
// All methods are safe for concurrent use.
type Handle struct {
	mu sync.Mutex
	pb Playback
}

// Swap releases the currently held playback (pausing it first) and then
// takes ownership of pb. Passing nil is equivalent to [Handle.Release].
// It returns the error from closing the previous resource, if any; the new
// resource is owned regardless.
func (h *Handle) Swap(pb Playback) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	var closeErr error
	if h.pb != nil {
		h.pb.Pause()
		closeErr = h.pb.Close()
	}
	h.pb = pb
	return closeErr
}

// Release closes and drops the held playback. Calling Release on an empty
// handle is a no-op; calling it repeatedly is safe.
func (h *Handle) Release() error {
	return h.Swap(nil)
}

// Get returns the live playback, or nil when none is held.
func (h *Handle) Get() Playback {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.pb
}

// Live reports whether a playback is currently owned.
func (h *Handle) Live() bool {
	return h.Get() != nil
}
