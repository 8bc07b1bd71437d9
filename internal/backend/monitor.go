package backend

import "sync"

// Monitor tracks connectivity. The host application feeds state changes in
// via SetOnline; the sync manager subscribes to react to offline->online
// transitions. The core never touches platform event sources directly.
type Monitor struct {
	mu     sync.Mutex
	online bool
	subs   []chan bool
}

func NewMonitor(online bool) *Monitor {
	return &Monitor{online: online}
}

func (m *Monitor) IsOnline() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.online
}

// SetOnline updates connectivity and notifies subscribers on a transition.
// Notification coalesces to the latest state: a subscriber that has not
// drained its channel loses intermediate flips, never the final one.
func (m *Monitor) SetOnline(online bool) {
	m.mu.Lock()
	changed := m.online != online
	m.online = online
	subs := m.subs
	m.mu.Unlock()

	if !changed {
		return
	}
	for _, ch := range subs {
		for {
			select {
			case ch <- online:
			default:
				// Full: discard the stale buffered value and retry.
				select {
				case <-ch:
				default:
				}
				continue
			}
			break
		}
	}
}

// Subscribe returns a channel receiving connectivity transitions.
func (m *Monitor) Subscribe() <-chan bool {
	ch := make(chan bool, 1)
	m.mu.Lock()
	m.subs = append(m.subs, ch)
	m.mu.Unlock()
	return ch
}
