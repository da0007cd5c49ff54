package orchestrator

import (
	"encoding/json"
	"log"
	"sync"
)

// Hub fans out companion-view events to websocket subscribers, keyed by
// clinician. Slow subscribers are dropped rather than allowed to stall the
// message pipeline.
type Hub struct {
	mu   sync.Mutex
	subs map[string]map[chan []byte]struct{}
}

func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[chan []byte]struct{})}
}

// Subscribe registers a listener for one clinician's events. The returned
// cancel func must be called when the listener goes away.
func (h *Hub) Subscribe(clinicianID string) (<-chan []byte, func()) {
	ch := make(chan []byte, 16)

	h.mu.Lock()
	set, ok := h.subs[clinicianID]
	if !ok {
		set = make(map[chan []byte]struct{})
		h.subs[clinicianID] = set
	}
	set[ch] = struct{}{}
	h.mu.Unlock()

	cancel := func() {
		h.mu.Lock()
		if set, ok := h.subs[clinicianID]; ok {
			delete(set, ch)
			if len(set) == 0 {
				delete(h.subs, clinicianID)
			}
		}
		h.mu.Unlock()
	}
	return ch, cancel
}

// Publish serializes the event and delivers it to every subscriber of the
// clinician, skipping any whose buffer is full.
func (h *Hub) Publish(clinicianID string, event any) {
	raw, err := json.Marshal(event)
	if err != nil {
		log.Printf("hub: marshal event: %v", err)
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs[clinicianID] {
		select {
		case ch <- raw:
		default:
		}
	}
}
