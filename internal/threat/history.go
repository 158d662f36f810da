package threat

import (
	"sync"

	lru "github.com/hashicorp/golang-lru/v2"

	"threatScope/internal/model"
)

// History keeps the most recent alerts by ID, evicting the oldest at capacity.
type History struct {
	mu     sync.Mutex
	alerts *lru.Cache[string, model.ThreatAlert]
}

func NewHistory(capacity int) (*History, error) {
	cache, err := lru.New[string, model.ThreatAlert](capacity)
	if err != nil {
		return nil, err
	}
	return &History{alerts: cache}, nil
}

func (h *History) Record(alert model.ThreatAlert) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.alerts.Add(alert.ID, alert)
}

func (h *History) Get(id string) (model.ThreatAlert, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.alerts.Peek(id)
}

func (h *History) Len() int {
	return h.alerts.Len()
}

// Recent returns alerts oldest first.
func (h *History) Recent() []model.ThreatAlert {
	h.mu.Lock()
	defer h.mu.Unlock()

	keys := h.alerts.Keys()
	out := make([]model.ThreatAlert, 0, len(keys))
	for _, key := range keys {
		if alert, ok := h.alerts.Peek(key); ok {
			out = append(out, alert)
		}
	}
	return out
}
