package storage

import "threatScope/internal/model"

// Storage defines a sink for threat events.
type Storage interface {
	PutEventBatch(events []model.ThreatEvent) error
}
