package selector

import (
	"sync"
	"testing"
	"time"

	"github.com/MrSnakeDoc/selectord/internal/domain"
	"github.com/MrSnakeDoc/selectord/internal/logger"
	"github.com/MrSnakeDoc/selectord/internal/store/memory"
)

var fixedNow = time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)

func clockAt(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

// scriptedIDs returns the given ids in order, then falls back to a sequence.
type scriptedIDs struct {
	mu   sync.Mutex
	ids  []string
	rest *SequenceGenerator
}

func (s *scriptedIDs) NewID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.ids) > 0 {
		id := s.ids[0]
		s.ids = s.ids[1:]
		return id
	}
	return s.rest.NewID()
}

func newTestService(t *testing.T) (*Service, *memory.Store) {
	t.Helper()
	st := memory.New()
	svc := NewService(st, logger.NewNop(), Options{
		IDs: NewSequenceGenerator("id-"),
		Now: clockAt(fixedNow),
	})
	return svc, st
}

// svcA is the reference selector: one zookeeper discovery and one upstream.
func svcA() *domain.ProxySelectorSpec {
	return &domain.ProxySelectorSpec{
		Name:        "svc-a",
		ForwardPort: 8080,
		Discovery: &domain.DiscoverySpec{
			Type:       "zookeeper",
			ServerList: "127.0.0.1:2181",
		},
		ListenerNode: "/svc-a",
		Upstreams: []domain.UpstreamSpec{
			{URL: "10.0.0.1:9000", Weight: 50},
		},
	}
}
