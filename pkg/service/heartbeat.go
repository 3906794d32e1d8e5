package service

import (
	"context"
	"runtime"
	"time"

	"github.com/pbnjay/memory"

	"github.com/vctt94/pokerfabric/pkg/message"
	"github.com/vctt94/pokerfabric/pkg/protocol"
)

// announce broadcasts the service's registration so siblings can build
// their peer directories without a discovery round-trip.
func (s *TableService) announce() {
	m, err := s.t.NewMessage(message.TypeServiceRegistration).JSON(protocol.ServiceInfo{
		ServiceID: s.cfg.ID,
		Kind:      KindTable,
		TableID:   s.cfg.TableID,
	}).Build()
	if err != nil {
		s.log.Errorf("build registration: %v", err)
		return
	}
	s.t.Broadcast(context.Background(), m)
}

// heartbeatLoop broadcasts liveness and process stats until Close.
func (s *TableService) heartbeatLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cfg.HeartbeatInterval)
	defer ticker.Stop()
	for {
		select {
		case <-s.quit:
			return
		case <-ticker.C:
		}

		hb := s.collectHeartbeat()
		m, err := s.t.NewMessage(message.TypeHeartbeat).JSON(hb).Build()
		if err != nil {
			s.log.Errorf("build heartbeat: %v", err)
			continue
		}
		s.t.Broadcast(context.Background(), m)
		s.log.Tracef("heartbeat %d: %d goroutines, heap %d, rss %d",
			hb.Seq, hb.Goroutines, hb.HeapBytes, hb.RSSBytes)
	}
}

// collectHeartbeat snapshots process stats. RSS comes from /proc and
// stays zero on platforms without it.
func (s *TableService) collectHeartbeat() protocol.Heartbeat {
	var ms runtime.MemStats
	runtime.ReadMemStats(&ms)

	hb := protocol.Heartbeat{
		ServiceID:  s.cfg.ID,
		Seq:        s.hbSeq.Add(1),
		UptimeSec:  int64(time.Since(s.started) / time.Second),
		Goroutines: runtime.NumGoroutine(),
		HeapBytes:  ms.HeapAlloc,
		SysBytes:   memory.TotalMemory(),
	}
	if s.proc != nil {
		if stat, err := s.proc.Stat(); err == nil {
			hb.RSSBytes = uint64(stat.ResidentMemory())
		}
	}
	return hb
}
