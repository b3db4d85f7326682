package api

import (
	"context"
	"time"

	"github.com/matheus3301/convsync/internal/bus"
	convsyncv1 "github.com/matheus3301/convsync/internal/rpc/v1"
	intsync "github.com/matheus3301/convsync/internal/sync"
	"github.com/matheus3301/convsync/internal/transport"
)

const healthProbeTimeout = 2 * time.Second

// DaemonService implements the DaemonService gRPC service.
type DaemonService struct {
	convsyncv1.UnimplementedDaemonServiceServer

	profile   string
	startedAt time.Time
	gateway   *transport.Client
	channels  *transport.Manager
	engine    *intsync.Engine
	bus       *bus.Bus
}

// NewDaemonService creates the status service. gateway may be nil in tests.
func NewDaemonService(profile string, gateway *transport.Client, channels *transport.Manager, engine *intsync.Engine, b *bus.Bus) *DaemonService {
	return &DaemonService{
		profile:   profile,
		startedAt: time.Now(),
		gateway:   gateway,
		channels:  channels,
		engine:    engine,
		bus:       b,
	}
}

func (s *DaemonService) GetStatus(ctx context.Context, _ *convsyncv1.GetStatusRequest) (*convsyncv1.GetStatusResponse, error) {
	resp := &convsyncv1.GetStatusResponse{
		Profile:      s.profile,
		UptimeMs:     time.Since(s.startedAt).Milliseconds(),
		ParkedStatus: int32(s.engine.ParkedCount()),
		Channels:     []convsyncv1.ChannelState{},
	}
	if s.bus != nil {
		resp.DroppedEvents = s.bus.Dropped()
	}

	if s.gateway != nil {
		resp.GatewayURL = s.gateway.BaseURL().String()
		probeCtx, cancel := context.WithTimeout(ctx, healthProbeTimeout)
		_, err := s.gateway.Health(probeCtx)
		cancel()
		resp.GatewayOK = err == nil
	}

	states := s.channels.States()
	for _, id := range s.channels.IDs() {
		st, ok := states[id]
		if !ok {
			continue
		}
		resp.Channels = append(resp.Channels, convsyncv1.ChannelState{
			ConversationID: id,
			State:          string(st),
		})
	}
	return resp, nil
}
