package actorutil

import (
	"github.com/asynkron/protoactor-go/actor"
)

// Stash parks messages an actor cannot handle in its current behavior. Replayed
// messages keep their original sender so responses still reach the requester.
type Stash struct {
	pending []stashedMessage
}

type stashedMessage struct {
	message any
	sender  *actor.PID
}

func (s *Stash) Stash(ctx actor.Context, msg any) {
	s.pending = append(s.pending, stashedMessage{message: msg, sender: ctx.Sender()})
}

func (s *Stash) Len() int {
	return len(s.pending)
}

// UnstashAll replays every parked message in arrival order.
func (s *Stash) UnstashAll(ctx actor.Context) {
	pending := s.pending
	s.pending = nil
	for _, m := range pending {
		s.replay(ctx, m)
	}
}

func (s *Stash) UnstashOldest(ctx actor.Context) {
	if len(s.pending) == 0 {
		return
	}
	m := s.pending[0]
	s.pending = s.pending[1:]
	s.replay(ctx, m)
}

func (s *Stash) replay(ctx actor.Context, m stashedMessage) {
	ctx.RequestWithCustomSender(ctx.Self(), m.message, m.sender)
}
