package domain

import (
	"github.com/asynkron/protoactor-go/actor"
)

// ActorRequest is a message that may name who gets the answer. A nil ReplyTo
// sends the answer back to the sender.
type ActorRequest interface {
	ReplyTo() *actor.PID
}

type ActorRequestMixIn struct {
	ReplyToPID *actor.PID
}

func (r ActorRequestMixIn) ReplyTo() *actor.PID {
	return r.ReplyToPID
}

// ActorResponse is the answer to an ActorRequest, Err is nil on success.
type ActorResponse interface {
	Err() error
}

type ActorResponseMixIn struct {
	ResponseError error
}

func (r ActorResponseMixIn) Err() error {
	return r.ResponseError
}
