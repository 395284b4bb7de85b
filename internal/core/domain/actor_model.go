package domain

import "time"

const (
	ACTOR_ID_MASTER     = "master"
	ACTOR_ID_AGGREGATOR = "aggregator"
	ACTOR_ID_INVERTER   = "inverter"
	ACTOR_ID_METER      = "meter"
	ACTOR_ID_JEEDOM     = "jeedom"
	ACTOR_ID_MQTT       = "mqtt"
	ACTOR_ID_DISCOVERY  = "hadiscovery"
)

// SubmitReadingRequest hands a complete reading to the aggregator.
type SubmitReadingRequest struct {
	ActorRequestMixIn
	Record ReadingRecord
}

type SubmitReadingResponse struct {
	ActorResponseMixIn
	Ready bool
}

type GetPendingBatchRequest struct {
	ActorRequestMixIn
}

type GetPendingBatchResponse struct {
	ActorResponseMixIn
	Enabled bool
	Ready   bool
	Batch   Batch
}

// BatchReadyEvent is published on the event stream once per flushed batch.
type BatchReadyEvent struct {
	Batch     Batch
	FlushedAt time.Time
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors []GenericSensor
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
