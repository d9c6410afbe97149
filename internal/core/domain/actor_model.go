package domain

import "time"

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_ENGINE       = "engine"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// RunChargeCheckRequest asks the engine actor to execute one
// charge-decision run. Force bypasses the run-after hour gate.
type RunChargeCheckRequest struct {
	ActorRequestMixIn
	Force bool
}

type RunChargeCheckResponse struct {
	ActorResponseMixIn
	Result RunResult
}

// RunReportUploadRequest asks the engine actor to build and upload
// generation reports for the given date range (inclusive).
type RunReportUploadRequest struct {
	ActorRequestMixIn
	From time.Time
	To   time.Time
}

type RunReportUploadResponse struct {
	ActorResponseMixIn
	Uploaded int
	Failed   int
}

// GetLastRunRequest returns the result of the most recent charge-check
// run, if any.
type GetLastRunRequest struct {
	ActorRequestMixIn
}

type GetLastRunResponse struct {
	ActorResponseMixIn
	Result *RunResult
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
