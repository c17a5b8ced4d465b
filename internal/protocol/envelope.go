// Package protocol defines the message envelopes exchanged over the local
// IPC channel between the background service and the management client.
//
// On the wire every message is one JSON object:
//
//	{"type": "<variant>", "correlationId": "<caller token>", "payload": {...}}
//
// The type discriminator recovers the exact concrete variant on decode; an
// unrecognized discriminator is a decode error, never a silent default.
package protocol

import (
	"encoding/json"
	"fmt"
	"time"

	"rsm-agent/internal/catalog"
	"rsm-agent/internal/config"
)

// Message is implemented by every envelope variant.
type Message interface {
	Kind() string
	Correlation() string
	SetCorrelation(id string)
}

// Meta carries the correlation id shared by all variants. It is excluded from
// the payload object; the codec moves it to the envelope.
type Meta struct {
	CorrelationID string `json:"-"`
}

func (m *Meta) Correlation() string      { return m.CorrelationID }
func (m *Meta) SetCorrelation(id string) { m.CorrelationID = id }

// Request variants.

type GetStatsRequest struct{ Meta }

type GetAppsRequest struct{ Meta }

type SaveAppRequest struct {
	Meta
	App catalog.App `json:"app"`
}

type ServiceStatusRequest struct{ Meta }

type LaunchAppRequest struct {
	Meta
	Slot string `json:"slot"`
}

type SaveRsmConfigRequest struct {
	Meta
	Settings config.ListenerSettings `json:"settings"`
}

// Response variants.

type GetStatsResponse struct {
	Meta
	Hostname  string   `json:"hostname"`
	UptimeSec int64    `json:"uptimeSec"`
	Addresses []string `json:"addresses,omitempty"`
	Version   string   `json:"version"`
}

type GetAppsResponse struct {
	Meta
	Apps []catalog.App `json:"apps"`
}

type SaveAppResponse struct {
	Meta
	Saved bool `json:"saved"`
}

type ServiceStatusResponse struct {
	Meta
	Running       bool      `json:"running"`
	StartedAt     time.Time `json:"startedAt"`
	Version       string    `json:"version"`
	ListenerState string    `json:"listenerState"`
}

type LaunchAppResponse struct {
	Meta
	Launched bool `json:"launched"`
}

type SaveRsmConfigResponse struct{ Meta }

// ErrorResponse reports an application failure on the service side. The
// client never treats it as a typed success; it becomes a RemoteError.
type ErrorResponse struct {
	Meta
	Message       string `json:"message"`
	ExceptionKind string `json:"exceptionKind,omitempty"`
	StackTrace    string `json:"stackTrace,omitempty"`
}

func (*GetStatsRequest) Kind() string       { return "GetStatsRequest" }
func (*GetAppsRequest) Kind() string        { return "GetAppsRequest" }
func (*SaveAppRequest) Kind() string        { return "SaveAppRequest" }
func (*ServiceStatusRequest) Kind() string  { return "ServiceStatusRequest" }
func (*LaunchAppRequest) Kind() string      { return "LaunchAppRequest" }
func (*SaveRsmConfigRequest) Kind() string  { return "SaveRsmConfigRequest" }
func (*GetStatsResponse) Kind() string      { return "GetStatsResponse" }
func (*GetAppsResponse) Kind() string       { return "GetAppsResponse" }
func (*SaveAppResponse) Kind() string       { return "SaveAppResponse" }
func (*ServiceStatusResponse) Kind() string { return "ServiceStatusResponse" }
func (*LaunchAppResponse) Kind() string     { return "LaunchAppResponse" }
func (*SaveRsmConfigResponse) Kind() string { return "SaveRsmConfigResponse" }
func (*ErrorResponse) Kind() string         { return "ErrorResponse" }

var variants = map[string]func() Message{
	"GetStatsRequest":       func() Message { return &GetStatsRequest{} },
	"GetAppsRequest":        func() Message { return &GetAppsRequest{} },
	"SaveAppRequest":        func() Message { return &SaveAppRequest{} },
	"ServiceStatusRequest":  func() Message { return &ServiceStatusRequest{} },
	"LaunchAppRequest":      func() Message { return &LaunchAppRequest{} },
	"SaveRsmConfigRequest":  func() Message { return &SaveRsmConfigRequest{} },
	"GetStatsResponse":      func() Message { return &GetStatsResponse{} },
	"GetAppsResponse":       func() Message { return &GetAppsResponse{} },
	"SaveAppResponse":       func() Message { return &SaveAppResponse{} },
	"ServiceStatusResponse": func() Message { return &ServiceStatusResponse{} },
	"LaunchAppResponse":     func() Message { return &LaunchAppResponse{} },
	"SaveRsmConfigResponse": func() Message { return &SaveRsmConfigResponse{} },
	"ErrorResponse":         func() Message { return &ErrorResponse{} },
}

type envelope struct {
	Type          string          `json:"type"`
	CorrelationID string          `json:"correlationId"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func Encode(msg Message) ([]byte, error) {
	payload, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode %s payload: %w", msg.Kind(), err)
	}
	return json.Marshal(envelope{
		Type:          msg.Kind(),
		CorrelationID: msg.Correlation(),
		Payload:       payload,
	})
}

func Decode(data []byte) (Message, error) {
	var env envelope
	if err := json.Unmarshal(data, &env); err != nil {
		return nil, fmt.Errorf("decode envelope: %w", err)
	}
	newMsg, ok := variants[env.Type]
	if !ok {
		return nil, fmt.Errorf("decode envelope: unknown message type %q", env.Type)
	}
	msg := newMsg()
	if len(env.Payload) > 0 {
		if err := json.Unmarshal(env.Payload, msg); err != nil {
			return nil, fmt.Errorf("decode %s payload: %w", env.Type, err)
		}
	}
	msg.SetCorrelation(env.CorrelationID)
	return msg, nil
}
