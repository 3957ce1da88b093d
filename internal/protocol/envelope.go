// Package protocol defines the coordinator to worker wire format: one JSON envelope per line,
// with a JSON-encoded payload carried as a string in Data.
package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

const (
	TypeWorkerRegistration    = "WORKER_REGISTRATION"
	TypeWorkerRegistrationAck = "WORKER_REGISTRATION_ACK"
	TypeAIMoveRequest         = "AI_MOVE_REQUEST"
	TypeAIMoveResponse        = "AI_MOVE_RESPONSE"
	TypeValidateMoveRequest   = "VALIDATE_MOVE_REQUEST"
	TypeValidateMoveResponse  = "VALIDATE_MOVE_RESPONSE"
	TypeHealthCheck           = "HEALTH_CHECK"
	TypeHealthCheckResponse   = "HEALTH_CHECK_RESPONSE"
	TypePing                  = "PING"
	TypePong                  = "PONG"
	TypeErrorResponse         = "ERROR_RESPONSE"
)

const (
	StatusSuccess = "SUCCESS"
	StatusError   = "ERROR"
)

var ErrMalformedEnvelope = errors.New("malformed envelope")

type Envelope struct {
	RequestID    string    `json:"requestId"`
	Type         string    `json:"type"`
	Data         string    `json:"data"`
	Status       string    `json:"status,omitempty"`
	ErrorMessage string    `json:"errorMessage,omitempty"`
	Timestamp    time.Time `json:"timestamp"`
}

// NewRequest - envelope with a fresh correlation id.
func NewRequest(requestType string, payload any) (*Envelope, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		RequestID: uuid.NewString(),
		Type:      requestType,
		Data:      data,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewResponse - successful reply correlated to request.
func NewResponse(request *Envelope, responseType string, payload any) (*Envelope, error) {
	data, err := encodePayload(payload)
	if err != nil {
		return nil, err
	}

	return &Envelope{
		RequestID: request.RequestID,
		Type:      responseType,
		Data:      data,
		Status:    StatusSuccess,
		Timestamp: time.Now().UTC(),
	}, nil
}

// NewErrorResponse - ERROR_RESPONSE correlated to requestID, which may be empty for unparsable input.
func NewErrorResponse(requestID, message string) *Envelope {
	return &Envelope{
		RequestID:    requestID,
		Type:         TypeErrorResponse,
		Status:       StatusError,
		ErrorMessage: message,
		Timestamp:    time.Now().UTC(),
	}
}

func (that *Envelope) IsSuccess() bool {
	return that.Status == StatusSuccess
}

// Decode - unmarshals Data into payload.
func (that *Envelope) Decode(payload any) error {
	if that.Data == "" {
		return fmt.Errorf("%w: empty data for %s", ErrMalformedEnvelope, that.Type)
	}

	if err := json.Unmarshal([]byte(that.Data), payload); err != nil {
		return fmt.Errorf("failed to unmarshal %s payload: %w", that.Type, err)
	}

	return nil
}

func encodePayload(payload any) (string, error) {
	if payload == nil {
		return "", nil
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	return string(data), nil
}
