package domain

import "encoding/json"

// EventType names a realtime gateway event.
type EventType string

// Client → server.
const (
	EventJoinTicket  EventType = "join_ticket"
	EventSendMessage EventType = "send_message"
	EventVerifyPin   EventType = "verify_pin"
)

// Server → client.
const (
	EventTicketHistory     EventType = "ticket_history"
	EventNewMessage        EventType = "new_message"
	EventRequestPin        EventType = "request_pin"
	EventPinMissing        EventType = "pin_missing"
	EventPinSuccess        EventType = "pin_success"
	EventPinFailed         EventType = "pin_failed"
	EventRequestResolution EventType = "request_resolution"
	EventTicketClosed      EventType = "ticket_closed"
	EventTicketError       EventType = "ticket_error"
)

// Event is one realtime frame. Data stays raw until the consumer decodes it.
type Event struct {
	Type EventType       `json:"event"`
	Data json.RawMessage `json:"data,omitempty"`
}

// SendMessagePayload is the send_message event body.
type SendMessagePayload struct {
	TicketID string `json:"ticketId"`
	Content  string `json:"content"`
	ClientID string `json:"clientId,omitempty"`
}

// VerifyPinPayload is the verify_pin event body.
type VerifyPinPayload struct {
	TicketID string `json:"ticketId"`
	Pin      string `json:"pin"`
}

// RequestPinPayload is the request_pin event body.
type RequestPinPayload struct {
	Type string `json:"type"`
}
