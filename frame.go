package kephascord

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// Frame is the unit exchanged with the gateway in both directions.
//
// Type is set if and only if Op is OpDispatch. Sequence is only present on
// dispatch frames sent by the server. Data is kept raw: its schema depends
// on Op and Type and is interpreted by whoever consumes the frame.
type Frame struct {
	Op       Opcode
	Sequence *int64
	Type     EventType
	Data     json.RawMessage
}

// NewFrame builds a non-dispatch frame, marshalling data as its payload.
// A nil data is sent as JSON null.
func NewFrame(op Opcode, data any) (Frame, error) {
	if op == OpDispatch {
		return Frame{}, fmt.Errorf("%w: dispatch frames need an event type", ErrMalformedFrame)
	}
	if !op.Valid() {
		return Frame{}, fmt.Errorf("%w: unknown opcode %d", ErrMalformedFrame, op)
	}
	raw, err := marshalData(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Op: op, Data: raw}, nil
}

// NewDispatchFrame builds a dispatch frame carrying the given event.
func NewDispatchFrame(seq int64, eventType EventType, data any) (Frame, error) {
	if eventType == "" {
		return Frame{}, fmt.Errorf("%w: dispatch frames need an event type", ErrMalformedFrame)
	}
	raw, err := marshalData(data)
	if err != nil {
		return Frame{}, err
	}
	return Frame{Op: OpDispatch, Sequence: &seq, Type: eventType, Data: raw}, nil
}

func marshalData(data any) (json.RawMessage, error) {
	switch v := data.(type) {
	case nil:
		return json.RawMessage("null"), nil
	case json.RawMessage:
		if len(v) == 0 {
			return json.RawMessage("null"), nil
		}
		if !json.Valid(v) {
			return nil, fmt.Errorf("%w: payload is not valid JSON", ErrMalformedFrame)
		}
		return v, nil
	}
	raw, err := json.Marshal(data)
	if err != nil {
		return nil, fmt.Errorf("marshal frame payload: %w", err)
	}
	return raw, nil
}

// Validate checks the opcode vocabulary and the dispatch/event type invariant.
func (f Frame) Validate() error {
	if !f.Op.Valid() {
		return fmt.Errorf("%w: unknown opcode %d", ErrMalformedFrame, f.Op)
	}
	if f.Op == OpDispatch && f.Type == "" {
		return fmt.Errorf("%w: dispatch frame without event type", ErrMalformedFrame)
	}
	if f.Op != OpDispatch && f.Type != "" {
		return fmt.Errorf("%w: %s frame carries event type %q", ErrMalformedFrame, f.Op, f.Type)
	}
	return nil
}

// IsDispatch reports whether the frame carries an application event.
func (f Frame) IsDispatch() bool {
	return f.Op == OpDispatch
}

// HasData reports whether the payload is present and not JSON null.
func (f Frame) HasData() bool {
	trimmed := bytes.TrimSpace(f.Data)
	return len(trimmed) > 0 && !bytes.Equal(trimmed, []byte("null"))
}
