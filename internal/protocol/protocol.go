package protocol

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/luciancaetano/kephascord"
)

const (
	maxFrameSize = 4 * 1024 * 1024 // gateway frames are far below this; anything larger is rejected
)

// DecodeError reports an inbound frame that could not be promoted to a
// kephascord.Frame. It matches kephascord.ErrMalformedFrame with errors.Is.
type DecodeError struct {
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", kephascord.ErrMalformedFrame, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", kephascord.ErrMalformedFrame, e.Reason)
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

func (e *DecodeError) Is(target error) bool {
	return target == kephascord.ErrMalformedFrame
}

// wireFrame is the JSON shape of a frame. Pointers distinguish absent fields
// from zero values.
type wireFrame struct {
	Op   *int            `json:"op"`
	Data json.RawMessage `json:"d"`
	Seq  *int64          `json:"s"`
	Type *string         `json:"t"`
}

// Encode serializes a frame to its JSON text form.
// Frames built with kephascord.NewFrame or kephascord.NewDispatchFrame always encode.
func Encode(frame kephascord.Frame) ([]byte, error) {
	if err := frame.Validate(); err != nil {
		return nil, err
	}

	op := int(frame.Op)
	out := wireFrame{Op: &op, Data: frame.Data}
	if len(bytes.TrimSpace(out.Data)) == 0 {
		out.Data = json.RawMessage("null")
	}
	if frame.IsDispatch() {
		t := string(frame.Type)
		out.Type = &t
		out.Seq = frame.Sequence
	}

	data, err := json.Marshal(out)
	if err != nil {
		return nil, fmt.Errorf("encode %s frame: %w", frame.Op, err)
	}
	return data, nil
}

// Decode parses a JSON text frame.
//
// Missing "s" and "t" fields decode as absent. A frame that is not a JSON
// object, lacks "op", names an opcode outside the vocabulary, or breaks the
// rule that exactly the dispatch frames carry an event type yields a *DecodeError.
func Decode(data []byte) (kephascord.Frame, error) {
	if len(data) > maxFrameSize {
		return kephascord.Frame{}, &DecodeError{Reason: fmt.Sprintf("frame size %d exceeds maximum %d bytes", len(data), maxFrameSize)}
	}

	var wf wireFrame
	if err := json.Unmarshal(data, &wf); err != nil {
		return kephascord.Frame{}, &DecodeError{Reason: "invalid JSON", Err: err}
	}
	if wf.Op == nil {
		return kephascord.Frame{}, &DecodeError{Reason: "missing opcode"}
	}

	frame := kephascord.Frame{
		Op:       kephascord.Opcode(*wf.Op),
		Sequence: wf.Seq,
		Data:     wf.Data,
	}
	if wf.Type != nil {
		frame.Type = kephascord.EventType(*wf.Type)
	}
	if !frame.Op.Valid() {
		return kephascord.Frame{}, &DecodeError{Reason: fmt.Sprintf("unknown opcode %d", *wf.Op)}
	}
	if frame.IsDispatch() && frame.Type == "" {
		return kephascord.Frame{}, &DecodeError{Reason: "dispatch frame without event type"}
	}
	if !frame.IsDispatch() {
		if frame.Type != "" {
			return kephascord.Frame{}, &DecodeError{Reason: fmt.Sprintf("%s frame carries event type %q", frame.Op, frame.Type)}
		}
		// Sequence only means something on dispatch frames.
		frame.Sequence = nil
	}
	return frame, nil
}

// DecodeData unmarshals a frame's payload into v.
func DecodeData(frame kephascord.Frame, v any) error {
	if !frame.HasData() {
		return &DecodeError{Reason: fmt.Sprintf("%s frame has no payload", frame.Op)}
	}
	if err := json.Unmarshal(frame.Data, v); err != nil {
		return &DecodeError{Reason: fmt.Sprintf("invalid %s payload", frame.Op), Err: err}
	}
	return nil
}
