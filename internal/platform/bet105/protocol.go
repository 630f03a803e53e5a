package bet105

import (
	"encoding/json"
	"fmt"
	"strconv"
)

// The sportsbook feed speaks socket.io over a raw websocket. Only the
// handful of frame types the feed actually uses are implemented here:
// the engine.io open/ping/pong control frames and socket.io connect and
// event packets, including binary events whose payload arrives as a
// separate binary frame.

// engine.io packet types (first byte of every text frame).
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
)

// socket.io packet types (second byte of a message frame).
const (
	socketConnect     = '0'
	socketEvent       = '2'
	socketBinaryEvent = '5'
)

// frame is a decoded socket.io text frame.
type frame struct {
	engineType byte
	socketType byte

	// attachments is the number of binary frames that follow a binary
	// event, each standing in for a placeholder in the JSON body.
	attachments int

	// data is the JSON remainder of the frame.
	data []byte
}

// parseFrame decodes one engine.io text frame.
func parseFrame(raw []byte) (frame, error) {
	if len(raw) == 0 {
		return frame{}, fmt.Errorf("bet105: empty frame")
	}

	f := frame{engineType: raw[0], data: raw[1:]}

	switch f.engineType {
	case engineOpen, engineClose, enginePing, enginePong:
		return f, nil
	case engineMessage:
	default:
		return frame{}, fmt.Errorf("bet105: unknown engine.io packet %q", f.engineType)
	}

	if len(f.data) == 0 {
		return frame{}, fmt.Errorf("bet105: empty socket.io packet")
	}
	f.socketType = f.data[0]
	f.data = f.data[1:]

	// Binary events carry an attachment count before the JSON body:
	// "45<count>-[...]".
	if f.socketType == socketBinaryEvent {
		i := 0
		for i < len(f.data) && f.data[i] != '-' {
			i++
		}
		if i == len(f.data) {
			return frame{}, fmt.Errorf("bet105: binary event without attachment count")
		}
		n, err := strconv.Atoi(string(f.data[:i]))
		if err != nil {
			return frame{}, fmt.Errorf("bet105: attachment count: %w", err)
		}
		f.attachments = n
		f.data = f.data[i+1:]
	}

	return f, nil
}

// openParams is the engine.io handshake body.
type openParams struct {
	SID          string `json:"sid"`
	PingInterval int    `json:"pingInterval"`
	PingTimeout  int    `json:"pingTimeout"`
}

// eventBody is the decoded ["name", arg] pair of a socket.io event.
type eventBody struct {
	Name string
	Arg  json.RawMessage
}

// parseEvent splits a socket.io event body into its name and first
// argument.
func parseEvent(data []byte) (eventBody, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return eventBody{}, fmt.Errorf("bet105: event body: %w", err)
	}
	if len(parts) < 1 {
		return eventBody{}, fmt.Errorf("bet105: event body has no name")
	}

	var ev eventBody
	if err := json.Unmarshal(parts[0], &ev.Name); err != nil {
		return eventBody{}, fmt.Errorf("bet105: event name: %w", err)
	}
	if len(parts) > 1 {
		ev.Arg = parts[1]
	}
	return ev, nil
}

// isPlaceholder reports whether an event argument is a binary
// attachment placeholder.
func isPlaceholder(arg json.RawMessage) bool {
	var p struct {
		Placeholder bool `json:"_placeholder"`
	}
	return json.Unmarshal(arg, &p) == nil && p.Placeholder
}

// encodeSubscribe builds the subscribe emit for a set of room names.
func encodeSubscribe(rooms []string) ([]byte, error) {
	type room struct {
		RoomName string `json:"roomName"`
	}
	rs := make([]room, len(rooms))
	for i, r := range rooms {
		rs[i] = room{RoomName: r}
	}

	body, err := json.Marshal([]any{"subscribe", rs})
	if err != nil {
		return nil, fmt.Errorf("bet105: encode subscribe: %w", err)
	}
	return append([]byte("42"), body...), nil
}
