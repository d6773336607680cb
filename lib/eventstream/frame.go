// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package eventstream

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Engine.IO packet types, the first byte of every WebSocket message.
const (
	engineOpen    = '0'
	engineClose   = '1'
	enginePing    = '2'
	enginePong    = '3'
	engineMessage = '4'
	engineNoop    = '6'
)

// Socket.IO packet types, the first byte of an Engine.IO message
// payload.
const (
	socketConnect      = '0'
	socketDisconnect   = '1'
	socketEvent        = '2'
	socketAck          = '3'
	socketConnectError = '4'
	socketBinaryEvent  = '5'
	socketBinaryAck    = '6'
)

// openPacket is the payload of the Engine.IO open packet. Intervals
// are in milliseconds.
type openPacket struct {
	SessionID    string   `json:"sid"`
	Upgrades     []string `json:"upgrades"`
	PingInterval int      `json:"pingInterval"`
	PingTimeout  int      `json:"pingTimeout"`
	MaxPayload   int      `json:"maxPayload"`
}

// socketPacket is a decoded Socket.IO packet:
//
//	<type>[<attachments>-][<namespace>,][<ack id>][<json>]
type socketPacket struct {
	Type      byte
	Namespace string
	AckID     int
	HasAck    bool
	Data      json.RawMessage
}

var errEmptyPacket = errors.New("empty packet")

func parseOpenPacket(message string) (openPacket, error) {
	if len(message) == 0 || message[0] != engineOpen {
		return openPacket{}, fmt.Errorf("expected Engine.IO open packet, got %q", truncate(message))
	}
	var open openPacket
	if err := json.Unmarshal([]byte(message[1:]), &open); err != nil {
		return openPacket{}, fmt.Errorf("decoding Engine.IO open packet: %w", err)
	}
	if open.SessionID == "" {
		return openPacket{}, errors.New("Engine.IO open packet has no sid")
	}
	return open, nil
}

func parseSocketPacket(payload string) (socketPacket, error) {
	if payload == "" {
		return socketPacket{}, errEmptyPacket
	}
	packet := socketPacket{Type: payload[0], Namespace: "/"}
	rest := payload[1:]

	if packet.Type == socketBinaryEvent || packet.Type == socketBinaryAck {
		return socketPacket{}, errors.New("binary Socket.IO packets are not supported")
	}

	if strings.HasPrefix(rest, "/") {
		end := strings.IndexByte(rest, ',')
		if end < 0 {
			packet.Namespace = rest
			return packet, nil
		}
		packet.Namespace = rest[:end]
		rest = rest[end+1:]
	}

	digits := 0
	for digits < len(rest) && rest[digits] >= '0' && rest[digits] <= '9' {
		digits++
	}
	if digits > 0 {
		id, err := strconv.Atoi(rest[:digits])
		if err != nil {
			return socketPacket{}, fmt.Errorf("parsing ack id: %w", err)
		}
		packet.AckID, packet.HasAck = id, true
		rest = rest[digits:]
	}

	if rest != "" {
		if !json.Valid([]byte(rest)) {
			return socketPacket{}, fmt.Errorf("Socket.IO packet data is not JSON: %q", truncate(rest))
		}
		packet.Data = json.RawMessage(rest)
	}
	return packet, nil
}

// splitEvent separates an event packet's data into the event name
// and its first argument. Events with no argument yield a nil
// payload.
func splitEvent(data json.RawMessage) (string, json.RawMessage, error) {
	var parts []json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return "", nil, fmt.Errorf("event data is not an array: %w", err)
	}
	if len(parts) == 0 {
		return "", nil, errors.New("event data is empty")
	}
	var name string
	if err := json.Unmarshal(parts[0], &name); err != nil {
		return "", nil, fmt.Errorf("event name is not a string: %w", err)
	}
	if len(parts) < 2 {
		return name, nil, nil
	}
	return name, parts[1], nil
}

// connectErrorMessage extracts the message of a CONNECT_ERROR packet,
// which is either {"message": "..."} or a bare string.
func connectErrorMessage(data json.RawMessage) string {
	var body struct {
		Message string `json:"message"`
	}
	if json.Unmarshal(data, &body) == nil && body.Message != "" {
		return body.Message
	}
	var text string
	if json.Unmarshal(data, &text) == nil {
		return text
	}
	return strings.TrimSpace(string(data))
}

// socketConnectPacket is the Socket.IO CONNECT for the default
// namespace, wrapped in an Engine.IO message.
const socketConnectPacket = string(engineMessage) + string(socketConnect)

func truncate(s string) string {
	const limit = 80
	if len(s) <= limit {
		return s
	}
	return s[:limit] + "..."
}
