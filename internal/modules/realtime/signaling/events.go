package signaling

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

var (
	ErrUnknownKind   = errors.New("signaling: unknown event kind")
	ErrNoDestination = errors.New("signaling: event has no destination")
)

// Kind names an inbound client event.
type Kind string

const (
	KindOnline         Kind = "user:online"
	KindOffer          Kind = "webrtc:offer"
	KindAnswer         Kind = "webrtc:answer"
	KindCandidate      Kind = "webrtc:candidate"
	KindChatSend       Kind = "chat:send"
	KindChatTyping     Kind = "chat:typing"
	KindPrivateSend    Kind = "private:send"
	KindPrivateTyping  Kind = "private:typing"
	KindFriendRequest  Kind = "friend:request"
	KindFriendResponse Kind = "friend:response"
	KindHangup         Kind = "call:hangup"
	KindMatchIncoming  Kind = "match:incoming"
)

// Outbound event names that differ from their inbound kind.
const (
	EventChatMessage    = "chat:message"
	EventPrivateMessage = "private:message"
)

const (
	messageTypeCall    = "call"
	messageTypePrivate = "private"
)

// Event is one relayable client event. The set of implementations is closed.
type Event interface {
	Kind() Kind
	// Destination is the room the event is delivered to. A user id is its
	// own room.
	Destination() string
	// Outbound builds the event name and payload sent to the destination.
	Outbound(from string, now time.Time) (string, any)
	sealed()
}

// Kinds lists every relayable kind. KindOnline is handled by the hub.
func Kinds() []Kind {
	return []Kind{
		KindOffer, KindAnswer, KindCandidate,
		KindChatSend, KindChatTyping,
		KindPrivateSend, KindPrivateTyping,
		KindFriendRequest, KindFriendResponse,
		KindHangup, KindMatchIncoming,
	}
}

// Decode parses the payload of an inbound event of the given kind.
func Decode(kind Kind, raw []byte) (Event, error) {
	var ev Event
	switch kind {
	case KindOffer:
		ev = &Offer{}
	case KindAnswer:
		ev = &Answer{}
	case KindCandidate:
		ev = &Candidate{}
	case KindChatSend:
		ev = &ChatSend{}
	case KindChatTyping:
		ev = &ChatTyping{}
	case KindPrivateSend:
		ev = &PrivateSend{}
	case KindPrivateTyping:
		ev = &PrivateTyping{}
	case KindFriendRequest:
		ev = &FriendRequest{}
	case KindFriendResponse:
		ev = &FriendResponse{}
	case KindHangup:
		ev = &Hangup{}
	case KindMatchIncoming:
		ev = &MatchIncoming{}
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}

	if len(raw) > 0 {
		if err := json.Unmarshal(raw, ev); err != nil {
			return nil, fmt.Errorf("decode %s: %w", kind, err)
		}
	}
	if strings.TrimSpace(ev.Destination()) == "" {
		return nil, fmt.Errorf("%w: %s", ErrNoDestination, kind)
	}
	return ev, nil
}

// Inbound payloads.

type Offer struct {
	To  string          `json:"to"`
	SDP json.RawMessage `json:"sdp"`
}

type Answer struct {
	To  string          `json:"to"`
	SDP json.RawMessage `json:"sdp"`
}

type Candidate struct {
	To        string          `json:"to"`
	Candidate json.RawMessage `json:"candidate"`
}

// ChatSend is in-call chat addressed to the call room, not a user.
type ChatSend struct {
	ToRoom string `json:"toRoom"`
	Text   string `json:"text"`
}

type ChatTyping struct {
	To     string `json:"to"`
	Typing bool   `json:"typing"`
}

type PrivateSend struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

type PrivateTyping struct {
	To     string `json:"to"`
	Typing bool   `json:"typing"`
}

type FriendRequest struct {
	To        string          `json:"to"`
	RequestID json.RawMessage `json:"requestId"`
	Message   string          `json:"message"`
}

type FriendResponse struct {
	To       string `json:"to"`
	Accepted bool   `json:"accepted"`
}

type Hangup struct {
	To string `json:"to"`
}

type MatchIncoming struct {
	To         string          `json:"to"`
	Partner    json.RawMessage `json:"partner"`
	RoomID     string          `json:"roomId"`
	CallLogID  string          `json:"callLogId"`
	IceServers json.RawMessage `json:"iceServers"`
}

// Outbound payloads.

type SessionDescriptionMessage struct {
	From string          `json:"from"`
	SDP  json.RawMessage `json:"sdp"`
}

type CandidateMessage struct {
	From      string          `json:"from"`
	Candidate json.RawMessage `json:"candidate"`
}

type TextMessage struct {
	From string `json:"from"`
	Text string `json:"text"`
	TS   int64  `json:"ts"`
	Type string `json:"type"`
}

type TypingMessage struct {
	From   string `json:"from"`
	Typing bool   `json:"typing"`
}

type FriendRequestMessage struct {
	From      string          `json:"from"`
	RequestID json.RawMessage `json:"requestId,omitempty"`
	Message   string          `json:"message"`
}

type FriendResponseMessage struct {
	From     string `json:"from"`
	Accepted bool   `json:"accepted"`
}

type HangupMessage struct {
	From string `json:"from"`
}

// MatchIncomingMessage tells a user they were matched. Partner and
// IceServers are passed through without interpretation.
type MatchIncomingMessage struct {
	From       string `json:"from,omitempty"`
	Partner    any    `json:"partner"`
	RoomID     string `json:"roomId"`
	CallLogID  string `json:"callLogId"`
	IceServers any    `json:"iceServers"`
	DistanceKm any    `json:"distanceKm,omitempty"`
}

func (*Offer) Kind() Kind          { return KindOffer }
func (*Answer) Kind() Kind         { return KindAnswer }
func (*Candidate) Kind() Kind      { return KindCandidate }
func (*ChatSend) Kind() Kind       { return KindChatSend }
func (*ChatTyping) Kind() Kind     { return KindChatTyping }
func (*PrivateSend) Kind() Kind    { return KindPrivateSend }
func (*PrivateTyping) Kind() Kind  { return KindPrivateTyping }
func (*FriendRequest) Kind() Kind  { return KindFriendRequest }
func (*FriendResponse) Kind() Kind { return KindFriendResponse }
func (*Hangup) Kind() Kind         { return KindHangup }
func (*MatchIncoming) Kind() Kind  { return KindMatchIncoming }

func (e *Offer) Destination() string          { return e.To }
func (e *Answer) Destination() string         { return e.To }
func (e *Candidate) Destination() string      { return e.To }
func (e *ChatSend) Destination() string       { return e.ToRoom }
func (e *ChatTyping) Destination() string     { return e.To }
func (e *PrivateSend) Destination() string    { return e.To }
func (e *PrivateTyping) Destination() string  { return e.To }
func (e *FriendRequest) Destination() string  { return e.To }
func (e *FriendResponse) Destination() string { return e.To }
func (e *Hangup) Destination() string         { return e.To }
func (e *MatchIncoming) Destination() string  { return e.To }

func (e *Offer) Outbound(from string, _ time.Time) (string, any) {
	return string(KindOffer), SessionDescriptionMessage{From: from, SDP: e.SDP}
}

func (e *Answer) Outbound(from string, _ time.Time) (string, any) {
	return string(KindAnswer), SessionDescriptionMessage{From: from, SDP: e.SDP}
}

func (e *Candidate) Outbound(from string, _ time.Time) (string, any) {
	return string(KindCandidate), CandidateMessage{From: from, Candidate: e.Candidate}
}

func (e *ChatSend) Outbound(from string, now time.Time) (string, any) {
	return EventChatMessage, TextMessage{From: from, Text: e.Text, TS: now.UnixMilli(), Type: messageTypeCall}
}

func (e *ChatTyping) Outbound(from string, _ time.Time) (string, any) {
	return string(KindChatTyping), TypingMessage{From: from, Typing: e.Typing}
}

func (e *PrivateSend) Outbound(from string, now time.Time) (string, any) {
	return EventPrivateMessage, TextMessage{From: from, Text: e.Text, TS: now.UnixMilli(), Type: messageTypePrivate}
}

func (e *PrivateTyping) Outbound(from string, _ time.Time) (string, any) {
	return string(KindPrivateTyping), TypingMessage{From: from, Typing: e.Typing}
}

func (e *FriendRequest) Outbound(from string, _ time.Time) (string, any) {
	return string(KindFriendRequest), FriendRequestMessage{From: from, RequestID: e.RequestID, Message: e.Message}
}

func (e *FriendResponse) Outbound(from string, _ time.Time) (string, any) {
	return string(KindFriendResponse), FriendResponseMessage{From: from, Accepted: e.Accepted}
}

func (e *Hangup) Outbound(from string, _ time.Time) (string, any) {
	return string(KindHangup), HangupMessage{From: from}
}

func (e *MatchIncoming) Outbound(from string, _ time.Time) (string, any) {
	return string(KindMatchIncoming), MatchIncomingMessage{
		From:       from,
		Partner:    e.Partner,
		RoomID:     e.RoomID,
		CallLogID:  e.CallLogID,
		IceServers: e.IceServers,
	}
}

func (*Offer) sealed()          {}
func (*Answer) sealed()         {}
func (*Candidate) sealed()      {}
func (*ChatSend) sealed()       {}
func (*ChatTyping) sealed()     {}
func (*PrivateSend) sealed()    {}
func (*PrivateTyping) sealed()  {}
func (*FriendRequest) sealed()  {}
func (*FriendResponse) sealed() {}
func (*Hangup) sealed()         {}
func (*MatchIncoming) sealed()  {}
