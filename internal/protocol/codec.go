package protocol

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
)

// maxFrameSize bounds a single frame so a bad client cannot make the server
// allocate unbounded memory.
const maxFrameSize = 1 << 20

// ErrUnknownMessage is returned by Codec.Decode for identifiers the codec has
// no decoder for. Callers log and ignore these; they are not fatal.
var ErrUnknownMessage = errors.New("unknown message identifier")

// Codec converts between typed messages and their wire payload. Framing is
// handled separately by ReadFrame/WriteFrame so the codec stays a pure
// bytes-to-message mapping.
type Codec interface {
	// Encode serializes the message body, without framing.
	Encode(msg Message) ([]byte, error)
	// Decode parses a message body for the given identifier. Returns
	// ErrUnknownMessage when the identifier is not recognized and a
	// *Error when the body is malformed.
	Decode(id MessageID, body []byte) (Message, error)
}

// ReadFrame reads one length-prefixed frame: uvarint total length, uvarint
// message identifier, body bytes.
func ReadFrame(r io.ByteReader) (MessageID, []byte, error) {
	length, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, err
	}
	if length > maxFrameSize {
		return 0, nil, &Error{Reason: fmt.Sprintf("frame of %d bytes exceeds limit", length)}
	}
	id, err := binary.ReadUvarint(r)
	if err != nil {
		return 0, nil, err
	}
	idLen := uvarintLen(id)
	if uint64(idLen) > length {
		return 0, nil, &Error{Reason: "frame length shorter than its header"}
	}
	body := make([]byte, length-uint64(idLen))
	for i := range body {
		b, err := r.ReadByte()
		if err != nil {
			return 0, nil, err
		}
		body[i] = b
	}
	return MessageID(id), body, nil
}

// WriteFrame writes one frame for an already-encoded body.
func WriteFrame(w io.Writer, id MessageID, body []byte) error {
	var header [2 * binary.MaxVarintLen64]byte
	idLen := binary.PutUvarint(header[binary.MaxVarintLen64:], uint64(id))
	total := uint64(idLen + len(body))
	lenLen := binary.PutUvarint(header[:], total)

	frame := make([]byte, 0, lenLen+idLen+len(body))
	frame = append(frame, header[:lenLen]...)
	frame = append(frame, header[binary.MaxVarintLen64:binary.MaxVarintLen64+idLen]...)
	frame = append(frame, body...)
	_, err := w.Write(frame)
	return err
}

func uvarintLen(v uint64) int {
	var buf [binary.MaxVarintLen64]byte
	return binary.PutUvarint(buf[:], v)
}

// JSONCodec is the default codec: message bodies are JSON objects. It exists
// so the server is runnable and testable end to end; a production deployment
// swaps in its own Codec.
type JSONCodec struct{}

// NewJSONCodec returns the default JSON codec.
func NewJSONCodec() *JSONCodec { return &JSONCodec{} }

func (*JSONCodec) Encode(msg Message) ([]byte, error) {
	body, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("encode message 0x%02x: %w", int32(msg.ID()), err)
	}
	return body, nil
}

func (*JSONCodec) Decode(id MessageID, body []byte) (Message, error) {
	factory, ok := messageFactories[id]
	if !ok {
		return nil, ErrUnknownMessage
	}
	msg := factory()
	if err := json.Unmarshal(body, msg); err != nil {
		return nil, &Error{MessageID: id, Reason: err.Error()}
	}
	return msg, nil
}

var messageFactories = map[MessageID]func() Message{
	IDHandshake:        func() Message { return &Handshake{} },
	IDStatusRequest:    func() Message { return &StatusRequest{} },
	IDPing:             func() Message { return &Ping{} },
	IDLoginStart:       func() Message { return &LoginStart{} },
	IDKeepAliveReply:   func() Message { return &KeepAliveReply{} },
	IDChat:             func() Message { return &Chat{} },
	IDPlayerPosition:   func() Message { return &PlayerPosition{} },
	IDPlayerDigging:    func() Message { return &PlayerDigging{} },
	IDBlockPlacement:   func() Message { return &BlockPlacement{} },
	IDStatusResponse:   func() Message { return &StatusResponse{} },
	IDPong:             func() Message { return &Pong{} },
	IDLoginSuccess:     func() Message { return &LoginSuccess{} },
	IDDisconnect:       func() Message { return &Disconnect{} },
	IDKeepAlive:        func() Message { return &KeepAlive{} },
	IDChatBroadcast:    func() Message { return &ChatBroadcast{} },
	IDPlayerListAdd:    func() Message { return &PlayerListAdd{} },
	IDPlayerListRemove: func() Message { return &PlayerListRemove{} },
	IDSpawnPlayer:      func() Message { return &SpawnPlayer{} },
	IDPlayerMoved:      func() Message { return &PlayerMoved{} },
	IDBlockChange:      func() Message { return &BlockChange{} },
	IDChunkData:        func() Message { return &ChunkData{} },
}
