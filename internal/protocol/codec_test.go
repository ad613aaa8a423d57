package protocol_test

import (
	"bufio"
	"bytes"
	"errors"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/annelo/go-game-server/internal/protocol"
)

func TestFrameRoundTrip(t *testing.T) {
	codec := protocol.NewJSONCodec()

	msgs := []protocol.Message{
		&protocol.Handshake{ProtocolVersion: 4, NextState: protocol.NextLogin},
		&protocol.LoginStart{Username: "Alice"},
		&protocol.Chat{Text: "hello world"},
		&protocol.PlayerPosition{Position: protocol.Position{X: 1.5, Y: 64, Z: -3.25}, OnGround: true},
		&protocol.BlockPlacement{
			Location: protocol.BlockLocation{X: -1, Y: 10, Z: 7},
			Face:     protocol.FaceTop,
			HeldItem: 3,
		},
		&protocol.LoginSuccess{PlayerID: uuid.New(), Username: "Alice"},
		&protocol.ChunkData{X: -2, Z: 5, Heights: []int32{1, 2, 3}},
	}

	var buf bytes.Buffer
	for _, msg := range msgs {
		body, err := codec.Encode(msg)
		require.NoError(t, err)
		require.NoError(t, protocol.WriteFrame(&buf, msg.ID(), body))
	}

	r := bufio.NewReader(&buf)
	for _, want := range msgs {
		id, body, err := protocol.ReadFrame(r)
		require.NoError(t, err)
		assert.Equal(t, want.ID(), id)

		got, err := codec.Decode(id, body)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
}

func TestReadFrame_OversizedFrame(t *testing.T) {
	// A declared length beyond the limit must be rejected before any body
	// bytes are read.
	var buf bytes.Buffer
	buf.Write([]byte{0x80, 0x80, 0x80, 0x01}) // uvarint 1<<21

	_, _, err := protocol.ReadFrame(bufio.NewReader(&buf))
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
}

func TestReadFrame_LengthShorterThanHeader(t *testing.T) {
	var buf bytes.Buffer
	buf.WriteByte(0)    // total length 0
	buf.WriteByte(0x05) // identifier takes one byte

	_, _, err := protocol.ReadFrame(bufio.NewReader(&buf))
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
}

func TestReadFrame_TruncatedBody(t *testing.T) {
	var buf bytes.Buffer
	body := []byte(`{"text":"hi"}`)
	require.NoError(t, protocol.WriteFrame(&buf, protocol.IDChat, body))

	truncated := buf.Bytes()[:buf.Len()-4]
	_, _, err := protocol.ReadFrame(bufio.NewReader(bytes.NewReader(truncated)))
	assert.Error(t, err)
}

func TestJSONCodec_UnknownIdentifier(t *testing.T) {
	codec := protocol.NewJSONCodec()

	_, err := codec.Decode(protocol.MessageID(0x7F), []byte(`{}`))
	assert.True(t, errors.Is(err, protocol.ErrUnknownMessage))
}

func TestJSONCodec_MalformedBody(t *testing.T) {
	codec := protocol.NewJSONCodec()

	_, err := codec.Decode(protocol.IDChat, []byte(`{not json`))
	var perr *protocol.Error
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, protocol.IDChat, perr.MessageID)
}

func TestBlockLocation_Offset(t *testing.T) {
	origin := protocol.BlockLocation{X: 0, Y: 0, Z: 0}

	cases := []struct {
		face protocol.BlockFace
		want protocol.BlockLocation
	}{
		{protocol.FaceBottom, protocol.BlockLocation{Y: -1}},
		{protocol.FaceTop, protocol.BlockLocation{Y: 1}},
		{protocol.FaceNorth, protocol.BlockLocation{Z: -1}},
		{protocol.FaceSouth, protocol.BlockLocation{Z: 1}},
		{protocol.FaceWest, protocol.BlockLocation{X: -1}},
		{protocol.FaceEast, protocol.BlockLocation{X: 1}},
	}
	for _, tc := range cases {
		assert.Equal(t, tc.want, origin.Offset(tc.face))
	}
}
