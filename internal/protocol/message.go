// Package protocol defines the typed messages exchanged with clients and the
// codec contract that turns wire frames into those messages. The server core
// never inspects raw bytes itself; everything goes through a Codec.
package protocol

import (
	"fmt"

	"github.com/google/uuid"
)

// MessageID identifies a message type on the wire.
type MessageID int32

// Serverbound message identifiers.
const (
	IDHandshake      MessageID = 0x00
	IDStatusRequest  MessageID = 0x01
	IDPing           MessageID = 0x02
	IDLoginStart     MessageID = 0x03
	IDKeepAliveReply MessageID = 0x04
	IDChat           MessageID = 0x05
	IDPlayerPosition MessageID = 0x06
	IDPlayerDigging  MessageID = 0x07
	IDBlockPlacement MessageID = 0x08
)

// Clientbound message identifiers.
const (
	IDStatusResponse   MessageID = 0x40
	IDPong             MessageID = 0x41
	IDLoginSuccess     MessageID = 0x42
	IDDisconnect       MessageID = 0x43
	IDKeepAlive        MessageID = 0x44
	IDChatBroadcast    MessageID = 0x45
	IDPlayerListAdd    MessageID = 0x46
	IDPlayerListRemove MessageID = 0x47
	IDSpawnPlayer      MessageID = 0x48
	IDPlayerMoved      MessageID = 0x49
	IDBlockChange      MessageID = 0x4A
	IDChunkData        MessageID = 0x4B
)

// Message is any typed message that can cross the wire.
type Message interface {
	ID() MessageID
}

// Position is a point in world space.
type Position struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// BlockLocation addresses a single block.
type BlockLocation struct {
	X int32 `json:"x"`
	Y int32 `json:"y"`
	Z int32 `json:"z"`
}

// BlockFace is the face of a block a player acted on.
type BlockFace int32

const (
	FaceBottom BlockFace = iota
	FaceTop
	FaceNorth
	FaceSouth
	FaceWest
	FaceEast
)

// Offset returns the location adjacent to l across the given face.
func (l BlockLocation) Offset(face BlockFace) BlockLocation {
	switch face {
	case FaceBottom:
		l.Y--
	case FaceTop:
		l.Y++
	case FaceNorth:
		l.Z--
	case FaceSouth:
		l.Z++
	case FaceWest:
		l.X--
	case FaceEast:
		l.X++
	}
	return l
}

// ChatChannel distinguishes where a chat-class message is rendered.
type ChatChannel int8

const (
	ChannelChat ChatChannel = iota
	ChannelSystem
	ChannelActionBar
)

// Handshake next-state selectors.
const (
	NextStatus int32 = 1
	NextLogin  int32 = 2
)

// BlockTypeAir is the block type broadcast for a dug-out block.
const BlockTypeAir int32 = 0

// Handshake opens a connection and selects the follow-up state.
type Handshake struct {
	ProtocolVersion int32 `json:"protocol_version"`
	NextState       int32 `json:"next_state"`
}

func (*Handshake) ID() MessageID { return IDHandshake }

// StatusRequest asks for a server status summary.
type StatusRequest struct{}

func (*StatusRequest) ID() MessageID { return IDStatusRequest }

// Ping measures round-trip time during the status flow.
type Ping struct {
	Payload int64 `json:"payload"`
}

func (*Ping) ID() MessageID { return IDPing }

// LoginStart begins authentication with the desired username.
type LoginStart struct {
	Username string `json:"username"`
}

func (*LoginStart) ID() MessageID { return IDLoginStart }

// KeepAliveReply answers a server keep-alive probe.
type KeepAliveReply struct {
	Token int64 `json:"token"`
}

func (*KeepAliveReply) ID() MessageID { return IDKeepAliveReply }

// Chat carries an inbound chat line or slash command.
type Chat struct {
	Text string `json:"text"`
}

func (*Chat) ID() MessageID { return IDChat }

// PlayerPosition reports the client's new position.
type PlayerPosition struct {
	Position Position `json:"position"`
	OnGround bool     `json:"on_ground"`
}

func (*PlayerPosition) ID() MessageID { return IDPlayerPosition }

// PlayerDigging reports a block being dug out.
type PlayerDigging struct {
	Location BlockLocation `json:"location"`
}

func (*PlayerDigging) ID() MessageID { return IDPlayerDigging }

// BlockPlacement reports a block being placed against a face.
type BlockPlacement struct {
	Location BlockLocation `json:"location"`
	Face     BlockFace     `json:"face"`
	HeldItem int32         `json:"held_item"`
}

func (*BlockPlacement) ID() MessageID { return IDBlockPlacement }

// StatusResponse summarizes the server for the status flow.
type StatusResponse struct {
	Version     string `json:"version"`
	Online      int    `json:"online"`
	Max         int    `json:"max"`
	Description string `json:"description"`
}

func (*StatusResponse) ID() MessageID { return IDStatusResponse }

// Pong answers a Ping with the same payload.
type Pong struct {
	Payload int64 `json:"payload"`
}

func (*Pong) ID() MessageID { return IDPong }

// LoginSuccess confirms authentication and reports the assigned identity.
type LoginSuccess struct {
	PlayerID uuid.UUID `json:"player_id"`
	Username string    `json:"username"`
}

func (*LoginSuccess) ID() MessageID { return IDLoginSuccess }

// Disconnect tells the client why the connection is being closed.
type Disconnect struct {
	Reason string `json:"reason"`
}

func (*Disconnect) ID() MessageID { return IDDisconnect }

// KeepAlive is the server liveness probe.
type KeepAlive struct {
	Token int64 `json:"token"`
}

func (*KeepAlive) ID() MessageID { return IDKeepAlive }

// ChatBroadcast delivers a chat-class message to a client.
type ChatBroadcast struct {
	Text    string      `json:"text"`
	Channel ChatChannel `json:"channel"`
}

func (*ChatBroadcast) ID() MessageID { return IDChatBroadcast }

// PlayerListAdd adds an entry to the client's online-player list.
type PlayerListAdd struct {
	PlayerID uuid.UUID `json:"player_id"`
	Username string    `json:"username"`
}

func (*PlayerListAdd) ID() MessageID { return IDPlayerListAdd }

// PlayerListRemove removes an entry from the client's online-player list.
type PlayerListRemove struct {
	PlayerID uuid.UUID `json:"player_id"`
}

func (*PlayerListRemove) ID() MessageID { return IDPlayerListRemove }

// SpawnPlayer makes another player visible to a client.
type SpawnPlayer struct {
	EntityID int32     `json:"entity_id"`
	PlayerID uuid.UUID `json:"player_id"`
	Username string    `json:"username"`
	Position Position  `json:"position"`
}

func (*SpawnPlayer) ID() MessageID { return IDSpawnPlayer }

// PlayerMoved reports another player's new position.
type PlayerMoved struct {
	PlayerID uuid.UUID `json:"player_id"`
	Position Position  `json:"position"`
}

func (*PlayerMoved) ID() MessageID { return IDPlayerMoved }

// BlockChange reports a single block mutation.
type BlockChange struct {
	Location  BlockLocation `json:"location"`
	BlockType int32         `json:"block_type"`
}

func (*BlockChange) ID() MessageID { return IDBlockChange }

// ChunkData streams one terrain chunk to a client.
type ChunkData struct {
	X       int32   `json:"x"`
	Z       int32   `json:"z"`
	Heights []int32 `json:"heights"`
}

func (*ChunkData) ID() MessageID { return IDChunkData }

// Error is a protocol-level failure scoped to one connection. The session
// that produced it is disconnected; the error never propagates further.
type Error struct {
	MessageID MessageID
	Reason    string
}

func (e *Error) Error() string {
	return fmt.Sprintf("protocol error on message 0x%02x: %s", int32(e.MessageID), e.Reason)
}
