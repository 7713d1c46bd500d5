// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package demo holds the message shapes and channel-vector layout
// shared by the rtipc-server and rtipc-client example programs: one
// command queue (client → server), one response queue and one event
// queue (server → client).
//
// Grounded on original_source/examples/common/mod.rs and
// original_source/examples/server.rs/client.rs.
package demo

// CommandID enumerates the demo's command kinds.
type CommandID uint32

const (
	CommandHello CommandID = iota + 1
	CommandStop
	CommandSendEvent
	CommandDiv
)

// MsgCommand is the fixed-layout payload of the command queue.
type MsgCommand struct {
	ID   uint32
	Args [3]int32
}

// MsgResponse is the fixed-layout payload of the response queue.
type MsgResponse struct {
	ID     uint32
	Result int32
	Data   int32
}

// MsgEvent is the fixed-layout payload of the event queue.
type MsgEvent struct {
	ID uint32
	Nr uint32
}

// Config is the TOML document read by both programs: the socket path
// and, for each channel, its additional-message count and wake-up flag.
// Only the client uses the channel entries; message shapes and sizes are
// fixed in code (MsgCommand, MsgResponse, MsgEvent).
type Config struct {
	Socket string `toml:"socket"`

	Command  ChannelConfig `toml:"command"`
	Response ChannelConfig `toml:"response"`
	Event    ChannelConfig `toml:"event"`
}

// ChannelConfig is one channel's dimensions, as stored in the TOML
// document.
type ChannelConfig struct {
	AdditionalMessages int  `toml:"additional_messages"`
	WakeUp             bool `toml:"wake_up"`
}

// DefaultConfig returns the configuration used when no TOML file is
// supplied.
func DefaultConfig() Config {
	return Config{
		Socket:   "rtipc.sock",
		Command:  ChannelConfig{AdditionalMessages: 5, WakeUp: true},
		Response: ChannelConfig{AdditionalMessages: 2, WakeUp: false},
		Event:    ChannelConfig{AdditionalMessages: 13, WakeUp: true},
	}
}
