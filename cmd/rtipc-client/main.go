// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rtipc-client is the initiator side of the demo channel
// vector: it drives a scripted sequence of commands against the
// server and listens for events in the background.
//
// Grounded on original_source/examples/client.rs.
package main

import (
	"os"
	"sync/atomic"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"code.hybscloud.com/rtipc"
	"code.hybscloud.com/rtipc/internal/demo"
)

type cliFlags struct {
	Config string `help:"Path to a TOML config file." type:"existingfile" optional:""`
	Socket string `help:"Override the socket path from the config." optional:""`
}

func main() {
	var c cliFlags
	kong.Parse(&c, kong.Description("rtipc demo client: scripted command/response/event run"))

	logger := log.NewLogfmtLogger(os.Stderr)

	cfg := demo.DefaultConfig()
	if c.Config != "" {
		if _, err := toml.DecodeFile(c.Config, &cfg); err != nil {
			level.Error(logger).Log("msg", "failed to read config", "err", err)
			os.Exit(1)
		}
	}
	if c.Socket != "" {
		cfg.Socket = c.Socket
	}

	spec := rtipc.VectorSpec{
		Info: []byte("rtipc-demo"),
		Producers: []rtipc.ChannelSpec{
			{AdditionalMessages: cfg.Command.AdditionalMessages, MessageSize: 16, WakeUp: cfg.Command.WakeUp, Info: []byte("command")},
		},
		Consumers: []rtipc.ChannelSpec{
			{AdditionalMessages: cfg.Response.AdditionalMessages, MessageSize: 12, WakeUp: cfg.Response.WakeUp, Info: []byte("response")},
			{AdditionalMessages: cfg.Event.AdditionalMessages, MessageSize: 8, WakeUp: cfg.Event.WakeUp, Info: []byte("event")},
		},
	}

	vec, err := rtipc.Dial(cfg.Socket, spec, rtipc.WithLogger(logger))
	if err != nil {
		level.Error(logger).Log("msg", "handshake failed", "err", err)
		os.Exit(1)
	}
	defer func() { _ = vec.Close() }()

	app, err := newApp(vec, logger)
	if err != nil {
		level.Error(logger).Log("msg", "failed to construct app", "err", err)
		os.Exit(1)
	}

	app.run(scriptedCommands())
}

func scriptedCommands() []demo.MsgCommand {
	return []demo.MsgCommand{
		{ID: uint32(demo.CommandHello), Args: [3]int32{1, 2, 0}},
		{ID: uint32(demo.CommandSendEvent), Args: [3]int32{11, 20, 0}},
		{ID: uint32(demo.CommandSendEvent), Args: [3]int32{12, 20, 1}},
		{ID: uint32(demo.CommandDiv), Args: [3]int32{100, 7, 0}},
		{ID: uint32(demo.CommandDiv), Args: [3]int32{100, 0, 0}},
		{ID: uint32(demo.CommandStop), Args: [3]int32{0, 0, 0}},
	}
}

type app struct {
	logger     log.Logger
	command    *rtipc.Producer[demo.MsgCommand]
	response   *rtipc.Consumer[demo.MsgResponse]
	event      *rtipc.Consumer[demo.MsgEvent]
	stopEvents atomic.Bool
	eventsDone chan struct{}
}

func newApp(vec *rtipc.ChannelVector, logger log.Logger) (*app, error) {
	commandQ, commandWake, err := vec.TakeProducer(0)
	if err != nil {
		return nil, err
	}
	command, err := rtipc.NewProducer[demo.MsgCommand](commandQ, commandWake)
	if err != nil {
		return nil, err
	}

	responseQ, responseWake, err := vec.TakeConsumer(0)
	if err != nil {
		return nil, err
	}
	response, err := rtipc.NewConsumer[demo.MsgResponse](responseQ, responseWake)
	if err != nil {
		return nil, err
	}

	eventQ, eventWake, err := vec.TakeConsumer(1)
	if err != nil {
		return nil, err
	}
	event, err := rtipc.NewConsumer[demo.MsgEvent](eventQ, eventWake)
	if err != nil {
		return nil, err
	}

	a := &app{logger: logger, command: command, response: response, event: event, eventsDone: make(chan struct{})}
	go a.handleEvents()
	return a, nil
}

func (a *app) handleEvents() {
	defer close(a.eventsDone)
	for !a.stopEvents.Load() {
		result, err := a.event.Pop()
		if err != nil {
			level.Error(a.logger).Log("msg", "event pop failed", "err", err)
			return
		}
		switch result {
		case rtipc.PopNoMessage, rtipc.PopNoNewMessage:
			time.Sleep(10 * time.Millisecond)
			continue
		}
		evt, _ := a.event.CurrentMessage()
		level.Info(a.logger).Log("msg", "received event", "id", evt.ID, "nr", evt.Nr)
	}
}

func (a *app) run(cmds []demo.MsgCommand) {
	for _, cmd := range cmds {
		*a.command.CurrentMessage() = cmd
		if _, err := a.command.ForcePush(); err != nil {
			level.Error(a.logger).Log("msg", "command push failed", "err", err)
			return
		}

		for {
			result, err := a.response.Pop()
			if err != nil {
				level.Error(a.logger).Log("msg", "response pop failed", "err", err)
				return
			}
			if result == rtipc.PopNoMessage || result == rtipc.PopNoNewMessage {
				time.Sleep(10 * time.Millisecond)
				continue
			}
			rsp, _ := a.response.CurrentMessage()
			level.Info(a.logger).Log("msg", "received response", "id", rsp.ID, "result", rsp.Result, "data", rsp.Data)
			break
		}
	}

	time.Sleep(100 * time.Millisecond)
	a.stopEvents.Store(true)
	<-a.eventsDone
}
