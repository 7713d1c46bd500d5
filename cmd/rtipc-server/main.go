// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Command rtipc-server is the acceptor side of the demo channel
// vector: one command consumer, one response producer, one event
// producer.
//
// Grounded on original_source/examples/server.rs.
package main

import (
	"os"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/alecthomas/kong"
	"github.com/go-kit/log"
	"github.com/go-kit/log/level"

	"code.hybscloud.com/rtipc"
	"code.hybscloud.com/rtipc/internal/demo"
)

type cli struct {
	Config string `help:"Path to a TOML config file." type:"existingfile" optional:""`
	Socket string `help:"Override the socket path from the config." optional:""`
}

func main() {
	var c cli
	kong.Parse(&c, kong.Description("rtipc demo server: command/response/event channel vector"))

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

	_ = os.Remove(cfg.Socket)
	server, err := rtipc.Listen(cfg.Socket, rtipc.WithLogger(logger), rtipc.WithPredicate(expectShape))
	if err != nil {
		level.Error(logger).Log("msg", "failed to listen", "err", err)
		os.Exit(1)
	}
	defer func() {
		_ = server.Close()
		_ = os.Remove(cfg.Socket)
	}()

	vec, err := server.Accept()
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
	app.run()
}

// expectShape rejects a handshake whose channel counts don't match the
// one-command, one-response, one-event shape this server expects.
func expectShape(vec *rtipc.ChannelVector) bool {
	return vec.NumConsumers() == 1 && vec.NumProducers() == 2
}

type app struct {
	logger   log.Logger
	command  *rtipc.Consumer[demo.MsgCommand]
	response *rtipc.Producer[demo.MsgResponse]
	event    *rtipc.Producer[demo.MsgEvent]
}

func newApp(vec *rtipc.ChannelVector, logger log.Logger) (*app, error) {
	commandQ, commandWake, err := vec.TakeConsumer(0)
	if err != nil {
		return nil, err
	}
	command, err := rtipc.NewConsumer[demo.MsgCommand](commandQ, commandWake)
	if err != nil {
		return nil, err
	}

	// Server's producer list is the client's consumer list, in the
	// same order the client declared it: response first, then event.
	responseQ, responseWake, err := vec.TakeProducer(0)
	if err != nil {
		return nil, err
	}
	response, err := rtipc.NewProducer[demo.MsgResponse](responseQ, responseWake)
	if err != nil {
		return nil, err
	}

	eventQ, eventWake, err := vec.TakeProducer(1)
	if err != nil {
		return nil, err
	}
	event, err := rtipc.NewProducer[demo.MsgEvent](eventQ, eventWake)
	if err != nil {
		return nil, err
	}

	return &app{logger: logger, command: command, response: response, event: event}, nil
}

func (a *app) run() {
	for {
		result, err := a.command.Pop()
		if err != nil {
			level.Error(a.logger).Log("msg", "command pop failed", "err", err)
			return
		}
		switch result {
		case rtipc.PopNoMessage, rtipc.PopNoNewMessage:
			time.Sleep(10 * time.Millisecond)
			continue
		}

		cmd, _ := a.command.CurrentMessage()
		rsp := a.response.CurrentMessage()
		rsp.ID = cmd.ID

		switch demo.CommandID(cmd.ID) {
		case demo.CommandHello:
			rsp.Result = 0
		case demo.CommandStop:
			rsp.Result = 0
			if _, err := a.response.ForcePush(); err != nil {
				level.Error(a.logger).Log("msg", "response push failed", "err", err)
			}
			return
		case demo.CommandSendEvent:
			rsp.Result = a.sendEvents(uint32(cmd.Args[0]), uint32(cmd.Args[1]), cmd.Args[2] != 0)
		case demo.CommandDiv:
			errCode, data := divide(cmd.Args[0], cmd.Args[1])
			rsp.Result = errCode
			rsp.Data = data
		}

		if _, err := a.response.ForcePush(); err != nil {
			level.Error(a.logger).Log("msg", "response push failed", "err", err)
			return
		}
	}
}

func (a *app) sendEvents(id, num uint32, force bool) int32 {
	for i := uint32(0); i < num; i++ {
		evt := a.event.CurrentMessage()
		evt.ID = id
		evt.Nr = i
		if force {
			if _, err := a.event.ForcePush(); err != nil {
				level.Error(a.logger).Log("msg", "event push failed", "err", err)
				return int32(i)
			}
			continue
		}
		result, err := a.event.TryPush()
		if err != nil {
			level.Error(a.logger).Log("msg", "event push failed", "err", err)
			return int32(i)
		}
		if result == rtipc.TryQueueFull {
			return int32(i)
		}
	}
	return int32(num)
}

func divide(a, b int32) (int32, int32) {
	if b == 0 {
		return -1, 0
	}
	return 0, a / b
}
