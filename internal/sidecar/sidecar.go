// Package sidecar implements the Worker-Side Runtime: the event loop a
// ProcessWorker's re-exec'd child runs, hosting exactly one Plugin and
// exchanging framed commands with the master over a dialed Connection.
package sidecar

import (
	"io"

	"github.com/pkg/errors"
	"github.com/tjper/workerfabric/internal/conn"
	"github.com/tjper/workerfabric/internal/endpoint"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/plugin"
	"github.com/tjper/workerfabric/internal/protocol"
)

var logger = log.New(io.Discard, "sidecar")

// SetLogOutput redirects package logging.
func SetLogOutput(w io.Writer) { logger = log.New(w, "sidecar") }

// Exit codes returned by Run, passed to os.Exit by cmd/master's sidecar
// subcommand.
const (
	ExitSuccess = 0
	// ExitPluginLoad indicates the named plugin was not registered or
	// failed Initialize.
	ExitPluginLoad = 2
	// ExitConnect indicates the runtime could not dial the master's
	// endpoint.
	ExitConnect = 1
)

// Run loads pluginName, dials the connection endpoint, sends CONNECTED,
// then drives the event loop described in §4.7: QUIT triggers a graceful
// shutdown; every other command is handed to the plugin, whose reply
// callback is serialized back over the Connection in emission order.
// Run blocks until the Connection closes or QUIT is received.
func Run(pluginName, connectionName string) int {
	p, ok := plugin.Lookup(pluginName)
	if !ok {
		logger.Errorf("no plugin registered as %q", pluginName)
		return ExitPluginLoad
	}
	if ok := p.Initialize(); !ok {
		logger.Errorf("plugin %q failed to initialize", pluginName)
		return ExitPluginLoad
	}
	defer p.Shutdown()

	c, err := endpoint.Dial(connectionName)
	if err != nil {
		logger.Errorf("dial %q; error: %s", connectionName, errors.WithStack(err))
		return ExitConnect
	}
	defer c.Close()

	c.Send(protocol.CmdConnected, nil)

	reply := func(cmd int32, payload []byte) {
		c.Send(cmd, payload)
	}

	for ev := range c.Events() {
		switch ev.Kind {
		case conn.CommandReceived:
			if ev.Cmd == protocol.CmdQuit {
				c.Send(protocol.CmdDisconnect, nil)
				return ExitSuccess
			}
			p.Handle(ev.Cmd, ev.Payload, reply)
		case conn.Error:
			logger.Warnf("connection error: %s", ev.Reason)
		case conn.Disconnected:
			return ExitSuccess
		}
	}

	return ExitSuccess
}
