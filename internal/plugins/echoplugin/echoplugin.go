// Package echoplugin is a minimal sidecar plugin used to exercise
// ProcessWorker's re-exec/connect/command round trip: it echoes every
// task payload back as a single RESULT frame. Real protocol plugins
// (SMB, FTP, ...) follow the same Plugin shape with their own wire
// schema, deliberately left unspecified (spec Non-goal: a stable
// over-the-wire payload schema).
package echoplugin

import (
	"github.com/tjper/workerfabric/internal/plugin"
	"github.com/tjper/workerfabric/internal/protocol"
)

func init() {
	plugin.Register("echo", func() plugin.Plugin { return &Plugin{} })
}

// Plugin echoes its task payload back as RESULT.
type Plugin struct{}

// Initialize implements plugin.Plugin.
func (p *Plugin) Initialize() bool { return true }

// Shutdown implements plugin.Plugin.
func (p *Plugin) Shutdown() {}

// Handle implements plugin.Plugin.
func (p *Plugin) Handle(cmd int32, payload []byte, reply plugin.Reply) {
	if !protocol.IsTaskCmd(cmd) {
		reply(protocol.CmdError, []byte("echoplugin: unsupported command"))
		return
	}
	reply(protocol.CmdResult, payload)
}
