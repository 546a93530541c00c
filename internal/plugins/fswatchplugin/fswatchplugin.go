// Package fswatchplugin implements the "fswatch" protocol plugin: a
// realization of the Realtime search Mechanism (spec §6.5,
// internal/searchengine.Realtime) for a single directory, independent of
// the netlink-fed VFS Event Listener (component M), which watches the
// whole overlay filesystem rather than one caller-chosen path.
package fswatchplugin

import (
	"encoding/json"
	"time"

	"github.com/tjper/workerfabric/internal/fsnotify"
	"github.com/tjper/workerfabric/internal/plugin"
	"github.com/tjper/workerfabric/internal/protocol"
)

func init() {
	plugin.Register("fswatch", func() plugin.Plugin { return &Plugin{} })
}

// Request names the directory to watch. Watching ends when the plugin is
// shut down (on CmdQuit) or its process exits; canceling the Job does not
// by itself stop it.
type Request struct {
	Path string `json:"path"`
}

// Match is one fsnotify.Event relayed to the Job as a DATA frame.
type Match struct {
	Path string `json:"path"`
	Op   string `json:"op"`
}

// Plugin streams filesystem Create/Write events under a watched directory
// back to the Job as DATA frames until shut down.
type Plugin struct {
	watcher *fsnotify.Watcher
}

// Initialize implements plugin.Plugin.
func (p *Plugin) Initialize() bool { return true }

// Shutdown implements plugin.Plugin.
func (p *Plugin) Shutdown() {
	if p.watcher != nil {
		p.watcher.Close()
	}
}

// Handle implements plugin.Plugin.
func (p *Plugin) Handle(cmd int32, payload []byte, reply plugin.Reply) {
	if !protocol.IsTaskCmd(cmd) {
		reply(protocol.CmdError, []byte("fswatchplugin: unsupported command"))
		return
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		reply(protocol.CmdError, []byte("fswatchplugin: malformed request: "+err.Error()))
		return
	}

	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		reply(protocol.CmdError, []byte("fswatchplugin: new watcher: "+err.Error()))
		return
	}
	p.watcher = watcher

	if _, err := watcher.AddWatch(req.Path); err != nil {
		reply(protocol.CmdError, []byte("fswatchplugin: add watch: "+err.Error()))
		return
	}

	// Handle is called synchronously from the sidecar's single event
	// loop (internal/sidecar.Run): a blocking range here would starve
	// that loop and it would never see CmdQuit. Stream matches from a
	// goroutine instead; watcher.Events closes (ending the range) once
	// Shutdown closes the watcher.
	go func() {
		for ev := range watcher.Events {
			if ev.Op == 0 {
				continue
			}
			match, err := json.Marshal(Match{Path: ev.Path, Op: ev.Op.String()})
			if err != nil {
				continue
			}
			reply(protocol.CmdData, match)
		}
		reply(protocol.CmdResult, []byte(time.Now().UTC().Format(time.RFC3339)))
	}()
}
