// Package fileplugin implements the "file" protocol plugin: a Job whose
// URL scheme is "file" is serviced in-process (see internal/pool's
// file-is-a-ThreadWorker rule) by reading a local path and streaming it
// back to the Job as DATA/RESULT frames.
package fileplugin

import (
	"encoding/json"
	"io"
	"os"

	"github.com/tjper/workerfabric/internal/plugin"
	"github.com/tjper/workerfabric/internal/protocol"
)

const chunkSize = 1 << 16

func init() {
	plugin.Register("file", func() plugin.Plugin { return &Plugin{} })
}

// Request is the payload schema a Job submitting a "file" task sends: the
// local filesystem path to read. This is an example over-the-wire
// schema for one protocol, not a fabric-wide contract.
type Request struct {
	Path string `json:"path"`
}

// Plugin reads a file named by the task payload and replies with its
// contents in DATA frames, followed by a terminal RESULT frame carrying
// the total byte count.
type Plugin struct{}

// Initialize implements plugin.Plugin.
func (p *Plugin) Initialize() bool { return true }

// Shutdown implements plugin.Plugin.
func (p *Plugin) Shutdown() {}

// Handle implements plugin.Plugin.
func (p *Plugin) Handle(cmd int32, payload []byte, reply plugin.Reply) {
	if !protocol.IsTaskCmd(cmd) {
		reply(protocol.CmdError, []byte("fileplugin: unsupported command"))
		return
	}

	var req Request
	if err := json.Unmarshal(payload, &req); err != nil {
		reply(protocol.CmdError, []byte("fileplugin: malformed request: "+err.Error()))
		return
	}

	f, err := os.Open(req.Path)
	if err != nil {
		reply(protocol.CmdError, []byte("fileplugin: open: "+err.Error()))
		return
	}
	defer f.Close()

	var total int
	buf := make([]byte, chunkSize)
	for {
		n, err := f.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			reply(protocol.CmdData, chunk)
			total += n
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			reply(protocol.CmdError, []byte("fileplugin: read: "+err.Error()))
			return
		}
	}

	result, _ := json.Marshal(struct {
		Bytes int `json:"bytes"`
	}{Bytes: total})
	reply(protocol.CmdResult, result)
}
