// Package protocol contains the shared constants of the workerfabric wire
// protocol: the partitioned command code space and the re-exec subcommand
// names used to launch sidecar and child processes.
package protocol

// Command codes are partitioned into three ranges. Task codes (100-199) are
// opaque to the transport; Connection and Worker never interpret them.
const (
	// CmdNone is the zero value; never sent.
	CmdNone int32 = 0
	// CmdConnected is sent by a sidecar immediately after dialing its
	// parent's endpoint.
	CmdConnected int32 = 1
	// CmdDisconnect may be sent by either side to signal an orderly close.
	CmdDisconnect int32 = 2
	// CmdQuit instructs a sidecar to shut down its plugin and exit.
	CmdQuit int32 = 3

	// TaskCmdMin is the first command code reserved for task-specific
	// payloads. Values in [TaskCmdMin, TaskCmdMax] are opaque to Connection,
	// Worker, and Scheduler; only the Job and Plugin on either end interpret
	// them.
	TaskCmdMin int32 = 100
	TaskCmdMax int32 = 199

	// CmdResult carries a Job's final artifact.
	CmdResult int32 = 200
	// CmdData carries an intermediate artifact; does not end the Job.
	CmdData int32 = 201
	// CmdError carries a UTF-8 failure reason.
	CmdError int32 = 202
	// CmdProgress carries an int32 percentage, 0-100.
	CmdProgress int32 = 203
)

// IsTaskCmd reports whether cmd falls in the task command range. Task codes
// carry no central registry; this only identifies the partition.
func IsTaskCmd(cmd int32) bool {
	return cmd >= TaskCmdMin && cmd <= TaskCmdMax
}

// Re-exec subcommands. The Master Supervisor and ProcessWorker re-invoke
// the running executable (cmd/master) with one of these as its first
// argument, the same technique the teacher uses for its single "reexec"
// subcommand.
const (
	// SubcommandChild is used by the Master Supervisor to launch a Child
	// Event Loop process.
	SubcommandChild = "child"
	// SubcommandSidecar is used by a ProcessWorker to launch the
	// Worker-Side Runtime.
	SubcommandSidecar = "sidecar"
)
