// Command master is the fabric's single entrypoint. Invoked with no
// subcommand it runs the Master Supervisor, the WorkerPool, the
// Scheduler, and the control-plane gRPC API. Invoked as "child" (by the
// Supervisor's own re-exec, internal/supervisor.spawnLocked) or
// "sidecar" (by a ProcessWorker's re-exec, internal/worker.NewProcessWorker)
// it instead plays that inherited role.
//
// A single binary is required: both call sites resolve os.Executable()
// and re-exec themselves with a role argument, so there must be exactly
// one binary on disk for them to find.
package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"

	"github.com/tjper/workerfabric/internal/acceptmutex"
	"github.com/tjper/workerfabric/internal/childloop"
	"github.com/tjper/workerfabric/internal/controlplane"
	"github.com/tjper/workerfabric/internal/encrypt"
	"github.com/tjper/workerfabric/internal/log"
	"github.com/tjper/workerfabric/internal/pool"
	"github.com/tjper/workerfabric/internal/protocol"
	"github.com/tjper/workerfabric/internal/scheduler"
	"github.com/tjper/workerfabric/internal/sidecar"
	"github.com/tjper/workerfabric/internal/supervisor"

	_ "github.com/tjper/workerfabric/internal/plugins/echoplugin"
	_ "github.com/tjper/workerfabric/internal/plugins/fileplugin"
	_ "github.com/tjper/workerfabric/internal/plugins/fswatchplugin"
	_ "github.com/tjper/workerfabric/internal/rpccodec"

	pb "github.com/tjper/workerfabric/proto/gen/go/fabric/v1"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials"
)

var logger = log.New(os.Stdout, "master")

const (
	lisFd   = 3
	mutexFd = 4
)

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case protocol.SubcommandChild:
			os.Exit(runChild())
		case protocol.SubcommandSidecar:
			os.Exit(runSidecar(os.Args[2:]))
		}
	}
	os.Exit(runServe())
}

// runChild plays the re-exec'd Child Event Loop role: fds 3 and 4 are the
// Supervisor's shared listening socket and accept mutex.
func runChild() int {
	childloop.SetLogOutput(os.Stdout)

	mutex, err := acceptmutex.Open(os.NewFile(uintptr(mutexFd), "acceptmutex"))
	if err != nil {
		logger.Errorf("open accept mutex: %s", err)
		return 1
	}

	eventFd, err := childloop.NewShutdownEventFd()
	if err != nil {
		logger.Errorf("create shutdown eventfd: %s", err)
		return 1
	}

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigs
		if err := childloop.SignalShutdown(eventFd); err != nil {
			logger.Errorf("signal shutdown: %s", err)
		}
	}()

	if err := childloop.Run(lisFd, mutex, eventFd, echoDispatch); err != nil {
		logger.Errorf("run child loop: %s", err)
		return 1
	}
	return 0
}

// echoDispatch demonstrates the accept/frame/dispatch path the Child
// Event Loop exists to run; the concrete application protocol fronting
// the shared socket is left to the integrator (spec §4.9).
func echoDispatch(cmd int32, payload []byte) (int32, []byte, bool) {
	if !protocol.IsTaskCmd(cmd) {
		return protocol.CmdError, []byte("master child: unsupported command"), true
	}
	return protocol.CmdResult, payload, true
}

// runSidecar plays the re-exec'd Worker-Side Runtime role.
func runSidecar(args []string) int {
	fs := flag.NewFlagSet("sidecar", flag.ExitOnError)
	pluginFlag := fs.String("plugin", "", "registered plugin name")
	connectionFlag := fs.String("connection", "", "endpoint connection name")
	fs.Parse(args)

	if *pluginFlag == "" || *connectionFlag == "" {
		fmt.Fprintln(os.Stderr, "sidecar: -plugin and -connection are required")
		return sidecar.ExitPluginLoad
	}

	sidecar.SetLogOutput(os.Stdout)
	return sidecar.Run(*pluginFlag, *connectionFlag)
}

// runServe plays the Master role: Supervisor + WorkerPool + Scheduler +
// control-plane gRPC API.
func runServe() int {
	addrFlag := flag.String("addr", ":9443", "address the fabric's shared listening socket binds")
	childrenFlag := flag.Int("children", supervisor.DefaultChildren, "number of Child Event Loop processes to maintain")
	portFlag := flag.Int("port", 9444, "port to serve the fabric control-plane API")
	certFlag := flag.String("cert", "", "path to server certificate")
	keyFlag := flag.String("key", "", "path to server private key")
	caCertFlag := flag.String("ca_cert", "", "path to CA certificate")
	cgroupMemoryFlag := flag.Uint64("cgroup_memory", 0, "memory.high bytes limit applied to each child process; 0 disables cgroup limiting")
	cgroupCpusFlag := flag.Float64("cgroup_cpus", 0, "cpu.max cores limit applied to each child process; 0 disables cgroup limiting")
	flag.Parse()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sup, err := supervisor.Start(ctx, supervisor.Config{
		Addr:         *addrFlag,
		Children:     *childrenFlag,
		CgroupMemory: *cgroupMemoryFlag,
		CgroupCpus:   float32(*cgroupCpusFlag),
	})
	if err != nil {
		logger.Errorf("start supervisor: %s", err)
		return 1
	}

	p := pool.New(resolvePluginPath)
	sched := scheduler.New(p, scheduler.DefaultMaxWorkers)

	tlsConfig, err := encrypt.NewServermTLSConfig(*certFlag, *keyFlag, *caCertFlag)
	if err != nil {
		logger.Errorf("build server TLS config: %s", err)
		sup.Shutdown()
		return 1
	}

	grpcSrv := grpc.NewServer(grpc.Creds(credentials.NewTLS(tlsConfig)))
	pb.RegisterFabricServiceServer(grpcSrv, controlplane.NewServer(sched))

	addr := fmt.Sprintf(":%d", *portFlag)
	lis, err := net.Listen("tcp", addr)
	if err != nil {
		logger.Errorf("listen on %s: %s", addr, err)
		sup.Shutdown()
		return 1
	}

	serveErr := make(chan error, 1)
	go func() { serveErr <- grpcSrv.Serve(lis) }()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-sigs:
		logger.Infof("signal received, shutting down")
	case err := <-serveErr:
		logger.Errorf("control-plane API stopped serving: %s", err)
	}

	grpcSrv.GracefulStop()
	sup.Shutdown()
	sup.Wait()
	return 0
}

// resolvePluginPath maps a protocol name directly onto the same-named
// registered plugin: the fabric's internal/plugin registry is name-keyed
// rather than filesystem-path-keyed (see internal/plugin's doc comment),
// so the ProcessWorker's "plugin path" argument is actually a plugin
// registry name for every protocol this build ships.
func resolvePluginPath(protocolName string) (string, error) {
	return protocolName, nil
}
