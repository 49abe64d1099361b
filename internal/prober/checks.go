package prober

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"time"

	psprocess "github.com/shirou/gopsutil/v3/process"

	"github.com/wemix/nhm/pkg/logger"
)

// CheckClass is one of the four ordered classes runs: files,
// programs, processes, endpoints. Run reports the first failure only —
// the prober does not need partial per-target detail beyond logging.
type CheckClass interface {
	Name() string
	Run(ctx context.Context) error
}

// FilesCheck requires every path in Paths to exist.
type FilesCheck struct {
	Paths []string
}

func (c *FilesCheck) Name() string { return "files" }

func (c *FilesCheck) Run(ctx context.Context) error {
	for _, path := range c.Paths {
		if _, err := os.Stat(path); err != nil {
			return fmt.Errorf("prober: file check failed for %q: %w", path, err)
		}
	}
	return nil
}

// ProgramsCheck requires every name in Programs to resolve to at least one
// running process's executable path.
type ProgramsCheck struct {
	Programs []string
	log      *logger.Logger
}

// NewProgramsCheck builds a ProgramsCheck. log may be nil.
func NewProgramsCheck(programs []string, log *logger.Logger) *ProgramsCheck {
	return &ProgramsCheck{Programs: programs, log: log}
}

func (c *ProgramsCheck) Name() string { return "programs" }

func (c *ProgramsCheck) Run(ctx context.Context) error {
	if len(c.Programs) == 0 {
		return nil
	}

	running, err := c.runningExecutables(ctx)
	if err != nil {
		if c.log != nil {
			c.log.Warn("prober: gopsutil process scan failed, falling back to /proc", "error", err.Error())
		}
		running, err = runningExecutablesProcFallback()
		if err != nil {
			return fmt.Errorf("prober: programs check could not enumerate processes: %w", err)
		}
	}

	for _, want := range c.Programs {
		if !running[want] {
			return fmt.Errorf("prober: program check failed, %q not running", want)
		}
	}
	return nil
}

func (c *ProgramsCheck) runningExecutables(ctx context.Context) (map[string]bool, error) {
	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool, len(procs))
	for _, p := range procs {
		exe, err := p.ExeWithContext(ctx)
		if err != nil || exe == "" {
			continue
		}
		running[exe] = true
		running[filepath.Base(exe)] = true
	}
	return running, nil
}

// runningExecutablesProcFallback scans /proc/*/exe directly, mirroring the
// original daemon's process-presence check when gopsutil's own process
// enumeration is unavailable.
func runningExecutablesProcFallback() (map[string]bool, error) {
	entries, err := os.ReadDir("/proc")
	if err != nil {
		return nil, err
	}
	running := make(map[string]bool, len(entries))
	for _, entry := range entries {
		if _, err := strconv.Atoi(entry.Name()); err != nil {
			continue
		}
		exe, err := os.Readlink(filepath.Join("/proc", entry.Name(), "exe"))
		if err != nil {
			continue
		}
		running[exe] = true
		running[filepath.Base(exe)] = true
	}
	return running, nil
}

// ProcessesCheck requires every command in Commands to run to completion
// with exit status 0, stdout/stderr discarded.
type ProcessesCheck struct {
	Commands [][]string
}

func (c *ProcessesCheck) Name() string { return "processes" }

func (c *ProcessesCheck) Run(ctx context.Context) error {
	for _, argv := range c.Commands {
		if len(argv) == 0 {
			continue
		}
		cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
		cmd.Stdout = nil
		cmd.Stderr = nil
		if err := cmd.Run(); err != nil {
			return fmt.Errorf("prober: process check failed for %q: %w", argv[0], err)
		}
	}
	return nil
}

// EndpointsCheck connects to every address in Addresses, caching the
// connection across invocations,
// and issues a trivial round-trip against each.
type EndpointsCheck struct {
	Addresses []string
	dial      func(ctx context.Context, addr string) (net.Conn, error)

	conns map[string]net.Conn
}

// NewEndpointsCheck builds an EndpointsCheck. dial defaults to a plain TCP
// dial when nil; tests may override it.
func NewEndpointsCheck(addresses []string, dial func(ctx context.Context, addr string) (net.Conn, error)) *EndpointsCheck {
	if dial == nil {
		dialer := &net.Dialer{}
		dial = func(ctx context.Context, addr string) (net.Conn, error) {
			return dialer.DialContext(ctx, "tcp", addr)
		}
	}
	return &EndpointsCheck{Addresses: addresses, dial: dial, conns: make(map[string]net.Conn)}
}

func (c *EndpointsCheck) Name() string { return "endpoints" }

func (c *EndpointsCheck) Run(ctx context.Context) error {
	for _, addr := range c.Addresses {
		conn, cached := c.conns[addr]
		if !cached {
			var err error
			conn, err = c.dial(ctx, addr)
			if err != nil {
				return fmt.Errorf("prober: endpoint check failed to connect to %q: %w", addr, err)
			}
			c.conns[addr] = conn
		}
		if deadline, ok := ctx.Deadline(); ok {
			conn.SetDeadline(deadline)
		} else {
			conn.SetDeadline(time.Time{})
		}
		if err := getID(conn); err != nil {
			delete(c.conns, addr)
			conn.Close()
			return fmt.Errorf("prober: endpoint check GetId round-trip failed for %q: %w", addr, err)
		}
	}
	return nil
}

// getID issues the well-known "GetId" round-trip calls for.
func getID(conn net.Conn) error {
	if _, err := conn.Write([]byte("GetId\n")); err != nil {
		return err
	}
	buf := make([]byte, 64)
	_, err := conn.Read(buf)
	return err
}

// Close releases every cached endpoint connection.
func (c *EndpointsCheck) Close() error {
	for addr, conn := range c.conns {
		conn.Close()
		delete(c.conns, addr)
	}
	return nil
}
