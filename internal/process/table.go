package process

import (
	"context"

	psprocess "github.com/shirou/gopsutil/v3/process"
)

// Process is one entry of the OS process table.
type Process interface {
	PID() int32
	Cmdline(ctx context.Context) (string, error)
	Name(ctx context.Context) (string, error)
}

// Table lists running processes.
type Table interface {
	Processes(ctx context.Context) ([]Process, error)
}

// SystemTable returns the process table of the host.
func SystemTable() Table {
	return systemTable{}
}

type systemTable struct{}

func (systemTable) Processes(ctx context.Context) ([]Process, error) {
	procs, err := psprocess.ProcessesWithContext(ctx)
	if err != nil {
		return nil, err
	}
	out := make([]Process, 0, len(procs))
	for _, p := range procs {
		out = append(out, systemProcess{p})
	}
	return out, nil
}

type systemProcess struct {
	p *psprocess.Process
}

func (s systemProcess) PID() int32 {
	return s.p.Pid
}

func (s systemProcess) Cmdline(ctx context.Context) (string, error) {
	return s.p.CmdlineWithContext(ctx)
}

func (s systemProcess) Name(ctx context.Context) (string, error) {
	return s.p.NameWithContext(ctx)
}
