// Package runner invokes the external transport simulator and manages
// the distributed completion wait.
package runner

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"time"

	"go.uber.org/zap"

	"godeplete/internal/comm"
)

// tagDone signals run completion from the coordinator. Kept out of the
// tag ranges used by the distribution and document phases.
const tagDone = 20

// DefaultPollInterval is the sleep between completion-signal polls on
// non-coordinator ranks. Coarse on purpose: the wait must not contend
// with the simulator's own internal synchronization.
const DefaultPollInterval = time.Second

// Runner runs the external simulator to completion.
type Runner interface {
	Run(ctx context.Context) error
}

// ExecRunner launches the simulator as a subprocess, optionally under
// a parallel launcher. No arguments are passed beyond what the
// launcher requires.
type ExecRunner struct {
	// Executable is the simulator binary.
	Executable string
	// Launcher, when non-empty, prefixes the invocation (for example
	// {"mpiexec", "-n", "8"}).
	Launcher []string
	// Dir is the working directory holding the input documents.
	Dir string

	Log *zap.Logger
}

// Run blocks until the simulator exits. A nonzero exit is returned as
// an error; nothing here retries.
func (r *ExecRunner) Run(ctx context.Context) error {
	argv := append(append([]string{}, r.Launcher...), r.Executable)
	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = r.Dir
	cmd.Stdout = os.Stdout
	cmd.Stderr = os.Stderr

	if r.Log != nil {
		r.Log.Info("launching transport simulator", zap.Strings("argv", argv), zap.String("dir", r.Dir))
	}
	start := time.Now()
	err := cmd.Run()
	if r.Log != nil {
		r.Log.Info("transport simulator finished", zap.Duration("elapsed", time.Since(start)), zap.Error(err))
	}
	if err != nil {
		return fmt.Errorf("transport simulator: %w", err)
	}
	return nil
}

// Coordinate runs the simulator on the coordinator rank and spreads
// completion to the rest of the group.
//
// Completion is a point-to-point signal, not a collective barrier: the
// simulator performs its own internal collective synchronization across
// the workers it manages, and a wrapper-level barrier spinning while
// that drains steals cycles from the run. Non-coordinator ranks poll a
// non-blocking receive with a coarse sleep until the signal arrives;
// only then does a lightweight barrier line everyone up for ingestion.
// There is no timeout: a hung simulator stalls the step indefinitely.
func Coordinate(ctx context.Context, c *comm.Comm, r Runner, poll time.Duration) error {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	var runErr error
	if c.Rank() == 0 {
		runErr = r.Run(ctx)
		// Signal even on failure so no rank is left polling forever.
		for i := 1; i < c.Size(); i++ {
			if err := c.Send(i, tagDone, runErr == nil); err != nil {
				return err
			}
		}
	} else {
		for {
			payload, ok := c.TryRecv(0, tagDone)
			if ok {
				if succeeded, _ := payload.(bool); !succeeded {
					runErr = fmt.Errorf("transport simulator failed on coordinator rank")
				}
				break
			}
			time.Sleep(poll)
		}
	}
	c.Barrier()
	return runErr
}
