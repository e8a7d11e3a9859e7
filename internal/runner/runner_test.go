package runner

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"godeplete/internal/comm"
)

type stubRunner struct {
	calls int32
	err   error
	delay time.Duration
}

func (s *stubRunner) Run(ctx context.Context) error {
	atomic.AddInt32(&s.calls, 1)
	if s.delay > 0 {
		time.Sleep(s.delay)
	}
	return s.err
}

func TestCoordinate(t *testing.T) {
	const ranks = 3
	comms, err := comm.NewLocalGroup(ranks)
	require.NoError(t, err)

	stub := &stubRunner{delay: 10 * time.Millisecond}
	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			return Coordinate(context.Background(), c, stub, time.Millisecond)
		})
	}
	require.NoError(t, g.Wait())
	assert.Equal(t, int32(1), atomic.LoadInt32(&stub.calls),
		"only the coordinator invokes the simulator")
}

func TestCoordinate_RunFailure(t *testing.T) {
	const ranks = 2
	comms, err := comm.NewLocalGroup(ranks)
	require.NoError(t, err)

	stub := &stubRunner{err: errors.New("boom")}
	results := make([]error, ranks)
	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			results[c.Rank()] = Coordinate(context.Background(), c, stub, time.Millisecond)
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.ErrorContains(t, results[0], "boom")
	assert.Error(t, results[1], "failure is propagated with the signal, nobody polls forever")
}

func TestExecRunner_NonzeroExit(t *testing.T) {
	r := &ExecRunner{Executable: "false", Dir: t.TempDir()}
	err := r.Run(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "transport simulator")
}

func TestExecRunner_Launcher(t *testing.T) {
	// Launch under a trivial wrapper the way mpiexec would be used.
	r := &ExecRunner{Executable: "true", Launcher: []string{"env"}, Dir: t.TempDir()}
	require.NoError(t, r.Run(context.Background()))
}
