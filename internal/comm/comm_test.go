package comm

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"golang.org/x/sync/errgroup"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func TestNewLocalGroup_BadSize(t *testing.T) {
	_, err := NewLocalGroup(0)
	require.Error(t, err)
}

func TestSendRecv(t *testing.T) {
	comms, err := NewLocalGroup(2)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		return comms[0].Send(1, 5, "hello")
	})
	g.Go(func() error {
		payload, err := comms[1].Recv(0, 5)
		if err != nil {
			return err
		}
		assert.Equal(t, "hello", payload)
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestRecv_OutOfOrderTags(t *testing.T) {
	comms, err := NewLocalGroup(2)
	require.NoError(t, err)

	var g errgroup.Group
	g.Go(func() error {
		if err := comms[0].Send(1, 1, "first"); err != nil {
			return err
		}
		return comms[0].Send(1, 2, "second")
	})
	g.Go(func() error {
		// Receiving the later tag first must not lose the earlier one.
		second, err := comms[1].Recv(0, 2)
		if err != nil {
			return err
		}
		assert.Equal(t, "second", second)
		first, err := comms[1].Recv(0, 1)
		if err != nil {
			return err
		}
		assert.Equal(t, "first", first)
		return nil
	})
	require.NoError(t, g.Wait())
}

func TestTryRecv(t *testing.T) {
	comms, err := NewLocalGroup(2)
	require.NoError(t, err)

	_, ok := comms[1].TryRecv(0, 9)
	assert.False(t, ok, "nothing sent yet")

	require.NoError(t, comms[0].Send(1, 9, 42))
	deadline := time.Now().Add(time.Second)
	for {
		payload, ok := comms[1].TryRecv(0, 9)
		if ok {
			assert.Equal(t, 42, payload)
			break
		}
		require.True(t, time.Now().Before(deadline), "message never arrived")
	}
}

func TestBcast(t *testing.T) {
	const n = 4
	comms, err := NewLocalGroup(n)
	require.NoError(t, err)

	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			var payload any
			if c.Rank() == 0 {
				payload = []string{"a", "b"}
			}
			got, err := c.Bcast(0, 3, payload)
			if err != nil {
				return err
			}
			assert.Equal(t, []string{"a", "b"}, got)
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestBarrier(t *testing.T) {
	const n = 3
	comms, err := NewLocalGroup(n)
	require.NoError(t, err)

	entered := make(chan int, n)
	released := make(chan int, n)

	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			if c.Rank() != 0 {
				time.Sleep(20 * time.Millisecond)
			}
			entered <- c.Rank()
			c.Barrier()
			released <- c.Rank()
			return nil
		})
	}
	require.NoError(t, g.Wait())
	require.Len(t, entered, n)
	require.Len(t, released, n)
}

func TestBarrier_Reusable(t *testing.T) {
	const n = 2
	const rounds = 5
	comms, err := NewLocalGroup(n)
	require.NoError(t, err)

	var g errgroup.Group
	for _, c := range comms {
		c := c
		g.Go(func() error {
			for i := 0; i < rounds; i++ {
				c.Barrier()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())
}

func TestSend_BadRank(t *testing.T) {
	comms, err := NewLocalGroup(1)
	require.NoError(t, err)
	assert.Error(t, comms[0].Send(5, 0, nil))
	_, err = comms[0].Recv(-1, 0)
	assert.Error(t, err)
}
