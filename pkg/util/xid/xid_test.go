package xid

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fixedMachine(id uint16) Option {
	return WithMachineID(func() (uint16, error) { return id, nil })
}

func TestNewGenerator_Config(t *testing.T) {
	_, err := NewGenerator(WithMaxWaitDuration(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewGenerator(WithRetryInterval(-time.Second))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewGenerator(fixedMachine(3), WithCheckMachineID(func(id uint16) bool { return id != 3 }))
	assert.ErrorIs(t, err, ErrInvalidConfig)

	_, err = NewGenerator(WithMachineID(func() (uint16, error) { return 0, errors.New("no id") }))
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestGenerator_UniqueAndParsable(t *testing.T) {
	gen, err := NewGenerator(fixedMachine(42))
	require.NoError(t, err)

	const n = 500
	var (
		mu   sync.Mutex
		seen = make(map[string]struct{}, n)
		wg   sync.WaitGroup
	)
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < n/5; j++ {
				s, err := gen.NewStringWithRetry(context.Background())
				if !assert.NoError(t, err) {
					return
				}
				mu.Lock()
				seen[s] = struct{}{}
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	assert.Len(t, seen, n)

	for s := range seen {
		id, err := Parse(s)
		require.NoError(t, err)
		assert.Equal(t, int64(42), id&0xFFFF)
		break
	}
}

func TestGenerator_ClockBackward(t *testing.T) {
	gen := &Generator{
		next:            func() (int64, error) { return 0, errors.New("over the time limit") },
		maxWaitDuration: 30 * time.Millisecond,
		retryInterval:   5 * time.Millisecond,
	}
	_, err := gen.NewWithRetry(context.Background())
	assert.ErrorIs(t, err, ErrClockBackwardTimeout)

	calls := 0
	gen.next = func() (int64, error) {
		calls++
		if calls < 3 {
			return 0, errors.New("clock moved backwards")
		}
		return 99, nil
	}
	id, err := gen.NewWithRetry(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(99), id)
}

func TestGenerator_Guards(t *testing.T) {
	var nilGen *Generator
	_, err := nilGen.New()
	assert.ErrorIs(t, err, ErrNilGenerator)

	gen, err := NewGenerator(fixedMachine(1))
	require.NoError(t, err)
	//nolint:staticcheck // 测试 nil ctx
	_, err = gen.NewWithRetry(nil)
	assert.ErrorIs(t, err, ErrNilContext)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = gen.NewStringWithRetry(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestParse_Invalid(t *testing.T) {
	for _, s := range []string{"", "!!", "0", "-5"} {
		_, err := Parse(s)
		assert.ErrorIs(t, err, ErrInvalidID, "input %q", s)
	}
}

func TestGlobal(t *testing.T) {
	resetDefault()
	t.Cleanup(resetDefault)

	require.NoError(t, Init(fixedMachine(5)))
	assert.ErrorIs(t, Init(), ErrAlreadyInitialized)

	s, err := NewStringWithRetry(context.Background())
	require.NoError(t, err)
	assert.NotEmpty(t, s)

	resetDefault()
	assert.ErrorIs(t, Init(WithMaxWaitDuration(-1)), ErrInvalidConfig)
	_, err = NewString()
	assert.ErrorIs(t, err, ErrNotInitialized)
}

func TestDefaultMachineID(t *testing.T) {
	t.Run("explicit env", func(t *testing.T) {
		t.Setenv(EnvMachineID, "1234")
		id, err := DefaultMachineID()
		require.NoError(t, err)
		assert.Equal(t, uint16(1234), id)
	})

	t.Run("invalid env", func(t *testing.T) {
		t.Setenv(EnvMachineID, "70000")
		_, err := DefaultMachineID()
		assert.Error(t, err)
	})

	t.Run("pod name", func(t *testing.T) {
		t.Setenv(EnvMachineID, "")
		t.Setenv(EnvPodName, "worker-0")
		id, err := DefaultMachineID()
		require.NoError(t, err)
		assert.Equal(t, hashToMachineID("worker-0"), id)
	})

	t.Run("private ip fallback", func(t *testing.T) {
		t.Setenv(EnvMachineID, "")
		t.Setenv(EnvPodName, "")
		t.Setenv(EnvHostname, "")
		origHost, origAddrs := osHostname, netInterfaceAddrs
		t.Cleanup(func() { osHostname, netInterfaceAddrs = origHost, origAddrs })

		osHostname = func() (string, error) { return "", errors.New("no hostname") }
		netInterfaceAddrs = func() ([]net.Addr, error) {
			return []net.Addr{
				&net.IPNet{IP: net.ParseIP("127.0.0.1"), Mask: net.CIDRMask(8, 32)},
				&net.IPNet{IP: net.ParseIP("10.1.2.3"), Mask: net.CIDRMask(8, 32)},
			}, nil
		}
		id, err := DefaultMachineID()
		require.NoError(t, err)
		assert.Equal(t, uint16(2<<8|3), id)

		netInterfaceAddrs = func() ([]net.Addr, error) { return nil, nil }
		_, err = DefaultMachineID()
		assert.ErrorIs(t, err, ErrNoPrivateAddress)
	})
}
