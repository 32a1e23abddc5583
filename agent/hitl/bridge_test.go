package hitl

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func TestInputBridge_FIFO(t *testing.T) {
	b := NewInputBridge()
	for _, s := range []string{"one", "two", "three"} {
		require.NoError(t, b.Submit(s))
	}
	assert.Equal(t, 3, b.Len())

	ctx := context.Background()
	for _, want := range []string{"one", "two", "three"} {
		got, err := b.Fetch(ctx)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	}
	assert.Equal(t, 0, b.Len())
}

func TestInputBridge_FetchBlocksUntilSubmit(t *testing.T) {
	b := NewInputBridge()
	got := make(chan string, 1)
	go func() {
		text, err := b.Fetch(context.Background())
		assert.NoError(t, err)
		got <- text
	}()

	select {
	case <-got:
		t.Fatal("fetch returned before any input")
	case <-time.After(50 * time.Millisecond):
	}

	require.NoError(t, b.Submit("hello"))
	select {
	case text := <-got:
		assert.Equal(t, "hello", text)
	case <-time.After(2 * time.Second):
		t.Fatal("fetch never returned")
	}
}

func TestInputBridge_FetchCancelled(t *testing.T) {
	b := NewInputBridge()
	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Fetch(ctx)
		errCh <- err
	}()
	cancel()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("cancelled fetch leaked")
	}

	// 取消的等待不会吞掉之后的输入
	require.NoError(t, b.Submit("later"))
	text, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "later", text)
}

func TestInputBridge_CloseWakesWaiters(t *testing.T) {
	b := NewInputBridge()
	errCh := make(chan error, 1)
	go func() {
		_, err := b.Fetch(context.Background())
		errCh <- err
	}()
	time.Sleep(10 * time.Millisecond)
	b.Close()
	b.Close()

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrBridgeClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("close did not wake the waiter")
	}
	assert.ErrorIs(t, b.Submit("x"), ErrBridgeClosed)
}

func TestInputBridge_DrainsBeforeReportingClosed(t *testing.T) {
	b := NewInputBridge()
	require.NoError(t, b.Submit("pending"))
	b.Close()

	text, err := b.Fetch(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "pending", text)

	_, err = b.Fetch(context.Background())
	assert.ErrorIs(t, err, ErrBridgeClosed)
}

func TestInputBridge_ConcurrentNoLossNoDuplication(t *testing.T) {
	b := NewInputBridge()
	const producers, perProducer = 8, 50

	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				assert.NoError(t, b.Submit(fmt.Sprintf("%d-%03d", p, i)))
			}
		}(p)
	}

	got := make([]string, 0, producers*perProducer)
	var mu sync.Mutex
	var consumers sync.WaitGroup
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	for c := 0; c < 3; c++ {
		consumers.Add(1)
		go func() {
			defer consumers.Done()
			for {
				text, err := b.Fetch(ctx)
				if err != nil {
					return
				}
				mu.Lock()
				got = append(got, text)
				mu.Unlock()
			}
		}()
	}

	wg.Wait()
	b.Close()
	consumers.Wait()

	require.Len(t, got, producers*perProducer)
	sort.Strings(got)
	for i := 1; i < len(got); i++ {
		assert.NotEqual(t, got[i-1], got[i], "duplicate delivery")
	}
}

func TestProperty_BridgePreservesOrder(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		inputs := rapid.SliceOf(rapid.String()).Draw(t, "inputs")
		b := NewInputBridge()
		ctx := context.Background()

		// 交错写入与读取
		var out []string
		for _, in := range inputs {
			require.NoError(t, b.Submit(in))
			if rapid.Bool().Draw(t, "read_now") {
				text, err := b.Fetch(ctx)
				require.NoError(t, err)
				out = append(out, text)
			}
		}
		for b.Len() > 0 {
			text, err := b.Fetch(ctx)
			require.NoError(t, err)
			out = append(out, text)
		}
		if len(inputs) == 0 {
			assert.Empty(t, out)
			return
		}
		assert.Equal(t, inputs, out)
	})
}
