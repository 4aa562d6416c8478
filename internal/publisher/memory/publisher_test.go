package memory

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPublisher_RecordsPayloads(t *testing.T) {
	t.Parallel()

	p := New()
	require.NoError(t, p.Publish(context.Background(), map[string]any{"crawl_id": "a"}))
	require.NoError(t, p.Publish(context.Background(), map[string]any{"crawl_id": "b"}))

	payloads := p.Payloads()
	require.Len(t, payloads, 2)
}

func TestPublisher_ConcurrentPublishes(t *testing.T) {
	t.Parallel()

	p := New()
	var wg sync.WaitGroup
	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_ = p.Publish(context.Background(), i)
		}(i)
	}
	wg.Wait()
	require.Len(t, p.Payloads(), 20)
}
