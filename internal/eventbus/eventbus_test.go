package eventbus

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

type ping struct{ n int }
type pong struct{}

func TestBusDispatchesByType(t *testing.T) {
	b := New()
	var got []int
	stop := On(b, func(_ context.Context, p ping) { got = append(got, p.n) })
	other := 0
	On(b, func(context.Context, pong) { other++ })

	Emit(context.Background(), b, ping{n: 1})
	Emit(context.Background(), b, ping{n: 2})
	stop()
	stop()
	Emit(context.Background(), b, ping{n: 3})

	require.Equal(t, []int{1, 2}, got)
	require.Zero(t, other)
}

func TestUnsubscribeRemovesOnlyOneHandler(t *testing.T) {
	b := New()
	var a, c int
	h := func(context.Context, ping) { a++ }
	stopFirst := On(b, h)
	On(b, h)
	On(b, func(context.Context, ping) { c++ })

	stopFirst()
	Emit(context.Background(), b, ping{})
	require.Equal(t, 1, a)
	require.Equal(t, 1, c)
}

func TestGlobalBus(t *testing.T) {
	t.Cleanup(func() { Use(nil) })

	Use(nil)
	Subscribe(func(context.Context, ping) { t.Fatal("no bus, no subscription") })
	Publish(context.Background(), ping{})

	Use(New())
	var n int
	stop := Subscribe(func(_ context.Context, p ping) { n += p.n })
	Publish(context.Background(), ping{n: 5})
	stop()
	Publish(context.Background(), ping{n: 5})
	require.Equal(t, 5, n)

	var nilBus *Bus
	Emit(context.Background(), nilBus, ping{})
}
