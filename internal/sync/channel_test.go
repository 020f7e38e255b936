package sync

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func Test_Channel(t *testing.T) {
	tests := []struct {
		name string
		fn   func(t *testing.T, c Channel[int])
	}{
		{
			name: "Receive_Blocks",
			fn: func(t *testing.T, c Channel[int]) {
				cr := NewCoroutine(Background(), func(ctx Context) error {
					c.Receive(ctx)

					return nil
				})
				defer cr.Exit()

				cr.Execute()

				require.False(t, cr.Finished())
				require.True(t, cr.Blocked())
			},
		},
		{
			name: "Send_NeverBlocks",
			fn: func(t *testing.T, c Channel[int]) {
				for i := 0; i < 100; i++ {
					c.Send(i)
				}

				require.Equal(t, 100, c.Len())
			},
		},
		{
			name: "Receive_InOrder",
			fn: func(t *testing.T, c Channel[int]) {
				c.Send(1)
				c.Send(2)

				var got []int

				cr := NewCoroutine(Background(), func(ctx Context) error {
					for {
						v, ok := c.Receive(ctx)
						if !ok {
							return nil
						}

						got = append(got, v)
					}
				})

				cr.Execute()
				require.Equal(t, []int{1, 2}, got)
				require.True(t, cr.Blocked())

				c.Send(3)
				cr.Execute()
				require.True(t, cr.Progress())
				require.Equal(t, []int{1, 2, 3}, got)

				c.Close()
				cr.Execute()
				require.True(t, cr.Finished())
			},
		},
		{
			name: "Receive_Canceled",
			fn: func(t *testing.T, c Channel[int]) {
				ctx, cancel := WithCancel(Background())

				ok := true
				cr := NewCoroutine(ctx, func(ctx Context) error {
					_, ok = c.Receive(ctx)
					return nil
				})

				cr.Execute()
				require.False(t, cr.Finished())

				cancel()
				cr.Execute()

				require.True(t, cr.Finished())
				require.False(t, ok)
			},
		},
		{
			name: "ReceiveNonBlocking_Empty",
			fn: func(t *testing.T, c Channel[int]) {
				v, ok := c.ReceiveNonBlocking()
				require.False(t, ok)
				require.Zero(t, v)
			},
		},
		{
			name: "Send_PanicsWhenClosed",
			fn: func(t *testing.T, c Channel[int]) {
				c.Close()

				require.Panics(t, func() {
					c.Send(1)
				})
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.fn(t, NewChannel[int]())
		})
	}
}
