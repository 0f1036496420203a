package agent

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMessageBox_FIFO(t *testing.T) {
	box := NewMessageBox()

	var sent []Message
	for i := 0; i < 200; i++ {
		msg := NewTextMessage(MessageTypeDefault, fmt.Sprintf("msg-%d", i))
		sent = append(sent, msg)
		box.Put(msg)
	}
	require.Equal(t, len(sent), box.Len())

	for i, want := range sent {
		got, ok := box.Get()
		require.True(t, ok, "message %d missing", i)
		assert.Equal(t, want.ID(), got.ID())
		assert.Equal(t, want.Content(), got.Content())
	}

	_, ok := box.Get()
	assert.False(t, ok)
	assert.True(t, box.IsEmpty())
}

func TestMessageBox_InterleavedPutGet(t *testing.T) {
	box := NewMessageBox()
	next := 0
	expect := 0

	// Exercise the consumed-prefix compaction with reads and writes interleaved.
	for round := 0; round < 10; round++ {
		for i := 0; i < 100; i++ {
			box.Put(NewTextMessage(MessageTypeDefault, fmt.Sprint(next)))
			next++
		}
		for i := 0; i < 70; i++ {
			msg, ok := box.Get()
			require.True(t, ok)
			require.Equal(t, fmt.Sprint(expect), msg.Content())
			expect++
		}
	}

	assert.Equal(t, next-expect, box.Len())
	for !box.IsEmpty() {
		msg, ok := box.Get()
		require.True(t, ok)
		require.Equal(t, fmt.Sprint(expect), msg.Content())
		expect++
	}
	assert.Equal(t, next, expect)
}

func TestMessageBox_GetEmpty(t *testing.T) {
	box := NewMessageBox()

	msg, ok := box.Get()
	assert.False(t, ok)
	assert.Equal(t, Message{}, msg)
	assert.True(t, box.IsEmpty())
	assert.Equal(t, 0, box.Len())
}

func TestMessageBox_Clear(t *testing.T) {
	tests := []struct {
		name  string
		count int
		read  int
	}{
		{name: "empty", count: 0},
		{name: "single", count: 1},
		{name: "many", count: 50},
		{name: "partially read", count: 50, read: 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			box := NewMessageBox()
			for i := 0; i < tt.count; i++ {
				box.Put(NewTextMessage(MessageTypeDefault, "x"))
			}
			for i := 0; i < tt.read; i++ {
				_, _ = box.Get()
			}

			dropped := box.Clear()

			assert.Equal(t, tt.count-tt.read, dropped)
			assert.True(t, box.IsEmpty())
			_, ok := box.Get()
			assert.False(t, ok)
		})
	}
}

func TestMessageBox_ConcurrentWriters(t *testing.T) {
	const writers, perWriter = 4, 250
	box := NewMessageBox()

	var wg sync.WaitGroup
	for w := 0; w < writers; w++ {
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				box.Put(NewMessage().From(fmt.Sprint(w)).Content(fmt.Sprint(i)).Build())
			}
		}(w)
	}

	received := make(map[string][]string)
	total := 0
	done := make(chan struct{})
	go func() {
		defer close(done)
		for total < writers*perWriter {
			msg, ok := box.Get()
			if !ok {
				continue
			}
			received[msg.Sender()] = append(received[msg.Sender()], msg.Content())
			total++
		}
	}()

	wg.Wait()
	<-done

	require.Len(t, received, writers)
	for w, contents := range received {
		require.Len(t, contents, perWriter, "writer %s", w)
		for i, c := range contents {
			assert.Equal(t, fmt.Sprint(i), c, "writer %s out of order", w)
		}
	}
}
