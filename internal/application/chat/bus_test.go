package chat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBus_PublishInOrder(t *testing.T) {
	b := NewBus()
	var got []string
	b.Subscribe(func(c Command) { got = append(got, "a:"+string(c)) })
	b.Subscribe(func(c Command) { got = append(got, "b:"+string(c)) })

	b.Publish(CommandOpen)
	assert.Equal(t, []string{"a:open", "b:open"}, got)
}

func TestBus_Unsubscribe(t *testing.T) {
	b := NewBus()
	calls := 0
	unsub := b.Subscribe(func(Command) { calls++ })

	b.Publish(CommandClose)
	unsub()
	unsub()
	b.Publish(CommandClose)
	assert.Equal(t, 1, calls)
}

func TestBus_SubscribeDuringPublish(t *testing.T) {
	b := NewBus()
	late := 0
	b.Subscribe(func(Command) {
		b.Subscribe(func(Command) { late++ })
	})
	b.Publish(CommandOpen)
	assert.Equal(t, 0, late)
	b.Publish(CommandOpen)
	assert.Equal(t, 1, late)
}
