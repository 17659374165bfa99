package events

import "github.com/kelindar/event"

// SubscribeToChannel adapts a kelindar/event callback subscription to a
// channel, which the SSE handlers consume in a select loop. The send never
// blocks: a slow consumer loses events rather than stalling the dispatcher.
func SubscribeToChannel[T Event](bus *Bus, ch chan<- any) func() {
	return event.Subscribe(bus.dispatcher, func(e T) {
		select {
		case ch <- e:
		default:
			// dropped, consumer is behind
		}
	})
}
