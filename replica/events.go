// Copyright 2016 The Upspin Authors. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package replica

import (
	"time"

	"earthstar.dev/earthstar"
)

// EventKind names the taxonomy of events a replica emits.
type EventKind string

const (
	EventWillClose        EventKind = "willClose"
	EventDidClose         EventKind = "didClose"
	EventIngest           EventKind = "ingest"
	EventAttachmentIngest EventKind = "attachment_ingest"
	EventAttachmentPrune  EventKind = "attachment_prune"
	EventExpire           EventKind = "expire"
)

// IngestResult classifies the outcome of an ingest event.
type IngestResult string

const (
	IngestSuccess          IngestResult = "success"
	IngestNothing          IngestResult = "nothing"
	IngestSuccessNotLatest IngestResult = "success_but_not_latest"
	IngestFailure          IngestResult = "failure"
)

// Event is one item in a replica's event stream.
type Event struct {
	Kind    EventKind
	Channel string // optional subscriber-selected routing tag

	Doc    *earthstar.Document // set for ingest/expire events
	Result IngestResult        // set for EventIngest
	Reason string              // e.g. "obsolete_from_same_author"

	AttachmentKey *earthstar.AttachmentKey // set for attachment_ingest/attachment_prune

	Err error // set for failure events
}

const watchTimeout = 10 * time.Second

// subscriber connects the event manager to one channel of events delivered
// to a single caller.
type subscriber struct {
	channel string // "" means every event
	events  chan Event
}

// eventManager fans out events to every live subscriber from a single
// goroutine, so subscribe/unsubscribe/publish never need external locking.
type eventManager struct {
	newSubscriber chan *subscriber
	doneSub       chan *subscriber
	publish       chan Event
	stop          chan struct{}
}

func newEventManager() *eventManager {
	m := &eventManager{
		newSubscriber: make(chan *subscriber),
		doneSub:       make(chan *subscriber),
		publish:       make(chan Event, 100),
		stop:          make(chan struct{}),
	}
	go m.run()
	return m
}

func (m *eventManager) run() {
	var subs []*subscriber
	for {
		select {
		case s := <-m.newSubscriber:
			subs = append(subs, s)
		case s := <-m.doneSub:
			for i, cur := range subs {
				if cur == s {
					close(cur.events)
					subs = append(subs[:i], subs[i+1:]...)
					break
				}
			}
		case ev := <-m.publish:
			n := len(subs)
			for i := 0; i < n; i++ {
				s := subs[i]
				if s.channel != "" && ev.Channel != "" && s.channel != ev.Channel {
					continue
				}
				select {
				case s.events <- ev:
				case <-time.After(watchTimeout):
					// Subscriber is not keeping up; drop it.
					close(s.events)
					subs = append(subs[:i], subs[i+1:]...)
					i--
					n--
				}
			}
		case <-m.stop:
			for _, s := range subs {
				close(s.events)
			}
			return
		}
	}
}

// Subscribe returns a channel of future events, optionally restricted to
// channel (the empty string subscribes to every event).
func (m *eventManager) Subscribe(channel string) <-chan Event {
	s := &subscriber{channel: channel, events: make(chan Event, 16)}
	select {
	case m.newSubscriber <- s:
	case <-m.stop:
		close(s.events)
	}
	return s.events
}

// Emit publishes ev to every matching subscriber. It never blocks the
// caller beyond the internal publish queue.
func (m *eventManager) Emit(ev Event) {
	select {
	case m.publish <- ev:
	case <-m.stop:
	}
}

// Close shuts down the event manager, closing every subscriber's channel.
func (m *eventManager) Close() {
	close(m.stop)
}
