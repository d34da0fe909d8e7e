// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dque provides a named, multi-producer single-consumer queue with
// bounded memory and overflow to disk.
//
// Producers enqueue typed values; a single consumer dequeues them in the
// order each producer sent them (ordering across producers is not
// guaranteed). While the in-memory buffer has room, values stay in memory.
// Once it fills, a producer spills subsequent values to an append-only
// queue file on disk and leaves behind a run-length marker so the consumer
// knows how many records to read back before returning to memory.
//
// # Quick Start
//
//	sender, receiver, err := dque.Channel[Event]("events", "/var/lib/myapp/queues", codec)
//	if err != nil {
//	    // ...
//	}
//	defer receiver.Close()
//
//	go func() {
//	    for _, ev := range events {
//	        if err := sender.Send(ev); err != nil {
//	            // IsFull(err): disk budget exhausted, value returned to caller
//	        }
//	    }
//	}()
//
//	for ev := range receiver.Iter() {
//	    process(ev)
//	}
//
// # Capacity
//
//	sender, receiver, err := dque.ChannelWithExplicitCapacity[Event](
//	    "events", dir, codec,
//	    4<<20,   // max in-memory bytes
//	    512<<20, // max bytes per queue file
//	    8,       // max queue files created by rollover (sequence 0 is not counted)
//	)
//
// # Concurrency model
//
// The queue is backed by a fixed-capacity ring buffer ([Deque]) with two
// independent mutexes — one guarding the back (producer) offset and the
// producer's disk-writer state, one guarding the front (consumer) offset
// and the condition variable a blocked consumer waits on. Producers
// serialize against each other and against disk I/O on the back lock;
// a producer takes the front lock only briefly, after releasing the back
// lock, to wake a consumer blocked on an empty deque.
//
// Senders are cheap to clone: a clone shares the underlying deque, atomic
// file-budget counter, and directory, and diverges from its siblings only
// in nothing — all producer-mutable state lives behind the shared back
// lock.
package dque
