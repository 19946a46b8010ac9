// Package timerqueue provides an in-process scheduled priority queue: a
// mergeable, addressable pairing heap coupled to a deadline-driven
// dispatcher that converts due entries into an ordered stream consumable by
// asynchronous workers, emitting lifecycle events along the way.
//
// # Architecture
//
// The queue composes four layers bottom-up, each decorating the one below:
//
//	Consumers --> Streamed --> Evented --> Scheduled --> Heap (+ registry)
//
//   - [Heap] is a two-pass pairing heap with intrusive pointers: O(1)
//     insert, amortized O(log n) delete-min, cheap priority decrease, and
//     arbitrary deletion addressed by stable [Handle] values. Entries may
//     also be referenced by caller-supplied id or by payload identity, via
//     [ByID], [ByHandle], and [ByPayload].
//   - [Scheduled] arms a single one-shot timer for the current minimum's
//     deadline, regardless of queue size. When it fires, every due entry
//     is polled in priority order.
//   - [Evented] notifies listeners after each committed mutation; see
//     [EventType] for the catalogue.
//   - [Streamed] buffers polled entries for asynchronous consumers. Each
//     entry is delivered to exactly one consumer; concurrent consumers
//     split the work.
//
// [Queue] is the assembled stack with priorities interpreted as wall-clock
// instants in milliseconds. The layers are also exported individually for
// callers that want a subset, e.g. a bare [Heap], or [NewEvented] over it.
//
// # Time
//
// The scheduler depends only on the injected [Clock] and [TimerSource]
// capabilities. Production wiring binds them to the platform ([SystemClock],
// [NewSystemTimerSource]); tests bind them to controllable fakes. No claim
// is made about firing earlier than the timer source's resolution; a late
// timer simply drains more due entries in one pass, still in order.
//
// # Thread Safety
//
//   - [Queue] serializes all operations, including the timer callback,
//     under one mutex per instance.
//   - [Queue.Next] and [Queue.Items] never hold that mutex; consumers may
//     block while producers continue.
//   - The individual layers ([Heap], [Evented], [Scheduled], [Streamed])
//     are not internally synchronized, apart from consumption via
//     [Streamed.Next] and [Streamed.Items], matching the cooperative
//     single-threaded model they implement; serialize access when sharing
//     them across goroutines.
//
// # Usage
//
//	q, err := timerqueue.New[string]()
//	if err != nil {
//		log.Fatal(err)
//	}
//
//	now := time.Now().UnixMilli()
//	q.InsertWithID(`job-1`, now+500, "first")
//	q.InsertWithID(`job-2`, now+250, "second")
//	q.Start()
//	defer q.Stop()
//
//	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
//	defer cancel()
//	for item := range q.Items(ctx) {
//		fmt.Println(item.Payload) // "second", then "first"
//	}
package timerqueue
