// ©Hayabusa Cloud Co., Ltd. 2026. All rights reserved.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package dquemetrics provides an optional Prometheus-backed observer a
// dque channel can be told about at construction, counting the events the
// core already distinguishes internally: memory pushes, disk writes,
// rollovers, full-rejections, dequeues, and sealed-file deletions.
//
// The zero value of Observer's interface is never used directly — callers
// needing a no-op fall back on [NewNoop], mirroring the pack's own
// null-object queue observer.
package dquemetrics

import "github.com/prometheus/client_golang/prometheus"

// Observer receives counts for channel lifecycle events. It never takes a
// lock of its own: Prometheus counters and gauges are already safe for
// concurrent use, so the core calls straight through from under whichever
// lock it already holds.
type Observer interface {
	MemoryPush()
	DiskWrite(bytes int)
	Rollover()
	FullRejected()
	Dequeue()
	FileDeleted()
}

type noop struct{}

func (noop) MemoryPush()       {}
func (noop) DiskWrite(int)     {}
func (noop) Rollover()         {}
func (noop) FullRejected()     {}
func (noop) Dequeue()          {}
func (noop) FileDeleted()      {}

// NewNoop returns an Observer that discards every event.
func NewNoop() Observer {
	return noop{}
}

// prometheusObserver implements Observer with one counter per event kind,
// labeled by the channel's name, plus a counter of bytes written to disk.
type prometheusObserver struct {
	name        string
	memoryPush  prometheus.Counter
	diskWrite   prometheus.Counter
	diskBytes   prometheus.Counter
	rollover    prometheus.Counter
	fullReject  prometheus.Counter
	dequeue     prometheus.Counter
	fileDeleted prometheus.Counter
}

// NewPrometheus registers a set of counters for a channel named name under
// reg, and returns an Observer backed by them. Pass prometheus.DefaultRegisterer
// to use the global registry.
func NewPrometheus(reg prometheus.Registerer, name string) (Observer, error) {
	o := &prometheusObserver{
		name: name,
		memoryPush: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "memory_pushes_total",
			Help:        "Values placed directly in the in-memory deque.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		diskWrite: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "disk_writes_total",
			Help:        "Values serialized and appended to a queue file.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		diskBytes: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "disk_bytes_written_total",
			Help:        "Bytes appended to queue files, including record headers.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		rollover: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "rollovers_total",
			Help:        "Times the active queue file was sealed and a new one opened.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		fullReject: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "full_rejections_total",
			Help:        "Sends rejected because the disk-file budget was exhausted.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		dequeue: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "dequeues_total",
			Help:        "Values returned to the consumer.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
		fileDeleted: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace:   "dque",
			Name:        "files_deleted_total",
			Help:        "Sealed queue files removed after being fully read.",
			ConstLabels: prometheus.Labels{"channel": name},
		}),
	}

	collectors := []prometheus.Collector{
		o.memoryPush, o.diskWrite, o.diskBytes, o.rollover, o.fullReject,
		o.dequeue, o.fileDeleted,
	}
	for _, c := range collectors {
		if err := reg.Register(c); err != nil {
			return nil, err
		}
	}
	return o, nil
}

func (o *prometheusObserver) MemoryPush() { o.memoryPush.Inc() }
func (o *prometheusObserver) DiskWrite(bytes int) {
	o.diskWrite.Inc()
	o.diskBytes.Add(float64(bytes))
}
func (o *prometheusObserver) Rollover()    { o.rollover.Inc() }
func (o *prometheusObserver) FullRejected() { o.fullReject.Inc() }
func (o *prometheusObserver) Dequeue()      { o.dequeue.Inc() }
func (o *prometheusObserver) FileDeleted()  { o.fileDeleted.Inc() }
