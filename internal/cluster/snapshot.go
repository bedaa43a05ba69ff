package cluster

import (
	"context"
	"time"

	"golang.org/x/sync/errgroup"
	corev1 "k8s.io/api/core/v1"
)

// Snapshot is the raw input of one health check.
type Snapshot struct {
	Pods    []corev1.Pod
	Nodes   []corev1.Node
	Events  []corev1.Event
	TakenAt time.Time

	// EventsErr is set when events could not be listed. Events only feed
	// medium-severity issues, so the snapshot is still usable without them.
	EventsErr error
}

// TakeSnapshot fetches pods, nodes and events concurrently. A pods or nodes
// failure fails the whole snapshot.
func TakeSnapshot(ctx context.Context, c Collector, namespace string, now time.Time) (*Snapshot, error) {
	snap := &Snapshot{TakenAt: now}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		pods, err := c.Pods(gctx, namespace)
		snap.Pods = pods
		return err
	})
	g.Go(func() error {
		nodes, err := c.Nodes(gctx)
		snap.Nodes = nodes
		return err
	})
	g.Go(func() error {
		events, err := c.Events(gctx, namespace)
		snap.Events = events
		snap.EventsErr = err
		return nil
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return snap, nil
}
