package kube

import (
	"context"
	"fmt"
	"net"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// stuckPodGrace is how long a pod may sit in a crash-loop or stuck
// Pending/Terminating state before EvictStuckPods deletes it, giving
// the replica set a chance to reschedule a clean copy. New component,
// no teacher precedent for this exact policy; modeled after the
// Service/Ingress reconcile style of listing then acting on a subset.
const stuckPodGrace = 10 * time.Minute

// EvictStuckPods deletes pods matching rel.Selector that have been
// crash-looping or stuck Pending/Terminating past stuckPodGrace,
// letting their owning ReplicaSet/StatefulSet recreate them cleanly
// (spec.md §4.6 post-apply verification).
func (t *Target) EvictStuckPods(ctx context.Context, rel Release, emit event.Emitter) (int, error) {
	pods, err := t.listPods(ctx, rel)
	if err != nil {
		return 0, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing pods for stuck check", err)
	}

	evicted := 0
	for i := range pods.Items {
		p := &pods.Items[i]
		if !isStuck(p, time.Now()) {
			continue
		}
		if err := t.Client.Delete(ctx, p); err != nil {
			return evicted, engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "evicting stuck pod "+p.Name, err)
		}
		emit.Warn(event.StageEnvironmentDeploy, fmt.Sprintf("evicted stuck pod %s", p.Name))
		evicted++
	}
	return evicted, nil
}

func isStuck(p *corev1.Pod, now time.Time) bool {
	if p.Status.Phase == corev1.PodRunning {
		for _, cs := range p.Status.ContainerStatuses {
			if cs.RestartCount >= 5 && cs.State.Waiting != nil && cs.State.Waiting.Reason == "CrashLoopBackOff" {
				return true
			}
		}
		return false
	}

	if p.Status.Phase == corev1.PodPending && olderThan(p.CreationTimestamp, now) {
		return true
	}
	if p.DeletionTimestamp != nil && olderThan(*p.DeletionTimestamp, now) {
		return true
	}
	return false
}

func olderThan(t metav1.Time, now time.Time) bool {
	return now.Sub(t.Time) > stuckPodGrace
}

// CheckDomain verifies a router's configured domain resolves at all,
// failing fast with a KindUser error (the domain is the user's to fix)
// rather than letting the environment sit "Deployed" behind an unreachable
// host. Grounded on the list-then-verify shape of reconcileIngress, which
// checks the Ingress host field is set before building the object.
func CheckDomain(ctx context.Context, domain string) error {
	resolver := net.Resolver{}
	addrs, err := resolver.LookupHost(ctx, domain)
	if err != nil {
		return engineerr.Wrap(engineerr.KindUser, event.Details{}, "domain "+domain+" does not resolve", err)
	}
	if len(addrs) == 0 {
		return engineerr.New(engineerr.KindUser, event.Details{}, "domain "+domain+" resolved to no addresses", nil)
	}
	return nil
}
