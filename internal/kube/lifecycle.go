package kube

import (
	"context"
	"fmt"
	"strings"
	"time"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/labels"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// pauseReplicasAnnotation records the replica count a workload had
// before it was scaled to zero, so unpause can restore it exactly (the
// same annotation-as-memory idiom the teacher uses for spec hashes,
// e.g. specHashAnnotation on Deployment/Service/Ingress).
const pauseReplicasAnnotation = "engine.deployforge.io/pre-pause-replicas"

// restart rollout-restarts every Deployment and StatefulSet matching
// rel.Selector (the Helm chart's release label) and waits for them to
// report all replicas ready again.
func (t *Target) restart(ctx context.Context, rel Release, emit event.Emitter) error {
	deployments, err := t.listDeployments(ctx, rel)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing deployments for restart", err)
	}
	for i := range deployments.Items {
		d := &deployments.Items[i]
		if d.Spec.Template.Annotations == nil {
			d.Spec.Template.Annotations = map[string]string{}
		}
		d.Spec.Template.Annotations["engine.deployforge.io/restarted-at"] = time.Now().UTC().Format(time.RFC3339)
		if err := t.Client.Update(ctx, d); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "restarting deployment "+d.Name, err)
		}
	}

	statefulSets, err := t.listStatefulSets(ctx, rel)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing statefulsets for restart", err)
	}
	for i := range statefulSets.Items {
		s := &statefulSets.Items[i]
		if s.Spec.Template.Annotations == nil {
			s.Spec.Template.Annotations = map[string]string{}
		}
		s.Spec.Template.Annotations["engine.deployforge.io/restarted-at"] = time.Now().UTC().Format(time.RFC3339)
		if err := t.Client.Update(ctx, s); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "restarting statefulset "+s.Name, err)
		}
	}

	if err := t.waitForRollout(ctx, rel); err != nil {
		postMortem := t.collectPostMortem(ctx, rel)
		emit.Error(event.StageEnvironmentRestartedErr, "restart did not converge", postMortem)
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "rollout did not converge: "+postMortem, err)
	}
	emit.Info(event.StageEnvironmentRestarted, "release "+rel.Name+" restarted")
	return nil
}

// pause scales every matching Deployment and StatefulSet to zero
// replicas, first stashing the previous replica count in
// pauseReplicasAnnotation so unpause is exact rather than a guessed
// default.
func (t *Target) pause(ctx context.Context, rel Release, emit event.Emitter) error {
	deployments, err := t.listDeployments(ctx, rel)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing deployments for pause", err)
	}
	for i := range deployments.Items {
		d := &deployments.Items[i]
		if d.Annotations == nil {
			d.Annotations = map[string]string{}
		}
		prev := int32(1)
		if d.Spec.Replicas != nil {
			prev = *d.Spec.Replicas
		}
		d.Annotations[pauseReplicasAnnotation] = fmt.Sprintf("%d", prev)
		zero := int32(0)
		d.Spec.Replicas = &zero
		if err := t.Client.Update(ctx, d); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "pausing deployment "+d.Name, err)
		}
	}

	statefulSets, err := t.listStatefulSets(ctx, rel)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing statefulsets for pause", err)
	}
	for i := range statefulSets.Items {
		s := &statefulSets.Items[i]
		if s.Annotations == nil {
			s.Annotations = map[string]string{}
		}
		prev := int32(1)
		if s.Spec.Replicas != nil {
			prev = *s.Spec.Replicas
		}
		s.Annotations[pauseReplicasAnnotation] = fmt.Sprintf("%d", prev)
		zero := int32(0)
		s.Spec.Replicas = &zero
		if err := t.Client.Update(ctx, s); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "pausing statefulset "+s.Name, err)
		}
	}
	emit.Info(event.StageEnvironmentPaused, "release "+rel.Name+" paused")
	return nil
}

// unpause restores the replica count stashed by pause on every matching
// Deployment and StatefulSet. A workload with no stashed annotation
// (never paused, or created after a pause) is left untouched.
func (t *Target) unpause(ctx context.Context, rel Release, emit event.Emitter) error {
	deployments, err := t.listDeployments(ctx, rel)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing deployments for unpause", err)
	}
	for i := range deployments.Items {
		d := &deployments.Items[i]
		raw, ok := d.Annotations[pauseReplicasAnnotation]
		if !ok {
			continue
		}
		var prev int32
		if _, err := fmt.Sscanf(raw, "%d", &prev); err != nil {
			prev = 1
		}
		d.Spec.Replicas = &prev
		delete(d.Annotations, pauseReplicasAnnotation)
		if err := t.Client.Update(ctx, d); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "unpausing deployment "+d.Name, err)
		}
	}

	statefulSets, err := t.listStatefulSets(ctx, rel)
	if err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "listing statefulsets for unpause", err)
	}
	for i := range statefulSets.Items {
		s := &statefulSets.Items[i]
		raw, ok := s.Annotations[pauseReplicasAnnotation]
		if !ok {
			continue
		}
		var prev int32
		if _, err := fmt.Sscanf(raw, "%d", &prev); err != nil {
			prev = 1
		}
		s.Spec.Replicas = &prev
		delete(s.Annotations, pauseReplicasAnnotation)
		if err := t.Client.Update(ctx, s); err != nil {
			return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "unpausing statefulset "+s.Name, err)
		}
	}
	emit.Info(event.StageEnvironmentDeployed, "release "+rel.Name+" unpaused")
	return nil
}

func (t *Target) listDeployments(ctx context.Context, rel Release) (*appsv1.DeploymentList, error) {
	list := &appsv1.DeploymentList{}
	opts := []client.ListOption{client.InNamespace(rel.Namespace)}
	if rel.Selector != "" {
		sel, err := parseSelector(rel.Selector)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.MatchingLabelsSelector{Selector: sel})
	}
	if err := t.Client.List(ctx, list, opts...); err != nil {
		return nil, err
	}
	return list, nil
}

func (t *Target) listStatefulSets(ctx context.Context, rel Release) (*appsv1.StatefulSetList, error) {
	list := &appsv1.StatefulSetList{}
	opts := []client.ListOption{client.InNamespace(rel.Namespace)}
	if rel.Selector != "" {
		sel, err := parseSelector(rel.Selector)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.MatchingLabelsSelector{Selector: sel})
	}
	if err := t.Client.List(ctx, list, opts...); err != nil {
		return nil, err
	}
	return list, nil
}

// waitForRollout polls every matching Deployment and StatefulSet until Status.ReadyReplicas
// equals the desired replica count or the context is cancelled, mirroring
// Helm's own --wait semantics for the restart path (which bypasses Helm
// since no chart values changed).
func (t *Target) waitForRollout(ctx context.Context, rel Release) error {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()
	for {
		deployments, err := t.listDeployments(ctx, rel)
		if err != nil {
			return err
		}
		statefulSets, err := t.listStatefulSets(ctx, rel)
		if err != nil {
			return err
		}
		allReady := true
		for _, d := range deployments.Items {
			want := int32(1)
			if d.Spec.Replicas != nil {
				want = *d.Spec.Replicas
			}
			if d.Status.ReadyReplicas < want {
				allReady = false
				break
			}
		}
		if allReady {
			for _, s := range statefulSets.Items {
				want := int32(1)
				if s.Spec.Replicas != nil {
					want = *s.Spec.Replicas
				}
				if s.Status.ReadyReplicas < want {
					allReady = false
					break
				}
			}
		}
		if allReady {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// collectPostMortem gathers a best-effort snapshot of pod phases and
// recent events for the release's namespace, attached to the returned
// error instead of being retried (spec.md §4.6: "on failure, collect
// diagnostics once; do not retry the apply").
func (t *Target) collectPostMortem(ctx context.Context, rel Release) string {
	var sb strings.Builder

	pods, err := t.listPods(ctx, rel)
	if err != nil {
		sb.WriteString("pods: <unavailable: " + err.Error() + ">\n")
	} else {
		for _, p := range pods.Items {
			sb.WriteString(fmt.Sprintf("pod %s: phase=%s reason=%s\n", p.Name, p.Status.Phase, p.Status.Reason))
			for _, cs := range p.Status.ContainerStatuses {
				if cs.State.Waiting != nil {
					sb.WriteString(fmt.Sprintf("  container %s waiting: %s: %s\n", cs.Name, cs.State.Waiting.Reason, cs.State.Waiting.Message))
				}
				if cs.State.Terminated != nil {
					sb.WriteString(fmt.Sprintf("  container %s terminated: %s: %s\n", cs.Name, cs.State.Terminated.Reason, cs.State.Terminated.Message))
				}
			}
		}
	}

	events := &corev1.EventList{}
	if err := t.Client.List(ctx, events, client.InNamespace(rel.Namespace)); err == nil {
		for _, e := range events.Items {
			if e.Type == corev1.EventTypeWarning {
				sb.WriteString(fmt.Sprintf("event %s/%s: %s\n", e.InvolvedObject.Kind, e.InvolvedObject.Name, e.Message))
			}
		}
	}

	if sb.Len() == 0 {
		return "no diagnostics available"
	}
	return sb.String()
}

func (t *Target) listPods(ctx context.Context, rel Release) (*corev1.PodList, error) {
	list := &corev1.PodList{}
	opts := []client.ListOption{client.InNamespace(rel.Namespace)}
	if rel.Selector != "" {
		sel, err := parseSelector(rel.Selector)
		if err != nil {
			return nil, err
		}
		opts = append(opts, client.MatchingLabelsSelector{Selector: sel})
	}
	if err := t.Client.List(ctx, list, opts...); err != nil {
		return nil, err
	}
	return list, nil
}

func parseSelector(sel string) (labels.Selector, error) {
	return labels.Parse(sel)
}
