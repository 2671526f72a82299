package kube

import (
	"testing"
	"time"

	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
)

func TestIsStuckCrashLoop(t *testing.T) {
	now := time.Now()
	pod := &corev1.Pod{
		Status: corev1.PodStatus{
			Phase: corev1.PodRunning,
			ContainerStatuses: []corev1.ContainerStatus{
				{
					RestartCount: 7,
					State: corev1.ContainerState{
						Waiting: &corev1.ContainerStateWaiting{Reason: "CrashLoopBackOff"},
					},
				},
			},
		},
	}
	if !isStuck(pod, now) {
		t.Fatal("expected crash-looping pod to be stuck")
	}
}

func TestIsStuckRunningHealthy(t *testing.T) {
	pod := &corev1.Pod{Status: corev1.PodStatus{Phase: corev1.PodRunning}}
	if isStuck(pod, time.Now()) {
		t.Fatal("expected healthy running pod not to be stuck")
	}
}

func TestIsStuckPendingPastGrace(t *testing.T) {
	old := metav1.NewTime(time.Now().Add(-stuckPodGrace - time.Minute))
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{CreationTimestamp: old},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
	if !isStuck(pod, time.Now()) {
		t.Fatal("expected long-pending pod to be stuck")
	}
}

func TestIsStuckPendingWithinGrace(t *testing.T) {
	recent := metav1.NewTime(time.Now())
	pod := &corev1.Pod{
		ObjectMeta: metav1.ObjectMeta{CreationTimestamp: recent},
		Status:     corev1.PodStatus{Phase: corev1.PodPending},
	}
	if isStuck(pod, time.Now()) {
		t.Fatal("expected recently pending pod not to be stuck yet")
	}
}
