package kube

import (
	"context"
	"testing"

	appsv1 "k8s.io/api/apps/v1"
	corev1 "k8s.io/api/core/v1"
	metav1 "k8s.io/apimachinery/pkg/apis/meta/v1"
	"k8s.io/apimachinery/pkg/runtime"
	"sigs.k8s.io/controller-runtime/pkg/client"
	clientfake "sigs.k8s.io/controller-runtime/pkg/client/fake"

	"github.com/deployforge/engine/internal/event"
)

func newFakeWorkloadTarget(objs ...runtime.Object) *Target {
	scheme := runtime.NewScheme()
	_ = corev1.AddToScheme(scheme)
	_ = appsv1.AddToScheme(scheme)
	builder := clientfake.NewClientBuilder().WithScheme(scheme)
	for _, o := range objs {
		builder = builder.WithRuntimeObjects(o)
	}
	return &Target{Client: builder.Build(), Namespace: "default"}
}

func testStatefulSet(name string, replicas int32) *appsv1.StatefulSet {
	return &appsv1.StatefulSet{
		ObjectMeta: metav1.ObjectMeta{Name: name, Namespace: "default"},
		Spec:       appsv1.StatefulSetSpec{Replicas: &replicas},
		Status:     appsv1.StatefulSetStatus{ReadyReplicas: replicas},
	}
}

// Container-mode databases are commonly StatefulSet-backed; pause must
// not silently match zero objects for them.
func TestPauseScalesStatefulSetToZero(t *testing.T) {
	target := newFakeWorkloadTarget(testStatefulSet("db", 3))

	if err := target.pause(context.Background(), Release{Namespace: "default"}, event.Emitter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got appsv1.StatefulSet
	if err := target.Client.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "db"}, &got); err != nil {
		t.Fatalf("get statefulset: %v", err)
	}
	if *got.Spec.Replicas != 0 {
		t.Fatalf("expected replicas scaled to 0, got %d", *got.Spec.Replicas)
	}
	if got.Annotations[pauseReplicasAnnotation] != "3" {
		t.Fatalf("expected previous replica count stashed, got %v", got.Annotations)
	}
}

func TestUnpauseRestoresStatefulSetReplicas(t *testing.T) {
	ss := testStatefulSet("db", 0)
	ss.Annotations = map[string]string{pauseReplicasAnnotation: "3"}
	target := newFakeWorkloadTarget(ss)

	if err := target.unpause(context.Background(), Release{Namespace: "default"}, event.Emitter{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var got appsv1.StatefulSet
	if err := target.Client.Get(context.Background(), client.ObjectKey{Namespace: "default", Name: "db"}, &got); err != nil {
		t.Fatalf("get statefulset: %v", err)
	}
	if *got.Spec.Replicas != 3 {
		t.Fatalf("expected replicas restored to 3, got %d", *got.Spec.Replicas)
	}
	if _, ok := got.Annotations[pauseReplicasAnnotation]; ok {
		t.Fatalf("expected stash annotation removed after unpause")
	}
}
