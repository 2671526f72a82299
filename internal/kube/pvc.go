package kube

import (
	"context"
	"fmt"

	corev1 "k8s.io/api/core/v1"
	"k8s.io/apimachinery/pkg/api/errors"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/apimachinery/pkg/types"
	"sigs.k8s.io/controller-runtime/pkg/client"

	"github.com/deployforge/engine/internal/engineerr"
	"github.com/deployforge/engine/internal/event"
)

// EnsureVolumeSize patches a PVC's storage request up to desired,
// following the same Get-then-Update idiom as the teacher's
// reconcileDeployment (internal/controller/devstagingenvironment_controller.go:161),
// but with one extra invariant from spec.md §4.6: storage can grow,
// never shrink or be deleted, because the underlying CSI driver (and
// most cloud block storage) cannot safely reclaim space in place.
func (t *Target) EnsureVolumeSize(ctx context.Context, name, namespace string, desired resource.Quantity) error {
	pvc := &corev1.PersistentVolumeClaim{}
	err := t.Client.Get(ctx, types.NamespacedName{Name: name, Namespace: namespace}, pvc)
	if err != nil {
		if errors.IsNotFound(err) {
			return engineerr.New(engineerr.KindUser, event.Details{}, fmt.Sprintf("volume %s/%s does not exist", namespace, name), nil)
		}
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "fetching pvc "+name, err)
	}

	current, ok := pvc.Spec.Resources.Requests[corev1.ResourceStorage]
	if !ok {
		return engineerr.New(engineerr.KindInternal, event.Details{}, fmt.Sprintf("pvc %s has no storage request", name), nil)
	}

	switch desired.Cmp(current) {
	case 0:
		return nil
	case -1:
		return engineerr.New(engineerr.KindUser, event.Details{},
			"InvalidEnginePayload: new storage size should be equal or greater than actual size", nil)
	}

	pvc.Spec.Resources.Requests[corev1.ResourceStorage] = desired
	if err := t.Client.Update(ctx, pvc); err != nil {
		return engineerr.Wrap(engineerr.KindInfrastructure, event.Details{}, "growing pvc "+name, err)
	}
	return nil
}
