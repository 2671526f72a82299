package main

import (
	"testing"
	"time"

	"github.com/deployforge/engine/internal/service"
	apiv1 "github.com/deployforge/engine/pkg/apiv1"
)

func TestStartupTimeoutForFloorsAtTenMinutes(t *testing.T) {
	got := startupTimeoutFor(nil, nil)
	if got != 10*time.Minute {
		t.Fatalf("got %v, want 10m floor", got)
	}
}

func TestStartupTimeoutForTakesTheLargerProbe(t *testing.T) {
	readiness := &apiv1.ProbeSpec{InitialDelay: 5 * time.Second, Timeout: time.Second, Period: time.Second, FailureThreshold: 3}
	liveness := &apiv1.ProbeSpec{InitialDelay: time.Minute, Timeout: 10 * time.Second, Period: 10 * time.Second, FailureThreshold: 6}

	got := startupTimeoutFor(readiness, liveness)
	want := liveness.InitialDelay + (liveness.Timeout+liveness.Period)*time.Duration(liveness.FailureThreshold)
	if got != want {
		t.Fatalf("got %v, want %v", got, want)
	}
}

func TestInitialStateForCreateStartsUndeployed(t *testing.T) {
	if got := initialStateFor(service.ActionCreate); got != service.StateNotDeployed {
		t.Fatalf("got %v, want StateNotDeployed", got)
	}
}

func TestInitialStateForOtherVerbsStartDeployed(t *testing.T) {
	for _, act := range []service.Action{service.ActionPause, service.ActionDelete, service.ActionRestart} {
		if got := initialStateFor(act); got != service.StateDeployed {
			t.Fatalf("action %v: got %v, want StateDeployed", act, got)
		}
	}
}

func TestBuildItemsOrdersAcrossKinds(t *testing.T) {
	env := apiv1.Environment{
		Action: apiv1.ActionCreate,
		Applications: []apiv1.Application{
			{ServiceCommon: apiv1.ServiceCommon{ID: "app-1"}},
		},
		Jobs: []apiv1.Job{
			{ServiceCommon: apiv1.ServiceCommon{ID: "job-1"}},
		},
		Routers: []apiv1.Router{
			{ServiceCommon: apiv1.ServiceCommon{ID: "router-1"}},
		},
		Databases: []apiv1.Database{
			{ServiceCommon: apiv1.ServiceCommon{ID: "db-1"}},
		},
	}

	bc := buildContext{
		ChartsRoot: "charts",
		Namespace:  "ns",
		Action:     service.ActionCreate,
	}

	items, buildAndMirror := buildItems(env, bc)
	if len(items) != 4 {
		t.Fatalf("got %d items, want 4", len(items))
	}
	if len(buildAndMirror) != 0 {
		t.Fatalf("expected no build work without a BuildSource.GitURL, got %d", len(buildAndMirror))
	}

	kinds := make([]service.Kind, len(items))
	for i, it := range items {
		kinds[i] = it.Kind
	}
	want := []service.Kind{service.KindApplication, service.KindJob, service.KindRouter, service.KindDatabase}
	for i := range want {
		if kinds[i] != want[i] {
			t.Fatalf("item %d: got kind %v, want %v (unordered set is fine; deployment.Order sorts it)", i, kinds[i], want[i])
		}
	}
}

func TestBuildItemsCollectsBuildWorkOnlyOnCreateWithGitURL(t *testing.T) {
	env := apiv1.Environment{
		Action: apiv1.ActionPause,
		Applications: []apiv1.Application{
			{ServiceCommon: apiv1.ServiceCommon{ID: "app-1"}, Build: apiv1.BuildSource{GitURL: "https://example.test/app.git"}},
		},
	}
	bc := buildContext{ChartsRoot: "charts", Namespace: "ns", Action: service.ActionPause}

	_, buildAndMirror := buildItems(env, bc)
	if len(buildAndMirror) != 0 {
		t.Fatalf("expected no build work on a non-CREATE action, got %d", len(buildAndMirror))
	}
}

func TestValuesForProjectsResourcesPortsAndStorage(t *testing.T) {
	c := apiv1.ServiceCommon{
		Resources: apiv1.ResourceLimits{CPURequestMilli: 100, CPULimitMilli: 500, RAMRequestGiB: 1, RAMLimitGiB: 2},
		Ports:     []apiv1.Port{{Name: "http", Port: 8080}},
		Storage:   []apiv1.StorageClaim{{Name: "data", SizeGiB: 10, Path: "/data"}},
		EnvVars:   map[string]string{"FOO": "bar"},
	}
	values := valuesFor(c)

	resources, ok := values["resources"].(map[string]interface{})
	if !ok || resources["cpuLimitMilli"] != int64(500) {
		t.Fatalf("unexpected resources value: %#v", values["resources"])
	}
	ports, ok := values["ports"].([]map[string]interface{})
	if !ok || len(ports) != 1 || ports[0]["name"] != "http" {
		t.Fatalf("unexpected ports value: %#v", values["ports"])
	}
	if env, ok := values["env"].(map[string]string); !ok || env["FOO"] != "bar" {
		t.Fatalf("unexpected env value: %#v", values["env"])
	}
}
