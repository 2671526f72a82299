package deployment

import (
	"context"
	"testing"

	"github.com/deployforge/engine/internal/builder"
	"github.com/deployforge/engine/internal/command"
	"github.com/deployforge/engine/internal/event"
	"github.com/deployforge/engine/internal/metrics"
	"github.com/deployforge/engine/internal/registry"
	"github.com/deployforge/engine/internal/service"
)

// failingAdapter errors on the very first registry call a build makes
// (ImageExists), so BuilderPool.Run fails in the build phase without
// ever invoking a real command.Runner.
type failingAdapter struct{}

func (failingAdapter) Kind() registry.Kind { return registry.KindGeneric }
func (failingAdapter) CreateRegistry(context.Context) error { return nil }
func (failingAdapter) CreateRepository(context.Context, string, int64, map[string]string) (registry.CreateRepositoryResult, error) {
	return registry.CreateRepositoryResult{}, nil
}
func (failingAdapter) GetRepository(context.Context, string) (registry.Repository, bool, error) {
	return registry.Repository{}, false, nil
}
func (failingAdapter) DeleteRepository(context.Context, string) error    { return nil }
func (failingAdapter) DeleteImage(context.Context, registry.Image) error { return nil }
func (failingAdapter) ImageExists(context.Context, registry.Image) (bool, error) {
	return false, errBoom
}
func (failingAdapter) Info() registry.Info                     { return registry.Info{} }
func (failingAdapter) GetImageName(logical string) string      { return logical }
func (failingAdapter) GetRepositoryName(logical string) string { return logical }

type fakeDeployable struct {
	id     string
	kind   service.Kind
	failOn service.Action
	calls  []service.Action
}

func (f *fakeDeployable) ServiceID() string { return f.id }
func (f *fakeDeployable) Kind() service.Kind { return f.kind }

func (f *fakeDeployable) run(act service.Action) error {
	f.calls = append(f.calls, act)
	if f.failOn == act {
		return errBoom
	}
	return nil
}

func (f *fakeDeployable) Create(ctx context.Context) error  { return f.run(service.ActionCreate) }
func (f *fakeDeployable) Pause(ctx context.Context) error   { return f.run(service.ActionPause) }
func (f *fakeDeployable) Delete(ctx context.Context) error  { return f.run(service.ActionDelete) }
func (f *fakeDeployable) Restart(ctx context.Context) error { return f.run(service.ActionRestart) }

type boom struct{}

func (boom) Error() string { return "boom" }

var errBoom error = boom{}

func newItem(id string, kind service.Kind, failOn service.Action) (Item, *fakeDeployable) {
	d := &fakeDeployable{id: id, kind: kind, failOn: failOn}
	return Item{Handle: &service.Handle{Deployable: d}, Kind: kind}, d
}

func TestOrderDatabasesFirstRoutersLast(t *testing.T) {
	router, _ := newItem("router", service.KindRouter, "")
	app, _ := newItem("app", service.KindApplication, "")
	job, _ := newItem("job", service.KindJob, "")
	db, _ := newItem("db", service.KindDatabase, "")

	items := []Item{router, app, job, db}
	Order(items)

	got := []string{}
	for _, it := range items {
		got = append(got, it.Handle.Deployable.ServiceID())
	}
	want := []string{"db", "app", "job", "router"}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("expected order %v, got %v", want, got)
		}
	}
}

func TestOrderPreservesOriginalOrderWithinBucket(t *testing.T) {
	a, _ := newItem("app-a", service.KindApplication, "")
	b, _ := newItem("app-b", service.KindContainer, "")
	items := []Item{b, a}
	Order(items)
	if items[0].Handle.Deployable.ServiceID() != "app-b" {
		t.Fatalf("expected stable sort to keep app-b first, got %s", items[0].Handle.Deployable.ServiceID())
	}
}

func TestDriveAllSucceed(t *testing.T) {
	appItem, appSvc := newItem("app", service.KindApplication, "")
	dbItem, dbSvc := newItem("db", service.KindDatabase, "")

	req := Request{
		EnvironmentID: "env-1",
		Action:        service.ActionCreate,
		Items:         []Item{appItem, dbItem},
		Report:        metrics.NewReport(nil),
		IsCancelled:   func() bool { return false },
	}

	result, err := Drive(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if result.Verdict != VerdictSuccess {
		t.Fatalf("expected VerdictSuccess, got %v", result.Verdict)
	}
	if !result.DeployedIDs["app"] || !result.DeployedIDs["db"] {
		t.Fatalf("expected both services deployed, got %v", result.DeployedIDs)
	}
	if len(appSvc.calls) != 1 || appSvc.calls[0] != service.ActionCreate {
		t.Fatalf("expected app to be created once, got %v", appSvc.calls)
	}
	if dbSvc.calls[0] != service.ActionCreate {
		t.Fatalf("expected db created, got %v", dbSvc.calls)
	}
}

func TestDriveFirstErrorCancelsRemaining(t *testing.T) {
	dbItem, _ := newItem("db", service.KindDatabase, service.ActionCreate)
	appItem, appSvc := newItem("app", service.KindApplication, "")
	routerItem, _ := newItem("router", service.KindRouter, "")

	req := Request{
		EnvironmentID: "env-1",
		Action:        service.ActionCreate,
		Items:         []Item{appItem, routerItem, dbItem},
		Report:        metrics.NewReport(nil),
		IsCancelled:   func() bool { return false },
	}

	result, err := Drive(context.Background(), req)
	if err == nil {
		t.Fatal("expected first-error to propagate")
	}
	if result.Verdict != VerdictError {
		t.Fatalf("expected VerdictError, got %v", result.Verdict)
	}
	// Databases run first: db fails, app and router (ordered after it)
	// must never be attempted and end up Cancelled.
	if len(appSvc.calls) != 0 {
		t.Fatalf("expected app to never run once db failed, got %v", appSvc.calls)
	}
	if len(result.CancelledIDs) != 2 {
		t.Fatalf("expected 2 cancelled services, got %v", result.CancelledIDs)
	}
}

func TestDriveObservesExternalCancelBeforeAnyWork(t *testing.T) {
	appItem, appSvc := newItem("app", service.KindApplication, "")

	req := Request{
		EnvironmentID: "env-1",
		Action:        service.ActionCreate,
		Items:         []Item{appItem},
		Report:        metrics.NewReport(nil),
		IsCancelled:   func() bool { return true },
	}

	result, err := Drive(context.Background(), req)
	if err != nil {
		t.Fatalf("cancellation alone is not an error, got %v", err)
	}
	if result.Verdict != VerdictCancelled {
		t.Fatalf("expected VerdictCancelled, got %v", result.Verdict)
	}
	if len(appSvc.calls) != 0 {
		t.Fatalf("expected no calls once cancelled, got %v", appSvc.calls)
	}
}

// A build/mirror-phase failure must cancel every not-yet-deployed
// service the same way an apply-phase failure does, not just return an
// error with no Cancelled bookkeeping (spec.md §4.8 step 5).
func TestDriveBuildPhaseFailureCancelsEveryService(t *testing.T) {
	appItem, appSvc := newItem("app", service.KindApplication, "")
	dbItem, dbSvc := newItem("db", service.KindDatabase, "")

	pool := builder.NewPool(builder.Handle{NBBuilders: 1}, failingAdapter{}, command.NewRunner(), event.Emitter{})

	req := Request{
		EnvironmentID: "env-1",
		Action:        service.ActionCreate,
		Items:         []Item{appItem, dbItem},
		BuildAndMirror: []BuildAndMirror{{
			Build: builder.Buildable{ServiceID: "app", Image: registry.Image{Repository: "app", Tag: "t1"}},
		}},
		BuilderPool: pool,
		KillerFor:   func(builder.Buildable) command.Killer { return command.Killer{} },
		Report:      metrics.NewReport(nil),
		IsCancelled: func() bool { return false },
	}

	result, err := Drive(context.Background(), req)
	if err == nil {
		t.Fatal("expected the build-phase error to propagate")
	}
	if result.Verdict != VerdictError {
		t.Fatalf("expected VerdictError, got %v", result.Verdict)
	}
	if len(appSvc.calls) != 0 || len(dbSvc.calls) != 0 {
		t.Fatalf("expected neither service to be applied once the build phase failed, got app=%v db=%v", appSvc.calls, dbSvc.calls)
	}
	if len(result.CancelledIDs) != 2 {
		t.Fatalf("expected both services marked Cancelled, got %v", result.CancelledIDs)
	}
}
