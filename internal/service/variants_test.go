package service

import (
	"context"
	"errors"
	"testing"
)

func TestValidateManagedDatabaseAccepted(t *testing.T) {
	if err := ValidateManagedDatabase(ProviderAWS, DatabasePostgreSQL); err != nil {
		t.Fatalf("expected AWS PostgreSQL to be supported, got %v", err)
	}
}

func TestValidateManagedDatabaseRejected(t *testing.T) {
	err := ValidateManagedDatabase(ProviderDO, DatabaseMongoDB)
	if err == nil {
		t.Fatal("expected DigitalOcean managed MongoDB to be rejected")
	}
	var unsupported *ErrUnsupportedManagedMode
	if !errors.As(err, &unsupported) {
		t.Fatalf("expected ErrUnsupportedManagedMode, got %T", err)
	}
}

type fakeTerraform struct {
	applyErr   error
	destroyErr error
	applied    bool
	destroyed  bool
}

func (f *fakeTerraform) Apply(ctx context.Context, module string, vars map[string]string) error {
	f.applied = true
	return f.applyErr
}

func (f *fakeTerraform) Destroy(ctx context.Context, module string) error {
	f.destroyed = true
	return f.destroyErr
}

func TestDatabaseManagedCreateRejectsUnsupportedCombination(t *testing.T) {
	tf := &fakeTerraform{}
	db := &Database{ID: "db-1", DBKind: DatabaseRedis, Mode: DatabaseModeManaged, Provider: ProviderDO, Terraform: tf}
	if err := db.Create(context.Background()); err == nil {
		t.Fatal("expected unsupported managed mode to be rejected before Terraform runs")
	}
	if tf.applied {
		t.Fatal("expected Terraform.Apply not to run for a rejected combination")
	}
}

func TestDatabaseManagedCreateAppliesTerraform(t *testing.T) {
	tf := &fakeTerraform{}
	db := &Database{ID: "db-1", DBKind: DatabasePostgreSQL, Mode: DatabaseModeManaged, Provider: ProviderAWS, Terraform: tf}
	if err := db.Create(context.Background()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !tf.applied {
		t.Fatal("expected Terraform.Apply to run")
	}
}

func TestDatabaseManagedPauseIsNoOp(t *testing.T) {
	db := &Database{ID: "db-1", Mode: DatabaseModeManaged}
	if err := db.Pause(context.Background()); err != nil {
		t.Fatalf("expected managed database pause to be a no-op, got %v", err)
	}
}
