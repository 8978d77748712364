//go:build integration

package mariadb

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kozaktomas/fingerprint-id/internal/biometric"
)

func setupTestContainer(t *testing.T) (*Pool, func()) {
	ctx := context.Background()

	req := testcontainers.ContainerRequest{
		Image:        "mariadb:11",
		ExposedPorts: []string{"3306/tcp"},
		Env: map[string]string{
			"MARIADB_USER":          "test",
			"MARIADB_PASSWORD":      "test",
			"MARIADB_DATABASE":      "fpid",
			"MARIADB_ROOT_PASSWORD": "root",
		},
		WaitingFor: wait.ForListeningPort("3306/tcp").WithStartupTimeout(90 * time.Second),
	}

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		t.Skipf("Docker not available or container failed to start, skipping integration test: %v", err)
		return nil, func() {}
	}

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("Failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "3306")
	if err != nil {
		t.Fatalf("Failed to get container port: %v", err)
	}

	dsn := fmt.Sprintf("test:test@tcp(%s:%s)/fpid", host, port.Port())

	var pool *Pool
	// the port opens before the server accepts logins
	for range 30 {
		pool, err = NewPool(dsn)
		if err == nil {
			break
		}
		time.Sleep(time.Second)
	}
	if err != nil {
		container.Terminate(ctx)
		t.Fatalf("Failed to create pool: %v", err)
	}
	if err := pool.EnsureSchema(ctx); err != nil {
		pool.Close()
		container.Terminate(ctx)
		t.Fatalf("Failed to create schema: %v", err)
	}

	return pool, func() {
		pool.Close()
		container.Terminate(ctx)
	}
}

func TestDirectory(t *testing.T) {
	pool, cleanup := setupTestContainer(t)
	if pool == nil {
		return
	}
	defer cleanup()

	ctx := context.Background()
	dir := NewDirectory(pool)
	now := time.Now().UTC().Truncate(time.Microsecond)

	if err := dir.RecordEnrollment(ctx, biometric.Enrollment{IdentityID: 7, Alias: "alice", EnrolledAt: now}); err != nil {
		t.Fatalf("RecordEnrollment failed: %v", err)
	}
	if err := dir.RecordEnrollment(ctx, biometric.Enrollment{IdentityID: 3, Alias: "bob", EnrolledAt: now}); err != nil {
		t.Fatalf("RecordEnrollment failed: %v", err)
	}

	aliases, err := dir.Aliases(ctx)
	if err != nil {
		t.Fatalf("Aliases failed: %v", err)
	}
	if len(aliases) != 2 || aliases[0].IdentityID != 3 || aliases[1].Alias != "alice" {
		t.Errorf("Unexpected aliases: %+v", aliases)
	}
	if !aliases[0].EnrolledAt.Equal(now) {
		t.Errorf("EnrolledAt = %v, want %v", aliases[0].EnrolledAt, now)
	}

	ev := biometric.MatchEvent{EventID: uuid.NewString(), IdentityID: 7, Confidence: 1, Source: biometric.SourceNative, Timestamp: now}
	if err := dir.RecordMatch(ctx, ev); err != nil {
		t.Fatalf("RecordMatch failed: %v", err)
	}

	if err := dir.RecordDeletion(ctx, 7); err != nil {
		t.Fatalf("RecordDeletion failed: %v", err)
	}
	aliases, err = dir.Aliases(ctx)
	if err != nil {
		t.Fatalf("Aliases failed: %v", err)
	}
	if len(aliases) != 1 || aliases[0].IdentityID != 3 {
		t.Errorf("Expected only bob, got %+v", aliases)
	}
}
