// Package firestoretest provides a Firestore emulator endpoint for integration tests.
package firestoretest

import (
	"context"
	"net"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/crumbline/orders-api/internal/platform/config"
)

const (
	image         = "gcr.io/google.com/cloudsdktool/cloud-sdk:emulators"
	readyDeadline = 30 * time.Second
)

// Start returns a config for a reachable emulator. An emulator already named by
// FIRESTORE_EMULATOR_HOST is reused; otherwise one is started in docker and stopped on cleanup.
// The test is skipped when neither is possible.
func Start(t *testing.T, projectID string) config.FirestoreConfig {
	t.Helper()
	host := strings.TrimSpace(os.Getenv("FIRESTORE_EMULATOR_HOST"))
	if host == "" {
		host = runContainer(t)
	}
	if err := waitReachable(host, readyDeadline); err != nil {
		t.Fatalf("firestore emulator at %s not reachable: %v", host, err)
	}
	return config.FirestoreConfig{ProjectID: projectID, EmulatorHost: host}
}

func runContainer(t *testing.T) string {
	t.Helper()
	if _, err := exec.LookPath("docker"); err != nil {
		t.Skip("docker not available: " + err.Error())
	}
	if err := docker(5*time.Second, "info"); err != nil {
		t.Skip("docker daemon unavailable: " + err.Error())
	}

	out, err := exec.Command("docker", "run", "-d", "--rm", "-p", "127.0.0.1::8080", image,
		"gcloud", "beta", "emulators", "firestore", "start", "--host-port=0.0.0.0:8080", "--quiet",
	).CombinedOutput()
	if err != nil {
		t.Fatalf("start firestore emulator: %v: %s", err, out)
	}
	id := strings.TrimSpace(string(out))
	t.Cleanup(func() { _ = docker(10*time.Second, "stop", id) })

	// docker port prints one mapping per line, e.g. "127.0.0.1:49153".
	mapped, err := exec.Command("docker", "port", id, "8080/tcp").Output()
	if err != nil {
		t.Fatalf("resolve emulator port: %v", err)
	}
	host, _, _ := strings.Cut(strings.TrimSpace(string(mapped)), "\n")
	return host
}

func docker(timeout time.Duration, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()
	return exec.CommandContext(ctx, "docker", args...).Run()
}

func waitReachable(host string, within time.Duration) error {
	deadline := time.Now().Add(within)
	for {
		conn, err := net.DialTimeout("tcp", host, 500*time.Millisecond)
		if err == nil {
			return conn.Close()
		}
		if time.Now().After(deadline) {
			return err
		}
		time.Sleep(250 * time.Millisecond)
	}
}
