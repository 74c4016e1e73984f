package main

import (
	"sort"
	"testing"

	"github.com/crumbline/orders-api/internal/platform/config"
)

func TestRequiredSecretNamesOnlyListsReferences(t *testing.T) {
	names := requiredSecretNames(map[string]string{
		"API_FIREBASE_CREDENTIALS_JSON":  " secret://firebase-credentials ",
		"API_PUBSUB_NOTIFICATIONS_TOPIC": "order-notifications",
	})
	if len(names) != 1 || names[0] != "Firebase.CredentialsJSON" {
		t.Fatalf("unexpected names %v", names)
	}

	names = requiredSecretNames(map[string]string{
		"API_FIREBASE_CREDENTIALS_JSON":  "sm://firebase-credentials",
		"API_PUBSUB_NOTIFICATIONS_TOPIC": "secret://orders-topic?version=2",
	})
	sort.Strings(names)
	if len(names) != 2 || names[0] != "Firebase.CredentialsJSON" || names[1] != "PubSub.NotificationsTopic" {
		t.Fatalf("unexpected names %v", names)
	}
}

func TestTraceProjectIDPrefersFirebase(t *testing.T) {
	cfg := config.Config{
		Firebase:  config.FirebaseConfig{ProjectID: "bakery-auth"},
		Firestore: config.FirestoreConfig{ProjectID: "bakery-data"},
	}
	if got := traceProjectID(cfg); got != "bakery-auth" {
		t.Fatalf("expected bakery-auth, got %s", got)
	}
	cfg.Firebase.ProjectID = ""
	if got := traceProjectID(cfg); got != "bakery-data" {
		t.Fatalf("expected bakery-data, got %s", got)
	}
}
