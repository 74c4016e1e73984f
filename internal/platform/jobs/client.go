package jobs

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/crumbline/orders-api/internal/platform/config"
)

const envPubSubEmulatorHost = "PUBSUB_EMULATOR_HOST"

// NewPubSubClient dials Pub/Sub for the configured project, routing to the emulator when a host
// is configured.
func NewPubSubClient(ctx context.Context, cfg config.PubSubConfig, opts ...option.ClientOption) (*pubsub.Client, error) {
	projectID := strings.TrimSpace(cfg.ProjectID)
	if projectID == "" {
		return nil, errors.New("pubsub: project id is required")
	}

	clientOpts := append([]option.ClientOption(nil), opts...)
	if host := strings.TrimSpace(cfg.EmulatorHost); host != "" {
		if os.Getenv(envPubSubEmulatorHost) == "" {
			_ = os.Setenv(envPubSubEmulatorHost, host)
		}
		clientOpts = append(clientOpts,
			option.WithoutAuthentication(),
			option.WithEndpoint(host),
			option.WithGRPCDialOption(grpc.WithTransportCredentials(insecure.NewCredentials())),
		)
	}

	client, err := pubsub.NewClient(ctx, projectID, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("pubsub: create client: %w", err)
	}
	return client, nil
}

// TopicExists reports whether the notifications topic is reachable. Used as a readiness probe.
func TopicExists(ctx context.Context, topic *pubsub.Topic) error {
	if topic == nil {
		return errors.New("pubsub: topic is nil")
	}
	ok, err := topic.Exists(ctx)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("pubsub: topic %s not found", topic.ID())
	}
	return nil
}
