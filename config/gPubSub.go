package config

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"os"
	"sync"
	"time"

	"cloud.google.com/go/pubsub"
	"google.golang.org/api/option"
)

// LedgerEventMessage is the payload published for every ledger outbox record.
type LedgerEventMessage struct {
	ID            int             `json:"id"`
	EventType     string          `json:"event_type"`
	PatientId     int             `json:"patient_id,omitempty"`
	Month         int             `json:"month"`
	Year          int             `json:"year"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Payload       json.RawMessage `json:"payload"`
	CorrelationId string          `json:"correlation_id"`
	RequestSource string          `json:"request_source,omitempty"`
	// OrderingKey is the Pub/Sub ordering key; empty publishes unordered.
	OrderingKey string `json:"-"`
}

var (
	pubsubClient   *pubsub.Client
	pubsubTopics   = map[string]*pubsub.Topic{}
	pubsubClientMu sync.Mutex
)

// ledgerEventsTopic returns the shared ordered-publish handle for topicName.
// Ordering must be enabled before the first Publish on a handle, so handles are cached.
func ledgerEventsTopic(client *pubsub.Client, topicName string) *pubsub.Topic {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	if t, ok := pubsubTopics[topicName]; ok {
		return t
	}
	t := client.Topic(topicName)
	t.EnableMessageOrdering = true
	pubsubTopics[topicName] = t
	return t
}

func getPubSubProjectID() string {
	if v := os.Getenv("PUBSUB_PROJECT_ID"); v != "" {
		return v
	}
	if v := os.Getenv("GOOGLE_CLOUD_PROJECT"); v != "" {
		return v
	}
	return ""
}

// getPubSubClient initializes the shared client, retrying until ctx is done.
// It uses Application Default Credentials unless PUBSUB_CREDENTIALS_JSON is provided.
func getPubSubClient(ctx context.Context) (*pubsub.Client, error) {
	pubsubClientMu.Lock()
	if pubsubClient != nil {
		c := pubsubClient
		pubsubClientMu.Unlock()
		return c, nil
	}
	pubsubClientMu.Unlock()

	projectID := getPubSubProjectID()
	if projectID == "" {
		return nil, errors.New("PUBSUB_PROJECT_ID/GOOGLE_CLOUD_PROJECT not set")
	}

	credJSON := os.Getenv("PUBSUB_CREDENTIALS_JSON")

	var attempt int
	for {
		attempt++

		var (
			c   *pubsub.Client
			err error
		)
		if credJSON != "" {
			c, err = pubsub.NewClient(ctx, projectID, option.WithCredentialsJSON([]byte(credJSON)))
		} else {
			c, err = pubsub.NewClient(ctx, projectID)
		}
		if err == nil {
			pubsubClientMu.Lock()
			if pubsubClient == nil {
				pubsubClient = c
			} else {
				// Another goroutine won the race; close ours.
				_ = c.Close()
			}
			c2 := pubsubClient
			pubsubClientMu.Unlock()

			log.Printf("pubsub client ready (project_id=%s attempt=%d)", projectID, attempt)
			return c2, nil
		}

		sleep := time.Second * time.Duration(1<<min(attempt, 5))
		if sleep > 30*time.Second {
			sleep = 30 * time.Second
		}
		log.Printf("failed to init pubsub client (project_id=%s attempt=%d): %v; retrying in %s", projectID, attempt, err, sleep)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(sleep):
		}
	}
}

// PublishLedgerEvent publishes msg to LEDGER_EVENTS_TOPIC and returns the server-assigned message ID.
func PublishLedgerEvent(ctx context.Context, msg LedgerEventMessage) (string, error) {
	topicName := os.Getenv("LEDGER_EVENTS_TOPIC")
	if topicName == "" {
		return "", errors.New("LEDGER_EVENTS_TOPIC is required")
	}

	client, err := getPubSubClient(ctx)
	if err != nil {
		return "", err
	}

	msgJSON, err := json.Marshal(msg)
	if err != nil {
		return "", err
	}
	topic := ledgerEventsTopic(client, topicName)
	result := topic.Publish(ctx, &pubsub.Message{
		Data:        msgJSON,
		OrderingKey: msg.OrderingKey,
		Attributes: map[string]string{
			"event_type":     msg.EventType,
			"correlation_id": msg.CorrelationId,
			"request_source": msg.RequestSource,
		},
	})
	id, err := result.Get(ctx)
	if err != nil && msg.OrderingKey != "" {
		// a failed ordered publish pauses the key until resumed
		topic.ResumePublish(msg.OrderingKey)
	}
	return id, err
}

func ClosePubSub() {
	pubsubClientMu.Lock()
	defer pubsubClientMu.Unlock()
	for name, t := range pubsubTopics {
		t.Stop()
		delete(pubsubTopics, name)
	}
	if pubsubClient != nil {
		_ = pubsubClient.Close()
		pubsubClient = nil
	}
}
