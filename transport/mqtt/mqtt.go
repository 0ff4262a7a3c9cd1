// Package mqtt mirrors newly uploaded posts to an MQTT broker.
//
// Each post is published as its NewSinglePost message on the topic
// "{prefix}/{book}/{page}", so dashboards and bots can follow a book without
// holding a reader session open.
package mqtt

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strconv"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kabili207/ebook-go/core/codec"
	"github.com/kabili207/ebook-go/core/post"
	"github.com/kabili207/ebook-go/transport"
)

const (
	// DefaultTopicPrefix is the default MQTT topic prefix for posts.
	DefaultTopicPrefix = "ebook"

	// DefaultPublishTimeout bounds a single publish.
	DefaultPublishTimeout = 10 * time.Second
)

// ErrNotConnected is returned when publishing without a broker connection.
var ErrNotConnected = errors.New("not connected")

// Config holds the configuration for an MQTT publisher.
type Config struct {
	// Broker is the MQTT broker URL (e.g., "tcp://broker.example.com:1883").
	Broker string
	// Username for MQTT authentication. Leave empty if not required.
	Username string
	// Password for MQTT authentication. Leave empty if not required.
	Password string
	// UseTLS enables TLS for the MQTT connection.
	UseTLS bool
	// ClientID is the MQTT client identifier. If empty, a random one is generated.
	ClientID string
	// TopicPrefix is the MQTT topic prefix (default: "ebook").
	TopicPrefix string
	// QoS is the publish quality of service, 0 to 2.
	QoS byte
	// PublishTimeout bounds each publish. Defaults to 10 seconds.
	PublishTimeout time.Duration
	// Logger is the logger to use. If nil, slog.Default() is used.
	Logger *slog.Logger
}

// Publisher publishes posts to an MQTT broker.
type Publisher struct {
	cfg          Config
	client       paho.Client
	newClient    func(*paho.ClientOptions) paho.Client
	log          *slog.Logger
	mu           sync.RWMutex
	connected    bool
	stateHandler transport.StateHandler
}

// New creates a new MQTT publisher with the given configuration.
func New(cfg Config) *Publisher {
	if cfg.TopicPrefix == "" {
		cfg.TopicPrefix = DefaultTopicPrefix
	}
	if cfg.PublishTimeout <= 0 {
		cfg.PublishTimeout = DefaultPublishTimeout
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	return &Publisher{
		cfg:       cfg,
		newClient: paho.NewClient,
		log:       cfg.Logger.WithGroup("mqtt"),
	}
}

// Start connects to the MQTT broker.
func (p *Publisher) Start(ctx context.Context) error {
	if p.cfg.Broker == "" {
		return errors.New("broker URL is required")
	}

	clientID := p.cfg.ClientID
	if clientID == "" {
		clientID = "ebook-" + randomString(16)
	}

	opts := paho.NewClientOptions().
		AddBroker(p.cfg.Broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(2 * time.Minute).
		SetKeepAlive(60 * time.Second).
		SetPingTimeout(10 * time.Second).
		SetCleanSession(true).
		SetOrderMatters(false).
		SetOnConnectHandler(p.onConnected).
		SetConnectionLostHandler(p.onConnectionLost).
		SetReconnectingHandler(p.onReconnecting)

	if p.cfg.Username != "" {
		opts.SetUsername(p.cfg.Username)
	}
	if p.cfg.Password != "" {
		opts.SetPassword(p.cfg.Password)
	}
	if p.cfg.UseTLS {
		opts.SetTLSConfig(&tls.Config{
			MinVersion: tls.VersionTLS12,
		})
	}

	client := p.newClient(opts)
	p.mu.Lock()
	p.client = client
	p.mu.Unlock()

	token := client.Connect()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(30 * time.Second):
		return errors.New("connection timeout")
	}
	if token.Error() != nil {
		return fmt.Errorf("connecting to broker: %w", token.Error())
	}
	return nil
}

// Stop gracefully disconnects from the MQTT broker.
func (p *Publisher) Stop() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.client != nil {
		p.client.Disconnect(1000)
		p.connected = false
	}
	return nil
}

// IsConnected returns true if the publisher is connected to the broker.
func (p *Publisher) IsConnected() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.connected && p.client != nil && p.client.IsConnected()
}

// SetStateHandler sets the callback for connection state changes.
func (p *Publisher) SetStateHandler(fn transport.StateHandler) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.stateHandler = fn
}

// Topic returns the topic posts on the given page are published to.
func (p *Publisher) Topic(book string, page int) string {
	return p.cfg.TopicPrefix + "/" + book + "/" + strconv.Itoa(page)
}

// PublishPost publishes a post as a NewSinglePost message.
func (p *Publisher) PublishPost(ctx context.Context, pst *post.Post) error {
	if !p.IsConnected() {
		return ErrNotConnected
	}

	p.mu.RLock()
	client := p.client
	p.mu.RUnlock()

	payload := (&codec.NewSinglePost{Post: pst}).Encode()
	token := client.Publish(p.Topic(pst.Book, pst.Page), p.cfg.QoS, false, payload)

	timer := time.NewTimer(p.cfg.PublishTimeout)
	defer timer.Stop()
	select {
	case <-token.Done():
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return errors.New("timeout publishing to MQTT")
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish post %d: %w", pst.ID, err)
	}
	return nil
}

func (p *Publisher) onConnected(_ paho.Client) {
	p.mu.Lock()
	p.connected = true
	handler := p.stateHandler
	p.mu.Unlock()

	p.log.Info("connected to MQTT broker", "broker", p.cfg.Broker)

	if handler != nil {
		handler(transport.EventConnected)
	}
}

func (p *Publisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	handler := p.stateHandler
	p.mu.Unlock()

	p.log.Error("MQTT connection lost", "error", err)

	if handler != nil {
		handler(transport.EventDisconnected)
	}
}

func (p *Publisher) onReconnecting(_ paho.Client, _ *paho.ClientOptions) {
	p.mu.RLock()
	handler := p.stateHandler
	p.mu.RUnlock()

	p.log.Info("reconnecting to MQTT broker")

	if handler != nil {
		handler(transport.EventReconnecting)
	}
}

func randomString(n int) string {
	const alphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZabcdefghijklmnopqrstuvwxyz0123456789"
	b := make([]byte, n)
	for i := range b {
		b[i] = alphabet[rand.IntN(len(alphabet))]
	}
	return string(b)
}
