package mqtt

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/troubadour-audio/troubadour/pkg/trb"
)

// Options configures the MQTT client.
type Options struct {
	BrokerURL string
	ClientID  string
	Username  string
	Password  string
	TLSCA     string
	TLSCert   string
	TLSKey    string
	TopicBase string
	Timeout   time.Duration
}

// Client is an MQTT adapter implementing the Broker port.
type Client struct {
	client     paho.Client
	replyTopic string
	topicBase  string
	timeout    time.Duration

	mu            sync.Mutex
	replyHandlers map[string]chan trb.Reply
}

// NewClient creates and connects an MQTT client.
func NewClient(opts Options) (*Client, error) {
	if opts.TopicBase == "" {
		opts.TopicBase = trb.BaseTopic
	}
	if opts.Timeout == 0 {
		opts.Timeout = 2 * time.Second
	}

	c := &Client{
		replyTopic:    trb.TopicReply(opts.TopicBase, opts.ClientID),
		topicBase:     opts.TopicBase,
		timeout:       opts.Timeout,
		replyHandlers: map[string]chan trb.Reply{},
	}

	clientOpts := paho.NewClientOptions().AddBroker(opts.BrokerURL)
	clientOpts.SetClientID(opts.ClientID)
	clientOpts.SetConnectTimeout(opts.Timeout)
	clientOpts.SetAutoReconnect(true)
	clientOpts.SetOnConnectHandler(func(client paho.Client) {
		token := client.Subscribe(c.replyTopic, 1, c.handleReply)
		token.Wait()
	})

	if opts.Username != "" {
		clientOpts.SetUsername(opts.Username)
		clientOpts.SetPassword(opts.Password)
	}

	tlsConfig, err := buildTLSConfig(opts.TLSCA, opts.TLSCert, opts.TLSKey)
	if err != nil {
		return nil, err
	}
	if tlsConfig != nil {
		clientOpts.SetTLSConfig(tlsConfig)
	}

	c.client = paho.NewClient(clientOpts)
	if token := c.client.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	if token := c.client.Subscribe(c.replyTopic, 1, c.handleReply); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}

	return c, nil
}

// ReplyTopic returns the topic used for replies.
func (c *Client) ReplyTopic() string {
	return c.replyTopic
}

// PublishCommand publishes a command and waits for its correlated
// reply. The command's ID must be set; ReplyTo is filled in here.
func (c *Client) PublishCommand(ctx context.Context, cmd trb.Message) (trb.Reply, error) {
	if cmd.ID == "" {
		return trb.Reply{}, errors.New("command id required")
	}
	cmd.ReplyTo = c.replyTopic

	req, err := json.Marshal(cmd)
	if err != nil {
		return trb.Reply{}, fmt.Errorf("marshal command: %w", err)
	}

	replyCh := make(chan trb.Reply, 1)
	c.mu.Lock()
	c.replyHandlers[cmd.ID] = replyCh
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.replyHandlers, cmd.ID)
		c.mu.Unlock()
	}()

	topic := trb.TopicCommands(c.topicBase)
	if token := c.client.Publish(topic, 1, false, req); token.Wait() && token.Error() != nil {
		return trb.Reply{}, token.Error()
	}

	select {
	case <-ctx.Done():
		return trb.Reply{}, ctx.Err()
	case reply := <-replyCh:
		return reply, nil
	case <-time.After(c.timeout):
		return trb.Reply{}, errors.New("timeout waiting for reply")
	}
}

// WatchEvents streams player events for one guild, or for all guilds
// when guildID is zero. Channels close when ctx is cancelled.
func (c *Client) WatchEvents(ctx context.Context, guildID int64) (<-chan trb.Message, <-chan error) {
	eventCh := make(chan trb.Message, 8)
	errCh := make(chan error, 1)

	handler := func(_ paho.Client, msg paho.Message) {
		var evt trb.Message
		if err := json.Unmarshal(msg.Payload(), &evt); err != nil {
			return
		}
		if evt.Type != trb.TypeEvent {
			return
		}
		if guildID != 0 && evt.GuildID != guildID {
			return
		}
		select {
		case eventCh <- evt:
		default:
		}
	}

	topic := trb.TopicAllEvents(c.topicBase)
	if guildID != 0 {
		topic = trb.TopicGuildEvents(c.topicBase, guildID)
	}

	if token := c.client.Subscribe(topic, 1, handler); token.Wait() && token.Error() != nil {
		errCh <- token.Error()
		return eventCh, errCh
	}

	go func() {
		<-ctx.Done()
		c.client.Unsubscribe(topic)
		close(eventCh)
		close(errCh)
	}()

	return eventCh, errCh
}

func (c *Client) handleReply(_ paho.Client, msg paho.Message) {
	var reply trb.Reply
	if err := json.Unmarshal(msg.Payload(), &reply); err != nil {
		return
	}

	c.mu.Lock()
	ch, ok := c.replyHandlers[reply.ID]
	c.mu.Unlock()
	if !ok {
		return
	}

	select {
	case ch <- reply:
	default:
	}
}

func buildTLSConfig(caPath, certPath, keyPath string) (*tls.Config, error) {
	if caPath == "" && certPath == "" && keyPath == "" {
		return nil, nil
	}

	config := &tls.Config{}
	if caPath != "" {
		pem, err := os.ReadFile(caPath)
		if err != nil {
			return nil, err
		}
		pool := x509.NewCertPool()
		if !pool.AppendCertsFromPEM(pem) {
			return nil, errors.New("failed to parse CA bundle")
		}
		config.RootCAs = pool
	}

	if certPath != "" || keyPath != "" {
		if certPath == "" || keyPath == "" {
			return nil, errors.New("both tls cert and key are required")
		}
		cert, err := tls.LoadX509KeyPair(certPath, keyPath)
		if err != nil {
			return nil, err
		}
		config.Certificates = []tls.Certificate{cert}
	}

	return config, nil
}
