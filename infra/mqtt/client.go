package mqtt

import (
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	coremon "github.com/kilianp07/crowdsense/core/monitoring"
	"github.com/kilianp07/crowdsense/core/model"
	coremqtt "github.com/kilianp07/crowdsense/core/mqtt"
	"github.com/kilianp07/crowdsense/infra/logger"
)

// Config defines the connection parameters for the Paho MQTT client.
type Config struct {
	Broker   string `json:"broker"`
	ClientID string `json:"client_id"`
	Username string `json:"username"`
	Password string `json:"password"`
	// TopicPrefix roots every topic, e.g. <prefix>/runs/<id>/windows.
	TopicPrefix string          `json:"topic_prefix"`
	UseTLS      bool            `json:"use_tls"`
	ClientCert  string          `json:"client_cert"`
	ClientKey   string          `json:"client_key"`
	CABundle    string          `json:"ca_bundle"`
	AuthMethod  string          `json:"auth_method"`
	QoS         map[string]byte `json:"qos"`
	Retain      bool            `json:"retain"`
	LWTTopic    string          `json:"lwt_topic"`
	LWTPayload  string          `json:"lwt_payload"`
	LWTQoS      byte            `json:"lwt_qos"`
	LWTRetain   bool            `json:"lwt_retain"`
	MaxRetries  int             `json:"max_retries"`
	BackoffMS   int             `json:"backoff_ms"`
	TLSConfig   *tls.Config     `json:"-"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.TopicPrefix == "" {
		c.TopicPrefix = "crowdsense"
	}
	if c.ClientID == "" {
		c.ClientID = "crowdsense-scheduler"
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = 3
	}
	if c.BackoffMS <= 0 {
		c.BackoffMS = 100
	}
}

type pahoClient interface {
	IsConnected() bool
	Connect() paho.Token
	Disconnect(quiesce uint)
	Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

// PahoClient publishes reports using Eclipse Paho and listens for control
// messages on <prefix>/control.
type PahoClient struct {
	cli    pahoClient
	prefix string
	qos    map[string]byte
	retain bool

	mu         sync.Mutex
	watchers   map[int]chan struct{}
	nextWatch  int
	logger     logger.Logger
	maxRetries int
	backoff    time.Duration
}

var newMQTTClient = func(opts *paho.ClientOptions) pahoClient {
	return paho.NewClient(opts)
}

// NewPahoClient connects to the MQTT broker and subscribes to the control topic.
func NewPahoClient(cfg Config) (*PahoClient, error) {
	cfg.SetDefaults()
	opts, err := NewClientOptions(cfg)
	if err != nil {
		return nil, err
	}

	logger := logger.New("mqtt_client")
	pc := &PahoClient{
		prefix:     strings.TrimSuffix(cfg.TopicPrefix, "/"),
		qos:        cfg.QoS,
		retain:     cfg.Retain,
		watchers:   make(map[int]chan struct{}),
		logger:     logger,
		maxRetries: cfg.MaxRetries,
		backoff:    time.Duration(cfg.BackoffMS) * time.Millisecond,
	}

	opts.OnConnect = func(c paho.Client) {
		logger.Infof("MQTT connected")
		if token := c.Subscribe(pc.ControlTopic(), pc.qosFor("control"), pc.onControl); token.Wait() && token.Error() != nil {
			logger.Errorf("subscribe error: %v", token.Error())
		}
	}
	opts.OnConnectionLost = func(_ paho.Client, err error) {
		logger.Errorf("connection lost: %v", err)
	}
	opts.OnReconnecting = func(_ paho.Client, _ *paho.ClientOptions) {
		logger.Warnf("reconnecting to MQTT broker")
	}
	c := newMQTTClient(opts)
	if token := c.Connect(); token.Wait() && token.Error() != nil {
		return nil, token.Error()
	}
	pc.cli = c
	return pc, nil
}

// NewClientOptions builds mqtt client options from Config.
func NewClientOptions(cfg Config) (*paho.ClientOptions, error) {
	opts := paho.NewClientOptions().AddBroker(cfg.Broker).SetClientID(cfg.ClientID)
	opts.AutoReconnect = true
	if cfg.AuthMethod == "username_password" || cfg.AuthMethod == "both" || cfg.AuthMethod == "" {
		if cfg.Username != "" {
			opts.SetUsername(cfg.Username)
		}
		if cfg.Password != "" {
			opts.SetPassword(cfg.Password)
		}
	}
	if cfg.UseTLS {
		tlsCfg, err := cfg.LoadTLSConfig()
		if err != nil {
			return nil, err
		}
		opts.SetTLSConfig(tlsCfg)
	}
	if cfg.LWTTopic != "" {
		opts.SetWill(cfg.LWTTopic, cfg.LWTPayload, cfg.LWTQoS, cfg.LWTRetain)
	}
	return opts, nil
}

// LoadTLSConfig loads the TLS configuration from the file paths in the config.
func (c Config) LoadTLSConfig() (*tls.Config, error) {
	if c.TLSConfig != nil {
		return c.TLSConfig, nil
	}
	if c.ClientCert == "" || c.ClientKey == "" || c.CABundle == "" {
		return nil, fmt.Errorf("tls config requires client_cert, client_key and ca_bundle")
	}
	cert, err := tls.LoadX509KeyPair(c.ClientCert, c.ClientKey)
	if err != nil {
		return nil, fmt.Errorf("load cert: %w", err)
	}
	caBytes, err := os.ReadFile(c.CABundle)
	if err != nil {
		return nil, fmt.Errorf("read ca: %w", err)
	}
	pool := x509.NewCertPool()
	pool.AppendCertsFromPEM(caBytes)
	cfg := &tls.Config{Certificates: []tls.Certificate{cert}, RootCAs: pool, MinVersion: tls.VersionTLS12}
	return cfg, nil
}

// ControlTopic is the topic carrying ControlMessage payloads.
func (p *PahoClient) ControlTopic() string { return p.prefix + "/control" }

// WindowTopic is the topic carrying the window reports of a run.
func (p *PahoClient) WindowTopic(runID string) string {
	return fmt.Sprintf("%s/runs/%s/windows", p.prefix, runID)
}

// ResultTopic is the topic carrying the final result of a run.
func (p *PahoClient) ResultTopic(runID string) string {
	return fmt.Sprintf("%s/runs/%s/result", p.prefix, runID)
}

func (p *PahoClient) qosFor(kind string) byte {
	if q, ok := p.qos[kind]; ok {
		return q
	}
	return 0
}

func (p *PahoClient) onControl(_ paho.Client, msg paho.Message) {
	var m coremqtt.ControlMessage
	if err := json.Unmarshal(msg.Payload(), &m); err != nil {
		p.logger.Errorf("failed to decode control message: %v", err)
		return
	}
	if m.Action != coremqtt.ActionCancel {
		p.logger.Warnf("ignoring control action %q", m.Action)
		return
	}
	p.mu.Lock()
	for _, ch := range p.watchers {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
	n := len(p.watchers)
	p.mu.Unlock()
	p.logger.Infof("cancel request relayed to %d runs", n)
}

// Watch registers for cancel requests.
func (p *PahoClient) Watch() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)
	p.mu.Lock()
	id := p.nextWatch
	p.nextWatch++
	p.watchers[id] = ch
	p.mu.Unlock()
	return ch, func() {
		p.mu.Lock()
		delete(p.watchers, id)
		p.mu.Unlock()
	}
}

// PublishWindow sends rep as JSON on the run's window topic.
func (p *PahoClient) PublishWindow(rep model.WindowReport) error {
	return p.publish(p.WindowTopic(rep.RunID), p.qosFor("window"), false, rep, rep.RunID)
}

// PublishRun sends res as JSON on the run's result topic. Results are
// retained when Config.Retain is set.
func (p *PahoClient) PublishRun(res *model.RunResult) error {
	if res == nil {
		return nil
	}
	return p.publish(p.ResultTopic(res.RunID), p.qosFor("result"), p.retain, res, res.RunID)
}

func (p *PahoClient) publish(topic string, qos byte, retain bool, v any, runID string) error {
	payload, err := json.Marshal(v)
	if err != nil {
		return err
	}
	var publishErr error
	for attempt := 0; attempt <= p.maxRetries; attempt++ {
		token := p.cli.Publish(topic, qos, retain, payload)
		token.Wait()
		publishErr = token.Error()
		if publishErr == nil {
			p.logger.Debugf("published %d bytes to %s", len(payload), topic)
			return nil
		}
		p.logger.Errorf("publish attempt %d failed: %v", attempt+1, publishErr)
		if attempt < p.maxRetries {
			time.Sleep(p.backoff * time.Duration(1<<attempt))
		}
	}
	err = fmt.Errorf("%w: %s: %v", coremqtt.ErrPublish, topic, publishErr)
	coremon.CaptureException(err, map[string]string{"module": "mqtt", "run_id": runID, "topic": topic})
	return err
}

// RecordWindow implements metrics.RunSink.
func (p *PahoClient) RecordWindow(rep model.WindowReport) error { return p.PublishWindow(rep) }

// RecordRun implements metrics.RunSink.
func (p *PahoClient) RecordRun(res *model.RunResult) error { return p.PublishRun(res) }

// Disconnect gracefully closes the MQTT connection.
func (p *PahoClient) Disconnect() {
	if p.cli != nil && p.cli.IsConnected() {
		p.cli.Disconnect(250)
	}
}

// Close implements metrics.Closer.
func (p *PahoClient) Close() error {
	p.Disconnect()
	return nil
}
