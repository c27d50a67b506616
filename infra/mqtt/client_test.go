package mqtt

import (
	"crypto/rand"
	"crypto/rsa"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/json"
	"encoding/pem"
	"fmt"
	"math/big"
	"os"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/crowdsense/core/model"
	coremqtt "github.com/kilianp07/crowdsense/core/mqtt"
)

// helper to generate self-signed cert
func generateCert(t *testing.T) (certFile, keyFile, caFile string) {
	t.Helper()
	priv, err := rsa.GenerateKey(rand.Reader, 2048)
	if err != nil {
		t.Fatalf("gen key: %v", err)
	}
	tmpl := x509.Certificate{SerialNumber: big.NewInt(1), Subject: pkix.Name{CommonName: "test"}, NotBefore: time.Now(), NotAfter: time.Now().Add(time.Hour)}
	der, err := x509.CreateCertificate(rand.Reader, &tmpl, &tmpl, &priv.PublicKey, priv)
	if err != nil {
		t.Fatalf("create cert: %v", err)
	}
	certPEM := pem.EncodeToMemory(&pem.Block{Type: "CERTIFICATE", Bytes: der})
	keyPEM := pem.EncodeToMemory(&pem.Block{Type: "RSA PRIVATE KEY", Bytes: x509.MarshalPKCS1PrivateKey(priv)})

	dir := t.TempDir()
	certFile = dir + "/cert.pem"
	keyFile = dir + "/key.pem"
	caFile = dir + "/ca.pem"
	for path, data := range map[string][]byte{certFile: certPEM, keyFile: keyPEM, caFile: certPEM} {
		if err := os.WriteFile(path, data, 0o600); err != nil {
			t.Fatalf("write %s: %v", path, err)
		}
	}
	return
}

func TestLoadTLSConfig(t *testing.T) {
	cert, key, ca := generateCert(t)
	cfg := Config{UseTLS: true, ClientCert: cert, ClientKey: key, CABundle: ca}
	tlsCfg, err := cfg.LoadTLSConfig()
	if err != nil {
		t.Fatalf("load tls: %v", err)
	}
	if len(tlsCfg.Certificates) == 0 || tlsCfg.RootCAs == nil {
		t.Fatalf("tls config incomplete")
	}
	if _, err := (Config{UseTLS: true}).LoadTLSConfig(); err == nil {
		t.Fatal("expected error without certificate paths")
	}
}

func TestNewClientOptionsAuth(t *testing.T) {
	opts, err := NewClientOptions(Config{Broker: "tcp://localhost:1883", ClientID: "id", Username: "u", Password: "p"})
	if err != nil {
		t.Fatalf("opts: %v", err)
	}
	if opts.Username != "u" || opts.Password != "p" {
		t.Fatalf("auth not set")
	}
}

func withMock(t *testing.T, mc *mockClient) {
	t.Helper()
	newMQTTClient = func(o *paho.ClientOptions) pahoClient { mc.opts = o; return mc }
	t.Cleanup(func() { newMQTTClient = func(opts *paho.ClientOptions) pahoClient { return paho.NewClient(opts) } })
}

func TestPublishTopicsAndQoS(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", TopicPrefix: "lab/", QoS: map[string]byte{"window": 1, "result": 2, "control": 1}, Retain: true}
	cli, err := NewPahoClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if len(mc.subscribed) != 1 || mc.subscribed[0].topic != "lab/control" || mc.subscribed[0].qos != 1 {
		t.Fatalf("control subscription not applied: %+v", mc.subscribed)
	}
	if err := cli.RecordWindow(model.WindowReport{RunID: "r1", Window: 3}); err != nil {
		t.Fatalf("window: %v", err)
	}
	if err := cli.RecordRun(&model.RunResult{RunID: "r1", TotalCost: 4}); err != nil {
		t.Fatalf("run: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected 2 publishes, got %d", len(mc.published))
	}
	w, r := mc.published[0], mc.published[1]
	if w.topic != "lab/runs/r1/windows" || w.qos != 1 {
		t.Fatalf("unexpected window publish: %+v", w)
	}
	if w.retained {
		t.Fatal("window reports must not be retained")
	}
	if r.topic != "lab/runs/r1/result" || r.qos != 2 || !r.retained {
		t.Fatalf("unexpected result publish: %+v", r)
	}
	var got model.RunResult
	if err := json.Unmarshal(r.payload, &got); err != nil || got.TotalCost != 4 {
		t.Fatalf("payload not a run result: %v %s", err, r.payload)
	}
}

func TestLWTConfigured(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cfg := Config{Broker: "tcp://localhost:1883", ClientID: "id", LWTTopic: "lwt", LWTPayload: "bye", LWTQoS: 1}
	cli, err := NewPahoClient(cfg)
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if !mc.opts.WillEnabled {
		t.Fatalf("will not enabled")
	}
	if mc.opts.WillTopic != "lwt" || string(mc.opts.WillPayload) != "bye" {
		t.Fatalf("will options incorrect")
	}
	_ = cli.Close()
	if len(mc.published) != 0 {
		t.Fatalf("unexpected publish on disconnect")
	}
}

func TestRetryLogic(t *testing.T) {
	mc := &mockClient{publishErrs: []error{fmt.Errorf("net fail"), nil}}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883", MaxRetries: 1, BackoffMS: 1})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	if err := cli.PublishWindow(model.WindowReport{RunID: "r"}); err != nil {
		t.Fatalf("send: %v", err)
	}
	if len(mc.published) != 2 {
		t.Fatalf("expected retries")
	}
}

func TestControlCancel(t *testing.T) {
	mc := &mockClient{}
	withMock(t, mc)
	cli, err := NewPahoClient(Config{Broker: "tcp://localhost:1883"})
	if err != nil {
		t.Fatalf("client: %v", err)
	}
	ch, release := cli.Watch()
	defer release()

	cli.onControl(nil, mockMessage{[]byte(`{"action":"pause"}`)})
	cli.onControl(nil, mockMessage{[]byte(`not json`)})
	select {
	case <-ch:
		t.Fatal("unexpected cancel")
	default:
	}

	payload, _ := json.Marshal(coremqtt.ControlMessage{Action: coremqtt.ActionCancel})
	cli.onControl(nil, mockMessage{payload})
	select {
	case <-ch:
	case <-time.After(time.Second):
		t.Fatal("cancel not relayed")
	}
}

type published struct {
	topic    string
	qos      byte
	retained bool
	payload  []byte
}

// mockClient implements pahoClient for tests
type mockClient struct {
	opts       *paho.ClientOptions
	subscribed []struct {
		topic string
		qos   byte
	}
	published   []published
	publishErrs []error
}

func (m *mockClient) IsConnected() bool { return true }
func (m *mockClient) Connect() paho.Token {
	if m.opts != nil && m.opts.OnConnect != nil {
		m.opts.OnConnect(m)
	}
	return &dummyToken{}
}
func (m *mockClient) Disconnect(uint) {}
func (m *mockClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	b, _ := payload.([]byte)
	m.published = append(m.published, published{topic, qos, retained, b})
	if len(m.publishErrs) > 0 {
		err := m.publishErrs[0]
		m.publishErrs = m.publishErrs[1:]
		return &dummyToken{err: err}
	}
	return &dummyToken{}
}
func (m *mockClient) Subscribe(topic string, qos byte, _ paho.MessageHandler) paho.Token {
	m.subscribed = append(m.subscribed, struct {
		topic string
		qos   byte
	}{topic, qos})
	return &dummyToken{}
}
func (m *mockClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &dummyToken{}
}
func (m *mockClient) Unsubscribe(...string) paho.Token        { return &dummyToken{} }
func (m *mockClient) AddRoute(string, paho.MessageHandler)    {}
func (m *mockClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }
func (m *mockClient) IsConnectionOpen() bool                  { return true }

type dummyToken struct{ err error }

func (d dummyToken) Wait() bool                     { return true }
func (d dummyToken) WaitTimeout(time.Duration) bool { return true }
func (d dummyToken) Done() <-chan struct{}          { ch := make(chan struct{}); close(ch); return ch }
func (d dummyToken) Error() error                   { return d.err }

type mockMessage struct{ p []byte }

func (m mockMessage) Duplicate() bool   { return false }
func (m mockMessage) Qos() byte         { return 0 }
func (m mockMessage) Retained() bool    { return false }
func (m mockMessage) Topic() string     { return "" }
func (m mockMessage) MessageID() uint16 { return 0 }
func (m mockMessage) Payload() []byte   { return m.p }
func (m mockMessage) Ack()              {}
