package mqtt

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/kilianp07/crowdsense/core/model"
)

const mosquittoConf = `listener 1883
allow_anonymous true
persistence false
`

func startMosquitto(t *testing.T) string {
	t.Helper()
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "mosquitto.conf")
	if err := os.WriteFile(path, []byte(mosquittoConf), 0o644); err != nil {
		t.Fatalf("write conf: %v", err)
	}
	req := tc.ContainerRequest{
		Image:        "eclipse-mosquitto:2.0",
		ExposedPorts: []string{"1883/tcp"},
		WaitingFor:   wait.ForListeningPort("1883/tcp"),
		Files: []tc.ContainerFile{{
			HostFilePath:      path,
			ContainerFilePath: "/mosquitto/config/mosquitto.conf",
			FileMode:          0o644,
		}},
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{ContainerRequest: req, Started: true})
	if err != nil {
		t.Fatalf("failed to start container: %v", err)
	}
	t.Cleanup(func() { _ = container.Terminate(context.Background()) })

	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("failed to get container host: %v", err)
	}
	port, err := container.MappedPort(ctx, "1883")
	if err != nil {
		t.Fatalf("failed to get mapped port: %v", err)
	}
	return fmt.Sprintf("tcp://%s:%s", host, port.Port())
}

// TestIntegration publishes a run result and a cancel request through a real
// Mosquitto broker.
func TestIntegration(t *testing.T) {
	if os.Getenv("DOCKER_AVAILABLE") != "true" && os.Getenv("DOCKER_AVAILABLE") != "1" {
		t.Skip("docker not available")
	}
	broker := startMosquitto(t)

	var cli *PahoClient
	var err error
	for i := 0; i < 5; i++ {
		cli, err = NewPahoClient(Config{Broker: broker, ClientID: "scheduler", QoS: map[string]byte{"result": 1, "control": 1}})
		if err == nil {
			break
		}
		time.Sleep(500 * time.Millisecond)
	}
	if err != nil {
		t.Fatalf("failed to connect: %v", err)
	}
	defer cli.Disconnect()

	peer := paho.NewClient(paho.NewClientOptions().AddBroker(broker).SetClientID("observer"))
	if token := peer.Connect(); token.Wait() && token.Error() != nil {
		t.Fatalf("observer connect: %v", token.Error())
	}
	defer peer.Disconnect(250)

	results := make(chan []byte, 1)
	if token := peer.Subscribe(cli.ResultTopic("it"), 1, func(_ paho.Client, m paho.Message) {
		results <- m.Payload()
	}); token.Wait() && token.Error() != nil {
		t.Fatalf("subscribe: %v", token.Error())
	}

	if err := cli.PublishRun(&model.RunResult{RunID: "it", TotalCost: 4}); err != nil {
		t.Fatalf("publish: %v", err)
	}
	select {
	case payload := <-results:
		var got model.RunResult
		if err := json.Unmarshal(payload, &got); err != nil || got.TotalCost != 4 {
			t.Fatalf("unexpected payload %s: %v", payload, err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for result")
	}

	ch, release := cli.Watch()
	defer release()
	peer.Publish(cli.ControlTopic(), 1, false, []byte(`{"action":"cancel"}`)).Wait()
	select {
	case <-ch:
	case <-time.After(5 * time.Second):
		t.Fatal("timeout waiting for cancel")
	}
}
