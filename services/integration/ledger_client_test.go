package integration

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/IBM/sarama"
	"github.com/aJV99/CommodiTrade-sub000/services/testutil"
)

var (
	wheatID          = testutil.WheatCommodityID.String()
	acmeID           = testutil.AcmeCounterpartyID.String()
	smallTraderID    = testutil.SmallCounterpartyID.String()
	integrationTopic = []string{"trades.executed", "inventory.movements", "contracts.tranche_executed"}
)

type errorResponse struct {
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Fields  map[string]string `json:"fields"`
}

type tradeBody struct {
	TradeID    string `json:"trade_id"`
	Status     string `json:"status"`
	Quantity   int64  `json:"quantity"`
	TotalValue string `json:"total_value"`
}

type movementBody struct {
	MovementID        string `json:"movement_id"`
	LotID             string `json:"lot_id"`
	Kind              string `json:"kind"`
	QuantityDelta     int64  `json:"quantity_delta"`
	ResultingQuantity int64  `json:"resulting_quantity"`
}

type executionBody struct {
	Trade     tradeBody      `json:"trade"`
	Movements []movementBody `json:"movements"`
}

type eventEnvelope struct {
	EventID       string `json:"event_id"`
	EventType     string `json:"event_type"`
	CorrelationID string `json:"correlation_id"`
	TradeID       string `json:"trade_id"`
	ContractID    string `json:"contract_id"`
	LotID         string `json:"lot_id"`
}

func getLedgerURL() string {
	if url := os.Getenv("LEDGER_URL"); url != "" {
		return url
	}
	return "http://localhost:8080"
}

func getKafkaBrokers() []string {
	if v := os.Getenv("KAFKA_BROKERS"); v != "" {
		parts := strings.Split(v, ",")
		out := make([]string, 0, len(parts))
		for _, part := range parts {
			trimmed := normalizeBroker(strings.TrimSpace(part))
			if trimmed != "" {
				out = append(out, trimmed)
			}
		}
		if len(out) > 0 {
			return out
		}
	}
	return []string{"localhost:9092"}
}

func normalizeBroker(value string) string {
	if strings.Contains(value, "://") {
		value = strings.SplitN(value, "://", 2)[1]
	}
	return strings.TrimSpace(value)
}

func requireIntegration(t *testing.T) {
	t.Helper()
	if os.Getenv("RUN_INTEGRATION") == "" {
		t.Skip("set RUN_INTEGRATION=1 to run")
	}
}

func doLedgerRequest(t *testing.T, method, path string, body interface{}, requestID string) (int, []byte) {
	t.Helper()

	var reqBody []byte
	if body != nil {
		var err error
		reqBody, err = json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal request: %v", err)
		}
	}

	req, err := http.NewRequest(method, getLedgerURL()+path, bytes.NewReader(reqBody))
	if err != nil {
		t.Fatalf("new request: %v", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if requestID != "" {
		req.Header.Set("X-Request-ID", requestID)
	}

	client := &http.Client{Timeout: 10 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("%s %s: %v", method, path, err)
	}
	defer resp.Body.Close()

	out, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	return resp.StatusCode, out
}

func decodeBody(t *testing.T, raw []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode %s: %v", string(raw), err)
	}
}

func waitForLedgerReady(t *testing.T) {
	t.Helper()

	client := &http.Client{Timeout: 2 * time.Second}
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		resp, err := client.Get(getLedgerURL() + "/readyz")
		if err == nil {
			io.Copy(io.Discard, resp.Body)
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				return
			}
		}
		time.Sleep(500 * time.Millisecond)
	}

	t.Fatal("ledger service not ready within timeout")
}

type eventWatcher struct {
	events  chan eventEnvelope
	closeFn func()
}

func startEventWatcher(t *testing.T, topics ...string) eventWatcher {
	t.Helper()

	cfg := sarama.NewConfig()
	cfg.Version = sarama.V3_7_0_0
	cfg.Consumer.Return.Errors = true

	consumer, err := sarama.NewConsumer(getKafkaBrokers(), cfg)
	if err != nil {
		t.Fatalf("kafka consumer: %v", err)
	}

	out := make(chan eventEnvelope, 64)
	var partitionConsumers []sarama.PartitionConsumer
	for _, topic := range topics {
		partitions, err := consumer.Partitions(topic)
		if err != nil {
			t.Fatalf("partitions for %s: %v", topic, err)
		}
		for _, p := range partitions {
			pc, err := consumer.ConsumePartition(topic, p, sarama.OffsetNewest)
			if err != nil {
				t.Fatalf("consume partition: %v", err)
			}
			partitionConsumers = append(partitionConsumers, pc)
			go func(partConsumer sarama.PartitionConsumer) {
				for msg := range partConsumer.Messages() {
					var event eventEnvelope
					if err := json.Unmarshal(msg.Value, &event); err != nil {
						continue
					}
					out <- event
				}
			}(pc)
		}
	}

	return eventWatcher{
		events: out,
		closeFn: func() {
			for _, pc := range partitionConsumers {
				_ = pc.Close()
			}
			_ = consumer.Close()
		},
	}
}

// collect gathers events carrying correlationID until want of each type
// arrive or the timeout elapses.
func (w eventWatcher) collect(t *testing.T, correlationID string, want map[string]int, timeout time.Duration) []eventEnvelope {
	t.Helper()

	var got []eventEnvelope
	counts := map[string]int{}
	deadline := time.After(timeout)
	for {
		done := true
		for eventType, n := range want {
			if counts[eventType] < n {
				done = false
			}
		}
		if done {
			return got
		}

		select {
		case event := <-w.events:
			if event.CorrelationID != correlationID {
				continue
			}
			counts[event.EventType]++
			got = append(got, event)
		case <-deadline:
			t.Fatalf("timed out waiting for events %v, got %v", want, counts)
		}
	}
}
