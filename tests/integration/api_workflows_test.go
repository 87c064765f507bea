package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deviceops/reports-back/internal/domain"
	"github.com/deviceops/reports-back/internal/glpi"
	httpserver "github.com/deviceops/reports-back/internal/http"
	"github.com/deviceops/reports-back/internal/http/handlers"
	"github.com/deviceops/reports-back/internal/objstore"
	"github.com/deviceops/reports-back/internal/pdf"
	"github.com/deviceops/reports-back/internal/realtime"
	"github.com/deviceops/reports-back/internal/service"
	"github.com/deviceops/reports-back/internal/storage"
	"github.com/deviceops/reports-back/internal/workflow"
)

type integrationRuntime struct {
	server      *httptest.Server
	startWorker func()
	cancel      context.CancelFunc
}

// fakeInventory mimics the GLPI session and device lookup surface.
func fakeInventory(t *testing.T) *httptest.Server {
	t.Helper()
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/initSession":
			if !strings.HasPrefix(r.Header.Get("Authorization"), "user_token ") {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"unauthorized"}`))
				return
			}
			_, _ = w.Write([]byte(`{"session_token":"integration-session"}`))
		case "/killSession":
			_, _ = w.Write([]byte(`{}`))
		case "/Computer/42":
			if r.Header.Get("Session-Token") != "integration-session" {
				w.WriteHeader(http.StatusUnauthorized)
				_, _ = w.Write([]byte(`{"error":"no session"}`))
				return
			}
			_, _ = w.Write([]byte(`{"id":42,"serial":"SN-1","otherserial":"INV-9","name":"lab-pc"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"error":"item not found"}`))
		}
	}))
}

// startIntegrationRuntime wires the whole stack on in-memory backends. The
// workflow worker starts lazily so tests can subscribe to the delivery room
// before the pipeline runs.
func startIntegrationRuntime(t *testing.T) integrationRuntime {
	t.Helper()

	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	inventory := fakeInventory(t)

	reports := storage.NewMemoryReportsRepository()
	media := storage.NewMemoryMediaRepository()
	objects := objstore.NewMemoryGateway()
	localQueue := workflow.NewLocalQueue(256, 3, logger)

	authClient := glpi.NewAuthClient(glpi.ClientConfig{
		BaseURL:              inventory.URL,
		UserToken:            "integration-user-token",
		Timeout:              2 * time.Second,
		RetryInitialInterval: time.Millisecond,
		RetryMaxInterval:     5 * time.Millisecond,
	})
	devices := glpi.NewDeviceGateway(authClient, logger)

	dispatcher := service.NewDispatcher(logger)
	reportsService := service.NewReportsService(reports, media, devices, objects, dispatcher, logger)
	generateService := service.NewGenerateService(reports, media, devices, pdf.NewGenerator(), objects, dispatcher, logger)

	hub := realtime.NewHub(logger)
	definition, err := workflow.NewReportsWorkflow(generateService, reportsService, hub)
	if err != nil {
		t.Fatalf("workflow definition: %v", err)
	}
	runner := workflow.NewRunner(definition, localQueue, localQueue, workflow.NewRunStore(), 2, logger)

	dispatcher.Subscribe(func(ctx context.Context, event domain.Event) {
		created, ok := event.(domain.DeviceReportCreated)
		if !ok {
			return
		}
		if _, err := runner.Trigger(ctx, created.ReportID); err != nil {
			t.Errorf("trigger workflow: %v", err)
		}
	})

	api := handlers.NewAPI(reportsService, generateService, hub, logger)
	router := httpserver.NewRouter(httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})
	server := httptest.NewServer(router)

	return integrationRuntime{
		server: server,
		startWorker: func() {
			go runner.Start(ctx)
		},
		cancel: func() {
			cancel()
			server.Close()
			inventory.Close()
		},
	}
}

func doJSON(
	t *testing.T,
	client *http.Client,
	method string,
	url string,
	userID string,
	payload any,
) (int, map[string]any) {
	t.Helper()

	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			t.Fatalf("marshal payload: %v", err)
		}
		body = bytes.NewReader(encoded)
	}
	request, err := http.NewRequest(method, url, body)
	if err != nil {
		t.Fatalf("build request: %v", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Accept", "application/json")
	request.Header.Set("X-User-Id", userID)

	response, err := client.Do(request)
	if err != nil {
		t.Fatalf("execute request: %v", err)
	}
	defer response.Body.Close()

	raw, _ := io.ReadAll(response.Body)
	if len(raw) == 0 {
		return response.StatusCode, map[string]any{}
	}

	var decoded map[string]any
	if err := json.Unmarshal(raw, &decoded); err != nil {
		t.Fatalf("decode response body (%d): %s", response.StatusCode, string(raw))
	}
	return response.StatusCode, decoded
}

func TestReportPipelineDeliversArtifactOverWebsocket(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL
	userID := uuid.NewString()

	status, created := doJSON(t, client, http.MethodPost, baseURL+"/v1/reports", userID, map[string]any{
		"report_name": "broken screen",
		"comment":     "flickers on boot",
		"device_id":   42,
		"device_type": "Computer",
	})
	if status != http.StatusCreated {
		t.Fatalf("create report: expected 201, got %d body=%+v", status, created)
	}
	reportID, _ := created["report_id"].(string)
	if reportID == "" {
		t.Fatalf("expected report_id, got %+v", created)
	}

	// Subscribe to the delivery room before any stage runs; the worker is
	// not started yet, so the triggered run is still parked in the queue.
	wsURL := "ws" + strings.TrimPrefix(baseURL, "http") + "/ws/reports/" + reportID
	connection, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial websocket: %v", err)
	}
	defer connection.Close()

	runtime.startWorker()

	_ = connection.SetReadDeadline(time.Now().Add(10 * time.Second))
	_, message, err := connection.ReadMessage()
	if err != nil {
		t.Fatalf("read delivery frame: %v", err)
	}

	var frame struct {
		Event string `json:"event"`
		Data  struct {
			Report *domain.MediaReadModel `json:"report"`
		} `json:"data"`
	}
	if err := json.Unmarshal(message, &frame); err != nil {
		t.Fatalf("decode delivery frame: %s: %v", message, err)
	}
	if frame.Event != "Pdf Report" {
		t.Fatalf("unexpected event %q", frame.Event)
	}
	if frame.Data.Report == nil || frame.Data.Report.ReportID != reportID {
		t.Fatalf("unexpected delivery payload %s", message)
	}
	if frame.Data.Report.PresignedURL == "" || frame.Data.Report.Metadata.ContentType != "pdf" {
		t.Fatalf("incomplete media read model %+v", frame.Data.Report)
	}

	// The artifact is durable: the query surface serves the same record.
	status, media := doJSON(t, client, http.MethodGet, baseURL+"/v1/reports/"+reportID+"/media", userID, nil)
	if status != http.StatusOK {
		t.Fatalf("media query: expected 200, got %d body=%+v", status, media)
	}
	if media["media_id"] != frame.Data.Report.MediaID {
		t.Fatalf("expected delivered media %q, query returned %+v", frame.Data.Report.MediaID, media)
	}

	// The pipeline already generated; the synchronous command must refuse.
	status, body := doJSON(t, client, http.MethodPost, baseURL+"/v1/reports/"+reportID+"/pdf", userID, nil)
	if status != http.StatusConflict {
		t.Fatalf("regenerate: expected 409, got %d body=%+v", status, body)
	}
}

func TestSynchronousGenerationWithoutWorker(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	client := runtime.server.Client()
	baseURL := runtime.server.URL
	userID := uuid.NewString()

	status, created := doJSON(t, client, http.MethodPost, baseURL+"/v1/reports", userID, map[string]any{
		"report_name": "broken screen",
		"device_id":   42,
		"device_type": "Computer",
	})
	if status != http.StatusCreated {
		t.Fatalf("create report: expected 201, got %d", status)
	}
	reportID, _ := created["report_id"].(string)

	status, generated := doJSON(t, client, http.MethodPost, baseURL+"/v1/reports/"+reportID+"/pdf", userID, nil)
	if status != http.StatusCreated {
		t.Fatalf("generate: expected 201, got %d body=%+v", status, generated)
	}
	fileName, _ := generated["file_name"].(string)
	if !strings.HasSuffix(fileName, ".pdf") {
		t.Fatalf("expected pdf file name, got %q", fileName)
	}

	status, report := doJSON(t, client, http.MethodGet, baseURL+"/v1/reports/"+reportID, userID, nil)
	if status != http.StatusOK {
		t.Fatalf("get report: expected 200, got %d", status)
	}
	if report["media"] == nil {
		t.Fatalf("expected media embedded in report read model, got %+v", report)
	}

	status, _ = doJSON(t, client, http.MethodDelete, baseURL+"/v1/reports/"+reportID, userID, nil)
	if status != http.StatusNoContent {
		t.Fatalf("delete: expected 204, got %d", status)
	}
	status, _ = doJSON(t, client, http.MethodGet, baseURL+"/v1/reports/"+reportID+"/media", userID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("media after delete: expected 404, got %d", status)
	}
}

func TestUnknownDeviceIsRejectedAtCreation(t *testing.T) {
	runtime := startIntegrationRuntime(t)
	defer runtime.cancel()

	status, body := doJSON(
		t,
		runtime.server.Client(),
		http.MethodPost,
		runtime.server.URL+"/v1/reports",
		uuid.NewString(),
		map[string]any{
			"report_name": "ghost",
			"device_id":   999,
			"device_type": "Computer",
		},
	)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for unknown device, got %d body=%+v", status, body)
	}
}
