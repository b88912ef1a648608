package httpapi

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/trace"

	"github.com/jbctechsolutions/invsync/internal/domain/entity"
	domainErrors "github.com/jbctechsolutions/invsync/internal/domain/errors"
)

// fakeAPI is a minimal in-process records API.
type fakeAPI struct {
	mu        sync.Mutex
	records   map[string][]Record
	nextID    int
	pageSize  int
	status    int
	lastAuth  string
	lastTrace string
	creates   []CreateRequest
	updates   map[string]UpdateRequest
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{
		records:  make(map[string][]Record),
		pageSize: 2,
		updates:  make(map[string]UpdateRequest),
	}
}

func (f *fakeAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.lastAuth = r.Header.Get("Authorization")
	f.lastTrace = r.Header.Get("traceparent")
	if f.status != 0 {
		w.WriteHeader(f.status)
		_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "fail", "message": "forced failure"}})
		return
	}

	parts := strings.Split(strings.Trim(r.URL.Path, "/"), "/")
	if len(parts) < 3 || parts[0] != "collections" || parts[2] != "records" {
		http.NotFound(w, r)
		return
	}
	collection := parts[1]

	switch {
	case r.Method == http.MethodGet && len(parts) == 3:
		start := 0
		if c := r.URL.Query().Get("cursor"); c != "" {
			for i := range f.records[collection] {
				if f.records[collection][i].ID == c {
					start = i
				}
			}
		}
		all := f.records[collection]
		end := start + f.pageSize
		resp := ListResponse{Records: []Record{}}
		if end < len(all) {
			resp.NextCursor = all[end].ID
		} else {
			end = len(all)
		}
		resp.Records = append(resp.Records, all[start:end]...)
		_ = json.NewEncoder(w).Encode(resp)

	case r.Method == http.MethodPost && len(parts) == 3:
		var req CreateRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if _, bad := req.Properties["reject"]; bad {
			w.WriteHeader(http.StatusUnprocessableEntity)
			_ = json.NewEncoder(w).Encode(map[string]any{"error": map[string]string{"code": "invalid", "message": "rejected"}})
			return
		}
		f.nextID++
		rec := Record{ID: "rec-" + string(rune('0'+f.nextID)), LocalID: req.LocalID, Properties: req.Properties}
		f.records[collection] = append(f.records[collection], rec)
		f.creates = append(f.creates, req)
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(rec)

	case r.Method == http.MethodPatch && len(parts) == 4:
		var req UpdateRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.updates[parts[3]] = req
		w.WriteHeader(http.StatusNoContent)

	default:
		w.WriteHeader(http.StatusMethodNotAllowed)
	}
}

func newTestClient(t *testing.T, api *fakeAPI) *Client {
	t.Helper()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, WithToken("secret"), WithPageSize(api.pageSize))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}
	return client
}

func TestClient_PropagatesTraceContext(t *testing.T) {
	api := newFakeAPI()
	server := httptest.NewServer(api)
	t.Cleanup(server.Close)

	client, err := NewClient(server.URL, WithPropagator(propagation.TraceContext{}))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	sc := trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    trace.TraceID{0x4b, 0xf9, 0x2f, 0x35, 0x77, 0xb3, 0x4d, 0xa6, 0xa3, 0xce, 0x92, 0x9d, 0x0e, 0x0e, 0x47, 0x36},
		SpanID:     trace.SpanID{0x00, 0xf0, 0x67, 0xaa, 0x0b, 0xa9, 0x02, 0xb7},
		TraceFlags: trace.FlagsSampled,
	})
	ctx := trace.ContextWithSpanContext(context.Background(), sc)

	if _, err := client.ListRecords(ctx, "laptops"); err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}

	want := "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01"
	if api.lastTrace != want {
		t.Errorf("traceparent = %q, want %q", api.lastTrace, want)
	}
}

func TestNewClient_InvalidURL(t *testing.T) {
	for _, u := range []string{"", "not a url", "/relative"} {
		if _, err := NewClient(u); domainErrors.CodeOf(err) != domainErrors.CodeConfiguration {
			t.Errorf("NewClient(%q) error = %v, want CONFIG", u, err)
		}
	}
}

func TestClient_ListRecordsFollowsCursor(t *testing.T) {
	api := newFakeAPI()
	for _, id := range []string{"a", "b", "c", "d", "e"} {
		api.records["laptops"] = append(api.records["laptops"], Record{ID: id, Properties: map[string]any{}})
	}
	client := newTestClient(t, api)

	records, err := client.ListRecords(context.Background(), "laptops")
	if err != nil {
		t.Fatalf("ListRecords() error = %v", err)
	}
	if len(records) != 5 {
		t.Errorf("ListRecords() returned %d records, want 5", len(records))
	}
	if api.lastAuth != "Bearer secret" {
		t.Errorf("Authorization header = %q", api.lastAuth)
	}
}

func TestClient_ErrorMapping(t *testing.T) {
	tests := []struct {
		status    int
		perRecord bool
		want      domainErrors.ErrorCode
	}{
		{http.StatusInternalServerError, true, domainErrors.CodeRemoteUnavailable},
		{http.StatusBadGateway, false, domainErrors.CodeRemoteUnavailable},
		{http.StatusUnauthorized, true, domainErrors.CodeRemoteUnavailable},
		{http.StatusForbidden, true, domainErrors.CodeRemoteUnavailable},
		{http.StatusTooManyRequests, true, domainErrors.CodeRemoteUnavailable},
		{http.StatusUnprocessableEntity, true, domainErrors.CodeRecordPushFailed},
		{http.StatusNotFound, true, domainErrors.CodeRecordPushFailed},
		{http.StatusNotFound, false, domainErrors.CodeRemoteUnavailable},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			api := newFakeAPI()
			api.status = tt.status
			client := newTestClient(t, api)

			var err error
			if tt.perRecord {
				err = client.UpdateRecord(context.Background(), "laptops", "rec-1", &UpdateRequest{})
			} else {
				_, err = client.ListRecords(context.Background(), "laptops")
			}
			if got := domainErrors.CodeOf(err); got != tt.want {
				t.Errorf("code = %s, want %s (err = %v)", got, tt.want, err)
			}

			var apiErr *APIError
			if !domainErrors.As(err, &apiErr) || apiErr.StatusCode != tt.status {
				t.Errorf("expected APIError with status %d, got %v", tt.status, err)
			}
		})
	}
}

func TestClient_TransportFailureIsUnavailable(t *testing.T) {
	server := httptest.NewServer(http.NotFoundHandler())
	url := server.URL
	server.Close()

	client, err := NewClient(url, WithTimeout(time.Second))
	if err != nil {
		t.Fatalf("NewClient() error = %v", err)
	}

	_, err = client.ListRecords(context.Background(), "laptops")
	if !domainErrors.Is(err, domainErrors.ErrRemoteUnavailable) {
		t.Errorf("ListRecords() error = %v, want ErrRemoteUnavailable", err)
	}
}

func TestRemote_FieldMappingBothWays(t *testing.T) {
	api := newFakeAPI()
	api.records["devices"] = []Record{{
		ID:         "rec-9",
		LocalID:    "L9",
		Properties: map[string]any{"Serial": "SN-9", "brand": "Lenovo", "extra": true},
		UpdatedAt:  time.Date(2024, 4, 1, 0, 0, 0, 0, time.UTC),
	}}
	client := newTestClient(t, api)

	remote, err := NewRemote(client, entity.KindLaptop,
		WithCollection("devices"),
		WithFieldMapping(FieldMapping{"serial_number": "Serial"}),
	)
	if err != nil {
		t.Fatalf("NewRemote() error = %v", err)
	}

	records, err := remote.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 1 {
		t.Fatalf("List() returned %d records", len(records))
	}
	got := records[0]
	if got.ParseErr != nil {
		t.Fatalf("unexpected ParseErr: %v", got.ParseErr)
	}
	if got.Payload["serial_number"] != "SN-9" || got.Payload["brand"] != "Lenovo" {
		t.Errorf("Payload = %v", got.Payload)
	}
	if _, ok := got.Payload["extra"]; ok {
		t.Error("unknown remote property should be dropped")
	}
	if got.LocalID != "L9" || got.Revision.IsZero() {
		t.Errorf("record metadata = %+v", got)
	}

	id, err := remote.Create(context.Background(), "L1", entity.Payload{"serial_number": "SN-1"})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	if id == "" {
		t.Error("Create() returned empty id")
	}
	if api.creates[0].Properties["Serial"] != "SN-1" || api.creates[0].LocalID != "L1" {
		t.Errorf("create request = %+v", api.creates[0])
	}

	if err := remote.Update(context.Background(), "rec-9", entity.Payload{"serial_number": "SN-X"}); err != nil {
		t.Fatalf("Update() error = %v", err)
	}
	if api.updates["rec-9"].Properties["Serial"] != "SN-X" {
		t.Errorf("update request = %+v", api.updates["rec-9"])
	}
}

func TestRemote_ListKeepsUnparseableRecords(t *testing.T) {
	api := newFakeAPI()
	api.records["accessories"] = []Record{
		{ID: "rec-1", Properties: map[string]any{"name": "Mouse", "quantity": 2}},
		{ID: "rec-2", Properties: map[string]any{"name": "Dock", "quantity": "many"}},
	}
	remote, _ := NewRemote(newTestClient(t, api), entity.KindAccessory)

	records, err := remote.List(context.Background())
	if err != nil {
		t.Fatalf("List() error = %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("List() returned %d records, want 2", len(records))
	}
	if records[0].ParseErr != nil {
		t.Errorf("rec-1 ParseErr = %v", records[0].ParseErr)
	}
	if records[1].ParseErr == nil {
		t.Error("rec-2 should carry a ParseErr")
	}
	if records[1].Payload["quantity"] != "many" {
		t.Errorf("rec-2 payload should be kept as received, got %v", records[1].Payload)
	}
}

func TestRemote_CreateRejected(t *testing.T) {
	api := newFakeAPI()
	remote, _ := NewRemote(newTestClient(t, api), entity.KindPerson)

	_, err := remote.Create(context.Background(), "P1", entity.Payload{"reject": true})
	if !domainErrors.Is(err, domainErrors.ErrRecordPushFailed) {
		t.Errorf("Create() error = %v, want ErrRecordPushFailed", err)
	}
}
