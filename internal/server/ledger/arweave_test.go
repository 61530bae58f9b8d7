package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dsemenov/datavault/internal/common"

	"github.com/dsemenov/datavault/internal/server/models"
)

func TestArweaveWrite_SubmitsPayloadAndTags(t *testing.T) {
	var gotReq arweaveSubmitRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/tx" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if err := json.NewDecoder(r.Body).Decode(&gotReq); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		json.NewEncoder(w).Encode(arweaveSubmitResponse{ID: "tx-abc"})
	}))
	defer srv.Close()

	c := NewArweaveClient(srv.URL, []models.Tag{{Name: "App-Name", Value: "datavault"}}, time.Second)

	id, err := c.Write(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("Write error: %v", err)
	}
	if id != "tx-abc" {
		t.Fatalf("id: got %q want tx-abc", id)
	}
	if !bytes.Equal(gotReq.Data, []byte("payload")) {
		t.Fatalf("payload not submitted: %q", gotReq.Data)
	}
	if len(gotReq.Tags) != 1 || gotReq.Tags[0].Name != "App-Name" {
		t.Fatalf("tags not submitted: %+v", gotReq.Tags)
	}
}

func TestArweaveWrite_EmptyID(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(arweaveSubmitResponse{})
	}))
	defer srv.Close()

	c := NewArweaveClient(srv.URL, nil, time.Second)
	if _, err := c.Write(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error for empty transaction id")
	}
}

func TestArweaveWrite_GatewayError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewArweaveClient(srv.URL, nil, time.Second)
	if _, err := c.Write(context.Background(), []byte("x")); err == nil {
		t.Fatalf("expected error for gateway failure")
	}
}

func TestArweaveRead_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/tx/tx-abc/data" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Write([]byte("payload"))
	}))
	defer srv.Close()

	c := NewArweaveClient(srv.URL, nil, time.Second)
	got, err := c.Read(context.Background(), "tx-abc")
	if err != nil {
		t.Fatalf("Read error: %v", err)
	}
	if !bytes.Equal(got, []byte("payload")) {
		t.Fatalf("payload: got %q", got)
	}
}

func TestArweaveRead_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))
	defer srv.Close()

	c := NewArweaveClient(srv.URL, nil, time.Second)
	if _, err := c.Read(context.Background(), "ghost"); !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("want common.ErrNotFound, got %v", err)
	}
}

func TestArweaveRead_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(300 * time.Millisecond)
	}))
	defer srv.Close()

	c := NewArweaveClient(srv.URL, nil, 20*time.Millisecond)
	if _, err := c.Read(context.Background(), "tx-abc"); !errors.Is(err, common.ErrLedgerTimeout) {
		t.Fatalf("want common.ErrLedgerTimeout, got %v", err)
	}
}

func TestWrapTimeout(t *testing.T) {
	if err := wrapTimeout(nil); err != nil {
		t.Fatalf("nil must stay nil, got %v", err)
	}
	if err := wrapTimeout(context.DeadlineExceeded); !errors.Is(err, common.ErrLedgerTimeout) {
		t.Fatalf("deadline: want ErrLedgerTimeout, got %v", err)
	}
	plain := errors.New("boom")
	if err := wrapTimeout(plain); !errors.Is(err, plain) {
		t.Fatalf("non-timeout errors must pass through, got %v", err)
	}
}
