package whatsapp

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func gatewayServer(status int, body string) *httptest.Server {
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		w.Write([]byte(body))
	}))
}

func TestSendReturnsGatewayMessageID(t *testing.T) {
	srv := gatewayServer(http.StatusOK, `{"message_id":"wamid.123"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "test-key")
	id, err := client.Send(context.Background(), "+5511987654321", "Olá")
	if err != nil {
		t.Fatalf("expected send to succeed, got %v", err)
	}
	if id != "wamid.123" {
		t.Fatalf("expected wamid.123, got %q", id)
	}
}

func TestSendClassifiesPermanentErrorCodes(t *testing.T) {
	srv := gatewayServer(http.StatusBadRequest, `{"error":"number is not registered","error_code":"invalid_number"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Send(context.Background(), "+123", "Olá")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsPermanent(err) {
		t.Fatalf("expected a permanent failure, got %v", err)
	}
}

func TestSendTreats422AsPermanent(t *testing.T) {
	srv := gatewayServer(http.StatusUnprocessableEntity, `{"error":"number cannot receive messages"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Send(context.Background(), "+123", "Olá")
	if !IsPermanent(err) {
		t.Fatalf("expected a permanent failure, got %v", err)
	}
}

func TestSendTreatsServerErrorsAsTransient(t *testing.T) {
	srv := gatewayServer(http.StatusBadGateway, `{"error":"session restarting"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	_, err := client.Send(context.Background(), "+5511987654321", "Olá")
	if err == nil {
		t.Fatal("expected an error")
	}
	if IsPermanent(err) {
		t.Fatalf("expected a transient failure, got %v", err)
	}
}

func TestSendUnconfiguredGatewayIsTransient(t *testing.T) {
	client := NewClient("", "")
	_, err := client.Send(context.Background(), "+5511987654321", "Olá")
	if err == nil || IsPermanent(err) {
		t.Fatalf("expected a transient failure for a missing base URL, got %v", err)
	}
}

func TestGetStatus(t *testing.T) {
	srv := gatewayServer(http.StatusOK, `{"connected":true,"identity":"+5511900000000"}`)
	defer srv.Close()

	client := NewClient(srv.URL, "")
	status, err := client.GetStatus(context.Background())
	if err != nil {
		t.Fatalf("expected status probe to succeed, got %v", err)
	}
	if !status.Connected {
		t.Fatal("expected connected status")
	}
	if status.Identity == nil || *status.Identity != "+5511900000000" {
		t.Fatal("expected the paired identity to be reported")
	}
}
