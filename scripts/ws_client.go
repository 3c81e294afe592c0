// Package main runs a demo: it registers a local webhook receiver, tails the
// delivery feed over WebSocket and fires a test ping at the receiver.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/gorilla/websocket"

	"storefront/internal/webhooks"
)

func main() {
	port := os.Getenv("PORT")
	if port == "" {
		port = "8080"
	}
	tenant := os.Getenv("TENANT")
	if tenant == "" {
		tenant = "t_demo"
	}
	base := fmt.Sprintf("http://localhost:%s", port)

	// Local receiver that checks signatures with the secret returned at creation.
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		log.Fatal(err)
	}
	var secret string
	go func() {
		_ = http.Serve(ln, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			body, _ := io.ReadAll(r.Body)
			ok := webhooks.VerifyHMAC(secret, body, r.Header.Get(webhooks.HeaderSignature))
			log.Printf("receiver <- %s signature_ok=%v %s", r.Header.Get(webhooks.HeaderEvent), ok, body)
			w.WriteHeader(http.StatusOK)
		}))
	}()

	sub := map[string]any{
		"url":         "http://" + ln.Addr().String() + "/hook",
		"events":      []string{"order.created", "tenant.updated"},
		"description": "ws_client demo",
	}
	var created struct {
		ID     string `json:"id"`
		Secret string `json:"secret"`
	}
	if err := call(base, tenant, http.MethodPost, "/v1/subscriptions", sub, &created); err != nil {
		log.Fatal(err)
	}
	secret = created.Secret
	log.Printf("Subscription ID: %s", created.ID)

	// Connect WS
	u := url.URL{Scheme: "ws", Host: "localhost:" + port, Path: "/v1/admin/webhook-deliveries/stream"}
	hdr := http.Header{}
	hdr.Set("X-Tenant-Id", tenant)
	hdr.Set("X-Role", "admin")
	c, _, err := websocket.DefaultDialer.Dial(u.String(), hdr)
	if err != nil {
		log.Fatal("dial:", err)
	}
	defer func() { _ = c.Close() }()

	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			var m json.RawMessage
			if err := c.ReadJSON(&m); err != nil {
				log.Printf("read: %v", err)
				return
			}
			log.Printf("WS <- %s", string(m))
		}
	}()

	if err := call(base, tenant, http.MethodPost, "/v1/subscriptions/"+created.ID+"/test", nil, nil); err != nil {
		log.Fatal(err)
	}

	// Wait briefly to receive the feed event, then clean up.
	select {
	case <-time.After(2 * time.Second):
	case <-done:
	}
	_ = call(base, tenant, http.MethodDelete, "/v1/subscriptions/"+created.ID, nil, nil)
}

func call(base, tenant, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		b, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, _ := http.NewRequest(method, base+path, body)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Tenant-Id", tenant)
	req.Header.Set("X-Role", "admin")
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 300 {
		msg, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, msg)
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
