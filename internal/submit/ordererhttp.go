package submit

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

// HTTPOrderer submits envelopes to a remote ordering service over JSON-RPC.
// The envelope travels base64-encoded in the "tx" parameter.
type HTTPOrderer struct {
	addr   string
	client *http.Client
}

// NewHTTPOrderer returns an orderer posting to the given RPC address.
func NewHTTPOrderer(addr string) *HTTPOrderer {
	return &HTTPOrderer{
		addr:   addr,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

type rpcRequest struct {
	JSONRPC string            `json:"jsonrpc"`
	ID      int               `json:"id"`
	Method  string            `json:"method"`
	Params  map[string]string `json:"params"`
}

type rpcResponse struct {
	Result struct {
		Code uint32 `json:"code"`
		Log  string `json:"log"`
	} `json:"result"`
	Error *struct {
		Code    int    `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// Broadcast posts the envelope for ordering. A non-zero result code means
// the ordering service refused the envelope outright.
func (o *HTTPOrderer) Broadcast(ctx context.Context, env Envelope) error {
	raw, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      1,
		Method:  "broadcast_tx_sync",
		Params:  map[string]string{"tx": base64.StdEncoding.EncodeToString(raw)},
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.addr, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return fmt.Errorf("send rpc request: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read rpc response: %w", err)
	}
	var decoded rpcResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return fmt.Errorf("parse rpc response: %w", err)
	}
	if decoded.Error != nil {
		return fmt.Errorf("rpc error %d: %s", decoded.Error.Code, decoded.Error.Message)
	}
	if decoded.Result.Code != 0 {
		return fmt.Errorf("envelope refused with code %d: %s", decoded.Result.Code, decoded.Result.Log)
	}
	return nil
}
