package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/radieske/bet-settlement-ledger/internal/chain-simulator/dto"
)

// Client chama o endpoint de transferência do colaborador de chain/carteira.
type Client struct {
	BaseURL string
	HTTP    *http.Client
}

func NewClient(baseURL string) *Client {
	return &Client{
		BaseURL: strings.TrimSuffix(baseURL, "/"),
		HTTP:    &http.Client{Timeout: 5 * time.Second},
	}
}

// Transfer envia a ordem. Erro significa que não houve resposta conclusiva (rede, 5xx);
// rejeições de negócio voltam como resposta com status REJECTED.
func (c *Client) Transfer(ctx context.Context, req dto.TransferReq) (*dto.TransferResp, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return nil, err
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+"/chain/transfer", bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := c.HTTP.Do(hreq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("chain http %s", resp.Status)
	}
	if resp.StatusCode >= 300 {
		return &dto.TransferResp{Status: dto.StatusRejected, Reason: "chain http " + resp.Status}, nil
	}
	var out dto.TransferResp
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode chain response: %w", err)
	}
	return &out, nil
}
