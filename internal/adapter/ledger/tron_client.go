package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rl1809/usdt-pay/internal/core/domain"
	"github.com/rl1809/usdt-pay/internal/port"
)

const apiKeyHeader = "TRON-PRO-API-KEY"

// TronClient queries TronGrid for incoming TRC20 transfers and transaction
// execution results. All calls are bounded by the client timeout; a timeout
// surfaces as an error and the poller retries next cycle.
type TronClient struct {
	http    *http.Client
	baseURL string
	apiKey  string
}

func NewTronClient(baseURL, apiKey string, timeout time.Duration) *TronClient {
	return &TronClient{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
	}
}

type trc20Response struct {
	Success bool      `json:"success"`
	Data    []trc20Tx `json:"data"`
}

type trc20Tx struct {
	TransactionID  string    `json:"transaction_id"`
	TokenInfo      tokenInfo `json:"token_info"`
	From           string    `json:"from"`
	To             string    `json:"to"`
	BlockTimestamp int64     `json:"block_timestamp"`
	Value          string    `json:"value"`
}

type tokenInfo struct {
	Symbol   string `json:"symbol"`
	Address  string `json:"address"`
	Decimals int    `json:"decimals"`
	Name     string `json:"name"`
}

type txInfoResponse struct {
	ID      string `json:"id"`
	Receipt struct {
		Result string `json:"result"`
	} `json:"receipt"`
}

func (c *TronClient) FetchTransfers(ctx context.Context, address string) ([]domain.LedgerTransaction, error) {
	url := fmt.Sprintf("%s/v1/accounts/%s/transactions/trc20", c.baseURL, address)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", port.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: status %d", port.ErrLedgerUnavailable, resp.StatusCode)
	}

	var body trc20Response
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("%w: decode response: %v", port.ErrLedgerUnavailable, err)
	}
	if !body.Success {
		return nil, fmt.Errorf("%w: non-success envelope", port.ErrLedgerUnavailable)
	}

	txs := make([]domain.LedgerTransaction, 0, len(body.Data))
	for _, tx := range body.Data {
		value, err := strconv.ParseInt(tx.Value, 10, 64)
		if err != nil {
			log.Printf("skipping tx %s: unparseable value %q", tx.TransactionID, tx.Value)
			continue
		}
		txs = append(txs, domain.LedgerTransaction{
			ID:             tx.TransactionID,
			From:           tx.From,
			To:             tx.To,
			TokenSymbol:    tx.TokenInfo.Symbol,
			ValueUnits:     value,
			BlockTimestamp: time.UnixMilli(tx.BlockTimestamp),
		})
	}
	return txs, nil
}

func (c *TronClient) ConfirmSuccess(ctx context.Context, transactionID string) (bool, error) {
	url := c.baseURL + "/walletsolidity/gettransactioninfobyid"

	payload, err := json.Marshal(map[string]string{"value": transactionID})
	if err != nil {
		return false, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return false, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(apiKeyHeader, c.apiKey)

	resp, err := c.http.Do(req)
	if err != nil {
		return false, fmt.Errorf("%w: %v", port.ErrLedgerUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false, fmt.Errorf("%w: status %d", port.ErrLedgerUnavailable, resp.StatusCode)
	}

	var body txInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("%w: decode response: %v", port.ErrLedgerUnavailable, err)
	}

	return strings.EqualFold(body.Receipt.Result, "SUCCESS"), nil
}
