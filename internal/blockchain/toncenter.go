package blockchain

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/chartsboard/chartsboard/internal/models"
	"github.com/chartsboard/chartsboard/pkg/logger"
)

const requestTimeout = 30 * time.Second

// Toncenter lists incoming wallet transfers through a toncenter-style HTTP
// indexer API.
type Toncenter struct {
	logger *logger.Logger
	apiURL string
	apiKey string
	client *http.Client
}

func NewToncenter(apiURL, apiKey string, logger *logger.Logger) *Toncenter {
	return &Toncenter{
		logger: logger,
		apiURL: apiURL,
		apiKey: apiKey,
		client: &http.Client{Timeout: requestTimeout},
	}
}

type txResponse struct {
	OK     bool    `json:"ok"`
	Error  string  `json:"error"`
	Result []rawTx `json:"result"`
}

type rawTx struct {
	TransactionID struct {
		Hash string `json:"hash"`
		LT   string `json:"lt"`
	} `json:"transaction_id"`
	Utime int64 `json:"utime"`
	InMsg struct {
		Value   string `json:"value"`
		Source  string `json:"source"`
		MsgData struct {
			Type string `json:"@type"`
			Text string `json:"text"`
		} `json:"msg_data"`
	} `json:"in_msg"`
}

// IncomingTransactions fetches recent transactions for the wallet and keeps
// only incoming transfers, decoding their memo comments.
func (t *Toncenter) IncomingTransactions(ctx context.Context, wallet string, limit int) ([]models.Transaction, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	query := url.Values{}
	query.Set("address", wallet)
	query.Set("limit", strconv.Itoa(limit))
	if t.apiKey != "" {
		query.Set("api_key", t.apiKey)
	}

	endpoint := fmt.Sprintf("%s/getTransactions?%s", t.apiURL, query.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrExternalUnavailable, err)
	}

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrExternalUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: indexer returned %d", models.ErrExternalUnavailable, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("%w: %s", models.ErrExternalUnavailable, err)
	}

	var parsed txResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("%w: malformed indexer response: %s", models.ErrExternalUnavailable, err)
	}
	if !parsed.OK {
		return nil, fmt.Errorf("%w: indexer error: %s", models.ErrExternalUnavailable, parsed.Error)
	}

	var txs []models.Transaction
	for _, raw := range parsed.Result {
		// Only incoming transfers carry a value in in_msg.
		if raw.InMsg.Value == "" || raw.InMsg.Value == "0" {
			continue
		}
		amount, err := strconv.ParseInt(raw.InMsg.Value, 10, 64)
		if err != nil {
			t.logger.Warnf("skipping transaction %s: bad value %q", raw.TransactionID.Hash, raw.InMsg.Value)
			continue
		}
		lt, _ := strconv.ParseInt(raw.TransactionID.LT, 10, 64)

		txs = append(txs, models.Transaction{
			Hash:       raw.TransactionID.Hash,
			LT:         lt,
			AmountNano: amount,
			Source:     raw.InMsg.Source,
			Comment:    decodeComment(raw.InMsg.MsgData.Type, raw.InMsg.MsgData.Text),
			Timestamp:  raw.Utime,
		})
	}
	return txs, nil
}

// decodeComment extracts the transfer memo. Text payloads arrive
// base64-encoded; anything undecodable is passed through as-is.
func decodeComment(msgType, text string) string {
	if msgType != "msg.dataText" || text == "" {
		return ""
	}
	decoded, err := base64.StdEncoding.DecodeString(text)
	if err != nil {
		return text
	}
	return string(decoded)
}
