// Package blockfrost implements ledger.Ledger over the Blockfrost HTTP API.
package blockfrost

import (
	"bytes"
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"github.com/tidwall/gjson"
	"github.com/vnFuhung2903/rubyams/internal/domain/ledger"
	"github.com/vnFuhung2903/rubyams/pkg/logger"
)

const (
	pageSize       = 100
	maxPages       = 50
	defaultTimeout = 20 * time.Second
)

var errNotFound = errors.New("blockfrost: not found")

// Client talks to a Blockfrost-compatible endpoint.
type Client struct {
	baseURL    string
	projectID  string
	httpClient *http.Client
	logger     logger.Logger
}

var _ ledger.Ledger = (*Client)(nil)

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(b *Client) {
		if c != nil {
			b.httpClient = c
		}
	}
}

// WithLogger sets the client logger.
func WithLogger(l logger.Logger) Option {
	return func(b *Client) {
		if l != nil {
			b.logger = l
		}
	}
}

// New returns a client for baseURL authenticated with projectID.
func New(baseURL, projectID string, opts ...Option) *Client {
	c := &Client{
		baseURL:    baseURL,
		projectID:  projectID,
		httpClient: &http.Client{Timeout: defaultTimeout},
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.logger == nil {
		c.logger = logger.Get().Named("blockfrost")
	}
	return c
}

// QueryOutputs pages through the unspent outputs at address.
func (c *Client) QueryOutputs(ctx context.Context, address string) ([]ledger.Output, error) {
	var out []ledger.Output
	for page := 1; page <= maxPages; page++ {
		path := fmt.Sprintf("/addresses/%s/utxos?count=%d&page=%d", url.PathEscape(address), pageSize, page)
		body, err := c.do(ctx, http.MethodGet, path, "", nil)
		if errors.Is(err, errNotFound) {
			return out, nil
		}
		if err != nil {
			return nil, err
		}

		items := gjson.ParseBytes(body).Array()
		for _, item := range items {
			o, err := parseOutput(address, item)
			if err != nil {
				return nil, err
			}
			out = append(out, o)
		}
		if len(items) < pageSize {
			return out, nil
		}
	}
	c.logger.Warn(ctx, "output listing truncated", logger.String("address", address), logger.Int("pages", maxPages))
	return out, nil
}

func parseOutput(address string, item gjson.Result) (ledger.Output, error) {
	o := ledger.Output{
		Ref:     ledger.OutRef{TxHash: item.Get("tx_hash").String(), Index: uint32(item.Get("output_index").Uint())},
		Address: address,
	}
	for _, amt := range item.Get("amount").Array() {
		if amt.Get("unit").String() != "lovelace" {
			continue
		}
		v, err := strconv.ParseUint(amt.Get("quantity").String(), 10, 64)
		if err != nil {
			return ledger.Output{}, fmt.Errorf("blockfrost: lovelace of %s: %w", o.Ref, err)
		}
		o.Lovelace = v
	}
	if d := item.Get("inline_datum"); d.Type == gjson.String {
		raw, err := hex.DecodeString(d.String())
		if err != nil {
			return ledger.Output{}, fmt.Errorf("blockfrost: datum of %s: %w", o.Ref, err)
		}
		o.Datum = raw
	}
	return o, nil
}

// Submit posts the signed transaction CBOR.
func (c *Client) Submit(ctx context.Context, tx ledger.SignedTx) (string, error) {
	if len(tx.CBOR) == 0 {
		return "", fmt.Errorf("blockfrost: transaction %s is not signed", tx.Hash)
	}
	body, err := c.do(ctx, http.MethodPost, "/tx/submit", "application/cbor", tx.CBOR)
	if err != nil {
		var re *responseError
		if errors.As(err, &re) && re.status == http.StatusBadRequest {
			return "", fmt.Errorf("%w: %s", ledger.ErrRejected, re.message)
		}
		return "", err
	}
	hash := gjson.ParseBytes(body).String()
	if hash == "" {
		hash = tx.Hash
	}
	return hash, nil
}

// IsConfirmed reports whether hash is on chain.
func (c *Client) IsConfirmed(ctx context.Context, hash string) (bool, error) {
	_, err := c.do(ctx, http.MethodGet, "/txs/"+url.PathEscape(hash), "", nil)
	switch {
	case errors.Is(err, errNotFound):
		return false, nil
	case err != nil:
		return false, err
	}
	return true, nil
}

// ProtocolParams are the fee and script parameters of the latest epoch.
type ProtocolParams struct {
	MinFeeA           uint64
	MinFeeB           uint64
	PriceMem          decimal.Decimal
	PriceSteps        decimal.Decimal
	CollateralPercent uint64
	CostModelV2       []int64
}

// ProtocolParams reads the parameters of the latest epoch.
func (c *Client) ProtocolParams(ctx context.Context) (ProtocolParams, error) {
	body, err := c.do(ctx, http.MethodGet, "/epochs/latest/parameters", "", nil)
	if err != nil {
		return ProtocolParams{}, fmt.Errorf("blockfrost: protocol parameters: %w", err)
	}
	doc := gjson.ParseBytes(body)
	p := ProtocolParams{
		MinFeeA:           doc.Get("min_fee_a").Uint(),
		MinFeeB:           doc.Get("min_fee_b").Uint(),
		CollateralPercent: doc.Get("collateral_percent").Uint(),
		CostModelV2:       costModelV2(doc),
	}
	if p.PriceMem, err = parsePrice(doc.Get("price_mem")); err != nil {
		return ProtocolParams{}, fmt.Errorf("blockfrost: price_mem: %w", err)
	}
	if p.PriceSteps, err = parsePrice(doc.Get("price_step")); err != nil {
		return ProtocolParams{}, fmt.Errorf("blockfrost: price_step: %w", err)
	}
	if len(p.CostModelV2) == 0 {
		return ProtocolParams{}, errors.New("blockfrost: no PlutusV2 cost model in protocol parameters")
	}
	return p, nil
}

func parsePrice(r gjson.Result) (decimal.Decimal, error) {
	switch r.Type {
	case gjson.Number:
		return decimal.NewFromString(r.Raw)
	case gjson.String:
		return decimal.NewFromString(r.Str)
	}
	return decimal.Zero, errors.New("missing")
}

// costModelV2 prefers the ordered cost_models_raw list and falls back to the
// named cost_models object, whose keys sort into parameter order.
func costModelV2(doc gjson.Result) []int64 {
	if raw := doc.Get("cost_models_raw.PlutusV2"); raw.IsArray() {
		var out []int64
		for _, v := range raw.Array() {
			out = append(out, v.Int())
		}
		return out
	}
	named := doc.Get("cost_models.PlutusV2")
	if !named.IsObject() {
		return nil
	}
	values := named.Map()
	keys := make([]string, 0, len(values))
	for k := range values {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	out := make([]int64, 0, len(keys))
	for _, k := range keys {
		out = append(out, values[k].Int())
	}
	return out
}

type responseError struct {
	status  int
	message string
}

func (e *responseError) Error() string {
	return fmt.Sprintf("blockfrost: %d %s", e.status, e.message)
}

func (c *Client) do(ctx context.Context, method, path, contentType string, payload []byte) ([]byte, error) {
	var reader io.Reader
	if payload != nil {
		reader = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("project_id", c.projectID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("send request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, errNotFound
	case resp.StatusCode != http.StatusOK:
		msg := gjson.GetBytes(body, "message").String()
		if msg == "" {
			msg = string(body)
		}
		return nil, &responseError{status: resp.StatusCode, message: msg}
	}
	return body, nil
}
