package mlfilter

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v5"
	"github.com/tidwall/gjson"

	"goldsweep/internal/config"
	"goldsweep/internal/logger"
	"goldsweep/internal/pkg/circuit"
	"goldsweep/internal/strategy/signal"
)

// failOpenConfidence 是模型不可用时放行信号所附带的置信度。
const failOpenConfidence = 0.5

const responseSchema = `{
  "type": "object",
  "required": ["probability"],
  "properties": {
    "probability": {"type": "number", "minimum": 0, "maximum": 1},
    "model": {"type": "string"}
  }
}`

// Request 是提交给模型服务的请求体。
type Request struct {
	Symbol    string             `json:"symbol,omitempty"`
	Direction string             `json:"direction"`
	Features  map[string]float64 `json:"features"`
	Vector    []float64          `json:"vector"`
}

// Client 通过 HTTP 调用外部模型，实现 signal.Filter。
// 模型不可用（网络错误、响应不合法、熔断中）时放行并返回 0.5。
type Client struct {
	endpoint  string
	symbol    string
	threshold float64
	http      *http.Client
	schema    *jsonschema.Schema
	breaker   *circuit.Breaker
	log       logger.Entry
}

func New(cfg config.MLFilterConfig, symbol string) (*Client, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, fmt.Errorf("ml_filter.endpoint 不能为空")
	}
	schema, err := compileSchema(responseSchema)
	if err != nil {
		return nil, fmt.Errorf("compile ml response schema: %w", err)
	}
	timeout := cfg.Timeout()
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Client{
		endpoint:  cfg.Endpoint,
		symbol:    symbol,
		threshold: cfg.Threshold,
		http:      &http.Client{Timeout: timeout},
		schema:    schema,
		breaker:   circuit.NewBreaker("ml_filter", 3, time.Minute),
		log:       logger.With("ml_filter"),
	}, nil
}

var _ signal.Filter = (*Client)(nil)

// Evaluate 返回 (probability >= threshold, probability)。
func (c *Client) Evaluate(ctx context.Context, in signal.Input, cand signal.Signal) (bool, float64) {
	feats, err := Extract(in, cand)
	if err != nil {
		c.log.Warnf("feature extraction failed, accepting: %v", err)
		return true, failOpenConfidence
	}
	if !c.breaker.Allow() {
		c.log.Warnf("model endpoint circuit open, accepting")
		return true, failOpenConfidence
	}
	prob, err := c.predict(ctx, Request{
		Symbol:    c.symbol,
		Direction: string(cand.Direction),
		Features:  feats.Map(),
		Vector:    feats.Vector(),
	})
	if err != nil {
		c.breaker.RecordFailure()
		c.log.Warnf("predict failed, accepting: %v", err)
		return true, failOpenConfidence
	}
	c.breaker.RecordSuccess()
	pass := prob >= c.threshold
	if pass {
		c.log.Infof("PASS (probability %.2f%%)", prob*100)
	} else {
		c.log.Infof("FAIL (probability %.2f%% < %.2f%%)", prob*100, c.threshold*100)
	}
	return pass, prob
}

func (c *Client) predict(ctx context.Context, req Request) (float64, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return 0, err
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	resp, err := c.http.Do(httpReq)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return 0, err
	}
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("model endpoint status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	return c.parse(raw)
}

func (c *Client) parse(raw []byte) (float64, error) {
	if !gjson.ValidBytes(raw) {
		return 0, fmt.Errorf("json 格式无效")
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return 0, err
	}
	if err := c.schema.Validate(doc); err != nil {
		return 0, fmt.Errorf("response schema: %w", err)
	}
	return gjson.GetBytes(raw, "probability").Float(), nil
}

func compileSchema(schema string) (*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("ml_response.json", strings.NewReader(schema)); err != nil {
		return nil, err
	}
	return compiler.Compile("ml_response.json")
}
