package payment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"strconv"
	"strings"
	"time"
)

// EventIntentSucceeded 支付成功事件类型
const EventIntentSucceeded = "payment_intent.succeeded"

var (
	ErrMissingSignature = errors.New("missing webhook signature")
	ErrBadSignature     = errors.New("webhook signature mismatch")
	ErrStaleSignature   = errors.New("webhook timestamp outside tolerance")
)

// Event 网关回调事件
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// Intent 解析事件携带的支付意图
func (e *Event) Intent() (*Intent, error) {
	var body intentBody
	if err := json.Unmarshal(e.Data.Object, &body); err != nil {
		return nil, err
	}
	if body.ID == "" {
		return nil, errors.New("event carries no payment intent")
	}
	return body.toIntent(), nil
}

// ParseWebhook 校验签名头 "t=<unix>,v1=<hex>" 后解析事件
// 签名为 HMAC-SHA256(secret, "<t>.<payload>")。
func ParseWebhook(payload []byte, header, secret string, tolerance time.Duration, now time.Time) (*Event, error) {
	if header == "" {
		return nil, ErrMissingSignature
	}
	var (
		ts   int64
		sigs []string
	)
	for _, part := range strings.Split(header, ",") {
		k, v, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			continue
		}
		switch k {
		case "t":
			n, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return nil, ErrBadSignature
			}
			ts = n
		case "v1":
			sigs = append(sigs, v)
		}
	}
	if ts == 0 || len(sigs) == 0 {
		return nil, ErrMissingSignature
	}
	if tolerance > 0 {
		age := now.Sub(time.Unix(ts, 0))
		if age > tolerance || age < -tolerance {
			return nil, ErrStaleSignature
		}
	}

	expected := sign(payload, secret, ts)
	matched := false
	for _, s := range sigs {
		got, err := hex.DecodeString(s)
		if err == nil && hmac.Equal(got, expected) {
			matched = true
			break
		}
	}
	if !matched {
		return nil, ErrBadSignature
	}

	var ev Event
	if err := json.Unmarshal(payload, &ev); err != nil {
		return nil, err
	}
	return &ev, nil
}

// SignatureHeader 生成回调签名头，测试与本地回放使用
func SignatureHeader(payload []byte, secret string, at time.Time) string {
	ts := at.Unix()
	return "t=" + strconv.FormatInt(ts, 10) + ",v1=" + hex.EncodeToString(sign(payload, secret, ts))
}

func sign(payload []byte, secret string, ts int64) []byte {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(strconv.FormatInt(ts, 10)))
	mac.Write([]byte("."))
	mac.Write(payload)
	return mac.Sum(nil)
}
