package wechat

import (
	"bytes"
	"context"
	"encoding/json"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	unifiedOrderURL  = "https://api.mch.weixin.qq.com/pay/unifiedorder"
	codeToSessionURL = "https://api.weixin.qq.com/sns/jscode2session"

	resultSuccess = "SUCCESS"
)

// Credentials holds the mini-program and merchant identity used to talk
// to the provider.
type Credentials struct {
	AppID     string
	AppSecret string
	MchID     string
	APIKey    string
	NotifyURL string
}

// Client talks to the WeChat pay v2 and mini-program APIs. All calls are
// bounded by the configured timeout; there is no retry here — an order
// number is single-use, so retrying is the caller's decision with a fresh
// attempt.
type Client struct {
	creds      Credentials
	httpClient *http.Client

	// overridable endpoints for tests
	unifiedOrderEndpoint  string
	codeToSessionEndpoint string
}

// NewClient creates a provider client with a bounded request timeout.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	return &Client{
		creds:                 creds,
		httpClient:            &http.Client{Timeout: timeout},
		unifiedOrderEndpoint:  unifiedOrderURL,
		codeToSessionEndpoint: codeToSessionURL,
	}
}

// unifiedOrderRequest is the XML body sent to the unified order API.
type unifiedOrderRequest struct {
	XMLName        xml.Name `xml:"xml"`
	AppID          string   `xml:"appid"`
	MchID          string   `xml:"mch_id"`
	NonceStr       string   `xml:"nonce_str"`
	Body           string   `xml:"body"`
	OutTradeNo     string   `xml:"out_trade_no"`
	TotalFee       int64    `xml:"total_fee"`
	SpbillCreateIP string   `xml:"spbill_create_ip"`
	NotifyURL      string   `xml:"notify_url"`
	TradeType      string   `xml:"trade_type"`
	OpenID         string   `xml:"openid"`
	Sign           string   `xml:"sign"`
}

// unifiedOrderResponse is the XML body returned by the unified order API.
type unifiedOrderResponse struct {
	XMLName    xml.Name `xml:"xml"`
	ReturnCode string   `xml:"return_code"`
	ReturnMsg  string   `xml:"return_msg"`
	ResultCode string   `xml:"result_code"`
	ErrCodeDes string   `xml:"err_code_des"`
	PrepayID   string   `xml:"prepay_id"`
}

// UnifiedOrder requests a prepay id for a JSAPI payment. A non-success
// response from either status field is an error; the caller must not
// persist anything for this attempt.
func (c *Client) UnifiedOrder(ctx context.Context, orderNo, description string, totalFeeFen int64, openID string) (string, error) {
	nonce := newNonce()

	params := map[string]string{
		"appid":            c.creds.AppID,
		"mch_id":           c.creds.MchID,
		"nonce_str":        nonce,
		"body":             description,
		"out_trade_no":     orderNo,
		"total_fee":        strconv.FormatInt(totalFeeFen, 10),
		"spbill_create_ip": "127.0.0.1",
		"notify_url":       c.creds.NotifyURL,
		"trade_type":       "JSAPI",
		"openid":           openID,
	}

	reqBody := unifiedOrderRequest{
		AppID:          c.creds.AppID,
		MchID:          c.creds.MchID,
		NonceStr:       nonce,
		Body:           description,
		OutTradeNo:     orderNo,
		TotalFee:       totalFeeFen,
		SpbillCreateIP: "127.0.0.1",
		NotifyURL:      c.creds.NotifyURL,
		TradeType:      "JSAPI",
		OpenID:         openID,
		Sign:           Sign(params, c.creds.APIKey),
	}

	payload, err := xml.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal unified order request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.unifiedOrderEndpoint, bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "text/xml")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("unified order request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read unified order response: %w", err)
	}

	var result unifiedOrderResponse
	if err := xml.Unmarshal(respBody, &result); err != nil {
		return "", fmt.Errorf("failed to parse unified order response: %w", err)
	}

	if result.ReturnCode != resultSuccess {
		return "", fmt.Errorf("unified order rejected: %s", result.ReturnMsg)
	}
	if result.ResultCode != resultSuccess {
		return "", fmt.Errorf("unified order failed: %s", result.ErrCodeDes)
	}
	if result.PrepayID == "" {
		return "", fmt.Errorf("unified order response missing prepay_id")
	}

	return result.PrepayID, nil
}

// PayParams are the signed parameters the mini-program hands to
// wx.requestPayment.
type PayParams struct {
	TimeStamp string `json:"timeStamp"`
	NonceStr  string `json:"nonceStr"`
	Package   string `json:"package"`
	SignType  string `json:"signType"`
	PaySign   string `json:"paySign"`
}

// PaymentParams signs the client-side payment parameters for a prepay id.
func (c *Client) PaymentParams(prepayID string) PayParams {
	p := PayParams{
		TimeStamp: strconv.FormatInt(time.Now().Unix(), 10),
		NonceStr:  newNonce(),
		Package:   "prepay_id=" + prepayID,
		SignType:  "MD5",
	}
	p.PaySign = Sign(map[string]string{
		"appId":     c.creds.AppID,
		"timeStamp": p.TimeStamp,
		"nonceStr":  p.NonceStr,
		"package":   p.Package,
		"signType":  p.SignType,
	}, c.creds.APIKey)
	return p
}

// Session is the identity-exchange result for a login code.
type Session struct {
	OpenID     string `json:"openid"`
	SessionKey string `json:"session_key"`
	ErrCode    int    `json:"errcode"`
	ErrMsg     string `json:"errmsg"`
}

// CodeToSession exchanges a mini-program login code for the user's openid.
func (c *Client) CodeToSession(ctx context.Context, jsCode string) (*Session, error) {
	q := url.Values{}
	q.Set("appid", c.creds.AppID)
	q.Set("secret", c.creds.AppSecret)
	q.Set("js_code", jsCode)
	q.Set("grant_type", "authorization_code")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.codeToSessionEndpoint+"?"+q.Encode(), nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("code2session request failed: %w", err)
	}
	defer resp.Body.Close()

	var session Session
	if err := json.NewDecoder(resp.Body).Decode(&session); err != nil {
		return nil, fmt.Errorf("failed to parse code2session response: %w", err)
	}

	if session.ErrCode != 0 {
		return nil, fmt.Errorf("code2session rejected: %d %s", session.ErrCode, session.ErrMsg)
	}
	if session.OpenID == "" {
		return nil, fmt.Errorf("code2session response missing openid")
	}

	return &session, nil
}

func newNonce() string {
	return strings.ReplaceAll(uuid.New().String(), "-", "")
}
