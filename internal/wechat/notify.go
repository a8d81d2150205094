package wechat

import (
	"encoding/xml"
	"fmt"
)

// Notification is the provider's asynchronous payment result. Delivery is
// at-least-once; the provider retries until it receives a SUCCESS ack.
type Notification struct {
	XMLName       xml.Name `xml:"xml"`
	ReturnCode    string   `xml:"return_code"`
	ReturnMsg     string   `xml:"return_msg"`
	ResultCode    string   `xml:"result_code"`
	ErrCode       string   `xml:"err_code"`
	ErrCodeDes    string   `xml:"err_code_des"`
	OutTradeNo    string   `xml:"out_trade_no"`
	TransactionID string   `xml:"transaction_id"`
	TotalFee      int64    `xml:"total_fee"`
	OpenID        string   `xml:"openid"`
	TimeEnd       string   `xml:"time_end"`
}

// Succeeded reports whether both status fields indicate a successful
// payment. Any other combination is a payment failure notification, not a
// protocol error.
func (n *Notification) Succeeded() bool {
	return n.ReturnCode == resultSuccess && n.ResultCode == resultSuccess
}

// ParseNotification decodes a raw notification body.
func ParseNotification(body []byte) (*Notification, error) {
	var n Notification
	if err := xml.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("failed to parse notification: %w", err)
	}
	if n.ReturnCode == "" {
		return nil, fmt.Errorf("notification missing return_code")
	}
	return &n, nil
}

// NotifyAck is the XML acknowledgement returned to the provider. It is
// always sent with HTTP 200; the provider distinguishes outcomes by body
// content and keeps retrying until return_code is SUCCESS.
type NotifyAck struct {
	XMLName    xml.Name `xml:"xml"`
	ReturnCode cdata    `xml:"return_code"`
	ReturnMsg  cdata    `xml:"return_msg"`
}

type cdata struct {
	Value string `xml:",cdata"`
}

// AckSuccess acknowledges a processed notification.
func AckSuccess() *NotifyAck {
	return &NotifyAck{
		ReturnCode: cdata{resultSuccess},
		ReturnMsg:  cdata{"OK"},
	}
}

// AckFail tells the provider to redeliver.
func AckFail(msg string) *NotifyAck {
	return &NotifyAck{
		ReturnCode: cdata{"FAIL"},
		ReturnMsg:  cdata{msg},
	}
}

// Encode renders the ack as an XML body.
func (a *NotifyAck) Encode() []byte {
	out, err := xml.Marshal(a)
	if err != nil {
		// the struct is marshal-safe; this cannot happen at runtime
		return []byte("<xml><return_code><![CDATA[FAIL]]></return_code></xml>")
	}
	return out
}

// Success reports whether the ack accepts the notification.
func (a *NotifyAck) Success() bool {
	return a.ReturnCode.Value == resultSuccess
}
