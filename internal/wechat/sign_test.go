package wechat

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	params := map[string]string{
		"appid":     "wx123",
		"mch_id":    "10000100",
		"nonce_str": "abc123",
		"body":      "test",
	}

	sign := Sign(params, "192006250b4c09247ec02edce69f6a2d")

	assert.Equal(t, "709954363636A9E56A2B8BE19D1A5CD8", sign)
}

func TestSignSkipsEmptyAndSignFields(t *testing.T) {
	base := map[string]string{
		"appid":     "wx123",
		"mch_id":    "10000100",
		"nonce_str": "abc123",
		"body":      "test",
	}
	withNoise := map[string]string{
		"appid":     "wx123",
		"mch_id":    "10000100",
		"nonce_str": "abc123",
		"body":      "test",
		"openid":    "",
		"sign":      "SHOULD-BE-IGNORED",
	}

	key := "192006250b4c09247ec02edce69f6a2d"
	assert.Equal(t, Sign(base, key), Sign(withNoise, key))
}

func TestSignIsOrderIndependent(t *testing.T) {
	key := "secret"
	a := Sign(map[string]string{"b": "2", "a": "1"}, key)
	b := Sign(map[string]string{"a": "1", "b": "2"}, key)
	assert.Equal(t, a, b)
}
