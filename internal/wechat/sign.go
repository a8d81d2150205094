package wechat

import (
	"crypto/md5"
	"fmt"
	"sort"
	"strings"
)

// Sign computes the pay v2 MD5 signature: parameters sorted by key,
// joined as k=v pairs, the API key appended, digest upper-cased. Empty
// values and the sign field itself are excluded per the protocol.
func Sign(params map[string]string, apiKey string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if k == "sign" || v == "" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		sb.WriteString(k)
		sb.WriteByte('=')
		sb.WriteString(params[k])
		sb.WriteByte('&')
	}
	sb.WriteString("key=")
	sb.WriteString(apiKey)

	sum := md5.Sum([]byte(sb.String()))
	return strings.ToUpper(fmt.Sprintf("%x", sum))
}
