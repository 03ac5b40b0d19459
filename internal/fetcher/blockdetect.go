package fetcher

import (
	"net/http"
	"strings"
)

// BlockKind describes the kind of anti-bot response detected.
type BlockKind string

// Block kinds reported by DetectBlock.
const (
	BlockNone      BlockKind = ""
	BlockForbidden BlockKind = "forbidden"
	BlockChallenge BlockKind = "challenge"
	BlockCaptcha   BlockKind = "captcha"
	BlockJSShell   BlockKind = "js_shell"
)

// DetectBlock reports whether a response is an anti-bot refusal rather than
// real content. Any 403 is a block; a 200 can still be a challenge page.
func DetectBlock(status int, header http.Header, body []byte) BlockKind {
	if status == http.StatusForbidden {
		if isCloudflare(header) {
			return BlockChallenge
		}
		return BlockForbidden
	}
	if status == http.StatusServiceUnavailable && isCloudflare(header) {
		return BlockChallenge
	}

	lower := strings.ToLower(string(body))

	if strings.Contains(lower, "checking your browser") ||
		strings.Contains(lower, "cf-browser-verification") ||
		strings.Contains(lower, "cf-challenge") ||
		(strings.Contains(lower, "cloudflare") && strings.Contains(lower, "challenge")) {
		return BlockChallenge
	}

	if strings.Contains(lower, "g-recaptcha") ||
		strings.Contains(lower, "h-captcha") ||
		strings.Contains(lower, "hcaptcha") ||
		strings.Contains(lower, "are you a human") ||
		strings.Contains(lower, "verify you are human") {
		return BlockCaptcha
	}

	// Tiny pages that only render with JavaScript.
	if len(body) < 2000 {
		if strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
			return BlockJSShell
		}
		if strings.Contains(lower, `http-equiv="refresh"`) {
			return BlockJSShell
		}
	}

	return BlockNone
}

func isCloudflare(h http.Header) bool {
	if h == nil {
		return false
	}
	return h.Get("cf-ray") != "" ||
		h.Get("cf-mitigated") != "" ||
		strings.EqualFold(h.Get("server"), "cloudflare")
}
