package fetcher

import (
	"math/rand/v2"
	"net/http"
)

// Fingerprint is the browser signature a session presents. A session keeps
// the same fingerprint for its whole life.
type Fingerprint struct {
	Name           string
	UserAgent      string
	AcceptLanguage string
	SecCHUA        string
	Platform       string
}

// fingerprints is the fixed pool sessions draw from.
var fingerprints = []Fingerprint{
	{
		Name:           "chrome-win",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		SecCHUA:        `"Chromium";v="124", "Google Chrome";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Windows"`,
	},
	{
		Name:           "chrome-mac",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/123.0.0.0 Safari/537.36",
		AcceptLanguage: "en-US,en;q=0.9",
		SecCHUA:        `"Google Chrome";v="123", "Not:A-Brand";v="8", "Chromium";v="123"`,
		Platform:       `"macOS"`,
	},
	{
		Name:           "edge-win",
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0.0.0 Safari/537.36 Edg/124.0.0.0",
		AcceptLanguage: "en-US,en;q=0.8",
		SecCHUA:        `"Chromium";v="124", "Microsoft Edge";v="124", "Not-A.Brand";v="99"`,
		Platform:       `"Windows"`,
	},
	{
		Name:           "safari-mac",
		UserAgent:      "Mozilla/5.0 (Macintosh; Intel Mac OS X 10_15_7) AppleWebKit/605.1.15 (KHTML, like Gecko) Version/17.4 Safari/605.1.15",
		AcceptLanguage: "en-US,en;q=0.9",
	},
	{
		Name:           "firefox-linux",
		UserAgent:      "Mozilla/5.0 (X11; Linux x86_64; rv:125.0) Gecko/20100101 Firefox/125.0",
		AcceptLanguage: "en-US,en;q=0.5",
	},
}

// Fingerprints returns a copy of the fingerprint pool.
func Fingerprints() []Fingerprint {
	out := make([]Fingerprint, len(fingerprints))
	copy(out, fingerprints)
	return out
}

// randomFingerprint picks one fingerprint, avoiding prev when the pool
// has an alternative.
func randomFingerprint(prev string) Fingerprint {
	for {
		fp := fingerprints[rand.IntN(len(fingerprints))]
		if fp.Name != prev || len(fingerprints) == 1 {
			return fp
		}
	}
}

// apply sets the fingerprint headers on req. Chromium-only client hints are
// skipped for browsers that do not send them.
func (fp Fingerprint) apply(req *http.Request) {
	req.Header.Set("User-Agent", fp.UserAgent)
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", fp.AcceptLanguage)
	if fp.SecCHUA != "" {
		req.Header.Set("Sec-CH-UA", fp.SecCHUA)
		req.Header.Set("Sec-CH-UA-Mobile", "?0")
		req.Header.Set("Sec-CH-UA-Platform", fp.Platform)
	}
}
