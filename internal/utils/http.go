package utils

import (
	"net/http"
	"net/url"
	"strings"

	"github.com/realclientip/realclientip-go"
)

// HttpRes is the JSON envelope for plain status responses.
type HttpRes struct {
	Message    string `json:"message,omitempty"`
	StatusCode int    `json:"statusCode,omitempty"`
}

func HttpResOk() HttpRes {
	return HttpRes{
		Message:    "OK",
		StatusCode: http.StatusOK,
	}
}

// HttpResError pairs the status code and body for echo's c.JSON.
func HttpResError(errMsg string, statusCode int) (int, HttpRes) {
	return statusCode, HttpRes{
		Message:    errMsg,
		StatusCode: statusCode,
	}
}

// ExtractOrigin reduces a URL to scheme://host for CORS and logging.
// Values that do not parse as absolute URLs pass through unchanged.
func ExtractOrigin(rawURL string) string {
	if rawURL == "" {
		return ""
	}
	u, err := url.Parse(rawURL)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return rawURL
	}
	return u.Scheme + "://" + u.Host
}

// RealIPExtractor resolves the client IP of a request that may have passed
// through the reverse proxies named in TRUSTED_PROXY_RANGES.
type RealIPExtractor struct {
	strategy realclientip.RightmostTrustedRangeStrategy
}

func NewRealIPExtractor(trustedRanges []string) (*RealIPExtractor, error) {
	ipNets, err := realclientip.AddressesAndRangesToIPNets(trustedRanges...)
	if err != nil {
		return nil, err
	}

	strategy, err := realclientip.NewRightmostTrustedRangeStrategy("X-Forwarded-For", ipNets)
	if err != nil {
		return nil, err
	}

	return &RealIPExtractor{
		strategy: strategy,
	}, nil
}

var remoteAddrStrategy = realclientip.RemoteAddrStrategy{}

// Extract appends the connection's RemoteAddr to the forwarded chain and
// picks the rightmost address that is not a trusted proxy. With no
// forwarding header in play, the RemoteAddr itself is the answer.
func (e *RealIPExtractor) Extract(request *http.Request) string {
	remoteAddr := remoteAddrStrategy.ClientIP(nil, request.RemoteAddr)
	forwarded := request.Header.Get("X-Forwarded-For")
	if remoteAddr == "" || forwarded == "" {
		return remoteAddr
	}

	headers := request.Header.Clone()
	headers.Set("X-Forwarded-For", strings.Join([]string{forwarded, remoteAddr}, ", "))

	// the strategy reads the header set, its second argument is unused
	rightmostTrusted := e.strategy.ClientIP(headers, "")
	if rightmostTrusted == "" {
		return remoteAddr
	}
	return rightmostTrusted
}
