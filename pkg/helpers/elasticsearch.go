package helpers

import (
	"crypto/tls"
	"net"
	"net/http"
	"time"

	"github.com/elastic/go-elasticsearch/v8"
)

// NewESClient builds the client backing the users index. Transport timeouts
// stay inside the 3s deadline the user service puts on index and search
// calls, so a dead node fails the request instead of hanging it.
func NewESClient(addrs []string, username, password string) (*elasticsearch.Client, error) {
	return elasticsearch.NewClient(elasticsearch.Config{
		Addresses: addrs,
		Username:  username,
		Password:  password,
		Transport: &http.Transport{
			DialContext:           (&net.Dialer{Timeout: 2 * time.Second}).DialContext,
			ResponseHeaderTimeout: 3 * time.Second,
			MaxIdleConnsPerHost:   10,
			TLSClientConfig:       &tls.Config{MinVersion: tls.VersionTLS12},
		},
	})
}
