package remote

import (
	"net"
	"net/http"
	"time"

	"github.com/gagliardetto/solana-go/rpc"
	"github.com/gagliardetto/solana-go/rpc/jsonrpc"
	"github.com/klauspost/compress/gzhttp"
)

var (
	defaultMaxConnsPerHost = 16
	defaultKeepAlive       = 100 * time.Second
)

func newHTTPTransport(timeout time.Duration) *http.Transport {
	return &http.Transport{
		IdleConnTimeout:     timeout,
		MaxConnsPerHost:     defaultMaxConnsPerHost,
		MaxIdleConnsPerHost: defaultMaxConnsPerHost,
		Proxy:               http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   timeout,
			KeepAlive: defaultKeepAlive,
		}).DialContext,
		ForceAttemptHTTP2:   true,
		TLSHandshakeTimeout: timeout,
	}
}

func createRpcWithTimeout(host string, timeout time.Duration) *rpc.Client {
	jsonrpcClient := jsonrpc.NewClientWithOpts(host, &jsonrpc.RPCClientOpts{HTTPClient: &http.Client{
		Timeout:   timeout,
		Transport: gzhttp.Transport(newHTTPTransport(timeout)),
	}})

	return rpc.NewWithCustomRPCClient(jsonrpcClient)
}
