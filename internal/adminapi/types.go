// Package adminapi defines the JSON-over-HTTP contract between ztpiped and
// ztpipectl: a plain status/inspection surface for the running adapter,
// layered on top of the daemon's endpoint/pipe operations without a
// protobuf schema or RPC framework.
package adminapi

// StatusResponse is returned by GET /v1/status.
type StatusResponse struct {
	Version     string `json:"version"`
	NodeAddress string `json:"node_address"`
	UptimeSec   int64  `json:"uptime_seconds"`
	Endpoints   int    `json:"endpoint_count"`
	Pipes       int    `json:"pipe_count"`
}

// EndpointView is one entry of GET /v1/endpoints.
type EndpointView struct {
	LocalAddr string `json:"local_addr"`
	NWID      string `json:"nwid"`
	Mode      string `json:"mode"`
	State     string `json:"state"`
	Protocol  uint16 `json:"protocol"`
}

// EndpointsResponse is returned by GET /v1/endpoints.
type EndpointsResponse struct {
	Endpoints []EndpointView `json:"endpoints"`
}

// PipeView is one entry of GET /v1/pipes.
type PipeView struct {
	LocalAddr    string `json:"local_addr"`
	RemoteAddr   string `json:"remote_addr"`
	NWID         string `json:"nwid"`
	State        string `json:"state"`
	PeerProtocol uint16 `json:"peer_protocol"`
}

// PipesResponse is returned by GET /v1/pipes.
type PipesResponse struct {
	Pipes []PipeView `json:"pipes"`
}

// DialRequest is the body of POST /v1/dial.
type DialRequest struct {
	URL         string `json:"url"`
	Protocol    uint16 `json:"protocol"`
	RecvMaxSize uint32 `json:"recv_max_size,omitempty"`
}

// DialResponse is returned by POST /v1/dial once the pipe completes.
type DialResponse struct {
	Pipe PipeView `json:"pipe"`
}

// ListenRequest is the body of POST /v1/listen.
type ListenRequest struct {
	URL         string `json:"url"`
	Protocol    uint16 `json:"protocol"`
	RecvMaxSize uint32 `json:"recv_max_size,omitempty"`
}

// ListenResponse is returned by POST /v1/listen once the endpoint is bound.
type ListenResponse struct {
	Endpoint EndpointView `json:"endpoint"`
}

// ErrorResponse is the body of any non-2xx response.
type ErrorResponse struct {
	Error string `json:"error"`
}
