// Package record holds the captured request/response records that the HAR
// transformer consumes.
package record

import "github.com/unkn0wn-root/harkit/internal/payload"

// Request is a saved request together with what was actually sent and what
// came back. Headers hold the raw header block text.
type Request struct {
	ID               string            `json:"id,omitempty" yaml:"id,omitempty"`
	Name             string            `json:"name,omitempty" yaml:"name,omitempty"`
	Method           string            `json:"method" yaml:"method"`
	URL              string            `json:"url" yaml:"url"`
	Headers          string            `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload          *payload.Stored   `json:"payload,omitempty" yaml:"payload,omitempty"`
	TransportRequest *TransportRequest `json:"transportRequest,omitempty" yaml:"transportRequest,omitempty"`
	Response         *Response         `json:"response,omitempty" yaml:"response,omitempty"`
}

// TransportRequest is the request as it went over the wire. Times are epoch
// milliseconds.
type TransportRequest struct {
	Method    string          `json:"method" yaml:"method"`
	URL       string          `json:"url" yaml:"url"`
	Headers   string          `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload   *payload.Stored `json:"payload,omitempty" yaml:"payload,omitempty"`
	StartTime int64           `json:"startTime" yaml:"startTime"`
	EndTime   int64           `json:"endTime" yaml:"endTime"`
}

type Response struct {
	Status      int             `json:"status" yaml:"status"`
	StatusText  string          `json:"statusText,omitempty" yaml:"statusText,omitempty"`
	Headers     string          `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload     *payload.Stored `json:"payload,omitempty" yaml:"payload,omitempty"`
	LoadingTime float64         `json:"loadingTime" yaml:"loadingTime"`
	Timings     *Timings        `json:"timings,omitempty" yaml:"timings,omitempty"`
	Redirects   []Redirect      `json:"redirects,omitempty" yaml:"redirects,omitempty"`
	Error       string          `json:"error,omitempty" yaml:"error,omitempty"`
}

// IsTransportError reports whether the response carries no HTTP status, which
// is how connection level failures are recorded.
func (r *Response) IsTransportError() bool {
	return r == nil || r.Status == 0
}

// Redirect is one intermediate hop. URL is the Location the hop pointed to.
type Redirect struct {
	URL       string   `json:"url" yaml:"url"`
	StartTime int64    `json:"startTime" yaml:"startTime"`
	EndTime   int64    `json:"endTime" yaml:"endTime"`
	Timings   *Timings `json:"timings,omitempty" yaml:"timings,omitempty"`
	Response  Hop      `json:"response" yaml:"response"`
}

type Hop struct {
	Status     int             `json:"status" yaml:"status"`
	StatusText string          `json:"statusText,omitempty" yaml:"statusText,omitempty"`
	Headers    string          `json:"headers,omitempty" yaml:"headers,omitempty"`
	Payload    *payload.Stored `json:"payload,omitempty" yaml:"payload,omitempty"`
}

// Timings are HAR timing phases in milliseconds. -1 marks a phase that does
// not apply.
type Timings struct {
	Blocked float64 `json:"blocked" yaml:"blocked"`
	DNS     float64 `json:"dns" yaml:"dns"`
	Connect float64 `json:"connect" yaml:"connect"`
	Send    float64 `json:"send" yaml:"send"`
	Wait    float64 `json:"wait" yaml:"wait"`
	Receive float64 `json:"receive" yaml:"receive"`
	SSL     float64 `json:"ssl" yaml:"ssl"`
}

// EmptyTimings is used when nothing was traced.
func EmptyTimings() Timings {
	return Timings{Blocked: -1, DNS: -1, Connect: -1, SSL: -1}
}
