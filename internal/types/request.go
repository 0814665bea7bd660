package types

// RequestType identifies the kind of gateway operation a request performs
type RequestType string

const (
	RequestTypeList   RequestType = "list"
	RequestTypeFetch  RequestType = "fetch"
	RequestTypeTunnel RequestType = "tunnel"
)

// RequestContext carries per-request tracing information through the
// catalog client and error classification.
type RequestContext struct {
	TraceID         string
	RequestType     RequestType
	FolderID        string
	InvolvedFileIDs []string
}

// GatewayError is the structured error returned to HTTP callers
type GatewayError struct {
	Code       string                 `json:"code"`
	Message    string                 `json:"message"`
	HTTPStatus int                    `json:"httpStatus,omitempty"`
	Reason     string                 `json:"reason,omitempty"`
	Retryable  bool                   `json:"retryable"`
	Context    map[string]interface{} `json:"context,omitempty"`
}
