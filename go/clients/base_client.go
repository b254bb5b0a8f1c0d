package clients

import (
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/google/uuid"
)

// RequestIDHeader carries a per-request id so client and server logs can be correlated.
const RequestIDHeader = "X-Request-ID"

type BaseClient struct {
	client *resty.Client
}

func NewBaseClient(baseURL string) *BaseClient {
	client := resty.New().
		SetBaseURL(baseURL).
		SetTimeout(30 * time.Second).
		SetHeader("Accept", "application/json")

	client.OnBeforeRequest(func(_ *resty.Client, req *resty.Request) error {
		if req.Header.Get(RequestIDHeader) == "" {
			req.SetHeader(RequestIDHeader, uuid.NewString())
		}
		return nil
	})

	return &BaseClient{client: client}
}

func (c *BaseClient) SetHeader(key, value string) {
	c.client.SetHeader(key, value)
}

// SetAuthToken sends token as a bearer credential on every request.
func (c *BaseClient) SetAuthToken(token string) {
	if token == "" {
		return
	}
	c.client.SetAuthToken(token)
}

func (c *BaseClient) SetTimeout(timeout time.Duration) {
	c.client.SetTimeout(timeout)
}

// R starts a new request on the shared client.
func (c *BaseClient) R() *resty.Request {
	return c.client.R()
}
