package connect

import (
	"context"
	"strings"

	"connectrpc.com/connect"

	"github.com/osa030/exitcall/internal/app/navigation"
	"github.com/osa030/exitcall/internal/app/screen"
	"github.com/osa030/exitcall/internal/domain/call"
)

// Ensure Client can drive the phone screens.
var _ screen.API = (*Client)(nil)

// Client is a typed CallService client. Errors carry the domain error
// kinds, so errors.Is(err, call.ErrInvalidTransition) works on the client.
type Client struct {
	getSettings         *connect.Client[GetSettingsRequest, Settings]
	saveSettings        *connect.Client[SaveSettingsRequest, Settings]
	startCall           *connect.Client[StartCallRequest, StartCallResponse]
	accept              *connect.Client[SessionRequest, Session]
	decline             *connect.Client[SessionRequest, Session]
	endCall             *connect.Client[SessionRequest, Session]
	getSession          *connect.Client[SessionRequest, Session]
	listSessions        *connect.Client[ListSessionsRequest, ListSessionsResponse]
	expireStale         *connect.Client[ExpireStaleRequest, ExpireStaleResponse]
	subscribeNavigation *connect.Client[SubscribeNavigationRequest, navigation.Request]
}

// NewClient creates a client for the server at baseURL.
func NewClient(httpClient connect.HTTPClient, baseURL string, opts ...connect.ClientOption) *Client {
	baseURL = strings.TrimRight(baseURL, "/")
	opts = append([]connect.ClientOption{connect.WithCodec(Codec{})}, opts...)
	return &Client{
		getSettings:         connect.NewClient[GetSettingsRequest, Settings](httpClient, baseURL+CallServiceGetSettingsProcedure, opts...),
		saveSettings:        connect.NewClient[SaveSettingsRequest, Settings](httpClient, baseURL+CallServiceSaveSettingsProcedure, opts...),
		startCall:           connect.NewClient[StartCallRequest, StartCallResponse](httpClient, baseURL+CallServiceStartCallProcedure, opts...),
		accept:              connect.NewClient[SessionRequest, Session](httpClient, baseURL+CallServiceAcceptProcedure, opts...),
		decline:             connect.NewClient[SessionRequest, Session](httpClient, baseURL+CallServiceDeclineProcedure, opts...),
		endCall:             connect.NewClient[SessionRequest, Session](httpClient, baseURL+CallServiceEndCallProcedure, opts...),
		getSession:          connect.NewClient[SessionRequest, Session](httpClient, baseURL+CallServiceGetSessionProcedure, opts...),
		listSessions:        connect.NewClient[ListSessionsRequest, ListSessionsResponse](httpClient, baseURL+CallServiceListSessionsProcedure, opts...),
		expireStale:         connect.NewClient[ExpireStaleRequest, ExpireStaleResponse](httpClient, baseURL+CallServiceExpireStaleProcedure, opts...),
		subscribeNavigation: connect.NewClient[SubscribeNavigationRequest, navigation.Request](httpClient, baseURL+CallServiceSubscribeNavigationProcedure, opts...),
	}
}

// GetSettings returns the saved settings.
func (c *Client) GetSettings(ctx context.Context) (call.Settings, error) {
	resp, err := c.getSettings.CallUnary(ctx, connect.NewRequest(&GetSettingsRequest{}))
	if err != nil {
		return call.Settings{}, fromConnectError(err)
	}
	return resp.Msg.toModel(), nil
}

// SaveSettings merges patch into the saved settings.
func (c *Client) SaveSettings(ctx context.Context, patch call.SettingsPatch) (call.Settings, error) {
	resp, err := c.saveSettings.CallUnary(ctx, connect.NewRequest(toSaveSettingsRequest(patch)))
	if err != nil {
		return call.Settings{}, fromConnectError(err)
	}
	return resp.Msg.toModel(), nil
}

// StartCall schedules a call. Nil request fields use the saved settings.
func (c *Client) StartCall(ctx context.Context, req *StartCallRequest) (*StartCallResponse, error) {
	if req == nil {
		req = &StartCallRequest{}
	}
	resp, err := c.startCall.CallUnary(ctx, connect.NewRequest(req))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg, nil
}

// StartFromSettings schedules a call with the saved settings.
func (c *Client) StartFromSettings(ctx context.Context) (*call.Session, error) {
	resp, err := c.StartCall(ctx, nil)
	if err != nil {
		return nil, err
	}
	return resp.Session.toModel(), nil
}

func (c *Client) Accept(ctx context.Context, id string) (*call.Session, error) {
	return callSession(ctx, c.accept, id)
}

func (c *Client) Decline(ctx context.Context, id string) (*call.Session, error) {
	return callSession(ctx, c.decline, id)
}

func (c *Client) EndCall(ctx context.Context, id string) (*call.Session, error) {
	return callSession(ctx, c.endCall, id)
}

func (c *Client) GetSession(ctx context.Context, id string) (*call.Session, error) {
	return callSession(ctx, c.getSession, id)
}

// ListSessions returns the call history, newest first.
func (c *Client) ListSessions(ctx context.Context, limit int) ([]*call.Session, error) {
	resp, err := c.listSessions.CallUnary(ctx, connect.NewRequest(&ListSessionsRequest{Limit: limit}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return toSessionModels(resp.Msg.Sessions), nil
}

// ExpireStale ends incoming sessions older than olderThanSeconds
// (zero uses the server default).
func (c *Client) ExpireStale(ctx context.Context, olderThanSeconds int) ([]*call.Session, error) {
	resp, err := c.expireStale.CallUnary(ctx, connect.NewRequest(&ExpireStaleRequest{OlderThanSeconds: olderThanSeconds}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return toSessionModels(resp.Msg.Expired), nil
}

// SubscribeNavigation calls fn for each navigation request until the
// stream ends or ctx is done. The first request is the current screen.
func (c *Client) SubscribeNavigation(ctx context.Context, fn func(*navigation.Request)) error {
	stream, err := c.subscribeNavigation.CallServerStream(ctx, connect.NewRequest(&SubscribeNavigationRequest{}))
	if err != nil {
		return fromConnectError(err)
	}
	defer stream.Close()

	for stream.Receive() {
		fn(stream.Msg())
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil {
		return fromConnectError(err)
	}
	return nil
}

func callSession(ctx context.Context, client *connect.Client[SessionRequest, Session], id string) (*call.Session, error) {
	resp, err := client.CallUnary(ctx, connect.NewRequest(&SessionRequest{SessionID: id}))
	if err != nil {
		return nil, fromConnectError(err)
	}
	return resp.Msg.toModel(), nil
}
