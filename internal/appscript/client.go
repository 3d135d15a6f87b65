// Package appscript talks to the Google Apps Script web app that fronts the
// appointments spreadsheet. One endpoint serves every action; the action name
// and the shared secret travel in the JSON body.
package appscript

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"nobat/internal/models"
)

const (
	actionIsNewUpdate       = "is_new_update"
	actionGetState          = "get_state"
	actionSetState          = "set_state"
	actionAppendAppointment = "append_appointment"

	maxResponseBytes = 1 << 20
)

var ErrNotAcknowledged = errors.New("apps script did not acknowledge the request")

// Client is a session store, update deduper and ledger backed by Apps Script.
type Client struct {
	endpoint   string
	secret     string
	httpClient *http.Client
}

type request struct {
	Action         string              `json:"action"`
	Secret         string              `json:"secret,omitempty"`
	UpdateID       int                 `json:"update_id,omitempty"`
	ConversationID int64               `json:"conversation_id,omitempty"`
	State          *models.Session     `json:"state,omitempty"`
	Appointment    *models.Appointment `json:"appointment,omitempty"`
}

type response struct {
	OK    bool            `json:"ok"`
	IsNew *bool           `json:"isNew,omitempty"`
	State json.RawMessage `json:"state,omitempty"`
	Row   json.RawMessage `json:"row,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NewClient constructs a client with the web app URL, the shared secret and a per-call timeout.
func NewClient(endpoint, secret string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = models.DefaultRemoteTimeout * time.Second
	}
	return &Client{
		endpoint:   endpoint,
		secret:     secret,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// IsNewUpdate asks the script whether the update id is seen for the first time.
// A response without isNew counts as new.
func (c *Client) IsNewUpdate(ctx context.Context, updateID int) (bool, error) {
	resp, err := c.call(ctx, request{Action: actionIsNewUpdate, UpdateID: updateID})
	if err != nil {
		return false, err
	}
	if resp.IsNew == nil {
		return true, nil
	}
	return *resp.IsNew, nil
}

func (c *Client) GetSession(ctx context.Context, conversationID int64) (*models.Session, error) {
	resp, err := c.call(ctx, request{Action: actionGetState, ConversationID: conversationID})
	if err != nil {
		return nil, err
	}
	raw := bytes.TrimSpace(resp.State)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) || bytes.Equal(raw, []byte("{}")) {
		return nil, nil
	}

	var session models.Session
	if err := json.Unmarshal(raw, &session); err != nil {
		return nil, fmt.Errorf("decode state: %w", err)
	}
	if session.Step == "" {
		return nil, nil
	}
	if session.ConversationID == 0 {
		session.ConversationID = conversationID
	}
	if session.Answers == nil {
		session.Answers = make(map[string]string)
	}
	return &session, nil
}

func (c *Client) SaveSession(ctx context.Context, session *models.Session) error {
	_, err := c.call(ctx, request{
		Action:         actionSetState,
		ConversationID: session.ConversationID,
		State:          session,
	})
	return err
}

// CheckRateLimit always allows: the web app keeps no counters. Pick the redis or dynamodb
// dedupe backend to limit message rates.
func (c *Client) CheckRateLimit(context.Context, int64, int, time.Duration) (bool, error) {
	return true, nil
}

// AppendAppointment adds a ledger row and returns its row reference.
func (c *Client) AppendAppointment(ctx context.Context, appointment *models.Appointment) (string, error) {
	resp, err := c.call(ctx, request{Action: actionAppendAppointment, Appointment: appointment})
	if err != nil {
		return "", err
	}
	return rowReference(resp.Row), nil
}

// rowReference accepts the row as a JSON number or string.
func rowReference(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return n.String()
	}
	return ""
}

func (c *Client) call(ctx context.Context, body request) (*response, error) {
	body.Secret = c.secret
	var resp response
	if err := c.doPost(ctx, body, &resp); err != nil {
		return nil, fmt.Errorf("apps script %s: %w", body.Action, err)
	}
	if !resp.OK {
		if resp.Error != "" {
			return nil, fmt.Errorf("apps script %s: %w: %s", body.Action, ErrNotAcknowledged, resp.Error)
		}
		return nil, fmt.Errorf("apps script %s: %w", body.Action, ErrNotAcknowledged)
	}
	return &resp, nil
}

func (c *Client) doPost(ctx context.Context, body, out any) error {
	data, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(data))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	return c.do(req, out)
}

func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		return fmt.Errorf("http %d", resp.StatusCode)
	}
	return json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out)
}
