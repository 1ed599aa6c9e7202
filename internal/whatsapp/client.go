// Package whatsapp is a thin client for an Evolution-style WhatsApp HTTP
// gateway. It owns the pacing policy: the external channel penalizes bursty
// senders, so every send goes through a rate limiter plus a randomized
// humanized delay.
package whatsapp

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	logx "metasbot/pkg/logx"
)

type Config struct {
	ServerURL string
	APIKey    string
	Instance  string

	// MinDelay/MaxDelay bound the randomized pause after each send.
	// Defaults: 45s..120s.
	MinDelay time.Duration
	MaxDelay time.Duration
}

type Client struct {
	cfg     Config
	http    *http.Client
	limiter *rate.Limiter
	log     logx.Logger
	rng     *rand.Rand
}

func New(cfg Config, log logx.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.ServerURL) == "" {
		return nil, errors.New("whatsapp server url is empty")
	}
	if strings.TrimSpace(cfg.Instance) == "" {
		return nil, errors.New("whatsapp instance is empty")
	}
	if cfg.MinDelay <= 0 {
		cfg.MinDelay = 45 * time.Second
	}
	if cfg.MaxDelay <= cfg.MinDelay {
		cfg.MaxDelay = cfg.MinDelay + 75*time.Second
	}
	cfg.ServerURL = strings.TrimRight(cfg.ServerURL, "/")
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: 30 * time.Second},
		// One send per MinDelay at most, on top of the per-send jitter below.
		limiter: rate.NewLimiter(rate.Every(cfg.MinDelay), 1),
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}, nil
}

// ConnectionState asks the gateway whether the instance session is open.
func (c *Client) ConnectionState(ctx context.Context) (string, error) {
	var out struct {
		Instance struct {
			State string `json:"state"`
		} `json:"instance"`
	}
	err := c.do(ctx, http.MethodGet, "/instance/connectionState/"+c.cfg.Instance, nil, &out)
	if err != nil {
		return "", err
	}
	return out.Instance.State, nil
}

// SendText posts a plain text message to one number.
func (c *Client) SendText(ctx context.Context, number, text string) error {
	payload := map[string]any{
		"number": number,
		"text":   text,
	}
	return c.do(ctx, http.MethodPost, "/message/sendText/"+c.cfg.Instance, payload, nil)
}

// SetPresence shows a presence state (e.g. "composing") to the recipient for
// delayMS milliseconds.
func (c *Client) SetPresence(ctx context.Context, number, presence string, delayMS int) error {
	payload := map[string]any{
		"number":   number,
		"presence": presence,
		"delay":    delayMS,
	}
	return c.do(ctx, http.MethodPost, "/chat/sendPresence/"+c.cfg.Instance, payload, nil)
}

// SendReport delivers one report message with the full anti-throttling
// ritual: wait for a limiter slot, show "composing" briefly, send, then pause
// a randomized interval before the next recipient can be served.
func (c *Client) SendReport(ctx context.Context, number, text string) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}
	if err := c.SetPresence(ctx, number, "composing", 5000); err != nil {
		// Presence is cosmetic; a failure here must not block the report.
		c.log.Debug("presence failed", logx.String("number", number), logx.Err(err))
	}
	if err := sleepCtx(ctx, c.jitter(4*time.Second, 8*time.Second)); err != nil {
		return err
	}
	if err := c.SendText(ctx, number, text); err != nil {
		return err
	}
	return sleepCtx(ctx, c.jitter(c.cfg.MinDelay, c.cfg.MaxDelay))
}

func (c *Client) jitter(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(c.rng.Int63n(int64(max-min)))
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		b, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(b)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.cfg.ServerURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("apikey", c.cfg.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("whatsapp gateway %s: %s: %s", path, resp.Status, strings.TrimSpace(string(b)))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}
