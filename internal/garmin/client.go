// Package garmin is the Garmin Connect upload destination.
package garmin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	garminconnect "github.com/abrander/garmin-connect"
	"github.com/sirupsen/logrus"

	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/upload"
	"github.com/sstent/zwiftsync/internal/utils"
)

const (
	defaultSessionTimeout = 30 * time.Minute
)

// session is what is persisted between runs.
type session struct {
	SessionID       string    `json:"session_id"`
	AuthenticatedAt time.Time `json:"authenticated_at"`
}

// Client implements upload.Client with a Garmin Connect session standing in
// for an access token.
type Client struct {
	api     *garminconnect.Client
	cfg     config.GarminConfig
	session session

	// authenticate logs in and returns the new session id.
	authenticate func() (string, error)
	now          func() time.Time
	log          logrus.FieldLogger
}

// NewClient creates a Garmin Connect client and restores a stored session.
func NewClient(cfg config.GarminConfig, log logrus.FieldLogger) (*Client, error) {
	c := &Client{
		cfg: cfg,
		now: time.Now,
		log: utils.OrDefault(log),
	}
	if err := c.loadSession(); err != nil {
		return nil, err
	}

	c.api = garminconnect.NewClient(garminconnect.Credentials(cfg.Email, cfg.Password))
	c.api.SessionID = c.session.SessionID
	c.authenticate = func() (string, error) {
		if err := c.api.Authenticate(); err != nil {
			return "", err
		}
		return c.api.SessionID, nil
	}
	return c, nil
}

// Name identifies the destination.
func (c *Client) Name() string {
	return config.DestinationGarmin
}

// IsAuthorized reports whether a session was established before.
func (c *Client) IsAuthorized() bool {
	return c.session.SessionID != ""
}

// IsAccessTokenValid reports whether the session is younger than the
// configured session timeout.
func (c *Client) IsAccessTokenValid() bool {
	if !c.IsAuthorized() {
		return false
	}
	timeout := c.cfg.SessionTimeout
	if timeout == 0 {
		timeout = defaultSessionTimeout
	}
	return c.now().Sub(c.session.AuthenticatedAt) < timeout
}

// RequestAuthCode checks that credentials are configured. Garmin Connect has
// no separate authorization step.
func (c *Client) RequestAuthCode(ctx context.Context) error {
	if c.cfg.Email == "" || c.cfg.Password == "" {
		return errors.New("garmin.email and garmin.password are required")
	}
	return nil
}

// RequestAccessToken signs in and persists the new session. A refresh is a
// fresh sign-in.
func (c *Client) RequestAccessToken(ctx context.Context, refresh bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	id, err := c.authenticate()
	if err != nil {
		return fmt.Errorf("authentication failed: %w", err)
	}
	if id == "" {
		return errors.New("authentication returned no session")
	}
	c.session = session{SessionID: id, AuthenticatedAt: c.now()}
	if err := c.saveSession(); err != nil {
		return err
	}
	c.log.WithField("refresh", refresh).Debug("Garmin Connect session established")
	return nil
}

// Upload imports the FIT file at path. Garmin's import has no notes field,
// so notes are only logged.
func (c *Client) Upload(ctx context.Context, path, notes string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	file, err := os.Open(path)
	if err != nil {
		return &upload.Error{Path: path, Err: err}
	}
	defer file.Close()

	id, err := c.api.ImportActivity(file, garminconnect.ActivityFormatFIT)
	if err != nil {
		return &upload.Error{Path: path, Err: fmt.Errorf("failed to import activity: %w", err)}
	}
	c.log.WithFields(logrus.Fields{"activity_id": id, "notes": notes}).Debug("Garmin Connect imported activity")
	return nil
}

func (c *Client) loadSession() error {
	data, err := os.ReadFile(c.cfg.SessionPath)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session file: %w", err)
	}
	if err := json.Unmarshal(data, &c.session); err != nil {
		return fmt.Errorf("failed to decode session file %s: %w", c.cfg.SessionPath, err)
	}
	return nil
}

func (c *Client) saveSession() error {
	data, err := json.MarshalIndent(c.session, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := utils.WriteFileAtomic(c.cfg.SessionPath, data, 0o600); err != nil {
		return fmt.Errorf("failed to save session: %w", err)
	}
	return nil
}
