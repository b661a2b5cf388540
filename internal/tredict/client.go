// Package tredict is the Tredict upload destination: OAuth2 authorization
// code flow with a persisted token, and activity file uploads.
package tredict

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"
	"github.com/sirupsen/logrus"
	"golang.org/x/oauth2"

	"github.com/sstent/zwiftsync/internal/config"
	"github.com/sstent/zwiftsync/internal/utils"
)

// Client implements upload.Client against the Tredict API.
type Client struct {
	oauth     *oauth2.Config
	tokenPath string
	uploadURL string
	http      *retryablehttp.Client

	token *oauth2.Token
	code  string

	// In and Out carry the interactive authorization prompt.
	In  io.Reader
	Out io.Writer

	log logrus.FieldLogger
}

// NewClient creates a client from cfg and loads a previously stored token.
func NewClient(cfg config.TredictConfig, log logrus.FieldLogger) (*Client, error) {
	if cfg.ClientID == "" || cfg.ClientSecret == "" {
		return nil, errors.New("tredict.client_id and tredict.client_secret are required")
	}
	log = utils.OrDefault(log)

	httpClient := retryablehttp.NewClient()
	httpClient.RetryMax = cfg.RetryMax
	httpClient.RetryWaitMin = 1 * time.Second
	httpClient.RetryWaitMax = 10 * time.Second
	httpClient.Logger = leveledLogger{log}
	httpClient.CheckRetry = retryConnectionErrors
	// Hand the last response back instead of a bare "giving up" error, so
	// the API's error message reaches the upload history.
	httpClient.ErrorHandler = retryablehttp.PassthroughErrorHandler

	c := &Client{
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURL,
			Endpoint: oauth2.Endpoint{
				AuthURL:  cfg.AuthURL,
				TokenURL: cfg.TokenURL,
			},
		},
		tokenPath: cfg.TokenPath,
		uploadURL: cfg.UploadURL,
		http:      httpClient,
		In:        os.Stdin,
		Out:       os.Stdout,
		log:       log,
	}

	token, err := loadToken(cfg.TokenPath)
	if err != nil {
		return nil, err
	}
	c.token = token
	return c, nil
}

// Name identifies the destination.
func (c *Client) Name() string {
	return config.DestinationTredict
}

// IsAuthorized reports whether the user has granted access before, i.e. a
// refresh token is stored.
func (c *Client) IsAuthorized() bool {
	return c.token != nil && c.token.RefreshToken != ""
}

// IsAccessTokenValid reports whether the stored access token can be used now.
func (c *Client) IsAccessTokenValid() bool {
	return c.token.Valid()
}

// RequestAuthCode asks the user to open the authorization URL and paste back
// the code Tredict shows after granting access.
func (c *Client) RequestAuthCode(ctx context.Context) error {
	url := c.oauth.AuthCodeURL(uuid.NewString(), oauth2.AccessTypeOffline)
	fmt.Fprintf(c.Out, "Open the following URL in your browser and authorize zwiftsync:\n\n%s\n\nAuthorization code: ", url)

	code, err := bufio.NewReader(c.In).ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && code != "") {
		return fmt.Errorf("failed to read authorization code: %w", err)
	}
	code = strings.TrimSpace(code)
	if code == "" {
		return errors.New("no authorization code entered")
	}
	c.code = code
	return nil
}

// RequestAccessToken exchanges the authorization code for a token, or, when
// refresh is set, renews the access token with the stored refresh token. The
// new token is persisted.
func (c *Client) RequestAccessToken(ctx context.Context, refresh bool) error {
	var (
		token *oauth2.Token
		err   error
	)
	if refresh {
		if c.token == nil || c.token.RefreshToken == "" {
			return errors.New("no refresh token stored")
		}
		expired := &oauth2.Token{RefreshToken: c.token.RefreshToken, Expiry: time.Unix(1, 0)}
		token, err = c.oauth.TokenSource(ctx, expired).Token()
		if err != nil {
			return fmt.Errorf("failed to refresh access token: %w", err)
		}
		if token.RefreshToken == "" {
			token.RefreshToken = c.token.RefreshToken
		}
	} else {
		if c.code == "" {
			return errors.New("no authorization code requested")
		}
		token, err = c.oauth.Exchange(ctx, c.code)
		if err != nil {
			return fmt.Errorf("failed to exchange authorization code: %w", err)
		}
		c.code = ""
	}

	if err := saveToken(c.tokenPath, token); err != nil {
		return err
	}
	c.token = token
	c.log.WithField("expiry", token.Expiry).Debug("Stored new Tredict access token")
	return nil
}

func loadToken(path string) (*oauth2.Token, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read token file: %w", err)
	}
	var token oauth2.Token
	if err := json.Unmarshal(data, &token); err != nil {
		return nil, fmt.Errorf("failed to decode token file %s: %w", path, err)
	}
	return &token, nil
}

func saveToken(path string, token *oauth2.Token) error {
	data, err := json.MarshalIndent(token, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode token: %w", err)
	}
	if err := utils.WriteFileAtomic(path, data, 0o600); err != nil {
		return fmt.Errorf("failed to save token: %w", err)
	}
	return nil
}

// retryConnectionErrors retries only requests that got no response. A 5xx may
// arrive after the server stored the activity, so resending the upload could
// duplicate it.
func retryConnectionErrors(ctx context.Context, resp *http.Response, err error) (bool, error) {
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	if err == nil {
		return false, nil
	}
	return retryablehttp.DefaultRetryPolicy(ctx, resp, err)
}

// leveledLogger routes retryablehttp's logging through logrus.
type leveledLogger struct {
	log logrus.FieldLogger
}

func (l leveledLogger) fields(kv []interface{}) logrus.FieldLogger {
	entry := l.log
	for i := 0; i+1 < len(kv); i += 2 {
		entry = entry.WithField(fmt.Sprint(kv[i]), kv[i+1])
	}
	return entry
}

func (l leveledLogger) Error(msg string, kv ...interface{}) { l.fields(kv).Error(msg) }
func (l leveledLogger) Info(msg string, kv ...interface{})  { l.fields(kv).Debug(msg) }
func (l leveledLogger) Debug(msg string, kv ...interface{}) { l.fields(kv).Debug(msg) }
func (l leveledLogger) Warn(msg string, kv ...interface{})  { l.fields(kv).Warn(msg) }
