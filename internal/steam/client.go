// Package steam drives a steamcommunity.com web session: credential login,
// cookie restore and profile comments.
package steam

import (
	"context"
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"math/big"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/rep4rep/steam-commenter/internal/config"
	apperrors "github.com/rep4rep/steam-commenter/internal/errors"
	"github.com/rep4rep/steam-commenter/internal/model"
)

const (
	DefaultBaseURL = "https://steamcommunity.com"
	serviceName    = "steam"

	sessionCookie = "sessionid"
	loginCookie   = "steamLoginSecure"
)

// Client is one account's web session. It is not safe for concurrent use;
// each account gets its own Client.
type Client struct {
	baseURL *url.URL
	client  *http.Client
	steamID string
}

type Option func(*Client)

func WithBaseURL(raw string) Option {
	return func(c *Client) {
		if u, err := url.Parse(strings.TrimRight(raw, "/")); err == nil {
			c.baseURL = u
		}
	}
}

func NewClient(opts ...Option) *Client {
	jar, _ := cookiejar.New(nil)
	base, _ := url.Parse(DefaultBaseURL)
	c := &Client{
		baseURL: base,
		client: &http.Client{
			Jar:     jar,
			Timeout: config.SteamRequestTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Login submits credentials, or reuses input.CachedSession when it is still
// authenticated. Interrupts and throttling come back as a SessionState with a
// nil error; any other failure is an error.
func (c *Client) Login(ctx context.Context, input model.LoginInput) (*model.SessionState, error) {
	if input.CachedSession != "" {
		if err := c.restoreCookies(input.CachedSession); err != nil {
			log.Warn().Err(err).Str("account", input.Username).Msg("ignoring unreadable cached session")
		} else if ok, err := c.IsLoggedIn(ctx); err == nil && ok {
			if id := c.steamIDFromCookies(); id != "" {
				c.steamID = id
				log.Debug().Str("account", input.Username).Msg("cached session still valid")
				return c.loggedInState()
			}
		}
	}

	key, err := c.fetchRSAKey(ctx, input.Username)
	if err != nil {
		return nil, err
	}
	encrypted, err := key.encrypt(input.Password)
	if err != nil {
		return nil, err
	}

	captchaGID := input.CaptchaGID
	if captchaGID == "" {
		captchaGID = "-1"
	}
	form := url.Values{
		"username":          {input.Username},
		"password":          {encrypted},
		"twofactorcode":     {input.TwoFactorCode},
		"emailauth":         {input.EmailCode},
		"loginfriendlyname": {""},
		"captchagid":        {captchaGID},
		"captcha_text":      {input.CaptchaText},
		"emailsteamid":      {""},
		"rsatimestamp":      {key.Timestamp},
		"remember_login":    {"true"},
		"donotcache":        {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}

	var resp loginResponse
	if err := c.postForm(ctx, "/login/dologin/", form, &resp); err != nil {
		return nil, err
	}
	return c.interpretLogin(&resp)
}

// IsLoggedIn asks the community site whether the current cookies are
// authenticated.
func (c *Client) IsLoggedIn(ctx context.Context) (bool, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint("/my/"), nil)
	if err != nil {
		return false, fmt.Errorf("create request: %w", err)
	}

	noRedirect := *c.client
	noRedirect.CheckRedirect = func(*http.Request, []*http.Request) error {
		return http.ErrUseLastResponse
	}
	resp, err := noRedirect.Do(req)
	if err != nil {
		return false, apperrors.External(serviceName, err)
	}
	defer resp.Body.Close()
	io.Copy(io.Discard, resp.Body)

	if resp.StatusCode == http.StatusBadGateway {
		return false, apperrors.TransientNetwork(fmt.Errorf("status %d", resp.StatusCode))
	}
	if resp.StatusCode < 300 || resp.StatusCode >= 400 {
		return false, nil
	}
	location := resp.Header.Get("Location")
	return !strings.Contains(location, "/login"), nil
}

// SteamID is the identity the session resolved to, empty before login.
func (c *Client) SteamID() string {
	return c.steamID
}

// PostComment writes text on the target profile's comment section.
func (c *Client) PostComment(ctx context.Context, targetSteamID, text string) error {
	sessionID := c.ensureSessionID()
	form := url.Values{
		"comment":   {text},
		"count":     {"6"},
		"sessionid": {sessionID},
	}

	var resp commentResponse
	if err := c.postForm(ctx, "/comment/Profile/post/"+url.PathEscape(targetSteamID)+"/-1/", form, &resp); err != nil {
		return err
	}
	if resp.Success {
		return nil
	}

	cause := fmt.Errorf("%s", resp.Error)
	if isCommentLimitMessage(resp.Error) {
		return apperrors.CommentLimitReached(cause)
	}
	return apperrors.External(serviceName, cause)
}

func isCommentLimitMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "limit reached") || strings.Contains(msg, "posting too frequently")
}

// ExportCookies serializes the session cookies as a JSON array of
// "name=value" strings.
func (c *Client) ExportCookies() (string, error) {
	cookies := c.client.Jar.Cookies(c.baseURL)
	pairs := make([]string, 0, len(cookies))
	for _, ck := range cookies {
		pairs = append(pairs, ck.Name+"="+ck.Value)
	}
	data, err := json.Marshal(pairs)
	if err != nil {
		return "", fmt.Errorf("marshal cookies: %w", err)
	}
	return string(data), nil
}

func (c *Client) restoreCookies(raw string) error {
	var pairs []string
	if err := json.Unmarshal([]byte(raw), &pairs); err != nil {
		return fmt.Errorf("parse cookies: %w", err)
	}

	cookies := make([]*http.Cookie, 0, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		if !ok || name == "" {
			continue
		}
		cookies = append(cookies, &http.Cookie{Name: name, Value: value, Path: "/"})
	}
	c.client.Jar.SetCookies(c.baseURL, cookies)
	return nil
}

func (c *Client) cookie(name string) string {
	for _, ck := range c.client.Jar.Cookies(c.baseURL) {
		if ck.Name == name {
			return ck.Value
		}
	}
	return ""
}

// steamIDFromCookies reads the id prefix of steamLoginSecure ("<id>||<token>").
func (c *Client) steamIDFromCookies() string {
	v := c.cookie(loginCookie)
	if v == "" {
		return ""
	}
	if unescaped, err := url.QueryUnescape(v); err == nil {
		v = unescaped
	}
	id, _, _ := strings.Cut(v, "||")
	if _, err := strconv.ParseUint(id, 10, 64); err != nil {
		return ""
	}
	return id
}

func (c *Client) ensureSessionID() string {
	if id := c.cookie(sessionCookie); id != "" {
		return id
	}
	buf := make([]byte, 12)
	_, _ = rand.Read(buf)
	id := hex.EncodeToString(buf)
	c.client.Jar.SetCookies(c.baseURL, []*http.Cookie{{Name: sessionCookie, Value: id, Path: "/"}})
	return id
}

func (c *Client) loggedInState() (*model.SessionState, error) {
	c.ensureSessionID()
	cookies, err := c.ExportCookies()
	if err != nil {
		return nil, err
	}
	return &model.SessionState{
		Status:  model.SessionLoggedIn,
		SteamID: c.steamID,
		Cookies: cookies,
	}, nil
}

type loginResponse struct {
	Success            bool         `json:"success"`
	Message            string       `json:"message"`
	RequiresTwoFactor  bool         `json:"requires_twofactor"`
	EmailAuthNeeded    bool         `json:"emailauth_needed"`
	EmailDomain        string       `json:"emaildomain"`
	CaptchaNeeded      bool         `json:"captcha_needed"`
	CaptchaGID         model.FlexID `json:"captcha_gid"`
	LoginComplete      bool         `json:"login_complete"`
	TransferParameters *struct {
		SteamID string `json:"steamid"`
	} `json:"transfer_parameters"`
}

func (c *Client) interpretLogin(resp *loginResponse) (*model.SessionState, error) {
	switch {
	case resp.Success && resp.LoginComplete:
		if resp.TransferParameters != nil && resp.TransferParameters.SteamID != "" {
			c.steamID = resp.TransferParameters.SteamID
		} else {
			c.steamID = c.steamIDFromCookies()
		}
		if c.steamID == "" {
			return nil, apperrors.External(serviceName, fmt.Errorf("login succeeded without a steam id"))
		}
		return c.loggedInState()

	case resp.RequiresTwoFactor:
		return &model.SessionState{Status: model.SessionNeedsMobileCode}, nil

	case resp.EmailAuthNeeded:
		return &model.SessionState{
			Status:      model.SessionNeedsEmailCode,
			EmailDomain: resp.EmailDomain,
		}, nil

	case resp.CaptchaNeeded:
		gid := resp.CaptchaGID.String()
		return &model.SessionState{
			Status:     model.SessionNeedsCaptcha,
			CaptchaGID: gid,
			CaptchaURL: c.endpoint("/login/rendercaptcha/?gid=" + url.QueryEscape(gid)),
		}, nil

	case isThrottleMessage(resp.Message):
		return &model.SessionState{Status: model.SessionThrottled}, nil
	}

	msg := resp.Message
	if msg == "" {
		msg = "login rejected"
	}
	return nil, apperrors.External(serviceName, fmt.Errorf("%s", msg))
}

func isThrottleMessage(msg string) bool {
	msg = strings.ToLower(msg)
	return strings.Contains(msg, "too many login failures") || strings.Contains(msg, "too many login attempts")
}

type rsaKey struct {
	Success  bool   `json:"success"`
	Modulus  string `json:"publickey_mod"`
	Exponent string `json:"publickey_exp"`
	// Timestamp is echoed back on dologin.
	Timestamp string `json:"timestamp"`
}

func (c *Client) fetchRSAKey(ctx context.Context, username string) (*rsaKey, error) {
	var key rsaKey
	form := url.Values{
		"username":   {username},
		"donotcache": {strconv.FormatInt(time.Now().UnixMilli(), 10)},
	}
	if err := c.postForm(ctx, "/login/getrsakey/", form, &key); err != nil {
		return nil, err
	}
	if !key.Success || key.Modulus == "" {
		return nil, apperrors.External(serviceName, fmt.Errorf("no rsa key for %s", username))
	}
	return &key, nil
}

func (k *rsaKey) encrypt(password string) (string, error) {
	mod, ok := new(big.Int).SetString(k.Modulus, 16)
	if !ok {
		return "", apperrors.External(serviceName, fmt.Errorf("invalid rsa modulus"))
	}
	exp, err := strconv.ParseInt(k.Exponent, 16, 64)
	if err != nil {
		return "", apperrors.External(serviceName, fmt.Errorf("invalid rsa exponent: %w", err))
	}

	pub := &rsa.PublicKey{N: mod, E: int(exp)}
	out, err := rsa.EncryptPKCS1v15(rand.Reader, pub, []byte(password))
	if err != nil {
		return "", fmt.Errorf("encrypt password: %w", err)
	}
	return base64.StdEncoding.EncodeToString(out), nil
}

type commentResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
}

// postForm sends a form and decodes the JSON answer into out. Raw transport
// failures are classified here and nowhere else.
func (c *Client) postForm(ctx context.Context, path string, form url.Values, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint(path), strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded; charset=UTF-8")
	req.Header.Set("X-Requested-With", "XMLHttpRequest")

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return apperrors.External(serviceName, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return apperrors.External(serviceName, fmt.Errorf("read body: %w", err))
	}

	log.Debug().
		Str("path", path).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("steam response")

	if err := classifyStatus(resp.StatusCode, body); err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return apperrors.MalformedResponse(string(body)).WithCause(err)
	}
	return nil
}

func classifyStatus(status int, body []byte) error {
	cause := fmt.Errorf("status %d", status)
	switch {
	case status == http.StatusBadGateway:
		return apperrors.TransientNetwork(cause)
	case status == http.StatusTooManyRequests, strings.Contains(string(body), "RateLimitExceeded"):
		return apperrors.RateLimitExceeded(cause)
	case status < 200 || status >= 300:
		return apperrors.External(serviceName, cause)
	}
	return nil
}

func (c *Client) endpoint(path string) string {
	return c.baseURL.String() + path
}
