// Package heartbeat registers HeartbeatJob, which reports liveness of the
// scheduler by POSTing a JSON ping to a monitoring endpoint.
//
// Properties:
//
//	heartbeat.enabled      schedule the job (default false)
//	heartbeat.interval     fixed delay between pings (default PT1M)
//	heartbeat.url          endpoint receiving the ping (required when enabled)
//	heartbeat.secret       HMAC-SHA256 key; signs the body in X-Signature-256
//	heartbeat.timeout      request timeout (default 10s)
//	heartbeat.quiet_hours  HH:MM-HH:MM window without scheduled pings
//	heartbeat.timezone     zone of the quiet window (default UTC)
package heartbeat

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"time"

	"github.com/flemzord/cronsync/internal/job"
)

// SignatureHeader carries "sha256=<hex hmac>" of the request body.
const SignatureHeader = "X-Signature-256"

func init() {
	job.Register(job.Definition{
		Type: "HeartbeatJob",
		Schedule: job.Descriptor{
			FixedDelay: "${heartbeat.interval:PT1M}",
			Enabled:    "${heartbeat.enabled:false}",
		},
		New: func() job.Job { return &Job{} },
	})
}

// Compile-time interface guards.
var (
	_ job.Job         = (*Job)(nil)
	_ job.Provisioner = (*Job)(nil)
)

// Ping is the JSON body sent on every fire.
type Ping struct {
	Job               string    `json:"job"`
	Host              string    `json:"host"`
	FireTime          time.Time `json:"fire_time"`
	ScheduledFireTime time.Time `json:"scheduled_fire_time,omitzero"`
	Manual            bool      `json:"manual,omitempty"`
}

// Job posts a Ping to the configured URL.
type Job struct {
	url    string
	secret string
	quiet  *QuietHours
	loc    *time.Location
	host   string
	client *http.Client
	logger *slog.Logger
	now    func() time.Time
}

// Provision implements job.Provisioner.
func (j *Job) Provision(env job.Env) error {
	j.logger = env.Logger().With("job", "heartbeat")
	j.url = env.Resolve("${heartbeat.url:}")
	j.secret = env.Resolve("${heartbeat.secret:}")
	j.now = time.Now

	if j.url == "" {
		return errors.New("heartbeat: heartbeat.url is required")
	}
	u, err := url.Parse(j.url)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("heartbeat: invalid heartbeat.url %q", j.url)
	}

	rawTimeout := env.Resolve("${heartbeat.timeout:10s}")
	timeout, err := time.ParseDuration(rawTimeout)
	if err != nil || timeout <= 0 {
		return fmt.Errorf("heartbeat: invalid heartbeat.timeout %q", rawTimeout)
	}
	j.client = &http.Client{Timeout: timeout}

	if raw := env.Resolve("${heartbeat.quiet_hours:}"); raw != "" {
		q, err := ParseQuietHours(raw)
		if err != nil {
			return err
		}
		j.quiet = &q
	}
	j.loc, err = time.LoadLocation(env.Resolve("${heartbeat.timezone:UTC}"))
	if err != nil {
		return fmt.Errorf("heartbeat: heartbeat.timezone: %w", err)
	}

	j.host, _ = os.Hostname()
	return nil
}

// Run implements job.Job. Scheduled fires inside the quiet window are
// skipped; manual runs always ping.
func (j *Job) Run(ctx context.Context, jc *job.Context) error {
	if j.quiet != nil && !jc.Manual && j.quiet.IsQuiet(j.now().In(j.loc)) {
		j.logger.Debug("heartbeat: quiet hours, skipping ping")
		return nil
	}

	body, err := json.Marshal(Ping{
		Job:               jc.Identity.String(),
		Host:              j.host,
		FireTime:          jc.FireTime,
		ScheduledFireTime: jc.ScheduledFireTime,
		Manual:            jc.Manual,
	})
	if err != nil {
		return fmt.Errorf("heartbeat: encode ping: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, j.url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("heartbeat: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", "cronsync-heartbeat")
	if j.secret != "" {
		req.Header.Set(SignatureHeader, Sign(j.secret, body))
	}

	resp, err := j.client.Do(req)
	if err != nil {
		return fmt.Errorf("heartbeat: post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("heartbeat: %s responded %s", req.URL.Host, resp.Status)
	}
	j.logger.Debug("heartbeat: ping delivered", "status", resp.StatusCode)
	return nil
}

// Sign returns the X-Signature-256 value of body under secret.
func Sign(secret string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write(body)
	return "sha256=" + hex.EncodeToString(mac.Sum(nil))
}
