package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/punchamoorthee/inapppay/internal/billing"
	"github.com/punchamoorthee/inapppay/internal/domain"
	"github.com/punchamoorthee/inapppay/internal/signer"
)

// NoticeValidity is how long a signed notice stays valid after it is sent.
const NoticeValidity = time.Hour

type Dispatcher struct {
	cfg       Config
	billing   billing.Client
	notices   NoticeStore
	escalator Escalator
	http      *resty.Client
	logger    *slog.Logger
	nowFn     func() time.Time
}

type DispatcherDeps struct {
	Config    Config
	Billing   billing.Client
	Notices   NoticeStore
	Escalator Escalator
	// HTTPClient is optional. It is copied, so its own Timeout and
	// CheckRedirect are left untouched; Config.NotifyTimeout applies.
	HTTPClient *http.Client
	Logger     *slog.Logger
}

func NewDispatcher(deps DispatcherDeps) *Dispatcher {
	cfg := deps.Config.withDefaults()
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	rc := resty.New()
	if deps.HTTPClient != nil {
		// resty sets the timeout and redirect policy on the client it wraps.
		hc := *deps.HTTPClient
		rc = resty.NewWithClient(&hc)
	}
	rc.SetTimeout(cfg.NotifyTimeout).
		SetHeader("Content-Type", "application/json").
		SetRedirectPolicy(resty.NoRedirectPolicy())
	return &Dispatcher{
		cfg:       cfg,
		billing:   deps.Billing,
		notices:   deps.Notices,
		escalator: deps.Escalator,
		http:      rc,
		logger:    logger.With("module", "service.dispatcher", "layer", "application"),
		nowFn:     func() time.Time { return time.Now().UTC() },
	}
}

// notice is everything needed to sign and send one notification.
type notice struct {
	transactionUUID string
	issuerKey       string
	request         domain.PayRequest
	typ             domain.NoticeType
	reason          string
	simulated       domain.Simulated
}

func (n notice) kind() string {
	if n.typ == domain.NoticeChargeback {
		return "chargeback"
	}
	return "postback"
}

// PaymentNotify tells the issuer about a finished transaction. Refund
// transactions are reported as a chargeback with reason "refund".
func (d *Dispatcher) PaymentNotify(ctx context.Context, attempt Attempt, args NotifyArgs) (domain.Outcome, error) {
	trans, err := d.billing.GetTransaction(ctx, args.TransactionUUID)
	if err != nil {
		return domain.Outcome{}, err
	}
	n := notice{
		transactionUUID: trans.UUID,
		issuerKey:       trans.Notes.IssuerKey,
		request:         trans.Notes.PayRequest,
		typ:             domain.NoticePostback,
		simulated:       domain.SimulatedNone,
	}
	if trans.Type == domain.TypeRefund {
		n.typ = domain.NoticeChargeback
		n.reason = domain.ReasonRefund
	}
	return d.deliver(ctx, attempt, n)
}

// ChargebackNotify reports a refund or reversal. An empty reason is derived
// from the transaction type.
func (d *Dispatcher) ChargebackNotify(ctx context.Context, attempt Attempt, args NotifyArgs) (domain.Outcome, error) {
	trans, err := d.billing.GetTransaction(ctx, args.TransactionUUID)
	if err != nil {
		return domain.Outcome{}, err
	}
	reason := args.Reason
	if reason == "" && trans.Type == domain.TypeRefund {
		reason = domain.ReasonRefund
	}
	if reason != domain.ReasonRefund && reason != domain.ReasonReversal {
		return domain.Outcome{}, fmt.Errorf("chargeback %s: %w: %q", trans.UUID, domain.ErrInvalidReason, reason)
	}
	return d.deliver(ctx, attempt, notice{
		transactionUUID: trans.UUID,
		issuerKey:       trans.Notes.IssuerKey,
		request:         trans.Notes.PayRequest,
		typ:             domain.NoticeChargeback,
		reason:          reason,
		simulated:       domain.SimulatedNone,
	})
}

// SimulateNotify sends a test notice built from the caller's payload. It is
// retried like a real notice but never escalated.
func (d *Dispatcher) SimulateNotify(ctx context.Context, attempt Attempt, args SimulateArgs) (domain.Outcome, error) {
	n := notice{
		transactionUUID: args.TransactionUUID,
		issuerKey:       args.IssuerKey,
		request:         args.PayRequest,
	}
	if n.transactionUUID == "" {
		n.transactionUUID = "simulated-" + attempt.SequenceID
	}
	switch args.Simulation.Result {
	case string(domain.SimulatedPostback):
		n.typ = domain.NoticePostback
		n.simulated = domain.SimulatedPostback
	case string(domain.SimulatedChargeback):
		n.typ = domain.NoticeChargeback
		n.simulated = domain.SimulatedChargeback
		n.reason = args.Simulation.Reason
		if n.reason == "" {
			n.reason = domain.ReasonRefund
		}
	default:
		return domain.Outcome{}, fmt.Errorf("%w: result %q", domain.ErrInvalidSimulation, args.Simulation.Result)
	}
	return d.deliver(ctx, attempt, n)
}

func (d *Dispatcher) deliver(ctx context.Context, attempt Attempt, n notice) (domain.Outcome, error) {
	if n.issuerKey == "" {
		return domain.Outcome{}, fmt.Errorf("notify %s: %w", n.transactionUUID, domain.ErrMissingIssuerKey)
	}
	secret, err := d.billing.GetProductSecret(ctx, n.issuerKey)
	if err != nil {
		return domain.Outcome{}, err
	}
	key, err := signer.ParseKey(secret)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("notify %s: issuer %s: %w", n.transactionUUID, n.issuerKey, err)
	}
	dest, err := d.destination(n)
	if err != nil {
		return domain.Outcome{}, err
	}
	token, err := signer.Sign(d.claims(n), key)
	if err != nil {
		return domain.Outcome{}, fmt.Errorf("notify %s: %w", n.transactionUUID, err)
	}

	success, lastError, retry := d.send(ctx, n, dest, token)

	record := domain.Notice{
		ID:              attempt.SequenceID,
		TransactionUUID: n.transactionUUID,
		URL:             dest,
		Success:         success,
		LastError:       lastError,
		Simulated:       n.simulated,
		Attempts:        attempt.Number + 1,
	}
	if err := d.notices.SaveNotice(ctx, record); err != nil {
		return domain.Outcome{}, fmt.Errorf("notify %s: %w", n.transactionUUID, err)
	}

	switch {
	case success:
		noticeTotal.WithLabelValues(n.kind(), "success").Inc()
		d.logger.InfoContext(ctx, "notice delivered",
			"operation", "notify",
			"outcome", "success",
			"transaction_uuid", n.transactionUUID,
			"url", dest,
			"simulated", string(n.simulated),
		)
		return domain.Success(), nil
	case !retry:
		noticeTotal.WithLabelValues(n.kind(), "unconfirmed").Inc()
		d.logger.WarnContext(ctx, "issuer did not confirm notice",
			"operation", "notify",
			"outcome", "unconfirmed",
			"transaction_uuid", n.transactionUUID,
			"url", dest,
			"simulated", string(n.simulated),
		)
		return domain.Terminal("issuer response did not echo transaction id"), nil
	}

	noticeTotal.WithLabelValues(n.kind(), "failure").Inc()
	d.logger.WarnContext(ctx, "notice delivery failed",
		"operation", "notify",
		"outcome", "failure",
		"transaction_uuid", n.transactionUUID,
		"url", dest,
		"attempt", attempt.Number,
		"simulated", string(n.simulated),
		"error", lastError,
	)
	if n.simulated == domain.SimulatedNone && d.escalator != nil {
		if err := d.escalator.NotifyFailure(ctx, n.transactionUUID, lastError); err != nil {
			d.logger.ErrorContext(ctx, "failure escalation failed",
				"operation", "notify_failure",
				"outcome", "failure",
				"transaction_uuid", n.transactionUUID,
				"error", err,
			)
		}
	}
	if attempt.Number >= d.cfg.MaxRetries {
		return domain.Terminal("retries exhausted: " + lastError), nil
	}
	return domain.Retryable(lastError), nil
}

// destination picks the callback URL the issuer embedded in its request.
func (d *Dispatcher) destination(n notice) (string, error) {
	raw := n.request.Request.PostbackURL
	if n.typ == domain.NoticeChargeback {
		raw = n.request.Request.ChargebackURL
	}
	if strings.TrimSpace(raw) == "" {
		return "", fmt.Errorf("notify %s: %w", n.transactionUUID, domain.ErrMissingCallbackURL)
	}
	u, err := url.Parse(strings.TrimSpace(raw))
	if err != nil || u.Host == "" {
		return "", fmt.Errorf("notify %s: %w: %q", n.transactionUUID, domain.ErrMissingCallbackURL, raw)
	}
	if d.cfg.RequireHTTPS && u.Scheme == "http" {
		u.Scheme = "https"
	}
	return u.String(), nil
}

func (d *Dispatcher) claims(n notice) map[string]any {
	now := d.nowFn()
	response := map[string]any{"transactionID": n.transactionUUID}
	if n.reason != "" {
		response["reason"] = n.reason
	}
	return map[string]any{
		"iss":      d.cfg.NotifyIssuer,
		"aud":      n.issuerKey,
		"typ":      string(n.typ),
		"iat":      now.Unix(),
		"exp":      now.Add(NoticeValidity).Unix(),
		"request":  n.request.Request,
		"response": response,
	}
}

// send posts the notice and classifies the result. retry is true only for
// transport failures and non-2xx responses.
func (d *Dispatcher) send(ctx context.Context, n notice, dest, token string) (success bool, lastError string, retry bool) {
	timer := time.Now()
	resp, err := d.http.R().
		SetContext(ctx).
		SetBody(map[string]string{"notice": token}).
		Post(dest)
	noticeLatency.WithLabelValues(n.kind()).Observe(time.Since(timer).Seconds())

	if err != nil {
		return false, classifyTransportError(err), true
	}
	if resp.StatusCode() < 200 || resp.StatusCode() >= 300 {
		return false, fmt.Sprintf("HTTPError: HTTP Error %d: %s", resp.StatusCode(), http.StatusText(resp.StatusCode())), true
	}
	if string(resp.Body()) != n.transactionUUID {
		return false, "", false
	}
	return true, "", false
}

func classifyTransportError(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "Timeout: " + err.Error()
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return "ConnectionError: " + err.Error()
	}
	return "RequestError: " + err.Error()
}
