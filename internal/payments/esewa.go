package payments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	verifyTimeout = 10 * time.Second
	verifyRetries = 1 // one local retry before escalating to failure
)

// EsewaProvider verifies browser-driven redirect callbacks. The redirect
// parameters are untrusted; a synchronous server-to-server call to the
// provider's transaction-record endpoint is authoritative and only a body
// of "Success" confirms.
type EsewaProvider struct {
	merchantCode string
	verifyURL    string
	client       *http.Client
}

// NewEsewaProvider creates a provider for the given merchant code and
// verification endpoint.
func NewEsewaProvider(merchantCode, verifyURL string) *EsewaProvider {
	return &EsewaProvider{
		merchantCode: merchantCode,
		verifyURL:    verifyURL,
		client:       &http.Client{Timeout: verifyTimeout},
	}
}

// Name returns the provider identifier.
func (p *EsewaProvider) Name() string { return "esewa" }

// Verify checks the callback parameters (oid = our transaction reference,
// amt, refId = provider reference) against the fixed price and the
// provider's verification endpoint.
func (p *EsewaProvider) Verify(ctx context.Context, cb Callback) (*VerifiedPayment, error) {
	oid := cb.Params["oid"]
	amt := cb.Params["amt"]
	refID := cb.Params["refId"]
	if oid == "" || amt == "" || refID == "" {
		return nil, ErrMalformedCallback
	}

	// Redirect layers echo the amount in varying renderings ("30", "30.0",
	// "30.00"); compare numerically.
	amount, err := strconv.ParseFloat(amt, 64)
	if err != nil {
		return nil, fmt.Errorf("%w: unparseable amount %q", ErrMalformedCallback, amt)
	}
	if amount != UnlockPrice {
		return nil, fmt.Errorf("%w: got %s", ErrInvalidAmount, amt)
	}

	form := url.Values{
		"amt": {amt},
		"scd": {p.merchantCode},
		"rid": {refID},
		"pid": {oid},
	}

	var lastErr error
	for attempt := 0; attempt <= verifyRetries; attempt++ {
		body, err := p.post(ctx, form)
		if err != nil {
			lastErr = err
			continue
		}
		if strings.TrimSpace(body) == "Success" {
			return &VerifiedPayment{TransactionRef: oid, ProviderRef: refID, Amount: UnlockPrice}, nil
		}
		// A definitive non-affirmative answer is not retried.
		return nil, ErrVerificationFailed
	}
	return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, lastErr)
}

func (p *EsewaProvider) post(ctx context.Context, form url.Values) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return "", err
	}
	return string(body), nil
}
