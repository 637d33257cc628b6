package payments

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
)

// KhaltiProvider verifies client-posted payment tokens by calling the
// provider's verify endpoint synchronously. Amounts are reported in paisa.
type KhaltiProvider struct {
	secretKey string
	verifyURL string
	client    *http.Client
}

// NewKhaltiProvider creates a provider with the merchant secret key.
func NewKhaltiProvider(secretKey, verifyURL string) *KhaltiProvider {
	return &KhaltiProvider{
		secretKey: secretKey,
		verifyURL: verifyURL,
		client:    &http.Client{Timeout: verifyTimeout},
	}
}

// Name returns the provider identifier.
func (p *KhaltiProvider) Name() string { return "khalti" }

// Verify checks the token and claimed amount against the provider's verify
// endpoint. Only a 200 response with the exact unlock price confirms.
func (p *KhaltiProvider) Verify(ctx context.Context, cb Callback) (*VerifiedPayment, error) {
	token := cb.Params["token"]
	amount := cb.Params["amount"]
	transactionRef := cb.Params["transaction_id"]
	if token == "" || amount == "" || transactionRef == "" {
		return nil, ErrMalformedCallback
	}

	paisa, err := strconv.Atoi(amount)
	if err != nil || paisa != UnlockPriceMinor {
		return nil, fmt.Errorf("%w: got %s paisa", ErrInvalidAmount, amount)
	}

	form := url.Values{
		"token":  {token},
		"amount": {amount},
	}

	var lastErr error
	for attempt := 0; attempt <= verifyRetries; attempt++ {
		status, err := p.post(ctx, form)
		if err != nil {
			lastErr = err
			continue
		}
		if status == http.StatusOK {
			return &VerifiedPayment{TransactionRef: transactionRef, ProviderRef: token, Amount: UnlockPrice}, nil
		}
		return nil, ErrVerificationFailed
	}
	return nil, fmt.Errorf("%w: %v", ErrVerificationFailed, lastErr)
}

func (p *KhaltiProvider) post(ctx context.Context, form url.Values) (int, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.verifyURL, strings.NewReader(form.Encode()))
	if err != nil {
		return 0, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Authorization", "Key "+p.secretKey)

	resp, err := p.client.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	return resp.StatusCode, nil
}
