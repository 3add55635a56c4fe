package payments

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const defaultRoboKassaBaseURL = "https://auth.robokassa.ru/Merchant/Index.aspx"

// RoboKassaConfig carries merchant credentials for the RoboKassa provider.
// Password1 signs outbound payment URLs; Password2 verifies result callbacks.
type RoboKassaConfig struct {
	MerchantLogin string
	Password1     string
	Password2     string
	BaseURL       string
	TestMode      bool
	Logger        func(ctx context.Context, event string, fields map[string]any)
}

// RoboKassaProvider builds signed redirect URLs settling in whole roubles.
// Payment creation is synchronous: no network call is made.
type RoboKassaProvider struct {
	merchantLogin string
	password1     string
	password2     string
	baseURL       string
	testMode      bool
	logger        func(ctx context.Context, event string, fields map[string]any)
}

// NewRoboKassaProvider constructs a RoboKassa provider. Missing merchant
// identity is reported at initiation time, not here.
func NewRoboKassaProvider(cfg RoboKassaConfig) *RoboKassaProvider {
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultRoboKassaBaseURL
	}
	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &RoboKassaProvider{
		merchantLogin: strings.TrimSpace(cfg.MerchantLogin),
		password1:     cfg.Password1,
		password2:     cfg.Password2,
		baseURL:       baseURL,
		testMode:      cfg.TestMode,
		logger:        logger,
	}
}

// Name identifies the provider in dispatch logs and results.
func (p *RoboKassaProvider) Name() string { return "robokassa" }

// Initiate builds the signed payment redirect URL. The amount is rounded to
// whole roubles before signing; signing the raw decimal would make the
// signature fail verification downstream.
func (p *RoboKassaProvider) Initiate(ctx context.Context, req Request) (Initiation, error) {
	if p == nil || p.merchantLogin == "" {
		return Initiation{}, NewError(KindConfiguration, "robokassa: merchant login is not configured")
	}

	outSum := strconv.FormatInt(int64(math.Round(req.SettlementAmount)), 10)
	signature := md5Hex(fmt.Sprintf("%s:%s::%s", p.merchantLogin, outSum, p.password1))

	params := url.Values{}
	params.Set("MerchantLogin", p.merchantLogin)
	params.Set("OutSum", outSum)
	params.Set("Description", req.Description)
	params.Set("SignatureValue", signature)
	if p.testMode {
		params.Set("IsTest", "1")
	}

	p.logger(ctx, "payments.robokassa.redirect.built", map[string]any{
		"orderId": req.OrderID,
		"outSum":  outSum,
	})

	return Initiation{
		RedirectURL: p.baseURL + "?" + params.Encode(),
		PaymentID:   req.OrderID,
	}, nil
}

// VerifyCallback checks the authenticity of a result notification by
// recomputing the second digest over OutSum:InvId:Password2. Comparison is
// case-insensitive and constant-time. Replay of a previously valid signature
// is not prevented here; callers needing replay protection must track
// invoice ids themselves.
func (p *RoboKassaProvider) VerifyCallback(params url.Values) bool {
	if p == nil {
		return false
	}
	outSum := strings.TrimSpace(params.Get("OutSum"))
	invID := strings.TrimSpace(params.Get("InvId"))
	signature := strings.TrimSpace(params.Get("SignatureValue"))
	if outSum == "" || signature == "" {
		return false
	}

	expected := md5Hex(fmt.Sprintf("%s:%s:%s", outSum, invID, p.password2))
	return constantTimeEqualFold(expected, signature)
}

func md5Hex(value string) string {
	sum := md5.Sum([]byte(value))
	return hex.EncodeToString(sum[:])
}

func constantTimeEqualFold(a, b string) bool {
	return subtle.ConstantTimeCompare([]byte(strings.ToLower(a)), []byte(strings.ToLower(b))) == 1
}
