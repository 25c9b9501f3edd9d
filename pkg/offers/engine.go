// Package offers decides which customers receive a post-purchase
// discount insert and manages the shared per-batch discount code.
package offers

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/puzzlegalore/dispatch/pkg/shopify"
	"github.com/uptrace/opentelemetry-go-extra/otelzap"
	"go.uber.org/zap"
)

// MarketplaceCode is the fixed code printed on marketplace inserts.
const MarketplaceCode = "FIRSTORDER"

const (
	discountTitle      = "30-Day New Customer Discount"
	discountPercentage = 0.1

	// offerCooldown is how long a customer stays ineligible after
	// receiving an insert.
	offerCooldown = 30 * 24 * time.Hour

	// codeValidity is the lifetime of a newly minted code;
	// minRemainingValidity is how much lifetime an existing code needs
	// to be worth reusing.
	codeValidity         = 40 * 24 * time.Hour
	minRemainingValidity = 30 * 24 * time.Hour
)

// Config holds engine configuration.
type Config struct {
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
	// Rand overrides the code generator's randomness source.
	Rand *rand.Rand
}

// Engine implements offer eligibility and batch code management on top
// of the commerce admin API. Failures degrade to "no offer" and are
// logged; they never abort a batch.
type Engine struct {
	api    shopify.AdminAPI
	logger *otelzap.Logger
	now    func() time.Time
	rng    *rand.Rand
}

// NewEngine creates an offer engine.
func NewEngine(api shopify.AdminAPI, logger *otelzap.Logger, cfg Config) *Engine {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	rng := cfg.Rand
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Engine{api: api, logger: logger, now: now, rng: rng}
}

// HasReceivedOffer reports whether the customer was sent an offer within
// the cooldown window. Lookup failures count as "not received" so a
// flaky API never suppresses the whole batch's inserts.
func (e *Engine) HasReceivedOffer(ctx context.Context, customerID string) bool {
	value, err := e.api.GetCustomerOfferDate(ctx, customerID)
	if err != nil {
		e.logger.Warn("Offer eligibility lookup failed",
			zap.String("customer_id", customerID),
			zap.Error(err),
		)
		return false
	}
	if value == "" {
		return false
	}

	last, err := parseOfferDate(value)
	if err != nil {
		e.logger.Warn("Unparseable offer date on customer record",
			zap.String("customer_id", customerID),
			zap.String("value", value),
		)
		return false
	}

	return e.now().Sub(last) < offerCooldown
}

// CreateDiscountCode returns the discount code for this batch.
// Marketplace batches use the fixed marketplace code. Otherwise an
// existing valid code is reused when one exists, and a fresh prefixed
// random code is minted when none does.
func (e *Engine) CreateDiscountCode(ctx context.Context, marketplace bool) (string, error) {
	if marketplace {
		return MarketplaceCode, nil
	}

	if code := e.findValidCode(ctx); code != "" {
		e.logger.Info("Reusing existing discount code", zap.String("code", code))
		return code, nil
	}

	code := generateCode(e.rng)
	now := e.now()
	created, err := e.api.CreateDiscountCode(ctx, shopify.DiscountInput{
		Title:                  fmt.Sprintf("%s %s", discountTitle, code),
		Code:                   code,
		StartsAt:               now,
		EndsAt:                 now.Add(codeValidity),
		Percentage:             discountPercentage,
		AppliesOncePerCustomer: true,
	})
	if err != nil {
		return "", fmt.Errorf("minting discount code: %w", err)
	}

	e.logger.Info("Created batch discount code", zap.String("code", created))
	return created, nil
}

// RecordOfferSent writes today's date onto the customer record.
func (e *Engine) RecordOfferSent(ctx context.Context, customerID string) error {
	date := e.now().Format("2006-01-02")
	if err := e.api.SetCustomerOfferDate(ctx, customerID, date); err != nil {
		return fmt.Errorf("recording offer for customer %s: %w", customerID, err)
	}
	return nil
}

// findValidCode pages through active percentage discounts looking for a
// reusable one: our prefix and title, exactly 10%, and enough validity
// left that the insert won't expire in a customer's hands.
func (e *Engine) findValidCode(ctx context.Context) string {
	cursor := ""
	minExpiry := e.now().Add(minRemainingValidity)

	for {
		page, err := e.api.FindDiscountCodes(ctx, cursor)
		if err != nil {
			e.logger.Warn("Discount code search failed", zap.Error(err))
			return ""
		}

		for _, candidate := range page.Codes {
			if !strings.HasPrefix(candidate.Code, CodePrefix) {
				continue
			}
			if !strings.Contains(candidate.Title, discountTitle) {
				continue
			}
			if candidate.Percentage != discountPercentage {
				continue
			}
			if candidate.EndsAt != nil && candidate.EndsAt.Before(minExpiry) {
				continue
			}
			return candidate.Code
		}

		if !page.HasNextPage {
			return ""
		}
		cursor = page.EndCursor
	}
}

func parseOfferDate(value string) (time.Time, error) {
	if t, err := time.Parse("2006-01-02", value); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, value)
}
