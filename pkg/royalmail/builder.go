package royalmail

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/puzzlegalore/dispatch/pkg/order"
	"github.com/shopspring/decimal"
)

// Service codes for the account's Royal Mail contract.
const (
	ServiceTracked48     = "CRL2" // domestic packet tier, ≤2kg, also large letter
	ServiceTracked24     = "TPN"  // domestic tracked next-day
	ServiceParcelOver2kg = "TPS"  // domestic >2kg
	ServiceIntlTracked   = "MP7"  // international tracked baseline
	ServiceIntlHeavyKey  = "HVK"  // 2-30kg, high-value-key destinations
	ServiceIntlHeavyBase = "HVB"  // 2-30kg, everywhere else
)

// Package formats.
const (
	FormatParcel      = "Parcel"
	FormatLargeLetter = "LargeLetter"
)

// DomesticCountry is the shipping origin country.
const DomesticCountry = "GB"

// Weight thresholds, all kg. The carrier rates parcels in brackets; the
// 1.999 clamp keeps borderline shipments under the 2kg tier.
const (
	defaultUnitWeight = 2.0
	parcelTierCeiling = 2.0
	unitClampCeiling  = 2.2
	bracketCeiling    = 2.3
	bracketWeight     = 1.999
	largeLetterMax    = 0.751
	intlHeavyCeiling  = 30.0
	maxNotifyEmailLen = 34
)

// Customs registration identities by destination.
const (
	domesticVATNumber    = "GB879355368"
	domesticVATType      = "VAT"
	franceVATNumber      = "FR44837874015"
	franceVATType        = "TVA"
	exportEORINumber     = "GB879355368000"
	exportEORIType       = "EORI"
	marketplaceRegNumber = "IM4420001201"
	marketplaceRegType   = "PRS"
)

// declaredHSCode is the tariff code declared on every customs line.
const declaredHSCode = "9503006900"

// defaultOriginCountry is declared when an item's origin is unknown.
const defaultOriginCountry = "DE"

const goodsDescription = "Jigsaw Puzzle"

// puzzleHSCodes are the jigsaw-puzzle tariff classifications that
// qualify a shipment for the weight-bracket clamp.
var puzzleHSCodes = map[string]bool{
	"9503006900": true,
	"9503009590": true,
}

// countryAliases maps territories the carrier files under a parent
// country: Channel Islands and Isle of Man ship as domestic, two US
// territories as US, Monaco as France.
var countryAliases = map[string]string{
	"JE": "GB",
	"GG": "GB",
	"IM": "GB",
	"PR": "US",
	"GU": "US",
	"MC": "FR",
}

// highValueKeyCountries take the HVK service for 2-30kg international
// shipments; everywhere else gets HVB.
var highValueKeyCountries = map[string]bool{
	"AT": true, "BE": true, "BG": true, "HR": true, "CY": true,
	"DK": true, "EE": true, "FR": true, "DE": true, "GR": true,
	"HU": true, "IT": true, "IE": true, "LV": true, "LU": true,
	"MT": true, "NL": true, "PL": true, "PT": true, "RO": true,
	"SK": true, "SI": true, "ES": true, "CH": true, "CA": true,
}

// lightweightServices never carry email tracking notifications.
var lightweightServices = map[string]bool{
	ServiceTracked48: true,
	"PPF1":           true,
	"PPF2":           true,
}

// NormalizeCountry resolves a destination country code to the code the
// carrier rates it under.
func NormalizeCountry(code string) string {
	if mapped, ok := countryAliases[code]; ok {
		return mapped
	}
	return code
}

// BuilderConfig holds builder configuration.
type BuilderConfig struct {
	ShippingAccountID string
	// TestMode declares full quantities instead of unfulfilled ones.
	TestMode bool
	// Now overrides the clock; nil means time.Now.
	Now func() time.Time
}

// Builder derives a carrier shipment request from an order. It is pure:
// the same order always yields the same request for a fixed clock.
type Builder struct {
	cfg BuilderConfig
	now func() time.Time
}

// NewBuilder creates a shipment request builder.
func NewBuilder(cfg BuilderConfig) *Builder {
	now := cfg.Now
	if now == nil {
		now = time.Now
	}
	return &Builder{cfg: cfg, now: now}
}

// shipmentFacts are the order-derived inputs the service rules consume.
type shipmentFacts struct {
	country        string
	international  bool
	weight         float64
	allLargeLetter bool
	expressLine    bool
	marketplace    bool
}

// serviceRule pairs a predicate with the service it selects. Rules are
// evaluated top-down; the first match wins, which makes precedence
// auditable rule by rule.
type serviceRule struct {
	name    string
	matches func(f shipmentFacts) bool
	resolve func(f shipmentFacts) (code, format string)
}

var serviceRules = []serviceRule{
	{
		name: "marketplace international",
		matches: func(f shipmentFacts) bool { return f.marketplace && f.international },
		resolve: func(f shipmentFacts) (string, string) { return ServiceIntlTracked, FormatParcel },
	},
	{
		name: "international 2-30kg",
		matches: func(f shipmentFacts) bool {
			return f.international && f.weight > parcelTierCeiling && f.weight <= intlHeavyCeiling
		},
		resolve: func(f shipmentFacts) (string, string) {
			if highValueKeyCountries[f.country] {
				return ServiceIntlHeavyKey, FormatParcel
			}
			return ServiceIntlHeavyBase, FormatParcel
		},
	},
	{
		name: "international",
		matches: func(f shipmentFacts) bool { return f.international },
		resolve: func(f shipmentFacts) (string, string) { return ServiceIntlTracked, FormatParcel },
	},
	{
		name: "large letter",
		matches: func(f shipmentFacts) bool {
			return f.allLargeLetter && f.weight < largeLetterMax
		},
		resolve: func(f shipmentFacts) (string, string) { return ServiceTracked48, FormatLargeLetter },
	},
	{
		name: "domestic express",
		matches: func(f shipmentFacts) bool { return f.expressLine },
		resolve: func(f shipmentFacts) (string, string) { return ServiceTracked24, FormatParcel },
	},
	{
		name: "domestic over 2kg",
		matches: func(f shipmentFacts) bool { return f.weight > parcelTierCeiling },
		resolve: func(f shipmentFacts) (string, string) { return ServiceParcelOver2kg, FormatParcel },
	},
	{
		name: "domestic standard",
		matches: func(f shipmentFacts) bool { return true },
		resolve: func(f shipmentFacts) (string, string) { return ServiceTracked48, FormatParcel },
	},
}

func resolveService(f shipmentFacts) (code, format string) {
	for _, rule := range serviceRules {
		if rule.matches(f) {
			return rule.resolve(f)
		}
	}
	return ServiceTracked48, FormatParcel // unreachable: last rule always matches
}

// Build derives the carrier request for an order. A nil return means
// the order does not ship via the carrier (platform fulfillment handles
// it) and the caller should fall back to a placeholder label.
func (b *Builder) Build(o *order.Order) *ShipmentRequest {
	country := NormalizeCountry(o.ShippingAddress.CountryCode)

	// Standard UK tiers are fulfilled outside the carrier entirely.
	if strings.Contains(o.ShippingLine.Code, "Std UK") && country == DomesticCountry {
		return nil
	}

	international := country != DomesticCountry
	items := b.includedItems(o)

	weight := 0.0
	allLargeLetter := true
	puzzle := false
	skus := make([]string, 0, len(items))
	for _, item := range items {
		if !item.LargeLetter {
			allLargeLetter = false
		}
		weight += b.unitWeight(item) * float64(b.quantity(item))
		if puzzleHSCodes[item.HSCode] {
			puzzle = true
		}
		skus = append(skus, item.SKU)
	}

	// Puzzle shipments just over the 2kg tier are clamped under it; the
	// trimmed weight is taken back off one customs line below so the
	// item weights still sum close to the declared total.
	weightDiff := 0.0
	if weight > parcelTierCeiling && weight < bracketCeiling && puzzle {
		weightDiff = weight - bracketWeight
		weight = bracketWeight
	}

	facts := shipmentFacts{
		country:        country,
		international:  international,
		weight:         weight,
		allLargeLetter: allLargeLetter,
		expressLine:    isExpressLine(o.ShippingLine),
		marketplace:    o.ShippingLine.Marketplace(),
	}
	serviceCode, serviceFormat := resolveService(facts)

	regNumber, regType := registration(facts)

	taxFactor := decimal.NewFromFloat(o.TaxFactor())

	customsItems, declaredValue := b.customsLines(items, taxFactor, weightDiff)

	shippingCharges := math.Round(o.TotalShipping*o.TaxFactor()*100) / 100

	declaredWeight := strconv.FormatFloat(weight, 'f', 2, 64)

	req := &ShipmentRequest{
		Shipper: Shipper{
			Reference1:        truncate(o.Name, 11),
			Reference2:        truncate(strings.Join(skus, ","), 30),
			ShippingAccountID: b.cfg.ShippingAccountID,
			VatNumber:         regNumber,
		},
		Destination: Destination{
			Address: DestinationAddress{
				CompanyName: truncate(o.ShippingAddress.Company, 40),
				ContactName: truncate(o.ShippingAddress.Name, 40),
				Line1:       truncate(o.ShippingAddress.Line1, 40),
				Line2:       truncate(o.ShippingAddress.Line2, 40),
				Town:        truncate(o.ShippingAddress.City, 40),
				County:      county(o.ShippingAddress.ProvinceCode),
				CountryCode: country,
				Postcode:    truncate(o.ShippingAddress.PostalCode, 20),
			},
		},
		ShipmentInformation: ShipmentInformation{
			ShipmentDate:        b.now().Format("2006-01-02"),
			ServiceCode:         serviceCode,
			DeclaredWeight:      declaredWeight,
			WeightUnitOfMeasure: "KG",
			ContentType:         "NDX",
			DescriptionOfGoods:  goodsDescription,
			CurrencyCode:        o.CurrencyCode,
			LabelFormat:         "PDF",
		},
		Packages: []Package{
			{
				PackageOccurrence: 1,
				DeclaredWeight:    declaredWeight,
				PackageType:       serviceFormat,
				DeclaredValue:     declaredValue.StringFixed(2),
			},
		},
		Items: customsItems,
		Customs: Customs{
			PreRegistrationNumber: regNumber,
			PreRegistrationType:   regType,
			ShippingCharges:       shippingCharges,
			OtherCharges:          0,
			QuotedLandedCost:      0,
			InvoiceNumber:         o.Name,
			InvoiceDate:           o.CreatedAt.Format(time.RFC3339),
			ReasonForExport:       "Sale of Goods",
			Incoterms:             "DDU",
		},
	}

	// Email tracking notifications: domestic, non-packet services only,
	// and only when the email fits the carrier's fixed-length field.
	if email := notificationEmail(o); email != "" &&
		country == DomesticCountry && !lightweightServices[serviceCode] {
		req.Destination.Address.ContactEmail = email
		req.CarrierSpecifics = &CarrierSpecifics{
			ServiceEnhancements: []ServiceEnhancement{{Code: "Email"}},
		}
	}

	return req
}

// includedItems filters the order lines that count toward weight, value
// and customs. Pre-order and negative-inventory lines never ship; when
// the customer asked for split shipping, lines with nothing left to
// fulfil are held back too.
func (b *Builder) includedItems(o *order.Order) []order.LineItem {
	split := o.SplitShipping()
	items := make([]order.LineItem, 0, len(o.LineItems))
	for _, item := range o.LineItems {
		if item.PreOrder || item.TotalInventory < 0 {
			continue
		}
		if split && item.UnfulfilledQuantity == 0 {
			continue
		}
		items = append(items, item)
	}
	return items
}

// unitWeight returns the declared unit weight for an item. Unknown
// weights default to 2kg; weights just over 2kg are clamped under the
// tier boundary.
func (b *Builder) unitWeight(item order.LineItem) float64 {
	w := defaultUnitWeight
	if item.UnitWeightKG != nil {
		w = *item.UnitWeightKG
	}
	if w > parcelTierCeiling && w <= unitClampCeiling {
		w = bracketWeight
	}
	return w
}

func (b *Builder) quantity(item order.LineItem) int {
	if b.cfg.TestMode {
		return item.Quantity
	}
	return item.UnfulfilledQuantity
}

// customsLines builds the per-item declaration lines and their summed
// declared value. weightDiff is taken off the first line heavy enough to
// absorb it.
func (b *Builder) customsLines(items []order.LineItem, taxFactor decimal.Decimal, weightDiff float64) ([]Item, decimal.Decimal) {
	lines := make([]Item, 0, len(items))
	total := decimal.Zero
	hundred := decimal.NewFromInt(100)

	for _, item := range items {
		qty := b.quantity(item)
		if qty < 1 {
			continue
		}

		w := b.unitWeight(item)
		if weightDiff > 0 && weightDiff < w {
			w -= weightDiff
			weightDiff = 0
		}

		// Net value is floored to 2dp before dividing by quantity, so
		// unit value x quantity reconstructs the declared total exactly.
		qtyDec := decimal.NewFromInt(int64(qty))
		net := decimal.NewFromFloat(item.OriginalTotal).Mul(taxFactor)
		floored := net.Mul(hundred).Floor().Div(hundred)
		unitValue := floored.DivRound(qtyDec, 2)
		total = total.Add(unitValue.Mul(qtyDec))

		origin := item.CountryOfOrigin
		if origin == "" {
			origin = defaultOriginCountry
		}

		lines = append(lines, Item{
			Quantity:          qty,
			Description:       "[" + goodsDescription + "] " + truncate(item.Name, 255),
			Value:             unitValue.StringFixed(2),
			Weight:            strconv.FormatFloat(w, 'f', 3, 64),
			PackageOccurrence: 1,
			HsCode:            declaredHSCode,
			SkuCode:           item.SKU,
			CountryOfOrigin:   origin,
		})
	}

	return lines, total
}

func registration(f shipmentFacts) (number, regType string) {
	switch {
	case f.marketplace && f.international:
		return marketplaceRegNumber, marketplaceRegType
	case f.country == DomesticCountry:
		return domesticVATNumber, domesticVATType
	case f.country == "FR":
		return franceVATNumber, franceVATType
	default:
		return exportEORINumber, exportEORIType
	}
}

func isExpressLine(line order.ShippingLine) bool {
	return strings.Contains(line.Code, "Express") ||
		strings.Contains(line.Code, "Standard Delivery (1 - 3 days approx)") ||
		strings.Contains(line.Code, "Tracked 24") ||
		strings.Contains(line.Title, "24")
}

// county clears the province for destinations the carrier rejects a
// county value for.
func county(provinceCode string) string {
	if provinceCode == "VI" {
		return ""
	}
	return provinceCode
}

func notificationEmail(o *order.Order) string {
	if o.Customer == nil {
		return ""
	}
	if o.Customer.Email == "" || len(o.Customer.Email) >= maxNotifyEmailLen {
		return ""
	}
	return o.Customer.Email
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max]
}
