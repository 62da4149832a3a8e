package testdata

import (
	"fmt"
	"math"
	"time"

	"github.com/brianvoe/gofakeit/v6"
	"github.com/jordanlanch/invoicefollowup/pkg/models"
)

// InvoiceGeneratorConfig configures invoice generation parameters
type InvoiceGeneratorConfig struct {
	OrganizationID int64
	Count          int
	Tier           models.Tier // empty picks a random tier
	Status         string      // defaults to OVERDUE
	Currency       string      // defaults to AED
	MinAmount      float64
	MaxAmount      float64
	DueDate        time.Time // defaults to 30 days before Now
	Now            time.Time
	Seed           int64 // 0 uses a random seed
}

var tiers = []models.Tier{models.TierGovernment, models.TierVIP, models.TierCorporate, models.TierRegular}

// UAE mobile prefixes
var mobilePrefixes = []string{"050", "052", "054", "055", "056", "058"}

// GenerateInvoices creates Count invoices numbered from firstID
func GenerateInvoices(cfg InvoiceGeneratorConfig, firstID int64) []*models.InvoiceFacts {
	faker := gofakeit.New(cfg.Seed)
	out := make([]*models.InvoiceFacts, 0, cfg.Count)
	for i := 0; i < cfg.Count; i++ {
		out = append(out, generateInvoice(faker, cfg, firstID+int64(i)))
	}
	return out
}

// GenerateInvoice creates one invoice with fake customer details
func GenerateInvoice(cfg InvoiceGeneratorConfig, id int64) *models.InvoiceFacts {
	return generateInvoice(gofakeit.New(cfg.Seed), cfg, id)
}

func generateInvoice(faker *gofakeit.Faker, cfg InvoiceGeneratorConfig, id int64) *models.InvoiceFacts {
	if cfg.Status == "" {
		cfg.Status = models.InvoiceStatusOverdue
	}
	if cfg.Currency == "" {
		cfg.Currency = "AED"
	}
	if cfg.MaxAmount <= 0 {
		cfg.MinAmount, cfg.MaxAmount = 500, 50000
	}
	if cfg.Now.IsZero() {
		cfg.Now = time.Now()
	}
	if cfg.DueDate.IsZero() {
		cfg.DueDate = cfg.Now.AddDate(0, 0, -30)
	}
	tier := cfg.Tier
	if tier == "" {
		tier = tiers[faker.Number(0, len(tiers)-1)]
	}

	amount := math.Round(faker.Float64Range(cfg.MinAmount, cfg.MaxAmount)*100) / 100

	return &models.InvoiceFacts{
		ID:             id,
		OrganizationID: cfg.OrganizationID,
		Number:         fmt.Sprintf("INV-%d-%05d", cfg.DueDate.Year(), id),
		Status:         cfg.Status,
		DueDate:        cfg.DueDate.UTC(),
		Currency:       cfg.Currency,
		Amount:         amount,
		CustomerName:   faker.Name(),
		CustomerEmail:  fmt.Sprintf("customer%d@%s", id, faker.DomainName()),
		CustomerPhone:  faker.RandomString(mobilePrefixes) + faker.Numerify("#######"),
		CustomerTier:   tier,
		CountryCode:    "AE",
	}
}

// ReminderSequence returns a clean three-step bilingual-ready sequence that
// passes the compliance gate for every tier once its first delay meets the
// tier minimum
func ReminderSequence(id, organizationID int64, firstDelayDays int) *models.SequenceDefinition {
	return &models.SequenceDefinition{
		ID:             id,
		OrganizationID: organizationID,
		Name:           "Overdue invoice reminders",
		Active:         true,
		Steps: []models.SequenceStep{
			{
				StepNumber: 1,
				DelayDays:  firstDelayDays,
				Subject:    "Reminder: invoice {{invoice_number}}",
				Body:       "Dear {{customer_name}}, invoice {{invoice_number}} for {{amount_due}} was due on {{due_date}}. Kind regards",
				Tone:       models.ToneVeryFormal,
				Language:   models.LanguageEnglish,
			},
			{
				StepNumber: 2,
				DelayDays:  7,
				Subject:    "Second reminder: invoice {{invoice_number}}",
				Body:       "Dear {{customer_name}}, we have not yet received payment of {{amount_due}}. Kind regards",
				SubjectAr:  "تذكير ثان: الفاتورة {{invoice_number}}",
				BodyAr:     "السادة {{customer_name}}، نود تذكيركم بسداد مبلغ {{amount_due}}. مع التحية",
				Tone:       models.ToneVeryFormal,
				Language:   models.LanguageBoth,
			},
			{
				StepNumber:  3,
				DelayDays:   7,
				Subject:     "Final notice: invoice {{invoice_number}}",
				Body:        "Dear {{customer_name}}, this is our final notice for invoice {{invoice_number}}. Kind regards",
				Tone:        models.ToneVeryFormal,
				Language:    models.LanguageEnglish,
				FinalNotice: true,
			},
		},
	}
}
