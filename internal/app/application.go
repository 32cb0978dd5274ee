// Package app wires the console's domain services together.
package app

import (
	"github.com/launchbase/console/internal/app/services/billing"
	"github.com/launchbase/console/internal/app/services/documents"
	"github.com/launchbase/console/internal/app/services/forms"
	"github.com/launchbase/console/internal/app/services/incorporations"
	"github.com/launchbase/console/internal/app/services/maintenance"
	"github.com/launchbase/console/internal/app/services/payments"
	"github.com/launchbase/console/internal/app/services/referrals"
	"github.com/launchbase/console/internal/app/storage"
	"github.com/launchbase/console/internal/app/storage/memory"
	"github.com/launchbase/console/internal/cache"
	"github.com/launchbase/console/pkg/logger"
)

// Stores encapsulates persistence dependencies. Nil stores default to the
// in-memory implementation.
type Stores struct {
	Forms          storage.FormStore
	Submissions    storage.SubmissionStore
	Incorporations storage.IncorporationStore
	Billing        storage.BillingStore
	Documents      storage.DocumentStore
	Payments       storage.PaymentStore
	Users          storage.UserStore
}

// Dependencies holds external backends. Each is optional; services degrade
// to an explicit "not configured" error rather than failing at startup.
type Dependencies struct {
	Gateway         referrals.Gateway
	Prober          maintenance.Prober
	PaymentProvider payments.Provider
	Cache           cache.Cache
}

// Application ties domain services together and manages their lifecycle.
type Application struct {
	log *logger.Logger

	Forms          *forms.Service
	Incorporations *incorporations.Service
	Referrals      *referrals.Service
	Billing        *billing.Service
	Documents      *documents.Service
	Payments       *payments.Service
	Maintenance    *maintenance.Service
}

// New builds a fully initialised application with the provided stores and
// backends.
func New(stores Stores, deps Dependencies, log *logger.Logger) *Application {
	if log == nil {
		log = logger.NewDefault("app")
	}

	mem := memory.New()
	if stores.Forms == nil {
		stores.Forms = mem
	}
	if stores.Submissions == nil {
		stores.Submissions = mem
	}
	if stores.Incorporations == nil {
		stores.Incorporations = mem
	}
	if stores.Billing == nil {
		stores.Billing = mem
	}
	if stores.Documents == nil {
		stores.Documents = mem
	}
	if stores.Payments == nil {
		stores.Payments = mem
	}
	if stores.Users == nil {
		stores.Users = mem
	}

	formsService := forms.New(stores.Forms, stores.Submissions, stores.Incorporations, log)
	if deps.Cache != nil {
		formsService.AttachCache(deps.Cache)
	}

	return &Application{
		log:            log,
		Forms:          formsService,
		Incorporations: incorporations.New(stores.Incorporations, log),
		Referrals:      referrals.New(deps.Gateway, stores.Users, log),
		Billing:        billing.New(stores.Billing, log),
		Documents:      documents.New(stores.Documents, log),
		Payments:       payments.New(stores.Payments, deps.PaymentProvider, log),
		Maintenance:    maintenance.New(deps.Prober, log),
	}
}

// Start launches background jobs.
func (a *Application) Start(probeSchedule string) error {
	return a.Maintenance.Start(probeSchedule)
}

// Stop halts background jobs.
func (a *Application) Stop() {
	a.Maintenance.Stop()
}
