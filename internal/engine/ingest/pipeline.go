package ingest

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"leadrelay/internal/engine/ingest/provider"
	"leadrelay/internal/engine/webhooks"
	"leadrelay/internal/platform/audit"
	"leadrelay/internal/platform/models"
	"leadrelay/internal/platform/repositories"
)

// ErrUnmappedResource is returned when no integration binds the provider
// resource to a tenant. The event is rejected outright rather than
// attributed to a default tenant.
var ErrUnmappedResource = errors.New("no integration maps this provider resource")

const LeadCreatedEvent = "lead.created"

// EventTrigger is the facade the pipeline re-enters once a lead is
// persisted, closing the loop back into outbound delivery.
type EventTrigger interface {
	Trigger(ctx context.Context, orgID, eventType string, data interface{}) []webhooks.Result
}

// Pipeline normalizes heterogeneous provider notifications into canonical
// leads, idempotently. Push webhooks, minted receivers and manual backfill
// all funnel into the same persist path.
type Pipeline struct {
	integrations *repositories.IntegrationRepository
	mappings     *repositories.MappingRepository
	leads        *repositories.LeadRepository
	audit        *audit.Recorder
	provider     provider.Client
	trigger      EventTrigger
	providerName string
}

func NewPipeline(integrations *repositories.IntegrationRepository, mappings *repositories.MappingRepository,
	leads *repositories.LeadRepository, recorder *audit.Recorder, client provider.Client,
	trigger EventTrigger, providerName string) *Pipeline {
	return &Pipeline{
		integrations: integrations,
		mappings:     mappings,
		leads:        leads,
		audit:        recorder,
		provider:     client,
		trigger:      trigger,
		providerName: providerName,
	}
}

// ProcessLeadEvent handles one verified push notification: tenant lookup,
// idempotency check, detail fetch, normalization, persist, fan-out.
func (p *Pipeline) ProcessLeadEvent(ctx context.Context, ev Leadgen) error {
	start := time.Now()
	externalID := ev.ExternalID()

	integration, err := p.integrations.GetByPage(p.providerName, ev.PageID)
	if err != nil {
		p.record("", externalID, models.StageReceived, models.IngestFailed, start, err)
		return err
	}
	if integration == nil || !integration.Enabled {
		p.record("", externalID, models.StageReceived, models.IngestFailed, start, ErrUnmappedResource)
		return ErrUnmappedResource
	}
	orgID := integration.OrganizationID
	p.record(orgID, externalID, models.StageVerified, models.IngestOK, start, nil)

	// Cheap pre-check; the unique constraint in persist is what actually
	// guarantees idempotency under concurrent redelivery.
	existing, err := p.leads.FindByExternalID(orgID, externalID)
	if err != nil {
		p.record(orgID, externalID, models.StageVerified, models.IngestFailed, start, err)
		return err
	}
	if existing != nil {
		p.record(orgID, externalID, models.StagePersisted, models.IngestSkipped, start, nil)
		return nil
	}

	detail, err := p.provider.FetchLead(ctx, integration.AccessToken, externalID)
	if err != nil {
		// Credential and fetch failures are not retried automatically: the
		// fix (re-authorization) happens outside this pipeline.
		p.record(orgID, externalID, models.StageDetailFetched, models.IngestFailed, start, err)
		return err
	}
	p.record(orgID, externalID, models.StageDetailFetched, models.IngestOK, start, nil)

	_, err = p.persist(ctx, orgID, externalID, p.providerName, detail.FieldData, start)
	return err
}

// IngestDirect persists a lead whose fields arrived inline (the minted
// receiver variant), skipping the detail fetch.
func (p *Pipeline) IngestDirect(ctx context.Context, orgID, externalID, source string, fields []provider.Field) error {
	start := time.Now()
	p.record(orgID, externalID, models.StageVerified, models.IngestOK, start, nil)
	_, err := p.persist(ctx, orgID, externalID, source, fields, start)
	return err
}

// persist returns the terminal outcome (created or skipped) on success.
func (p *Pipeline) persist(ctx context.Context, orgID, externalID, source string, fields []provider.Field, start time.Time) (string, error) {
	mapping, err := p.mappings.Get(orgID, p.providerName)
	if err != nil {
		p.record(orgID, externalID, models.StageNormalized, models.IngestFailed, start, err)
		return "", err
	}

	lead := Normalize(orgID, externalID, source, fields, mapping)
	p.record(orgID, externalID, models.StageNormalized, models.IngestOK, start, nil)

	if err := p.leads.Create(lead); err != nil {
		if repositories.IsDuplicateErr(err) {
			// Lost the race against a concurrent redelivery: the other
			// request created the lead, this one is a no-op.
			p.record(orgID, externalID, models.StagePersisted, models.IngestSkipped, start, nil)
			return models.IngestSkipped, nil
		}
		p.record(orgID, externalID, models.StagePersisted, models.IngestFailed, start, err)
		return "", err
	}
	p.record(orgID, externalID, models.StagePersisted, models.IngestCreated, start, nil)

	p.trigger.Trigger(ctx, orgID, LeadCreatedEvent, lead)
	return models.IngestCreated, nil
}

func (p *Pipeline) record(orgID, externalID, stage, outcome string, start time.Time, err error) {
	entry := &models.IngestionEvent{
		OrganizationID: orgID,
		Provider:       p.providerName,
		ExternalID:     externalID,
		Stage:          stage,
		Outcome:        outcome,
		LatencyMs:      time.Since(start).Milliseconds(),
	}
	if err != nil {
		entry.Error = err.Error()
		log.Warn().Err(err).Str("external_id", externalID).Str("stage", stage).Msg("lead ingestion failure")
	}
	p.audit.Record(entry)
}
