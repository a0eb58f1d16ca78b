package scheduler

import (
	"context"
	"sort"
	"sync"
	"time"

	businessflow "sms-backend/business_flow"
	"sms-backend/app/services"
	"sms-backend/models"
	"sms-backend/utils"

	"github.com/google/uuid"
)

// In-memory fakes for dispatcher tests. Only the behavior the dispatch loop
// touches is implemented; unused filter fields are ignored.

type dispatchCampaignRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Campaign
	nextID uint
}

func newDispatchCampaignRepo() *dispatchCampaignRepo {
	return &dispatchCampaignRepo{rows: make(map[uint]*models.Campaign), nextID: 1}
}

func (r *dispatchCampaignRepo) add(c *models.Campaign) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	r.rows[c.ID] = c
	return c
}

func (r *dispatchCampaignRepo) get(id uint) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *dispatchCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *dispatchCampaignRepo) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.UUID.String() == id {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *dispatchCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.rows {
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *dispatchCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.add(c)
	return nil
}

func (r *dispatchCampaignRepo) SaveBatch(ctx context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		r.add(c)
	}
	return nil
}

func (r *dispatchCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	r.rows[c.ID] = &copied
	return nil
}

func (r *dispatchCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *dispatchCampaignRepo) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *dispatchCampaignRepo) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status}, "", limit, 0)
}

func (r *dispatchCampaignRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	scheduled := models.CampaignStatusScheduled
	rows, _ := r.ByFilter(ctx, models.CampaignFilter{Status: &scheduled}, "", 0, 0)
	var out []*models.Campaign
	for _, c := range rows {
		if c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *dispatchCampaignRepo) UpdateStatus(ctx context.Context, campaignID uint, from, to models.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[campaignID]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *dispatchCampaignRepo) IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta, deliveredDelta int, costDelta float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[campaignID]
	if !ok {
		return nil
	}
	c.SentCount += sentDelta
	c.FailedCount += failedDelta
	c.DeliveredCount += deliveredDelta
	c.ActualCost += costDelta
	c.RecomputeProgress()
	return nil
}

func (r *dispatchCampaignRepo) UpdateFields(ctx context.Context, campaignID uint, fields map[string]any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[campaignID]
	if !ok {
		return nil
	}
	for column, value := range fields {
		switch column {
		case "scheduled_at":
			c.ScheduledAt, _ = value.(*time.Time)
		case "started_at":
			c.StartedAt, _ = value.(*time.Time)
		case "completed_at":
			c.CompletedAt, _ = value.(*time.Time)
		case "error_message":
			c.ErrorMessage, _ = value.(*string)
		}
	}
	return nil
}

type dispatchContactRepo struct {
	mu       sync.Mutex
	lists    map[uint]*models.ContactList
	contacts map[uint][]*models.Contact
	messages *dispatchMessageRepo
	nextID   uint
}

func newDispatchContactRepo(messages *dispatchMessageRepo) *dispatchContactRepo {
	return &dispatchContactRepo{
		lists:    make(map[uint]*models.ContactList),
		contacts: make(map[uint][]*models.Contact),
		messages: messages,
		nextID:   1,
	}
}

func (r *dispatchContactRepo) addList(customerID uint, numbers ...string) *models.ContactList {
	r.mu.Lock()
	defer r.mu.Unlock()
	list := &models.ContactList{
		ID:           r.nextID,
		UUID:         uuid.New(),
		CustomerID:   customerID,
		Name:         "list",
		ContactCount: len(numbers),
		IsActive:     utils.ToPtr(true),
	}
	r.nextID++
	r.lists[list.ID] = list
	for _, number := range numbers {
		contact := &models.Contact{ID: r.nextID, ContactListID: list.ID, PhoneNumber: number}
		r.nextID++
		r.contacts[list.ID] = append(r.contacts[list.ID], contact)
	}
	return list
}

func (r *dispatchContactRepo) ListByID(ctx context.Context, listID uint) (*models.ContactList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if list, ok := r.lists[listID]; ok {
		copied := *list
		return &copied, nil
	}
	return nil, nil
}

func (r *dispatchContactRepo) CountByList(ctx context.Context, listID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.contacts[listID])), nil
}

func (r *dispatchContactRepo) ListUnprocessed(ctx context.Context, listID, campaignID uint, limit int) ([]*models.Contact, error) {
	r.mu.Lock()
	contacts := append([]*models.Contact(nil), r.contacts[listID]...)
	r.mu.Unlock()

	var out []*models.Contact
	for _, contact := range contacts {
		if campaignID != 0 && r.messages.hasForContact(campaignID, contact.ID) {
			continue
		}
		copied := *contact
		out = append(out, &copied)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *dispatchContactRepo) SaveList(ctx context.Context, list *models.ContactList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if list.ID == 0 {
		list.ID = r.nextID
		r.nextID++
	}
	r.lists[list.ID] = list
	return nil
}

func (r *dispatchContactRepo) SaveContacts(ctx context.Context, contacts []*models.Contact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, contact := range contacts {
		if contact.ID == 0 {
			contact.ID = r.nextID
			r.nextID++
		}
		r.contacts[contact.ContactListID] = append(r.contacts[contact.ContactListID], contact)
	}
	return nil
}

type dispatchMessageRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Message
	nextID uint
}

func newDispatchMessageRepo() *dispatchMessageRepo {
	return &dispatchMessageRepo{rows: make(map[uint]*models.Message), nextID: 1}
}

func (r *dispatchMessageRepo) add(m *models.Message) *models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m.ID == 0 {
		m.ID = r.nextID
		r.nextID++
	}
	if m.UUID == uuid.Nil {
		m.UUID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = utils.UTCNow()
	}
	copied := *m
	r.rows[m.ID] = &copied
	return m
}

func (r *dispatchMessageRepo) get(id uint) *models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *dispatchMessageRepo) all() []*models.Message {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*models.Message, 0, len(r.rows))
	for _, m := range r.rows {
		copied := *m
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *dispatchMessageRepo) hasForContact(campaignID, contactID uint) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, m := range r.rows {
		if m.CampaignID != nil && *m.CampaignID == campaignID &&
			m.ContactID != nil && *m.ContactID == contactID {
			return true
		}
	}
	return false
}

func (r *dispatchMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.rows[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (r *dispatchMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.all() {
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		out = append(out, m)
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *dispatchMessageRepo) Save(ctx context.Context, m *models.Message) error {
	r.add(m)
	return nil
}

func (r *dispatchMessageRepo) SaveBatch(ctx context.Context, ms []*models.Message) error {
	for _, m := range ms {
		r.add(m)
	}
	return nil
}

func (r *dispatchMessageRepo) Update(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.UpdatedAt = utils.UTCNowPtr()
	copied := *m
	r.rows[m.ID] = &copied
	return nil
}

func (r *dispatchMessageRepo) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *dispatchMessageRepo) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *dispatchMessageRepo) ByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	for _, m := range r.all() {
		if m.MessageID != nil && *m.MessageID == messageID {
			return m, nil
		}
	}
	return nil, nil
}

func (r *dispatchMessageRepo) ListForPeriod(ctx context.Context, customerID uint, start, end time.Time, afterID uint, limit int) ([]*models.Message, error) {
	return nil, nil
}

func (r *dispatchMessageRepo) UnbilledUsage(ctx context.Context, customerID uint, since time.Time) (int, float64, error) {
	return 0, 0, nil
}

func (r *dispatchMessageRepo) ListRetryable(ctx context.Context, limit int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.all() {
		if m.Status == models.MessageStatusQueued && m.RetryCount < m.MaxRetries {
			out = append(out, m)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// stubCampaignFlow applies the lifecycle transitions the dispatcher drives
// straight against the campaign repo; the request-path operations are never
// called here.
type stubCampaignFlow struct {
	businessflow.CampaignFlow
	repo *dispatchCampaignRepo
}

func (f *stubCampaignFlow) MarkCompleted(ctx context.Context, campaignID uint) error {
	ok, err := f.repo.UpdateStatus(ctx, campaignID, models.CampaignStatusSending, models.CampaignStatusCompleted)
	if err != nil || !ok {
		return err
	}
	return f.repo.UpdateFields(ctx, campaignID, map[string]any{"completed_at": utils.UTCNowPtr()})
}

func (f *stubCampaignFlow) MarkFailed(ctx context.Context, campaignID uint, reason string) error {
	ok, err := f.repo.UpdateStatus(ctx, campaignID, models.CampaignStatusSending, models.CampaignStatusFailed)
	if err != nil || !ok {
		return err
	}
	return f.repo.UpdateFields(ctx, campaignID, map[string]any{"error_message": &reason, "completed_at": utils.UTCNowPtr()})
}

// scriptedRoutingFlow hands out a fixed provider and counts usage charges.
type scriptedRoutingFlow struct {
	mu         sync.Mutex
	err        error
	provider   *models.Provider
	assignment *models.ProviderAssignment
	usage      int
}

func (f *scriptedRoutingFlow) SelectProvider(ctx context.Context, customerID uint, destination string) (*models.Provider, *models.ProviderAssignment, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, nil, f.err
	}
	return f.provider, f.assignment, nil
}

func (f *scriptedRoutingFlow) RecordUsage(ctx context.Context, assignment *models.ProviderAssignment) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.usage++
	return nil
}

func (f *scriptedRoutingFlow) usageCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.usage
}

// flatRateFlow prices every destination the same.
type flatRateFlow struct {
	rate businessflow.ResolvedRate
	err  error
}

func (f *flatRateFlow) ResolveRate(ctx context.Context, customerID uint, destination string) (*businessflow.ResolvedRate, error) {
	if f.err != nil {
		return nil, f.err
	}
	copied := f.rate
	return &copied, nil
}

// countingTriggerFlow records threshold evaluations without billing anything.
type countingTriggerFlow struct {
	businessflow.BillingTriggerFlow
	mu        sync.Mutex
	evaluated int
}

func (f *countingTriggerFlow) EvaluateThreshold(ctx context.Context, customerID uint) (*models.BillingRecord, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.evaluated++
	return nil, nil
}

func (f *countingTriggerFlow) evaluatedCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.evaluated
}

// scriptedGateway answers sends with a per-destination script and records
// every call. The zero script accepts everything.
type scriptedGateway struct {
	mu    sync.Mutex
	send  func(to string) (*services.SendResult, error)
	calls []string
}

func (g *scriptedGateway) Name() string { return "testgw" }

func (g *scriptedGateway) SupportsCountry(code string) bool { return true }

func (g *scriptedGateway) Send(ctx context.Context, to, from, body string) (*services.SendResult, error) {
	g.mu.Lock()
	g.calls = append(g.calls, to)
	script := g.send
	g.mu.Unlock()
	if script == nil {
		return &services.SendResult{Success: true, MessageID: "mid-" + to}, nil
	}
	return script(to)
}

func (g *scriptedGateway) callCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.calls)
}
