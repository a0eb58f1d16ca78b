package businessflow

import (
	"context"
	"sort"
	"sync"
	"time"

	"sms-backend/app/services"
	"sms-backend/models"
	"sms-backend/utils"

	"github.com/google/uuid"
)

// In-memory repository fakes shared by the flow tests. Each fake implements
// only the semantics the flows rely on; unsupported filter fields are ignored.

type fakeCustomerRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Customer
	nextID uint
}

func newFakeCustomerRepo() *fakeCustomerRepo {
	return &fakeCustomerRepo{rows: make(map[uint]*models.Customer), nextID: 1}
}

func (r *fakeCustomerRepo) add(c *models.Customer) *models.Customer {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	r.rows[c.ID] = c
	return c
}

func (r *fakeCustomerRepo) ByID(ctx context.Context, id uint) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeCustomerRepo) ByFilter(ctx context.Context, filter models.CustomerFilter, orderBy string, limit, offset int) ([]*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Customer
	for _, c := range r.rows {
		if filter.IsActive != nil && utils.IsTrue(c.IsActive) != *filter.IsActive {
			continue
		}
		if filter.UUID != nil && c.UUID != *filter.UUID {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return applyPage(out, limit, offset), nil
}

func (r *fakeCustomerRepo) Save(ctx context.Context, c *models.Customer) error {
	r.add(c)
	return nil
}

func (r *fakeCustomerRepo) SaveBatch(ctx context.Context, cs []*models.Customer) error {
	for _, c := range cs {
		r.add(c)
	}
	return nil
}

func (r *fakeCustomerRepo) Update(ctx context.Context, c *models.Customer) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *c
	r.rows[c.ID] = &copied
	return nil
}

func (r *fakeCustomerRepo) Count(ctx context.Context, filter models.CustomerFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeCustomerRepo) Exists(ctx context.Context, filter models.CustomerFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeCustomerRepo) ByEmail(ctx context.Context, email string) (*models.Customer, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.rows {
		if c.Email == email {
			copied := *c
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeCampaignRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Campaign
	nextID uint
}

func newFakeCampaignRepo() *fakeCampaignRepo {
	return &fakeCampaignRepo{rows: make(map[uint]*models.Campaign), nextID: 1}
}

func (r *fakeCampaignRepo) add(c *models.Campaign) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c.ID == 0 {
		c.ID = r.nextID
		r.nextID++
	}
	if c.UUID == uuid.Nil {
		c.UUID = uuid.New()
	}
	if c.Status == "" {
		c.Status = models.CampaignStatusDraft
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = utils.UTCNow()
	}
	r.rows[c.ID] = c
	return c
}

func (r *fakeCampaignRepo) get(id uint) *models.Campaign {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *fakeCampaignRepo) ByID(ctx context.Context, id uint) (*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if c, ok := r.rows[id]; ok {
		copied := *c
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeCampaignRepo) ByUUID(ctx context.Context, id string) (*models.Campaign, error) {
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

func (r *fakeCampaignRepo) ByFilter(ctx context.Context, filter models.CampaignFilter, orderBy string, limit, offset int) ([]*models.Campaign, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Campaign
	for _, c := range r.rows {
		if filter.CustomerID != nil && c.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && c.Status != *filter.Status {
			continue
		}
		copied := *c
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return applyPage(out, limit, offset), nil
}

func (r *fakeCampaignRepo) Save(ctx context.Context, c *models.Campaign) error {
	r.add(c)
	return nil
}

func (r *fakeCampaignRepo) SaveBatch(ctx context.Context, cs []*models.Campaign) error {
	for _, c := range cs {
		r.add(c)
	}
	return nil
}

func (r *fakeCampaignRepo) Update(ctx context.Context, c *models.Campaign) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	stored, ok := r.rows[c.ID]
	if !ok {
		return nil
	}
	copied := *c
	// the status column is owned by UpdateStatus's conditional flip
	copied.Status = stored.Status
	r.rows[c.ID] = &copied
	return nil
}

func (r *fakeCampaignRepo) Count(ctx context.Context, filter models.CampaignFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeCampaignRepo) Exists(ctx context.Context, filter models.CampaignFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeCampaignRepo) ListByStatus(ctx context.Context, status models.CampaignStatus, limit int) ([]*models.Campaign, error) {
	return r.ByFilter(ctx, models.CampaignFilter{Status: &status}, "", limit, 0)
}

func (r *fakeCampaignRepo) ListDueScheduled(ctx context.Context, now time.Time, limit int) ([]*models.Campaign, error) {
	scheduled := models.CampaignStatusScheduled
	rows, _ := r.ByFilter(ctx, models.CampaignFilter{Status: &scheduled}, "", 0, 0)
	var out []*models.Campaign
	for _, c := range rows {
		if c.ScheduledAt != nil && !c.ScheduledAt.After(now) {
			out = append(out, c)
		}
	}
	return applyPage(out, limit, 0), nil
}

func (r *fakeCampaignRepo) UpdateStatus(ctx context.Context, campaignID uint, from, to models.CampaignStatus) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	c, ok := r.rows[campaignID]
	if !ok || c.Status != from {
		return false, nil
	}
	c.Status = to
	return true, nil
}

func (r *fakeCampaignRepo) IncrementCounters(ctx context.Context, campaignID uint, sentDelta, failedDelta, deliveredDelta int, costDelta float64) error {
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

func (r *fakeCampaignRepo) UpdateFields(ctx context.Context, campaignID uint, fields map[string]any) error {
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
		case "sent_count":
			c.SentCount = toInt(value)
		case "failed_count":
			c.FailedCount = toInt(value)
		case "delivered_count":
			c.DeliveredCount = toInt(value)
		case "progress":
			c.Progress = toInt(value)
		case "actual_cost":
			c.ActualCost, _ = value.(float64)
		}
	}
	return nil
}

func toInt(value any) int {
	n, _ := value.(int)
	return n
}

type fakeContactRepo struct {
	mu       sync.Mutex
	lists    map[uint]*models.ContactList
	contacts map[uint][]*models.Contact
	messages *fakeMessageRepo
	nextID   uint
}

func newFakeContactRepo(messages *fakeMessageRepo) *fakeContactRepo {
	return &fakeContactRepo{
		lists:    make(map[uint]*models.ContactList),
		contacts: make(map[uint][]*models.Contact),
		messages: messages,
		nextID:   1,
	}
}

func (r *fakeContactRepo) addList(customerID uint, numbers ...string) *models.ContactList {
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

func (r *fakeContactRepo) ListByID(ctx context.Context, listID uint) (*models.ContactList, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if list, ok := r.lists[listID]; ok {
		copied := *list
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeContactRepo) CountByList(ctx context.Context, listID uint) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.contacts[listID])), nil
}

func (r *fakeContactRepo) ListUnprocessed(ctx context.Context, listID, campaignID uint, limit int) ([]*models.Contact, error) {
	r.mu.Lock()
	contacts := append([]*models.Contact(nil), r.contacts[listID]...)
	r.mu.Unlock()

	var out []*models.Contact
	for _, contact := range contacts {
		if campaignID != 0 && r.messages != nil && r.messages.hasForContact(campaignID, contact.ID) {
			continue
		}
		copied := *contact
		out = append(out, &copied)
	}
	return applyPage(out, limit, 0), nil
}

func (r *fakeContactRepo) SaveList(ctx context.Context, list *models.ContactList) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if list.ID == 0 {
		list.ID = r.nextID
		r.nextID++
	}
	r.lists[list.ID] = list
	return nil
}

func (r *fakeContactRepo) SaveContacts(ctx context.Context, contacts []*models.Contact) error {
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

type fakeMessageRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Message
	nextID uint
}

func newFakeMessageRepo() *fakeMessageRepo {
	return &fakeMessageRepo{rows: make(map[uint]*models.Message), nextID: 1}
}

func (r *fakeMessageRepo) add(m *models.Message) *models.Message {
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

func (r *fakeMessageRepo) hasForContact(campaignID, contactID uint) bool {
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

func (r *fakeMessageRepo) all() []*models.Message {
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

func (r *fakeMessageRepo) ByID(ctx context.Context, id uint) (*models.Message, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if m, ok := r.rows[id]; ok {
		copied := *m
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeMessageRepo) ByFilter(ctx context.Context, filter models.MessageFilter, orderBy string, limit, offset int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.all() {
		if filter.CustomerID != nil && m.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.CampaignID != nil && (m.CampaignID == nil || *m.CampaignID != *filter.CampaignID) {
			continue
		}
		if filter.Status != nil && m.Status != *filter.Status {
			continue
		}
		out = append(out, m)
	}
	return applyPage(out, limit, offset), nil
}

func (r *fakeMessageRepo) Save(ctx context.Context, m *models.Message) error {
	r.add(m)
	return nil
}

func (r *fakeMessageRepo) SaveBatch(ctx context.Context, ms []*models.Message) error {
	for _, m := range ms {
		r.add(m)
	}
	return nil
}

func (r *fakeMessageRepo) Update(ctx context.Context, m *models.Message) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	m.UpdatedAt = utils.UTCNowPtr()
	copied := *m
	r.rows[m.ID] = &copied
	return nil
}

func (r *fakeMessageRepo) Count(ctx context.Context, filter models.MessageFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeMessageRepo) Exists(ctx context.Context, filter models.MessageFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeMessageRepo) ByMessageID(ctx context.Context, messageID string) (*models.Message, error) {
	for _, m := range r.all() {
		if m.MessageID != nil && *m.MessageID == messageID {
			return m, nil
		}
	}
	return nil, nil
}

func billingTimestamp(m *models.Message) time.Time {
	if m.SentAt != nil {
		return *m.SentAt
	}
	if m.FailedAt != nil {
		return *m.FailedAt
	}
	return m.CreatedAt
}

func (r *fakeMessageRepo) ListForPeriod(ctx context.Context, customerID uint, start, end time.Time, afterID uint, limit int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.all() {
		if m.CustomerID != customerID || m.ID <= afterID {
			continue
		}
		ts := billingTimestamp(m)
		if ts.Before(start) || !ts.Before(end) {
			continue
		}
		out = append(out, m)
	}
	return applyPage(out, limit, 0), nil
}

func (r *fakeMessageRepo) UnbilledUsage(ctx context.Context, customerID uint, since time.Time) (int, float64, error) {
	count := 0
	cost := 0.0
	for _, m := range r.all() {
		if m.CustomerID != customerID || !m.Status.IsSuccessful() {
			continue
		}
		if m.SentAt == nil || m.SentAt.Before(since) {
			continue
		}
		count++
		cost += m.Cost
	}
	return count, cost, nil
}

func (r *fakeMessageRepo) ListRetryable(ctx context.Context, limit int) ([]*models.Message, error) {
	var out []*models.Message
	for _, m := range r.all() {
		if m.Status == models.MessageStatusQueued && m.RetryCount < m.MaxRetries {
			out = append(out, m)
		}
	}
	return applyPage(out, limit, 0), nil
}

type fakeAssignmentRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.ProviderAssignment
	nextID uint
}

func newFakeAssignmentRepo() *fakeAssignmentRepo {
	return &fakeAssignmentRepo{rows: make(map[uint]*models.ProviderAssignment), nextID: 1}
}

func (r *fakeAssignmentRepo) add(a *models.ProviderAssignment) *models.ProviderAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a.ID == 0 {
		a.ID = r.nextID
		r.nextID++
	}
	if a.UUID == uuid.Nil {
		a.UUID = uuid.New()
	}
	now := utils.UTCNow()
	if a.LastResetDaily.IsZero() {
		a.LastResetDaily = utils.StartOfDay(now)
	}
	if a.LastResetMonthly.IsZero() {
		a.LastResetMonthly = utils.StartOfMonth(now)
	}
	r.rows[a.ID] = a
	return a
}

func (r *fakeAssignmentRepo) get(id uint) *models.ProviderAssignment {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *fakeAssignmentRepo) ByID(ctx context.Context, id uint) (*models.ProviderAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if a, ok := r.rows[id]; ok {
		copied := *a
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeAssignmentRepo) ByFilter(ctx context.Context, filter models.ProviderAssignmentFilter, orderBy string, limit, offset int) ([]*models.ProviderAssignment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.ProviderAssignment
	for _, a := range r.rows {
		if filter.CustomerID != nil && a.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.IsActive != nil && utils.IsTrue(a.IsActive) != *filter.IsActive {
			continue
		}
		copied := *a
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Priority != out[j].Priority {
			return out[i].Priority < out[j].Priority
		}
		return out[i].ID < out[j].ID
	})
	return applyPage(out, limit, offset), nil
}

func (r *fakeAssignmentRepo) Save(ctx context.Context, a *models.ProviderAssignment) error {
	r.add(a)
	return nil
}

func (r *fakeAssignmentRepo) SaveBatch(ctx context.Context, as []*models.ProviderAssignment) error {
	for _, a := range as {
		r.add(a)
	}
	return nil
}

func (r *fakeAssignmentRepo) Update(ctx context.Context, a *models.ProviderAssignment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *a
	r.rows[a.ID] = &copied
	return nil
}

func (r *fakeAssignmentRepo) Count(ctx context.Context, filter models.ProviderAssignmentFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeAssignmentRepo) Exists(ctx context.Context, filter models.ProviderAssignmentFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeAssignmentRepo) ListActiveByCustomer(ctx context.Context, customerID uint) ([]*models.ProviderAssignment, error) {
	active := true
	return r.ByFilter(ctx, models.ProviderAssignmentFilter{CustomerID: &customerID, IsActive: &active}, "", 0, 0)
}

func (r *fakeAssignmentRepo) RecordUsage(ctx context.Context, assignmentID uint, now time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.rows[assignmentID]
	if !ok {
		return nil
	}
	dayStart := utils.StartOfDay(now)
	monthStart := utils.StartOfMonth(now)
	if a.LastResetDaily.Before(dayStart) {
		a.DailyUsage = 1
		a.LastResetDaily = dayStart
	} else {
		a.DailyUsage++
	}
	if a.LastResetMonthly.Before(monthStart) {
		a.MonthlyUsage = 1
		a.LastResetMonthly = monthStart
	} else {
		a.MonthlyUsage++
	}
	return nil
}

type fakeProviderRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.Provider
	nextID uint
}

func newFakeProviderRepo() *fakeProviderRepo {
	return &fakeProviderRepo{rows: make(map[uint]*models.Provider), nextID: 1}
}

func (r *fakeProviderRepo) add(p *models.Provider) *models.Provider {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p.ID == 0 {
		p.ID = r.nextID
		r.nextID++
	}
	if p.UUID == uuid.Nil {
		p.UUID = uuid.New()
	}
	r.rows[p.ID] = p
	return p
}

func (r *fakeProviderRepo) ByID(ctx context.Context, id uint) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if p, ok := r.rows[id]; ok {
		copied := *p
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeProviderRepo) ByFilter(ctx context.Context, filter models.ProviderFilter, orderBy string, limit, offset int) ([]*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.Provider
	for _, p := range r.rows {
		copied := *p
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return applyPage(out, limit, offset), nil
}

func (r *fakeProviderRepo) Save(ctx context.Context, p *models.Provider) error {
	r.add(p)
	return nil
}

func (r *fakeProviderRepo) SaveBatch(ctx context.Context, ps []*models.Provider) error {
	for _, p := range ps {
		r.add(p)
	}
	return nil
}

func (r *fakeProviderRepo) Update(ctx context.Context, p *models.Provider) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *p
	r.rows[p.ID] = &copied
	return nil
}

func (r *fakeProviderRepo) Count(ctx context.Context, filter models.ProviderFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeProviderRepo) Exists(ctx context.Context, filter models.ProviderFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeProviderRepo) ByName(ctx context.Context, name string) (*models.Provider, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, p := range r.rows {
		if p.Name == name {
			copied := *p
			return &copied, nil
		}
	}
	return nil, nil
}

type fakeRateDeckRepo struct {
	mu     sync.Mutex
	decks  map[uint]*models.RateDeck
	rates  map[uint][]*models.Rate
	nextID uint
}

func newFakeRateDeckRepo() *fakeRateDeckRepo {
	return &fakeRateDeckRepo{decks: make(map[uint]*models.RateDeck), rates: make(map[uint][]*models.Rate), nextID: 1}
}

func (r *fakeRateDeckRepo) addDeck(customerID uint, rates map[string]float64) *models.RateDeck {
	r.mu.Lock()
	defer r.mu.Unlock()
	deck := &models.RateDeck{
		ID:         r.nextID,
		UUID:       uuid.New(),
		Name:       "deck",
		Currency:   "USD",
		Service:    models.RateDeckServiceSMS,
		CustomerID: &customerID,
		IsActive:   utils.ToPtr(true),
	}
	r.nextID++
	r.decks[deck.ID] = deck
	for prefix, rate := range rates {
		row := &models.Rate{ID: r.nextID, RateDeckID: deck.ID, Prefix: prefix, Rate: rate}
		r.nextID++
		r.rates[deck.ID] = append(r.rates[deck.ID], row)
	}
	return deck
}

func (r *fakeRateDeckRepo) ByID(ctx context.Context, id uint) (*models.RateDeck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.decks[id]; ok {
		copied := *d
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeRateDeckRepo) ByFilter(ctx context.Context, filter models.RateDeckFilter, orderBy string, limit, offset int) ([]*models.RateDeck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.RateDeck
	for _, d := range r.decks {
		copied := *d
		out = append(out, &copied)
	}
	return applyPage(out, limit, offset), nil
}

func (r *fakeRateDeckRepo) Save(ctx context.Context, d *models.RateDeck) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == 0 {
		d.ID = r.nextID
		r.nextID++
	}
	r.decks[d.ID] = d
	return nil
}

func (r *fakeRateDeckRepo) SaveBatch(ctx context.Context, ds []*models.RateDeck) error {
	for _, d := range ds {
		if err := r.Save(ctx, d); err != nil {
			return err
		}
	}
	return nil
}

func (r *fakeRateDeckRepo) Update(ctx context.Context, d *models.RateDeck) error {
	return r.Save(ctx, d)
}

func (r *fakeRateDeckRepo) Count(ctx context.Context, filter models.RateDeckFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeRateDeckRepo) Exists(ctx context.Context, filter models.RateDeckFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeRateDeckRepo) ByCustomerAndService(ctx context.Context, customerID uint, service models.RateDeckService) (*models.RateDeck, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.decks {
		if d.CustomerID != nil && *d.CustomerID == customerID && d.Service == service && utils.IsTrue(d.IsActive) {
			copied := *d
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeRateDeckRepo) LongestPrefixRate(ctx context.Context, rateDeckID uint, destination string) (*models.Rate, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var best *models.Rate
	for _, rate := range r.rates[rateDeckID] {
		if !hasPrefix(destination, rate.Prefix) {
			continue
		}
		if best == nil || len(rate.Prefix) > len(best.Prefix) {
			best = rate
		}
	}
	if best == nil {
		return nil, nil
	}
	copied := *best
	return &copied, nil
}

func (r *fakeRateDeckRepo) SaveRates(ctx context.Context, rates []*models.Rate) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rate := range rates {
		if rate.ID == 0 {
			rate.ID = r.nextID
			r.nextID++
		}
		r.rates[rate.RateDeckID] = append(r.rates[rate.RateDeckID], rate)
	}
	return nil
}

func hasPrefix(number, prefix string) bool {
	return len(number) >= len(prefix) && number[:len(prefix)] == prefix
}

type fakeBillingRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.BillingRecord
	nextID uint
}

func newFakeBillingRepo() *fakeBillingRepo {
	return &fakeBillingRepo{rows: make(map[uint]*models.BillingRecord), nextID: 1}
}

func (r *fakeBillingRepo) add(rec *models.BillingRecord) *models.BillingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec.ID == 0 {
		rec.ID = r.nextID
		r.nextID++
	}
	if rec.UUID == uuid.Nil {
		rec.UUID = uuid.New()
	}
	if rec.Status == "" {
		rec.Status = models.BillingRecordStatusPending
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = utils.UTCNow()
	}
	copied := *rec
	r.rows[rec.ID] = &copied
	return rec
}

func (r *fakeBillingRepo) get(id uint) *models.BillingRecord {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.rows[id]
}

func (r *fakeBillingRepo) ByID(ctx context.Context, id uint) (*models.BillingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if rec, ok := r.rows[id]; ok {
		copied := *rec
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeBillingRepo) ByFilter(ctx context.Context, filter models.BillingRecordFilter, orderBy string, limit, offset int) ([]*models.BillingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BillingRecord
	for _, rec := range r.rows {
		if filter.CustomerID != nil && rec.CustomerID != *filter.CustomerID {
			continue
		}
		if filter.Status != nil && rec.Status != *filter.Status {
			continue
		}
		if filter.UUID != nil && rec.UUID != *filter.UUID {
			continue
		}
		copied := *rec
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return applyPage(out, limit, offset), nil
}

func (r *fakeBillingRepo) Save(ctx context.Context, rec *models.BillingRecord) error {
	r.add(rec)
	return nil
}

func (r *fakeBillingRepo) SaveBatch(ctx context.Context, recs []*models.BillingRecord) error {
	for _, rec := range recs {
		r.add(rec)
	}
	return nil
}

func (r *fakeBillingRepo) Update(ctx context.Context, rec *models.BillingRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec.UpdatedAt = utils.UTCNowPtr()
	copied := *rec
	r.rows[rec.ID] = &copied
	return nil
}

func (r *fakeBillingRepo) Count(ctx context.Context, filter models.BillingRecordFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeBillingRepo) Exists(ctx context.Context, filter models.BillingRecordFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeBillingRepo) ListPending(ctx context.Context, limit int) ([]*models.BillingRecord, error) {
	pending := models.BillingRecordStatusPending
	return r.ByFilter(ctx, models.BillingRecordFilter{Status: &pending}, "", limit, 0)
}

func (r *fakeBillingRepo) Claim(ctx context.Context, recordID uint) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	rec, ok := r.rows[recordID]
	if !ok || rec.Status != models.BillingRecordStatusPending {
		return false, nil
	}
	rec.Status = models.BillingRecordStatusProcessing
	rec.UpdatedAt = utils.UTCNowPtr()
	return true, nil
}

func (r *fakeBillingRepo) ListProcessingOlderThan(ctx context.Context, cutoff time.Time, limit int) ([]*models.BillingRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BillingRecord
	for _, rec := range r.rows {
		if rec.Status != models.BillingRecordStatusProcessing {
			continue
		}
		updated := rec.CreatedAt
		if rec.UpdatedAt != nil {
			updated = *rec.UpdatedAt
		}
		if !updated.Before(cutoff) {
			continue
		}
		copied := *rec
		out = append(out, &copied)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return applyPage(out, limit, 0), nil
}

func (r *fakeBillingRepo) HasOverlapping(ctx context.Context, customerID uint, start, end time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, rec := range r.rows {
		if rec.CustomerID != customerID || rec.Status == models.BillingRecordStatusCancelled {
			continue
		}
		if rec.PeriodStart.Before(end) && start.Before(rec.PeriodEnd) {
			return true, nil
		}
	}
	return false, nil
}

func (r *fakeBillingRepo) LastPeriodEnd(ctx context.Context, customerID uint) (*time.Time, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var last *time.Time
	for _, rec := range r.rows {
		if rec.CustomerID != customerID || rec.Status == models.BillingRecordStatusCancelled {
			continue
		}
		end := rec.PeriodEnd
		if last == nil || end.After(*last) {
			last = &end
		}
	}
	return last, nil
}

type fakeSettingsRepo struct {
	mu     sync.Mutex
	rows   map[uint]*models.BillingSettings
	nextID uint
}

func newFakeSettingsRepo() *fakeSettingsRepo {
	return &fakeSettingsRepo{rows: make(map[uint]*models.BillingSettings), nextID: 1}
}

func (r *fakeSettingsRepo) add(s *models.BillingSettings) *models.BillingSettings {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s.ID == 0 {
		s.ID = r.nextID
		r.nextID++
	}
	if s.UUID == uuid.Nil {
		s.UUID = uuid.New()
	}
	r.rows[s.ID] = s
	return s
}

func (r *fakeSettingsRepo) ByID(ctx context.Context, id uint) (*models.BillingSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.rows[id]; ok {
		copied := *s
		return &copied, nil
	}
	return nil, nil
}

func (r *fakeSettingsRepo) ByFilter(ctx context.Context, filter models.BillingSettingsFilter, orderBy string, limit, offset int) ([]*models.BillingSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*models.BillingSettings
	for _, s := range r.rows {
		copied := *s
		out = append(out, &copied)
	}
	return applyPage(out, limit, offset), nil
}

func (r *fakeSettingsRepo) Save(ctx context.Context, s *models.BillingSettings) error {
	r.add(s)
	return nil
}

func (r *fakeSettingsRepo) SaveBatch(ctx context.Context, ss []*models.BillingSettings) error {
	for _, s := range ss {
		r.add(s)
	}
	return nil
}

func (r *fakeSettingsRepo) Update(ctx context.Context, s *models.BillingSettings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	copied := *s
	r.rows[s.ID] = &copied
	return nil
}

func (r *fakeSettingsRepo) Count(ctx context.Context, filter models.BillingSettingsFilter) (int64, error) {
	rows, _ := r.ByFilter(ctx, filter, "", 0, 0)
	return int64(len(rows)), nil
}

func (r *fakeSettingsRepo) Exists(ctx context.Context, filter models.BillingSettingsFilter) (bool, error) {
	n, _ := r.Count(ctx, filter)
	return n > 0, nil
}

func (r *fakeSettingsRepo) ByCustomer(ctx context.Context, customerID uint) (*models.BillingSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.CustomerID != nil && *s.CustomerID == customerID {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSettingsRepo) Global(ctx context.Context) (*models.BillingSettings, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.rows {
		if s.CustomerID == nil {
			copied := *s
			return &copied, nil
		}
	}
	return nil, nil
}

func (r *fakeSettingsRepo) ListCustomerIDsWithSettings(ctx context.Context) ([]uint, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []uint
	for _, s := range r.rows {
		if s.CustomerID != nil {
			out = append(out, *s.CustomerID)
		}
	}
	return out, nil
}

// fakeRateLimiter admits or refuses per provider id; nil entries admit.
type fakeRateLimiter struct {
	mu      sync.Mutex
	denied  map[uint]bool
	allowed int
}

func newFakeRateLimiter() *fakeRateLimiter {
	return &fakeRateLimiter{denied: make(map[uint]bool)}
}

func (l *fakeRateLimiter) Allow(ctx context.Context, providerID uint, perSecond, perMinute, perHour int) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied[providerID] {
		return false, nil
	}
	l.allowed++
	return true, nil
}

// fakeSippyClient scripts the ledger's behavior and records debit attempts.
type fakeSippyClient struct {
	mu          sync.Mutex
	accountInfo *services.SippyAccountInfo
	debitResp   *services.SippyDebitResponse
	debitErr    error
	foundTx     *services.SippyTransaction
	findErr     error
	debits      []float64
}

func (c *fakeSippyClient) AccountInfo(ctx context.Context, accountID int64) (*services.SippyAccountInfo, error) {
	if c.accountInfo == nil {
		return &services.SippyAccountInfo{AccountID: accountID, PaymentCurrency: "USD"}, nil
	}
	return c.accountInfo, nil
}

func (c *fakeSippyClient) Debit(ctx context.Context, accountID int64, amount float64, currency, memo string) (*services.SippyDebitResponse, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.debitErr != nil {
		return nil, c.debitErr
	}
	c.debits = append(c.debits, amount)
	return c.debitResp, nil
}

func (c *fakeSippyClient) debitCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.debits)
}

func (c *fakeSippyClient) FindTransactionByMemo(ctx context.Context, accountID int64, memo string, since time.Time) (*services.SippyTransaction, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	return c.foundTx, nil
}

func applyPage[T any](rows []*T, limit, offset int) []*T {
	if offset > 0 {
		if offset >= len(rows) {
			return nil
		}
		rows = rows[offset:]
	}
	if limit > 0 && len(rows) > limit {
		rows = rows[:limit]
	}
	return rows
}
