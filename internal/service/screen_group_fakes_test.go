package service

import (
	"context"
	"database/sql"
	"encoding/json"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	"github.com/dapoteju/beamer-mono-sub001/internal/repository"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
)

const (
	orgLagos  = "org-lagos"
	orgAbuja  = "org-abuja"
	groupMall = "0b0e8b58-7d1c-4a59-9a0f-000000000001"
	groupAir  = "0b0e8b58-7d1c-4a59-9a0f-000000000002"
	groupRoad = "0b0e8b58-7d1c-4a59-9a0f-000000000003"
)

var testNow = time.Date(2026, 5, 4, 12, 0, 0, 0, time.UTC)

func strPtr(v string) *string { return &v }

func intPtr(v int) *int { return &v }

func timePtr(v time.Time) *time.Time { return &v }

func adminActor() *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-admin", Role: models.RoleAdmin}
}

func publisherActor(org string) *models.JWTClaims {
	return &models.JWTClaims{UserID: "user-pub", Role: models.RolePublisher, OrgID: org}
}

// newScreen builds a screen; seenAgo < 0 means the screen never reported.
func newScreen(id, code, name, region string, w, h int, seenAgo time.Duration) models.Screen {
	s := models.Screen{ID: id, Code: code, PublisherID: orgLagos}
	if name != "" {
		s.Name = strPtr(name)
	}
	if region != "" {
		s.RegionCode = strPtr(region)
	}
	if w > 0 && h > 0 {
		s.Width = intPtr(w)
		s.Height = intPtr(h)
	}
	if seenAgo >= 0 {
		s.LastSeenAt = timePtr(testNow.Add(-seenAgo))
	}
	return s
}

type memScreens struct {
	items map[string]models.Screen
}

func newMemScreens(screens ...models.Screen) *memScreens {
	m := &memScreens{items: map[string]models.Screen{}}
	for _, s := range screens {
		m.items[s.ID] = s
	}
	return m
}

func (m *memScreens) FindByID(ctx context.Context, id string) (*models.Screen, error) {
	s, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return &s, nil
}

func (m *memScreens) match(orgID string, values []string, key func(models.Screen) string) []models.Screen {
	want := map[string]struct{}{}
	for _, v := range values {
		want[v] = struct{}{}
	}
	var out []models.Screen
	for _, s := range m.items {
		if orgID != "" && s.PublisherID != orgID {
			continue
		}
		if _, ok := want[key(s)]; ok {
			out = append(out, s)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memScreens) FindByIDs(ctx context.Context, orgID string, ids []string) ([]models.Screen, error) {
	return m.match(orgID, ids, func(s models.Screen) string { return s.ID }), nil
}

func (m *memScreens) FindByCodes(ctx context.Context, orgID string, codes []string) ([]models.Screen, error) {
	return m.match(orgID, lowerStrings(codes), func(s models.Screen) string { return strings.ToLower(s.Code) }), nil
}

func (m *memScreens) FindByNames(ctx context.Context, orgID string, names []string) ([]models.Screen, error) {
	return m.match(orgID, lowerStrings(names), func(s models.Screen) string {
		if s.Name == nil {
			return ""
		}
		return strings.ToLower(*s.Name)
	}), nil
}

func lowerStrings(values []string) []string {
	out := make([]string, len(values))
	for i, v := range values {
		out[i] = strings.ToLower(v)
	}
	return out
}

// memStore keeps groups and memberships in memory with the same semantics as
// the Postgres repository.
type memStore struct {
	mu      sync.Mutex
	screens *memScreens
	groups  map[string]*models.ScreenGroup
	members map[string]map[string]time.Time

	addCalls     int
	removeCalls  int
	memberFilter models.MemberFilter
}

func newMemStore(screens *memScreens, groups ...models.ScreenGroup) *memStore {
	m := &memStore{screens: screens, groups: map[string]*models.ScreenGroup{}, members: map[string]map[string]time.Time{}}
	for i := range groups {
		g := groups[i]
		m.groups[g.ID] = &g
		m.members[g.ID] = map[string]time.Time{}
	}
	return m
}

func (m *memStore) seed(groupID string, screenIDs ...string) {
	for _, id := range screenIDs {
		m.members[groupID][id] = testNow
	}
	m.groups[groupID].ScreenCount = len(m.members[groupID])
}

func (m *memStore) List(ctx context.Context, filter models.ScreenGroupFilter) ([]models.ScreenGroup, int, error) {
	var out []models.ScreenGroup
	q := strings.ToLower(strings.TrimSpace(filter.Query))
	for _, g := range m.groups {
		if filter.OrgID != "" && g.OrgID != filter.OrgID {
			continue
		}
		if filter.Archived != nil && g.IsArchived != *filter.Archived {
			continue
		}
		if q != "" {
			desc := ""
			if g.Description != nil {
				desc = *g.Description
			}
			if !strings.Contains(strings.ToLower(g.Name), q) && !strings.Contains(strings.ToLower(desc), q) {
				continue
			}
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool {
		a, b := strings.ToLower(out[i].Name), strings.ToLower(out[j].Name)
		if a != b {
			return a < b
		}
		return out[i].ID < out[j].ID
	})
	return out, len(out), nil
}

func (m *memStore) FindByID(ctx context.Context, id string) (*models.ScreenGroup, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	g, ok := m.groups[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	cp := *g
	return &cp, nil
}

func (m *memStore) FindByIDs(ctx context.Context, ids []string) ([]models.ScreenGroup, error) {
	var out []models.ScreenGroup
	for _, id := range ids {
		if g, ok := m.groups[id]; ok {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (m *memStore) ExistsActiveByName(ctx context.Context, orgID, name, excludeID string) (bool, error) {
	for _, g := range m.groups {
		if g.OrgID == orgID && !g.IsArchived && strings.EqualFold(g.Name, name) && g.ID != excludeID {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) Create(ctx context.Context, group *models.ScreenGroup) error {
	if exists, _ := m.ExistsActiveByName(ctx, group.OrgID, group.Name, ""); exists {
		return repository.ErrDuplicateGroupName
	}
	if group.ID == "" {
		group.ID = uuid.NewString()
	}
	group.CreatedAt = testNow
	group.UpdatedAt = testNow
	cp := *group
	m.groups[group.ID] = &cp
	m.members[group.ID] = map[string]time.Time{}
	return nil
}

func (m *memStore) Update(ctx context.Context, group *models.ScreenGroup) error {
	if _, ok := m.groups[group.ID]; !ok {
		return sql.ErrNoRows
	}
	cp := *group
	m.groups[group.ID] = &cp
	return nil
}

func (m *memStore) Delete(ctx context.Context, id string, force bool) (int, error) {
	if _, ok := m.groups[id]; !ok {
		return 0, sql.ErrNoRows
	}
	n := len(m.members[id])
	if n > 0 && !force {
		return n, repository.ErrGroupNotEmpty
	}
	delete(m.members, id)
	delete(m.groups, id)
	return n, nil
}

func (m *memStore) AddMembers(ctx context.Context, groupID string, screenIDs []string, addedBy *string) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.addCalls++
	if _, ok := m.groups[groupID]; !ok {
		return nil, sql.ErrNoRows
	}
	var added []string
	for _, id := range screenIDs {
		if _, ok := m.members[groupID][id]; ok {
			continue
		}
		m.members[groupID][id] = testNow
		added = append(added, id)
	}
	m.groups[groupID].ScreenCount = len(m.members[groupID])
	return added, nil
}

func (m *memStore) RemoveMembers(ctx context.Context, groupID string, screenIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.removeCalls++
	removed := 0
	for _, id := range screenIDs {
		if _, ok := m.members[groupID][id]; ok {
			delete(m.members[groupID], id)
			removed++
		}
	}
	m.groups[groupID].ScreenCount = len(m.members[groupID])
	return removed, nil
}

func (m *memStore) MemberScreens(ctx context.Context, groupID string) ([]models.MemberScreen, error) {
	var out []models.MemberScreen
	for id, addedAt := range m.members[groupID] {
		if s, ok := m.screens.items[id]; ok {
			out = append(out, models.MemberScreen{Screen: s, AddedAt: addedAt})
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memStore) ListMembers(ctx context.Context, filter models.MemberFilter) ([]models.MemberScreen, int, error) {
	m.memberFilter = filter
	all, _ := m.MemberScreens(ctx, filter.GroupID)
	var matched []models.MemberScreen
	for _, s := range all {
		if filter.Status != nil {
			online := s.LastSeenAt != nil && !s.LastSeenAt.Before(filter.OnlineSince)
			if online != (*filter.Status == models.ScreenStatusOnline) {
				continue
			}
		}
		if filter.Region != "" && s.Region() != filter.Region {
			continue
		}
		matched = append(matched, s)
	}
	start := (filter.Page - 1) * filter.PageSize
	if start > len(matched) {
		start = len(matched)
	}
	end := start + filter.PageSize
	if end > len(matched) {
		end = len(matched)
	}
	return matched[start:end], len(matched), nil
}

func (m *memStore) StatusCounts(ctx context.Context, groupID string, onlineSince time.Time) (int, int, error) {
	online, offline := 0, 0
	all, _ := m.MemberScreens(ctx, groupID)
	for _, s := range all {
		if s.LastSeenAt != nil && !s.LastSeenAt.Before(onlineSince) {
			online++
		} else {
			offline++
		}
	}
	return online, offline, nil
}

func (m *memStore) ScreensForGroups(ctx context.Context, groupIDs []string) ([]models.GroupScreen, error) {
	var out []models.GroupScreen
	for _, gid := range groupIDs {
		members, _ := m.MemberScreens(ctx, gid)
		for _, s := range members {
			out = append(out, models.GroupScreen{GroupID: gid, Screen: s.Screen})
		}
	}
	return out, nil
}

func (m *memStore) ListForScreen(ctx context.Context, screenID string) ([]models.ScreenGroup, error) {
	var out []models.ScreenGroup
	for gid, members := range m.members {
		if _, ok := members[screenID]; ok {
			out = append(out, *m.groups[gid])
		}
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

func (m *memStore) ListAvailableForScreen(ctx context.Context, orgID, screenID string) ([]models.ScreenGroup, error) {
	var out []models.ScreenGroup
	for gid, g := range m.groups {
		if g.OrgID != orgID || g.IsArchived {
			continue
		}
		if _, ok := m.members[gid][screenID]; ok {
			continue
		}
		out = append(out, *g)
	}
	sort.Slice(out, func(i, j int) bool { return strings.ToLower(out[i].Name) < strings.ToLower(out[j].Name) })
	return out, nil
}

type recordingInvalidator struct {
	mu  sync.Mutex
	ids []string
}

func (r *recordingInvalidator) Invalidate(ctx context.Context, groupIDs ...string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ids = append(r.ids, groupIDs...)
}

// memCache implements CacheRepository over a map.
type memCache struct {
	values  map[string][]byte
	deleted []string
}

func newMemCache() *memCache {
	return &memCache{values: map[string][]byte{}}
}

func (c *memCache) Get(ctx context.Context, key string, dest interface{}) error {
	raw, ok := c.values[key]
	if !ok {
		return appErrors.ErrCacheMiss
	}
	return json.Unmarshal(raw, dest)
}

func (c *memCache) Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	c.values[key] = raw
	return nil
}

func (c *memCache) Delete(ctx context.Context, keys ...string) error {
	for _, k := range keys {
		delete(c.values, k)
		c.deleted = append(c.deleted, k)
	}
	return nil
}
