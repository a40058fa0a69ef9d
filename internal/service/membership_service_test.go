package service

import (
	"context"
	"math"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/dapoteju/beamer-mono-sub001/internal/models"
	appErrors "github.com/dapoteju/beamer-mono-sub001/pkg/errors"
	"github.com/dapoteju/beamer-mono-sub001/pkg/export"
)

func newMembershipFixture(cfg MembershipServiceConfig, groups ...models.ScreenGroup) (*MembershipService, *memStore, *recordingInvalidator) {
	screens := newMemScreens(
		newScreen("s1", "LAG-01", "Lagos-01", "LA", 1920, 1080, time.Minute),
		newScreen("s2", "LAG-02", "Lagos-02", "LA", 1920, 1080, time.Minute),
		newScreen("s3", "LAG-03", "Ikeja Mall", "LA", 1280, 720, time.Hour),
		newScreen("s4", "LAG-04", "Lagos-01", "OG", 1920, 1080, -1),
		newScreen("s5", "LAG-05", "", "", 0, 0, time.Minute),
	)
	abuja := newScreen("a1", "ABJ-01", "Wuse", "FC", 1920, 1080, time.Minute)
	abuja.PublisherID = orgAbuja
	screens.items[abuja.ID] = abuja

	if len(groups) == 0 {
		groups = []models.ScreenGroup{{ID: groupMall, OrgID: orgLagos, Name: "Lagos Malls"}}
	}
	store := newMemStore(screens, groups...)
	health := &recordingInvalidator{}
	svc := NewMembershipService(store, screens, health, NewMetricsService(), validator.New(), zap.NewNop(), cfg)
	svc.now = func() time.Time { return testNow }
	return svc, store, health
}

func TestMembershipServiceAddMembersIdempotent(t *testing.T) {
	svc, store, health := newMembershipFixture(MembershipServiceConfig{})
	store.seed(groupMall, "s1")

	req := MemberIDsRequest{ScreenIDs: []string{"s1", "s2", "s3"}}
	result, err := svc.AddMembers(context.Background(), groupMall, req, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 1, result.Skipped)

	result, err = svc.AddMembers(context.Background(), groupMall, req, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Added)
	assert.Equal(t, 3, result.Skipped)

	assert.Equal(t, 3, store.groups[groupMall].ScreenCount)
	assert.Equal(t, []string{groupMall}, health.ids)
}

func TestMembershipServiceAddMembersCollapsesDuplicates(t *testing.T) {
	svc, _, _ := newMembershipFixture(MembershipServiceConfig{})

	result, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s1", " s1", "s2", ""}}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, result.Added)
	assert.Equal(t, 0, result.Skipped)
}

func TestMembershipServiceAddMembersUnknownScreenFailsWholeCall(t *testing.T) {
	svc, store, _ := newMembershipFixture(MembershipServiceConfig{})

	_, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s1", "ghost", "s2"}}, adminActor())
	require.Error(t, err)
	typed := appErrors.FromError(err)
	assert.Equal(t, appErrors.ErrNotFound.Code, typed.Code)
	assert.Contains(t, typed.Message, "ghost")
	assert.Equal(t, map[string]interface{}{"screen_id": "ghost"}, typed.Details)
	assert.Empty(t, store.members[groupMall])
	assert.Equal(t, 0, store.addCalls)
}

func TestMembershipServiceAddMembersRejectsOtherOrgScreens(t *testing.T) {
	svc, _, _ := newMembershipFixture(MembershipServiceConfig{})

	_, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"a1"}}, adminActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestMembershipServiceAddMembersEmptySet(t *testing.T) {
	svc, _, _ := newMembershipFixture(MembershipServiceConfig{})

	_, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{" ", ""}}, adminActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestMembershipServiceAddMembersUnknownGroup(t *testing.T) {
	svc, _, _ := newMembershipFixture(MembershipServiceConfig{})

	_, err := svc.AddMembers(context.Background(), groupRoad, MemberIDsRequest{ScreenIDs: []string{"s1"}}, adminActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrNotFound))
}

func TestMembershipServiceArchivedGroup(t *testing.T) {
	archived := models.ScreenGroup{ID: groupMall, OrgID: orgLagos, Name: "Lagos Malls", IsArchived: true}

	svc, store, _ := newMembershipFixture(MembershipServiceConfig{}, archived)
	store.seed(groupMall, "s1")
	_, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s2"}}, adminActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrConflict))

	removed, err := svc.RemoveMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s1"}}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 1, removed.Removed)

	svc, _, _ = newMembershipFixture(MembershipServiceConfig{AllowArchivedAdd: true}, archived)
	result, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s2"}}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Added)
}

func TestMembershipServiceRemoveMembersIgnoresNonMembers(t *testing.T) {
	svc, store, health := newMembershipFixture(MembershipServiceConfig{})
	store.seed(groupMall, "s1", "s2")

	result, err := svc.RemoveMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s1", "s3", "nope"}}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 1, result.Removed)
	assert.Equal(t, 1, store.groups[groupMall].ScreenCount)
	assert.Equal(t, []string{groupMall}, health.ids)

	result, err = svc.RemoveMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s3"}}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 0, result.Removed)
	assert.Len(t, health.ids, 1)
}

func TestMembershipServiceConcurrentAddsNeverDoubleCount(t *testing.T) {
	svc, store, _ := newMembershipFixture(MembershipServiceConfig{})

	var wg sync.WaitGroup
	results := make([]*models.AddMembersResult, 8)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			res, err := svc.AddMembers(context.Background(), groupMall, MemberIDsRequest{ScreenIDs: []string{"s1", "s2"}}, adminActor())
			if err == nil {
				results[i] = res
			}
		}(i)
	}
	wg.Wait()

	added, skipped := 0, 0
	for _, res := range results {
		require.NotNil(t, res)
		added += res.Added
		skipped += res.Skipped
	}
	assert.Equal(t, 2, added)
	assert.Equal(t, 14, skipped)
	assert.Len(t, store.members[groupMall], 2)
}

func TestMembershipServiceListMembers(t *testing.T) {
	svc, store, _ := newMembershipFixture(MembershipServiceConfig{})
	store.seed(groupMall, "s1", "s2", "s3", "s4")

	views, page, err := svc.ListMembers(context.Background(), groupMall, ListMembersRequest{Status: "Online", PageSize: 1, Page: 2}, adminActor())
	require.NoError(t, err)
	assert.Equal(t, 2, page.TotalCount)
	assert.Equal(t, 2, page.PageCount)
	require.Len(t, views, 1)
	assert.True(t, views[0].IsOnline)
	assert.Equal(t, models.ScreenStatusOnline, views[0].Status)
	assert.Equal(t, "1920x1080", views[0].Resolution)
	require.NotNil(t, views[0].AddedAt)

	_, _, err = svc.ListMembers(context.Background(), groupMall, ListMembersRequest{Status: "sleeping"}, adminActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}

func TestMembershipServiceListMembersClampsPage(t *testing.T) {
	svc, store, _ := newMembershipFixture(MembershipServiceConfig{})
	store.seed(groupMall, "s1", "s2")

	views, page, err := svc.ListMembers(context.Background(), groupMall, ListMembersRequest{Page: math.MaxInt, PageSize: 100}, adminActor())
	require.NoError(t, err)
	assert.Empty(t, views)
	assert.Equal(t, maxMemberPage, store.memberFilter.Page)
	assert.Equal(t, maxMemberPage, page.Page)
	assert.Equal(t, 2, page.TotalCount)
}

func TestMembershipServiceExportMembersCSV(t *testing.T) {
	svc, store, _ := newMembershipFixture(MembershipServiceConfig{})
	store.seed(groupMall, "s1", "s3")

	file, err := svc.ExportMembers(context.Background(), groupMall, "csv", adminActor())
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV.ContentType(), file.ContentType)
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	lines := strings.Split(strings.TrimSpace(string(file.Data)), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "screen_id,code,name,city,region,resolution,status,last_seen_at,added_at", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "s1,LAG-01,Lagos-01,,LA,1920x1080,online,"))
	assert.True(t, strings.HasPrefix(lines[2], "s3,LAG-03,Ikeja Mall,,LA,1280x720,offline,"))
}

func TestMembershipServiceExportMembersRejectsFormat(t *testing.T) {
	svc, _, _ := newMembershipFixture(MembershipServiceConfig{})

	_, err := svc.ExportMembers(context.Background(), groupMall, "xlsx", adminActor())
	require.Error(t, err)
	assert.True(t, appErrors.Is(err, appErrors.ErrValidation))
}
