package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"charity_bff_v1/internal/model"
	"charity_bff_v1/pkg/charity"
)

type mockProfileAPI struct {
	getMeFn func(ctx context.Context) (*charity.User, error)
}

func (m *mockProfileAPI) GetMe(ctx context.Context) (*charity.User, error) {
	if m.getMeFn != nil {
		return m.getMeFn(ctx)
	}
	return &charity.User{
		ID:    "u1",
		Name:  "Ann Leader",
		Email: "ann@example.org",
		Profile: &charity.Profile{
			Organization: &charity.Organization{Name: "Water Org"},
		},
	}, nil
}

func newTestWizardService() (*WizardService, *mockCampaignAPI) {
	campaigns := &mockCampaignAPI{}
	svc := NewWizardService(campaigns, &mockImageAPI{}, &mockProfileAPI{}, nil, time.Hour)
	svc.now = func() time.Time { return testNow }
	return svc, campaigns
}

func TestWizardService_StartSeedsOrganization(t *testing.T) {
	svc, _ := newTestWizardService()

	view, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	assert.NotEmpty(t, view.SessionID)
	assert.Equal(t, 0, view.Step)
	assert.Equal(t, "Basic Info", view.StepTitle)
	assert.Equal(t, 25, view.Progress)
	assert.Equal(t, "Water Org", view.Fields.OrganizationName)
	assert.Equal(t, "ann@example.org", view.Fields.OrganizationEmail)
	assert.False(t, view.CanAdvance)
	assert.NotEmpty(t, view.ValidationErrors)
}

func TestWizardService_StartWithoutProfile(t *testing.T) {
	svc, _ := newTestWizardService()
	svc.profiles = &mockProfileAPI{getMeFn: func(ctx context.Context) (*charity.User, error) {
		return nil, errors.New("down")
	}}

	view, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)
	assert.Empty(t, view.Fields.OrganizationName)
}

func TestWizardService_OwnershipAndNotFound(t *testing.T) {
	svc, _ := newTestWizardService()
	view, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	_, err = svc.View("u2", view.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)

	_, err = svc.View("u1", "nope")
	assert.ErrorIs(t, err, ErrSessionNotFound)

	require.NoError(t, svc.Discard("u1", view.SessionID))
	_, err = svc.View("u1", view.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestWizardService_DoFlow(t *testing.T) {
	svc, campaigns := newTestWizardService()
	view, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)
	sid := view.SessionID

	view, err = svc.Do("u1", sid, func(w *DraftWorkflow) error {
		w.UpdateFields(scenarioFields())
		return w.Next()
	})
	require.NoError(t, err)
	assert.Equal(t, 1, view.Step)
	assert.Equal(t, "Acme", view.Fields.OrganizationName)

	for view.Step < int(model.StepReview) {
		view, err = svc.Do("u1", sid, func(w *DraftWorkflow) error { return w.Next() })
		require.NoError(t, err)
	}
	assert.True(t, view.CanPublish)
	assert.True(t, view.SaveDraftAvailable)
	assert.Empty(t, view.ValidationErrors)

	view, err = svc.Do("u1", sid, func(w *DraftWorkflow) error {
		_, err := w.Publish(context.Background())
		return err
	})
	require.NoError(t, err)
	assert.True(t, view.Completed)
	assert.Equal(t, "new1", view.PublishedID)
	assert.False(t, view.CanPublish)
	assert.Equal(t, []string{"create"}, campaigns.calls)
}

func TestWizardService_ConcurrentPublishSerialized(t *testing.T) {
	svc, campaigns := newTestWizardService()
	view, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)
	sid := view.SessionID

	_, err = svc.Do("u1", sid, func(w *DraftWorkflow) error {
		w.UpdateFields(scenarioFields())
		for !w.Step().IsLast() {
			if err := w.Next(); err != nil {
				return err
			}
		}
		return nil
	})
	require.NoError(t, err)

	var wg sync.WaitGroup
	errs := make([]error, 5)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.Do("u1", sid, func(w *DraftWorkflow) error {
				_, err := w.Publish(context.Background())
				return err
			})
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
		} else {
			assert.ErrorIs(t, err, ErrWorkflowCompleted)
		}
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, []string{"create"}, campaigns.calls)
}

func TestWizardService_SweepIdle(t *testing.T) {
	svc, _ := newTestWizardService()
	old, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	svc.now = func() time.Time { return testNow.Add(50 * time.Minute) }
	fresh, err := svc.Start(context.Background(), "u1")
	require.NoError(t, err)

	svc.now = func() time.Time { return testNow.Add(90 * time.Minute) }
	assert.Equal(t, 1, svc.SweepIdle())
	assert.Equal(t, 1, svc.Count())

	_, err = svc.View("u1", old.SessionID)
	assert.ErrorIs(t, err, ErrSessionNotFound)
	_, err = svc.View("u1", fresh.SessionID)
	assert.NoError(t, err)
}

func TestWizardService_ListDrafts(t *testing.T) {
	svc, campaigns := newTestWizardService()
	campaigns.draftsFn = func(ctx context.Context) ([]charity.DraftSummary, error) {
		return []charity.DraftSummary{
			{ID: "d1", Title: "Water wells", CreatedAt: "2026-01-01T00:00:00Z", UpdatedAt: "2026-02-05T00:00:00Z"},
			{ID: "d2", Title: "", CreatedAt: "2026-01-03T00:00:00Z", UpdatedAt: "2026-02-01T00:00:00Z"},
			{ID: "d3", Title: "Animal shelter", CreatedAt: "2026-01-02T00:00:00Z", UpdatedAt: "2026-02-09T00:00:00Z"},
		}, nil
	}

	tests := []struct {
		name  string
		query string
		sort  string
		want  []string
	}{
		{"默认按更新时间", "", "", []string{"d3", "d1", "d2"}},
		{"按创建时间", "", "created", []string{"d2", "d3", "d1"}},
		{"按标题", "", "title", []string{"d2", "d3", "d1"}},
		{"筛选无标题草稿", "untitled", "", []string{"d2"}},
		{"筛选忽略大小写", "WATER", "", []string{"d1"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			items, err := svc.ListDrafts(context.Background(), tt.query, tt.sort)
			require.NoError(t, err)
			ids := make([]string, 0, len(items))
			for _, it := range items {
				ids = append(ids, it.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestWizardService_DeleteDraft(t *testing.T) {
	svc, campaigns := newTestWizardService()
	require.NoError(t, svc.DeleteDraft(context.Background(), "d1"))
	assert.Equal(t, []string{"delete:d1"}, campaigns.calls)

	campaigns.deleteFn = func(ctx context.Context, id string) error {
		return &charity.APIError{StatusCode: 403, Message: "Forbidden"}
	}
	assert.Error(t, svc.DeleteDraft(context.Background(), "d2"))
}
