package model

import (
	"encoding/json"
	"strings"
	"testing"
	"time"

	"charity_bff_v1/pkg/charity"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var fixedNow = time.Date(2026, 3, 10, 15, 30, 0, 0, time.UTC)

// validFields 所有规则都能通过的表单
func validFields() *DraftFields {
	return &DraftFields{
		Title:             "Clean Water Initiative",
		Description:       strings.Repeat("d", 60),
		Goal:              "500",
		Category:          "Health & Medical",
		EndDate:           fixedNow.AddDate(0, 0, 1).Format("2006-01-02"),
		OrganizationName:  "Acme",
		OrganizationEmail: "a@b.com",
		Story:             "A long enough story text",
		Timeline:          "Phase 1 starts soon",
		Budget:            "50% supplies, 50% labor",
	}
}

func TestCanAdvance_TitleBoundary(t *testing.T) {
	tests := []struct {
		name  string
		title string
		want  bool
	}{
		{"9 个字符", strings.Repeat("a", 9), false},
		{"10 个字符", strings.Repeat("a", 10), true},
		{"100 个字符", strings.Repeat("a", 100), true},
		{"101 个字符", strings.Repeat("a", 101), false},
		{"多字节字符按字符计数", strings.Repeat("水", 10), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			f.Title = tt.title
			assert.Equal(t, tt.want, CanAdvance(StepBasicInfo, f))
		})
	}
}

func TestCanAdvance_Steps(t *testing.T) {
	tests := []struct {
		name   string
		step   WizardStep
		mutate func(*DraftFields)
		want   bool
	}{
		{"基础信息 全部合法", StepBasicInfo, func(f *DraftFields) {}, true},
		{"基础信息 目标金额不足", StepBasicInfo, func(f *DraftFields) { f.Goal = "99.99" }, false},
		{"基础信息 目标金额非数字", StepBasicInfo, func(f *DraftFields) { f.Goal = "abc" }, false},
		{"基础信息 分类不在列表", StepBasicInfo, func(f *DraftFields) { f.Category = "Crypto" }, false},
		{"基础信息 缺少结束日期", StepBasicInfo, func(f *DraftFields) { f.EndDate = "" }, false},
		{"基础信息 组织名只有空格", StepBasicInfo, func(f *DraftFields) { f.OrganizationName = "  a  " }, false},
		{"基础信息 邮箱没有@", StepBasicInfo, func(f *DraftFields) { f.OrganizationEmail = "acme.org" }, false},
		{"故事 原始长度 10 含空格", StepStoryAndMedia, func(f *DraftFields) { f.Story = "   abcd   " }, true},
		{"故事 太短", StepStoryAndMedia, func(f *DraftFields) { f.Story = "short" }, false},
		{"计划 时间线去空格后太短", StepPlanning, func(f *DraftFields) { f.Timeline = "   short    " }, false},
		{"计划 合法", StepPlanning, func(f *DraftFields) {}, true},
		{"预览 总是可以", StepReview, func(f *DraftFields) { *f = DraftFields{} }, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mutate(f)
			assert.Equal(t, tt.want, CanAdvance(tt.step, f))
		})
	}
}

func TestValidate_AllRulesInOrder(t *testing.T) {
	got := Validate(&DraftFields{}, fixedNow)
	assert.Equal(t, []string{
		MsgTitleLength,
		MsgDescriptionLength,
		MsgOrganizationName,
		MsgOrganizationEmail,
		MsgGoal,
		MsgCategory,
		MsgEndDateRequired,
		MsgStory,
		MsgTimeline,
		MsgBudget,
	}, got)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*DraftFields)
		want   []string
	}{
		{"全部合法", func(f *DraftFields) {}, nil},
		{"目标金额 50", func(f *DraftFields) { f.Goal = "50" }, []string{MsgGoal}},
		{"标题去空格后不足", func(f *DraftFields) { f.Title = "   short tit   " }, []string{MsgTitleLength}},
		{"结束日期是今天", func(f *DraftFields) { f.EndDate = fixedNow.Format("2006-01-02") }, []string{MsgEndDateFuture}},
		{"结束日期格式错误", func(f *DraftFields) { f.EndDate = "next week" }, []string{MsgEndDateFuture}},
		{"预算不足 10", func(f *DraftFields) { f.Budget = "cheap" }, []string{MsgBudget}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := validFields()
			tt.mutate(f)
			assert.Equal(t, tt.want, Validate(f, fixedNow))
		})
	}
}

func TestParseGoal(t *testing.T) {
	tests := []struct {
		in     string
		want   float64
		wantOK bool
	}{
		{"500", 500, true},
		{" 100.5 ", 100.5, true},
		{"", 0, false},
		{"12abc", 0, false},
		{"NaN", 0, false},
		{"Inf", 0, false},
	}
	for _, tt := range tests {
		got, ok := ParseGoal(tt.in)
		assert.Equal(t, tt.wantOK, ok, "ParseGoal(%q)", tt.in)
		assert.Equal(t, tt.want, got, "ParseGoal(%q)", tt.in)
	}
}

func TestNormalizeTags(t *testing.T) {
	assert.Equal(t, []string{"water", "health", "kids"}, NormalizeTags(" water, health,, kids ,water"))
	assert.Empty(t, NormalizeTags(" , ,"))

	many := NormalizeTags("a,b,c,d,e,f,g,h,i,j,k,l")
	assert.Len(t, many, MaxCampaignTags)
	assert.Equal(t, "j", many[9])
}

func TestBuildDraftPayload_OnlyTitle(t *testing.T) {
	payload := BuildDraftPayload(&DraftFields{Title: "short"})

	raw, err := json.Marshal(payload)
	require.NoError(t, err)
	assert.JSONEq(t, `{"title":"short"}`, string(raw))
}

func TestBuildDraftPayload_ZeroBeneficiariesKept(t *testing.T) {
	zero := 0
	f := &DraftFields{Beneficiaries: Beneficiaries{Count: &zero}}
	payload := BuildDraftPayload(f)

	require.NotNil(t, payload.Beneficiaries)
	require.NotNil(t, payload.Beneficiaries.Count)
	assert.Equal(t, 0, *payload.Beneficiaries.Count)
}

func TestBuildDraftPayload_InvalidGoalOmitted(t *testing.T) {
	payload := BuildDraftPayload(&DraftFields{Goal: "lots", EndDate: "2026-04-01"})
	assert.Nil(t, payload.Goal)
	assert.Equal(t, "2026-04-01T00:00:00.000Z", payload.EndDate)
}

func TestBuildPublishPayload(t *testing.T) {
	f := validFields()
	payload := BuildPublishPayload(f)

	require.NotNil(t, payload.Goal)
	assert.Equal(t, 500.0, *payload.Goal)
	assert.Equal(t, "2026-03-11T00:00:00.000Z", payload.EndDate)
	assert.Equal(t, charity.DefaultFeatures(), *payload.Features)
	assert.Nil(t, payload.Location)
	assert.Nil(t, payload.SEO)
	assert.Nil(t, payload.Images)
	assert.Empty(t, payload.Risks)
	require.NotNil(t, payload.Beneficiaries.Count)
	assert.Equal(t, 0, *payload.Beneficiaries.Count)
}

func TestMergeCampaign_KeepsCurrentForAbsentFields(t *testing.T) {
	f := validFields()
	goal := 2500.0
	c := &charity.Campaign{
		ID:        "d1",
		Title:     "Loaded title from draft",
		Goal:      &goal,
		EndDate:   "2026-05-01T00:00:00.000Z",
		Status:    CampaignStatusDraft,
		Location:  json.RawMessage(`"Nairobi"`),
		Images:    json.RawMessage(`["/uploads/a.png","/uploads/b.png"]`),
		Tags:      []string{"water"},
		Analytics: &charity.Analytics{},
	}

	MergeCampaign(f, c)

	assert.Equal(t, "Loaded title from draft", f.Title)
	assert.Equal(t, "2500", f.Goal)
	assert.Equal(t, "2026-05-01", f.EndDate)
	assert.Equal(t, "Nairobi", f.Location.City)
	assert.Equal(t, []string{"/uploads/a.png", "/uploads/b.png"}, f.Images)
	assert.Equal(t, "Acme", f.OrganizationName)
	assert.Equal(t, "A long enough story text", f.Story)
	assert.Nil(t, f.Features)
}

func TestDraftFieldsPatch_Apply(t *testing.T) {
	f := validFields()
	title := "Another valid title"
	tags := "a, b, a"
	(&DraftFieldsPatch{Title: &title, TagsInput: &tags, Features: &charity.Features{EnableRecurring: true}}).Apply(f)

	assert.Equal(t, title, f.Title)
	assert.Equal(t, []string{"a", "b"}, f.Tags)
	require.NotNil(t, f.Features)
	assert.True(t, f.Features.EnableRecurring)
	assert.Equal(t, "500", f.Goal)
}

func TestWizardStep_Progress(t *testing.T) {
	assert.Equal(t, 25, StepBasicInfo.Progress())
	assert.Equal(t, 100, StepReview.Progress())
	assert.Equal(t, "Story & Media", StepStoryAndMedia.Title())
}
