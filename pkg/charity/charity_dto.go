package charity

import (
	"encoding/json"
	"path"
	"strings"
)

// ==========================================
// DTO: 平台 API 请求/响应结构
// ==========================================

// CampaignInput 创建/更新活动请求体
// 所有可选字段均为 omitempty，未填写的字段不会出现在请求中
type CampaignInput struct {
	Title            string         `json:"title,omitempty"`
	Description      string         `json:"description,omitempty"`
	ShortDescription string         `json:"shortDescription,omitempty"`
	Story            string         `json:"story,omitempty"`
	Goal             *float64       `json:"goal,omitempty"`
	Category         string         `json:"category,omitempty"`
	EndDate          string         `json:"endDate,omitempty"` // YYYY-MM-DDT00:00:00.000Z
	Location         *Location      `json:"location,omitempty"`
	Beneficiaries    *Beneficiaries `json:"beneficiaries,omitempty"`
	Images           []string       `json:"images,omitempty"`
	Tags             []string       `json:"tags,omitempty"`

	OrganizationName  string `json:"organizationName,omitempty"`
	OrganizationEmail string `json:"organizationEmail,omitempty"`

	Timeline string `json:"timeline,omitempty"`
	Budget   string `json:"budget,omitempty"`
	Risks    string `json:"risks,omitempty"`

	Features *Features `json:"features,omitempty"`
	SEO      *SEO      `json:"seo,omitempty"`

	Status string `json:"status,omitempty"` // draft, active
}

// Location 活动地点
type Location struct {
	Country string `json:"country,omitempty"`
	State   string `json:"state,omitempty"`
	City    string `json:"city,omitempty"`
}

// IsEmpty 三个字段都为空
func (l Location) IsEmpty() bool {
	return l.Country == "" && l.State == "" && l.City == ""
}

// Beneficiaries 受益人信息
// Count 为 0 是合法值，nil 表示未填写
type Beneficiaries struct {
	Count       *int   `json:"count,omitempty"`
	Description string `json:"description"`
}

// Features 活动功能开关
type Features struct {
	AllowAnonymousDonations bool `json:"allowAnonymousDonations"`
	EnableRecurring         bool `json:"enableRecurring"`
	ShowDonorList           bool `json:"showDonorList"`
	AllowComments           bool `json:"allowComments"`
}

// DefaultFeatures 平台默认开关
func DefaultFeatures() Features {
	return Features{
		AllowAnonymousDonations: true,
		EnableRecurring:         false,
		ShowDonorList:           true,
		AllowComments:           true,
	}
}

// SEO 搜索引擎元数据
type SEO struct {
	MetaTitle       string   `json:"metaTitle,omitempty"`
	MetaDescription string   `json:"metaDescription,omitempty"`
	Keywords        []string `json:"keywords,omitempty"`
}

// IsEmpty 所有字段都为空
func (s SEO) IsEmpty() bool {
	return s.MetaTitle == "" && s.MetaDescription == "" && len(s.Keywords) == 0
}

// Analytics 活动统计
type Analytics struct {
	Liked *bool `json:"liked,omitempty"`
	Likes int   `json:"likes"`
	Views int   `json:"views"`
}

// Campaign 平台返回的活动记录
// location / images 在不同版本的接口中可能是字符串或对象，保留原始 JSON 由辅助方法解析
type Campaign struct {
	ID                string          `json:"_id"`
	Title             string          `json:"title"`
	Description       string          `json:"description"`
	ShortDescription  string          `json:"shortDescription"`
	Story             string          `json:"story"`
	Goal              *float64        `json:"goal,omitempty"`
	TargetAmount      *float64        `json:"targetAmount,omitempty"`
	Category          string          `json:"category"`
	EndDate           string          `json:"endDate"`
	Status            string          `json:"status"`
	Location          json.RawMessage `json:"location,omitempty"`
	Beneficiaries     *Beneficiaries  `json:"beneficiaries,omitempty"`
	Images            json.RawMessage `json:"images,omitempty"`
	Tags              []string        `json:"tags"`
	OrganizationName  string          `json:"organizationName"`
	OrganizationEmail string          `json:"organizationEmail"`
	Timeline          string          `json:"timeline"`
	Budget            string          `json:"budget"`
	Risks             string          `json:"risks"`
	Features          *Features       `json:"features,omitempty"`
	SEO               *SEO            `json:"seo,omitempty"`
	Analytics         *Analytics      `json:"analytics,omitempty"`
	CreatedAt         string          `json:"createdAt"`
	UpdatedAt         string          `json:"updatedAt"`
}

// GoalAmount goal 优先，兼容旧字段 targetAmount
func (c *Campaign) GoalAmount() (float64, bool) {
	if c.Goal != nil {
		return *c.Goal, true
	}
	if c.TargetAmount != nil {
		return *c.TargetAmount, true
	}
	return 0, false
}

// LocationValue 解析 location，纯字符串视为城市
func (c *Campaign) LocationValue() Location {
	if len(c.Location) == 0 {
		return Location{}
	}
	var loc Location
	if err := json.Unmarshal(c.Location, &loc); err == nil {
		return loc
	}
	var city string
	if err := json.Unmarshal(c.Location, &city); err == nil {
		return Location{City: city}
	}
	return Location{}
}

// ImageURLs 解析 images，兼容字符串数组和 {url} 对象数组
func (c *Campaign) ImageURLs() []string {
	if len(c.Images) == 0 {
		return nil
	}
	// 解码失败时 json 可能已经填充了部分元素，只有成功才采用
	var strs []string
	if err := json.Unmarshal(c.Images, &strs); err == nil {
		return strs
	}
	var objs []struct {
		URL string `json:"url"`
	}
	if err := json.Unmarshal(c.Images, &objs); err != nil {
		return nil
	}
	urls := make([]string, 0, len(objs))
	for _, o := range objs {
		if o.URL != "" {
			urls = append(urls, o.URL)
		}
	}
	return urls
}

// LikeResult 点赞/取消点赞响应
type LikeResult struct {
	Campaign *Campaign `json:"campaign,omitempty"`
}

// AuthoritativeLiked 服务端是否返回了权威的点赞状态
func (r *LikeResult) AuthoritativeLiked() (liked bool, ok bool) {
	if r == nil || r.Campaign == nil || r.Campaign.Analytics == nil || r.Campaign.Analytics.Liked == nil {
		return false, false
	}
	return *r.Campaign.Analytics.Liked, true
}

// DraftCreated 创建草稿响应
type DraftCreated struct {
	Campaign struct {
		ID        string `json:"_id"`
		Status    string `json:"status"`
		CreatedAt string `json:"createdAt"`
	} `json:"campaign"`
}

// campaignEnvelope 兼容 {campaign: {...}} 与裸记录两种返回
type campaignEnvelope struct {
	Campaign *Campaign `json:"campaign"`
}

// ImageFile 待上传的图片
type ImageFile struct {
	Name        string
	ContentType string
	Data        []byte
}

// Size 文件大小（字节）
func (f ImageFile) Size() int64 {
	return int64(len(f.Data))
}

// UploadedImage 上传成功后的图片描述
type UploadedImage struct {
	Filename     string `json:"filename"`
	URL          string `json:"url"`
	OriginalName string `json:"originalName"`
	Size         int64  `json:"size"`
	MimeType     string `json:"mimetype"`
}

// UploadedImageFromURL 从已保存的 URL 还原图片描述（文件名取最后一段路径）
func UploadedImageFromURL(url string) UploadedImage {
	name := path.Base(strings.TrimRight(url, "/"))
	if i := strings.IndexAny(name, "?#"); i >= 0 {
		name = name[:i]
	}
	return UploadedImage{
		Filename:     name,
		URL:          url,
		OriginalName: name,
	}
}

type uploadResponse struct {
	Images []UploadedImage `json:"images"`
}

// DraftSummary 草稿列表条目
type DraftSummary struct {
	ID          string   `json:"_id"`
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Category    string   `json:"category"`
	Goal        *float64 `json:"goal,omitempty"`
	Status      string   `json:"status"`
	CreatedAt   string   `json:"createdAt"`
	UpdatedAt   string   `json:"updatedAt"`
}

type draftsResponse struct {
	Drafts    []DraftSummary `json:"drafts"`
	Campaigns []DraftSummary `json:"campaigns"`
}

// Organization 用户所属组织
type Organization struct {
	Name  string `json:"name"`
	Email string `json:"email"`
}

// Profile 用户资料
type Profile struct {
	Organization *Organization `json:"organization,omitempty"`
}

// User 当前登录用户
type User struct {
	ID      string   `json:"_id"`
	Name    string   `json:"name"`
	Email   string   `json:"email"`
	Role    string   `json:"role"`
	Profile *Profile `json:"profile,omitempty"`
}

// OrganizationContact 组织名称/邮箱，缺失时回退到用户本人
func (u *User) OrganizationContact() (name, email string) {
	if u == nil {
		return "", ""
	}
	name, email = u.Name, u.Email
	if u.Profile != nil && u.Profile.Organization != nil {
		if u.Profile.Organization.Name != "" {
			name = u.Profile.Organization.Name
		}
		if u.Profile.Organization.Email != "" {
			email = u.Profile.Organization.Email
		}
	}
	return name, email
}

type userEnvelope struct {
	User *User `json:"user"`
}
