package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"coursedesk.org/internal/auth"
)

// Service runs catalog operations for an authorized principal. Every
// organization-scoped call takes the organization id from the principal.
type Service struct {
	backend Backend
	menus   MenuStore
	group   singleflight.Group
}

// NewService constructs a Service. menus may be nil when menus are not served.
func NewService(backend Backend, menus MenuStore) (*Service, error) {
	if backend == nil {
		return nil, errors.New("catalog: backend is required")
	}
	return &Service{backend: backend, menus: menus}, nil
}

func organizationOf(p auth.Principal) (string, error) {
	if strings.TrimSpace(p.OrganizationID) == "" {
		return "", auth.ErrUnauthorized
	}
	return p.OrganizationID, nil
}

func opt[T any](v *T) any {
	if v == nil {
		return nil
	}
	return *v
}

func orDefault[T any](v *T, def T) T {
	if v == nil {
		return def
	}
	return *v
}

func optString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

func optTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return *t
}

// --- courses ---

type courseArgs struct {
	action    string
	orgID     string
	in        CourseInput
	thumbnail *string
	expiry    *time.Time
}

func courseParams(a courseArgs) []Param {
	in := a.in
	return []Param{
		{"p_action", a.action},
		{"p_course_id", opt(in.CourseID)},
		{"p_course_code", opt(in.CourseCode)},
		{"p_organization_id", a.orgID},
		{"p_is_paid", orDefault(in.IsPaid, false)},
		{"p_course_title", opt(in.CourseTitle)},
		{"p_course_description", opt(in.CourseDescription)},
		{"p_thumbnail_url", opt(a.thumbnail)},
		{"p_category_code", opt(in.CategoryCode)},
		{"p_sub_category_code", opt(in.SubcategoryCode)},
		{"p_original_price", opt(in.OriginalPrice)},
		{"p_discount_price", opt(in.DiscountPrice)},
		{"p_effective_price", opt(in.EffectivePrice)},
		{"p_validity_code", opt(in.ValidityCode)},
		{"p_single_validity_code", opt(in.SingleValidityCode)},
		{"p_expiry_date", optTime(a.expiry)},
		{"p_mark_new", orDefault(in.MarkNew, false)},
		{"p_mark_featured", orDefault(in.MarkFeatured, false)},
		{"p_has_offline_material", orDefault(in.HasOfflineMaterial, false)},
		{"p_status_code", a.statusCode()},
	}
}

func (a courseArgs) statusCode() any {
	switch a.action {
	case ActionInsert, ActionUpdate:
		return orDefault(a.in.StatusCode, defaultStatusCode)
	default:
		return nil
	}
}

// Courses returns one course when courseID is set, otherwise all courses of
// the principal's organization.
func (s *Service) Courses(ctx context.Context, p auth.Principal, courseID, courseCode string) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	action := ActionGetAll
	if courseID != "" {
		action = ActionGetOne
	}
	in := CourseInput{}
	if courseID != "" {
		in.CourseID = &courseID
	}
	if courseCode != "" {
		in.CourseCode = &courseCode
	}
	return s.backend.CallProcedure(ctx, ProcManageCourses, courseParams(courseArgs{action: action, orgID: orgID, in: in}))
}

// CreateCourse inserts a course. Thumbnail URLs are stored as object keys.
func (s *Service) CreateCourse(ctx context.Context, p auth.Principal, in CourseInput) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	return s.backend.CallProcedure(ctx, ProcManageCourses, courseParams(courseArgs{
		action:    ActionInsert,
		orgID:     orgID,
		in:        in,
		thumbnail: RelativeFilePath(in.ThumbnailURL),
		expiry:    NormalizeExpiryDate(in.ExpiryDate),
	}))
}

// UpdateCourse updates a course identified by in.CourseID.
func (s *Service) UpdateCourse(ctx context.Context, p auth.Principal, in CourseInput) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if in.CourseID == nil || *in.CourseID == "" {
		return nil, auth.Invalid("Missing course_id")
	}
	return s.backend.CallProcedure(ctx, ProcManageCourses, courseParams(courseArgs{
		action:    ActionUpdate,
		orgID:     orgID,
		in:        in,
		thumbnail: thumbnailForUpdate(in.ThumbnailURL),
		expiry:    NormalizeExpiryDate(in.ExpiryDate),
	}))
}

// DeleteCourse removes a course.
func (s *Service) DeleteCourse(ctx context.Context, p auth.Principal, courseID, courseCode string) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if courseID == "" {
		return nil, auth.Invalid("Missing course_id")
	}
	in := CourseInput{CourseID: &courseID}
	if courseCode != "" {
		in.CourseCode = &courseCode
	}
	return s.backend.CallProcedure(ctx, ProcManageCourses, courseParams(courseArgs{action: ActionDelete, orgID: orgID, in: in}))
}

// --- coupons ---

func couponParams(action, orgID string, in CouponInput) []Param {
	courses := in.ApplicableCourses
	if courses == nil {
		courses = []string{}
	}
	return []Param{
		{"p_action", action},
		{"p_coupon_id", opt(in.CouponID)},
		{"p_organization_id", orgID},
		{"p_coupon_title", opt(in.CouponTitle)},
		{"p_coupon_code", opt(in.CouponCode)},
		{"p_discount_type_code", opt(in.DiscountTypeCode)},
		{"p_fixed_discount_value", opt(in.FixedDiscountValue)},
		{"p_percentage_discount_value", opt(in.PercentageDiscountValue)},
		{"p_is_lifetime", orDefault(in.IsLifetime, false)},
		{"p_start_date", optTime(NormalizeDate(in.StartDate))},
		{"p_end_date", optTime(NormalizeDate(in.EndDate))},
		{"p_max_uses", opt(in.MaxUses)},
		{"p_per_user_limit", opt(in.PerUserLimit)},
		{"p_is_public", orDefault(in.IsPublic, true)},
		{"p_is_visible", orDefault(in.IsVisible, true)},
		{"p_is_active", orDefault(in.IsActive, true)},
		{"p_applicable_courses", courses},
	}
}

// Coupons returns one coupon when couponID is set, otherwise all coupons.
func (s *Service) Coupons(ctx context.Context, p auth.Principal, couponID string) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	action := ActionGetAll
	in := CouponInput{}
	if couponID != "" {
		action = ActionGetOne
		in.CouponID = &couponID
	}
	return s.backend.CallProcedure(ctx, ProcManageCoupons, couponParams(action, orgID, in))
}

// CreateCoupon inserts a coupon.
func (s *Service) CreateCoupon(ctx context.Context, p auth.Principal, in CouponInput) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	return s.backend.CallProcedure(ctx, ProcManageCoupons, couponParams(ActionInsert, orgID, in))
}

// UpdateCoupon updates the coupon identified by in.CouponID.
func (s *Service) UpdateCoupon(ctx context.Context, p auth.Principal, in CouponInput) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if in.CouponID == nil || *in.CouponID == "" {
		return nil, auth.Invalid("Missing coupon_id")
	}
	return s.backend.CallProcedure(ctx, ProcManageCoupons, couponParams(ActionUpdate, orgID, in))
}

// DeleteCoupon removes a coupon.
func (s *Service) DeleteCoupon(ctx context.Context, p auth.Principal, couponID string) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if couponID == "" {
		return nil, auth.Invalid("Missing coupon_id")
	}
	return s.backend.CallProcedure(ctx, ProcManageCoupons, couponParams(ActionDelete, orgID, CouponInput{CouponID: &couponID}))
}

// --- categories ---

func validCategoryType(t string) bool {
	return t == "category" || t == "subcategory"
}

func requireCategoryType(t string) error {
	if t == "" {
		return auth.Invalid("Missing type")
	}
	if !validCategoryType(t) {
		return auth.Invalid("type must be category or subcategory")
	}
	return nil
}

// Categories lists categories or subcategories, or returns one by id.
func (s *Service) Categories(ctx context.Context, p auth.Principal, q CategoryQuery) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if err := requireCategoryType(q.Type); err != nil {
		return nil, err
	}
	action := ActionGetAll
	switch {
	case q.ID != "":
		action = ActionGetOne
	case q.Type == "subcategory" && q.CategoryCode != "":
		action = ActionGetByCategory
	}
	return s.backend.CallProcedure(ctx, ProcManageCategories, []Param{
		{"p_action", action},
		{"p_type", q.Type},
		{"p_organization_id", orgID},
		{"p_id", optString(q.ID)},
		{"p_category_code", optString(q.CategoryCode)},
	})
}

// CreateCategory inserts a category or subcategory.
func (s *Service) CreateCategory(ctx context.Context, p auth.Principal, in CategoryInput) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if err := requireCategoryType(in.Type); err != nil {
		return nil, err
	}
	return s.backend.CallProcedure(ctx, ProcManageCategories, []Param{
		{"p_action", ActionInsert},
		{"p_type", in.Type},
		{"p_organization_id", orgID},
		{"p_category_code", opt(in.CategoryCode)},
		{"p_subcategory_code", opt(in.SubcategoryCode)},
		{"p_display_name", opt(in.DisplayName)},
		{"p_display_order", opt(in.DisplayOrder)},
		{"p_is_default", opt(in.IsDefault)},
		{"p_is_active", opt(in.IsActive)},
	})
}

// UpdateCategory updates the category or subcategory identified by in.ID.
func (s *Service) UpdateCategory(ctx context.Context, p auth.Principal, in CategoryInput) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if err := requireCategoryType(in.Type); err != nil {
		return nil, err
	}
	if in.ID == nil || *in.ID == "" {
		return nil, auth.Invalid("Missing id")
	}
	return s.backend.CallProcedure(ctx, ProcManageCategories, []Param{
		{"p_action", ActionUpdate},
		{"p_type", in.Type},
		{"p_organization_id", orgID},
		{"p_id", *in.ID},
		{"p_display_name", opt(in.DisplayName)},
		{"p_display_order", opt(in.DisplayOrder)},
		{"p_is_default", opt(in.IsDefault)},
		{"p_is_active", opt(in.IsActive)},
	})
}

// DeleteCategory removes a category or subcategory.
func (s *Service) DeleteCategory(ctx context.Context, p auth.Principal, categoryType, id string) (json.RawMessage, error) {
	orgID, err := organizationOf(p)
	if err != nil {
		return nil, err
	}
	if err := requireCategoryType(categoryType); err != nil {
		return nil, err
	}
	if id == "" {
		return nil, auth.Invalid("Missing id")
	}
	return s.backend.CallProcedure(ctx, ProcManageCategories, []Param{
		{"p_action", ActionDelete},
		{"p_type", categoryType},
		{"p_organization_id", orgID},
		{"p_id", id},
	})
}

// --- code master ---

// CodeMaster returns the code/subcode master records for the given code types.
func (s *Service) CodeMaster(ctx context.Context, p auth.Principal, codeTypes CodeTypes) (json.RawMessage, error) {
	if _, err := organizationOf(p); err != nil {
		return nil, err
	}
	types := make([]string, 0, len(codeTypes))
	for _, t := range codeTypes {
		if t = strings.TrimSpace(t); t != "" {
			types = append(types, t)
		}
	}
	if len(types) == 0 {
		return nil, auth.Invalid("Missing code_type")
	}
	return s.backend.CallProcedure(ctx, ProcCodeSubcodeMaster, []Param{{"p_code_types", types}})
}

// --- prelogin ---

// preloginTimeout bounds a shared prelogin call, which outlives its callers'
// contexts.
const preloginTimeout = 15 * time.Second

// Prelogin returns one of the public datasets shown before login:
// "data", "nested" or "organization-types". Concurrent identical calls share
// one backend round trip; a caller that goes away does not fail the others.
func (s *Service) Prelogin(ctx context.Context, dataset string) (json.RawMessage, error) {
	var proc string
	switch dataset {
	case "data":
		proc = ProcPreloginData
	case "nested":
		proc = ProcPreloginNested
	case "organization-types":
		proc = ProcOrganizationTypes
	default:
		return nil, ErrUnknownPrelogin
	}
	ch := s.group.DoChan(proc, func() (any, error) {
		// общий вызов не зависит от отмены того, кто его начал
		shared, cancel := context.WithTimeout(context.WithoutCancel(ctx), preloginTimeout)
		defer cancel()
		return s.backend.CallProcedure(shared, proc, nil)
	})
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return res.Val.(json.RawMessage), nil
	}
}

// --- menus ---

// Menus returns the menu tree for the organization type, filtered to the
// entries the principal's role may see.
func (s *Service) Menus(ctx context.Context, p auth.Principal, organizationType string) ([]Menu, error) {
	if _, err := organizationOf(p); err != nil {
		return nil, err
	}
	if organizationType == "" || s.menus == nil {
		return []Menu{}, nil
	}
	menus, err := s.menus.MenusForType(ctx, organizationType)
	if err != nil {
		return nil, err
	}
	return FilterMenus(menus, p.Role), nil
}

// FilterMenus keeps top-level menus visible to role and, inside them, only
// ACTIVE submenus visible to role.
func FilterMenus(menus []Menu, role string) []Menu {
	out := make([]Menu, 0, len(menus))
	for _, m := range menus {
		if !visibleTo(m, role) {
			continue
		}
		subs := make([]Menu, 0, len(m.SubMenus))
		for _, sub := range m.SubMenus {
			if sub.StatusCode == defaultStatusCode && visibleTo(sub, role) {
				subs = append(subs, sub)
			}
		}
		m.SubMenus = subs
		out = append(out, m)
	}
	return out
}

func visibleTo(m Menu, role string) bool {
	if m.AllowedRoles == nil {
		return true
	}
	for _, r := range m.AllowedRoles {
		if r == role {
			return true
		}
	}
	return false
}
