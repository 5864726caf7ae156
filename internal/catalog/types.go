package catalog

import (
	"context"
	"encoding/json"
	"errors"
)

// Stored procedures backing the admin catalog.
const (
	ProcManageCourses     = "sp_manage_courses"
	ProcManageCoupons     = "sp_manage_coupons"
	ProcManageCategories  = "sp_manage_course_category_subcategory"
	ProcCodeSubcodeMaster = "sp_get_code_subcode_master"

	ProcPreloginData      = "get_prelogin_data"
	ProcPreloginNested    = "get_prelogin_data_nested"
	ProcOrganizationTypes = "get_organization_types_by_country"
)

// Procedure actions.
const (
	ActionInsert        = "insert"
	ActionUpdate        = "update"
	ActionDelete        = "delete"
	ActionGetOne        = "get_one"
	ActionGetAll        = "get_all"
	ActionGetByCategory = "get_by_category"
)

const defaultStatusCode = "ACTIVE"

// Param is a named stored-procedure argument. A nil Value is sent as NULL and
// []string values are sent as text arrays.
type Param struct {
	Name  string
	Value any
}

// Backend executes stored procedures and returns their JSON result.
type Backend interface {
	CallProcedure(ctx context.Context, name string, params []Param) (json.RawMessage, error)
}

// MenuStore reads the navigation menu tree for an organization type.
type MenuStore interface {
	MenusForType(ctx context.Context, organizationType string) ([]Menu, error)
}

var ErrUnknownPrelogin = errors.New("catalog: unknown prelogin dataset")

// CourseInput is the course create/update payload.
type CourseInput struct {
	CourseID           *string  `json:"course_id"`
	CourseCode         *string  `json:"course_code"`
	IsPaid             *bool    `json:"is_paid"`
	CourseTitle        *string  `json:"course_title"`
	CourseDescription  *string  `json:"course_description"`
	ThumbnailURL       *string  `json:"thumbnail_url"`
	CategoryCode       *string  `json:"category_code"`
	SubcategoryCode    *string  `json:"subcategory_code"`
	OriginalPrice      *float64 `json:"original_price"`
	DiscountPrice      *float64 `json:"discount_price"`
	EffectivePrice     *float64 `json:"effective_price"`
	ValidityCode       *string  `json:"validity_code"`
	SingleValidityCode *string  `json:"single_validity_code"`
	ExpiryDate         *string  `json:"expiry_date"`
	MarkNew            *bool    `json:"mark_new"`
	MarkFeatured       *bool    `json:"mark_featured"`
	HasOfflineMaterial *bool    `json:"has_offline_material"`
	StatusCode         *string  `json:"status_code"`
}

// CouponInput is the coupon create/update payload.
type CouponInput struct {
	CouponID                *string  `json:"coupon_id"`
	CouponTitle             *string  `json:"coupon_title"`
	CouponCode              *string  `json:"coupon_code"`
	DiscountTypeCode        *string  `json:"discount_type_code"`
	FixedDiscountValue      *float64 `json:"fixed_discount_value"`
	PercentageDiscountValue *float64 `json:"percentage_discount_value"`
	IsLifetime              *bool    `json:"is_lifetime"`
	StartDate               *string  `json:"start_date"`
	EndDate                 *string  `json:"end_date"`
	MaxUses                 *int     `json:"max_uses"`
	PerUserLimit            *int     `json:"per_user_limit"`
	IsPublic                *bool    `json:"is_public"`
	IsVisible               *bool    `json:"is_visible"`
	IsActive                *bool    `json:"is_active"`
	ApplicableCourses       []string `json:"applicable_courses"`
}

// CategoryInput is the category/subcategory create/update payload. Type is
// "category" or "subcategory".
type CategoryInput struct {
	ID              *string `json:"id"`
	Type            string  `json:"type"`
	CategoryCode    *string `json:"category_code"`
	SubcategoryCode *string `json:"subcategory_code"`
	DisplayName     *string `json:"display_name"`
	DisplayOrder    *int    `json:"display_order"`
	IsDefault       *bool   `json:"is_default"`
	IsActive        *bool   `json:"is_active"`
}

// CategoryQuery selects categories or subcategories.
type CategoryQuery struct {
	Type         string
	ID           string
	CategoryCode string
}

// CodeTypes accepts either a single code type or a list of them.
type CodeTypes []string

func (c *CodeTypes) UnmarshalJSON(data []byte) error {
	var one string
	if err := json.Unmarshal(data, &one); err == nil {
		if one == "" {
			*c = nil
			return nil
		}
		*c = CodeTypes{one}
		return nil
	}
	var many []string
	if err := json.Unmarshal(data, &many); err != nil {
		return errors.New("code_type must be a string or an array of strings")
	}
	*c = CodeTypes(many)
	return nil
}

// Menu is a navigation entry. AllowedRoles nil means visible to every role.
type Menu struct {
	Name         string   `json:"name"`
	Path         string   `json:"path"`
	IsPremium    bool     `json:"is_premium"`
	StatusCode   string   `json:"menu_status_code"`
	AllowedRoles []string `json:"allowed_roles"`
	SubMenus     []Menu   `json:"sub_menus,omitempty"`
}
