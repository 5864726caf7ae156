package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"coursedesk.org/internal/audit"
	"coursedesk.org/internal/auth"
	"coursedesk.org/internal/catalog"
	"coursedesk.org/internal/obs"
)

// auditMutation records successful writes; reads are not audited.
func auditMutation(r *http.Request, resource string) {
	if r.Method == http.MethodGet {
		return
	}
	_ = audit.LogEvent(r.Context(), "catalog."+resource+"."+strings.ToLower(r.Method), map[string]any{
		"query": r.URL.RawQuery,
	})
}

func (a *API) handleCourses(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	q := r.URL.Query()
	var (
		data json.RawMessage
		err  error
		code = http.StatusOK
	)
	switch r.Method {
	case http.MethodGet:
		data, err = a.catalog.Courses(ctx, p, q.Get("course_id"), q.Get("course_code"))
	case http.MethodPost:
		var in catalog.CourseInput
		if err = a.decodeJSON(w, r, &in); err == nil {
			data, err = a.catalog.CreateCourse(ctx, p, in)
			code = http.StatusCreated
		}
	case http.MethodPut:
		var in catalog.CourseInput
		if err = a.decodeJSON(w, r, &in); err == nil {
			data, err = a.catalog.UpdateCourse(ctx, p, in)
		}
	case http.MethodDelete:
		data, err = a.catalog.DeleteCourse(ctx, p, q.Get("course_id"), q.Get("course_code"))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditMutation(r, "courses")
	writeOK(w, code, map[string]any{"data": data})
}

func (a *API) handleCoupons(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	var (
		data json.RawMessage
		err  error
		code = http.StatusOK
	)
	switch r.Method {
	case http.MethodGet:
		data, err = a.catalog.Coupons(ctx, p, r.URL.Query().Get("coupon_id"))
	case http.MethodPost:
		var in catalog.CouponInput
		if err = a.decodeJSON(w, r, &in); err == nil {
			data, err = a.catalog.CreateCoupon(ctx, p, in)
			code = http.StatusCreated
		}
	case http.MethodPut:
		var in catalog.CouponInput
		if err = a.decodeJSON(w, r, &in); err == nil {
			data, err = a.catalog.UpdateCoupon(ctx, p, in)
		}
	case http.MethodDelete:
		data, err = a.catalog.DeleteCoupon(ctx, p, r.URL.Query().Get("coupon_id"))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditMutation(r, "coupons")
	writeOK(w, code, map[string]any{"data": data})
}

func (a *API) handleCategories(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	ctx := r.Context()
	q := r.URL.Query()
	var (
		data json.RawMessage
		err  error
		code = http.StatusOK
	)
	switch r.Method {
	case http.MethodGet:
		data, err = a.catalog.Categories(ctx, p, catalog.CategoryQuery{
			Type:         q.Get("type"),
			ID:           q.Get("id"),
			CategoryCode: q.Get("category_code"),
		})
	case http.MethodPost:
		var in catalog.CategoryInput
		if err = a.decodeJSON(w, r, &in); err == nil {
			data, err = a.catalog.CreateCategory(ctx, p, in)
			code = http.StatusCreated
		}
	case http.MethodPut:
		var in catalog.CategoryInput
		if err = a.decodeJSON(w, r, &in); err == nil {
			data, err = a.catalog.UpdateCategory(ctx, p, in)
		}
	case http.MethodDelete:
		data, err = a.catalog.DeleteCategory(ctx, p, q.Get("type"), q.Get("id"))
	default:
		methodNotAllowed(w, r, http.MethodGet, http.MethodPost, http.MethodPut, http.MethodDelete)
		return
	}
	if err != nil {
		respondError(w, r, err)
		return
	}
	auditMutation(r, "categories")
	writeOK(w, code, map[string]any{"data": data})
}

type codeSubcodeRequest struct {
	CodeType json.RawMessage `json:"code_type"`
}

func (a *API) handleCodeSubcode(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	var req codeSubcodeRequest
	if err := a.decodeJSON(w, r, &req); err != nil {
		respondError(w, r, err)
		return
	}
	var types catalog.CodeTypes
	if len(req.CodeType) > 0 && string(req.CodeType) != "null" {
		if err := json.Unmarshal(req.CodeType, &types); err != nil {
			respondError(w, r, auth.Invalid(err.Error()))
			return
		}
	}
	data, err := a.catalog.CodeMaster(r.Context(), p, types)
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"message":   "Master data retrieved successfully",
		"code_type": req.CodeType,
		"data":      data,
		"user":      p,
	})
}

func (a *API) handleMenus(w http.ResponseWriter, r *http.Request, p auth.Principal) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	menus, err := a.catalog.Menus(r.Context(), p, strings.TrimSpace(r.URL.Query().Get("type")))
	if err != nil {
		respondError(w, r, err)
		return
	}
	writeOK(w, http.StatusOK, map[string]any{"data": menus})
}

var preloginMessages = map[string][2]string{
	"data":               {"Prelogin data retrieved successfully", "Failed to fetch prelogin data"},
	"nested":             {"Nested prelogin data retrieved successfully", "Failed to fetch nested prelogin data"},
	"organization-types": {"Organization types retrieved successfully", "Failed to fetch organization types"},
}

// handlePrelogin serves the public datasets under /api/prelogin/{dataset}.
func (a *API) handlePrelogin(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		methodNotAllowed(w, r, http.MethodGet)
		return
	}
	dataset := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/prelogin/"), "/")
	data, err := a.catalog.Prelogin(r.Context(), dataset)
	switch {
	case errors.Is(err, catalog.ErrUnknownPrelogin):
		respondError(w, r, err)
		return
	case err != nil:
		obs.Error("prelogin_failed", map[string]any{
			"request_id": RequestIDFromContext(r.Context()),
			"dataset":    dataset,
			"error":      err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, preloginMessages[dataset][1])
		return
	}
	writeOK(w, http.StatusOK, map[string]any{
		"message": preloginMessages[dataset][0],
		"data":    data,
	})
}
