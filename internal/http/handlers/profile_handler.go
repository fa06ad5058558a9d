// README: Profile, medical record, on-duty status and sync handlers.
package handlers

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"ridesafe/internal/modules/profile"
	"ridesafe/internal/types"
)

type ProfileService interface {
	GetProfile(ctx context.Context, userID types.ID) (*profile.Profile, error)
	SaveProfile(ctx context.Context, p profile.Profile) error
	GetMedical(ctx context.Context, userID types.ID) (*profile.MedicalRecord, error)
	SaveMedical(ctx context.Context, m profile.MedicalRecord) error
	GetStatus(ctx context.Context, userID types.ID) (*profile.ParamedicStatus, error)
	SetOnDuty(ctx context.Context, userID types.ID, active bool) error
	WarmUp(ctx context.Context, userID types.ID) error
	SyncAll(ctx context.Context, userID types.ID) error
	PendingKinds(ctx context.Context, userID types.ID) ([]string, error)
}

type ProfileHandler struct {
	profiles ProfileService
}

func NewProfileHandler(profiles ProfileService) *ProfileHandler {
	return &ProfileHandler{profiles: profiles}
}

type profileRequest struct {
	DisplayName     string `json:"display_name"`
	Phone           string `json:"phone"`
	AvatarURL       string `json:"avatar_url"`
	RealDisplayName string `json:"real_display_name"`
}

type medicalRequest struct {
	BloodType                string `json:"blood_type"`
	Allergies                string `json:"allergies"`
	Medications              string `json:"medications"`
	Conditions               string `json:"conditions"`
	EmergencyContactRelation string `json:"emergency_contact_relation"`
	EmergencyContactPhone    string `json:"emergency_contact_phone"`
	Age                      int    `json:"age"`
}

type statusRequest struct {
	IsActive bool `json:"is_active"`
}

func (h *ProfileHandler) GetProfile(c *gin.Context) {
	p, err := h.profiles.GetProfile(c.Request.Context(), caller(c))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

// PutProfile saves locally first; the response does not wait for the remote
// store to acknowledge.
func (h *ProfileHandler) PutProfile(c *gin.Context) {
	var req profileRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	p := profile.Profile{
		ID:              caller(c),
		DisplayName:     req.DisplayName,
		Phone:           req.Phone,
		AvatarURL:       req.AvatarURL,
		RealDisplayName: req.RealDisplayName,
	}
	if err := h.profiles.SaveProfile(c.Request.Context(), p); err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, p)
}

func (h *ProfileHandler) GetMedical(c *gin.Context) {
	m, err := h.profiles.GetMedical(c.Request.Context(), caller(c))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, m)
}

func (h *ProfileHandler) PutMedical(c *gin.Context) {
	var req medicalRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	m := profile.MedicalRecord{
		UserID:                   caller(c),
		BloodType:                req.BloodType,
		Allergies:                req.Allergies,
		Medications:              req.Medications,
		Conditions:               req.Conditions,
		EmergencyContactRelation: req.EmergencyContactRelation,
		EmergencyContactPhone:    req.EmergencyContactPhone,
		Age:                      req.Age,
	}
	if err := h.profiles.SaveMedical(c.Request.Context(), m); err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, gin.H{"status": "saved"})
}

func (h *ProfileHandler) GetStatus(c *gin.Context) {
	s, err := h.profiles.GetStatus(c.Request.Context(), caller(c))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, s)
}

func (h *ProfileHandler) PutStatus(c *gin.Context) {
	var req statusRequest
	if err := bindJSON(c, &req); err != nil {
		writeError(c, http.StatusBadRequest, err.Error())
		return
	}
	uid := caller(c)
	if err := h.profiles.SetOnDuty(c.Request.Context(), uid, req.IsActive); err != nil {
		writeProfileError(c, err)
		return
	}
	writeJSON(c, http.StatusOK, profile.ParamedicStatus{UserID: uid, IsActive: req.IsActive})
}

// WarmUp runs the app-start/login pull for the caller.
func (h *ProfileHandler) WarmUp(c *gin.Context) {
	if err := h.profiles.WarmUp(c.Request.Context(), caller(c)); err != nil {
		writeError(c, http.StatusBadGateway, "sync incomplete")
		return
	}
	c.Status(http.StatusNoContent)
}

func (h *ProfileHandler) Push(c *gin.Context) {
	if err := h.profiles.SyncAll(c.Request.Context(), caller(c)); err != nil {
		writeError(c, http.StatusBadGateway, "sync incomplete")
		return
	}
	h.Pending(c)
}

func (h *ProfileHandler) Pending(c *gin.Context) {
	kinds, err := h.profiles.PendingKinds(c.Request.Context(), caller(c))
	if err != nil {
		writeProfileError(c, err)
		return
	}
	if kinds == nil {
		kinds = []string{}
	}
	writeJSON(c, http.StatusOK, gin.H{"pending": kinds})
}
