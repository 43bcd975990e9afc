package http

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/meetwave/meetwave/internal/app"
	"github.com/meetwave/meetwave/internal/core"
	"github.com/meetwave/meetwave/internal/domain"
)

const userCtxKey = "auth_user"

// OptionalAuth resolves a Bearer token when present. Requests without one
// proceed anonymously; only End insists on an identity.
func OptionalAuth(verifier core.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.GetHeader("Authorization")
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok && tok != "" {
			if user, err := verifier.Verify(c.Request.Context(), tok); err == nil {
				c.Set(userCtxKey, user)
			}
		}
		c.Next()
	}
}

func currentUser(c *gin.Context) (domain.User, bool) {
	v, ok := c.Get(userCtxKey)
	if !ok {
		return domain.User{}, false
	}
	u, ok := v.(domain.User)
	return u, ok
}

// MeetingHandlers is the REST surface over meeting metadata. The room
// registry never sees any of this; it only ever asks GetActiveMeeting.
type MeetingHandlers struct {
	Store core.MeetingStore
	Coord *app.Coordinator
	// PublicBase is the client origin used to build shareable join links.
	PublicBase string
}

// meetingView is a meeting plus its shareable link.
type meetingView struct {
	domain.Meeting
	JoinURL string `json:"joinUrl"`
}

func (h *MeetingHandlers) view(m domain.Meeting) meetingView {
	return meetingView{Meeting: m, JoinURL: h.PublicBase + "/meeting/" + m.ID}
}

type createMeetingRequest struct {
	Title       string `json:"title" binding:"max=100"`
	Description string `json:"description" binding:"max=500"`
	IsPrivate   bool   `json:"isPrivate"`
}

func (h *MeetingHandlers) Create(c *gin.Context) {
	var req createMeetingRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if req.Title == "" {
		req.Title = "Untitled Meeting"
	}

	m := domain.Meeting{
		ID:          strings.ReplaceAll(uuid.NewString(), "-", "")[:12],
		Title:       req.Title,
		Description: req.Description,
		IsPrivate:   req.IsPrivate,
		Status:      domain.MeetingActive,
		CreatedAt:   time.Now().UTC(),
	}
	if user, ok := currentUser(c); ok {
		m.CreatorID = user.ID
	}

	if err := h.Store.CreateMeeting(c.Request.Context(), m); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("create meeting")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to create meeting"})
		return
	}
	c.JSON(http.StatusCreated, gin.H{"meeting": m})
}

func (h *MeetingHandlers) Get(c *gin.Context) {
	m, err := h.Store.GetMeeting(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("get meeting")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get meeting"})
		return
	}
	if m.IsPrivate {
		user, ok := currentUser(c)
		if !ok || user.ID != m.CreatorID {
			c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to private meeting"})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"meeting": h.view(m)})
}

// Join validates access before the client opens its signaling socket: the
// meeting must be active and, when private, the caller must be its creator.
// Authenticated joins land in the participant log; guests just get the nod.
func (h *MeetingHandlers) Join(c *gin.Context) {
	id := c.Param("id")
	m, err := h.Store.GetActiveMeeting(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found or not active"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("join meeting lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to join meeting"})
		return
	}
	user, authed := currentUser(c)
	if m.IsPrivate && (!authed || user.ID != m.CreatorID) {
		c.JSON(http.StatusForbidden, gin.H{"error": "Access denied to private meeting"})
		return
	}
	if authed {
		// Analytics only; a failed write must not keep anyone out.
		if err := h.Store.RecordJoin(c.Request.Context(), id, user.ID); err != nil {
			log.Warn().Err(err).Str("module", "adapters.http").Str("meeting", id).Msg("record join")
		}
	}
	c.JSON(http.StatusOK, gin.H{"message": "Successfully joined meeting", "meeting": m})
}

// MyMeetings lists the meetings the caller created, newest first.
func (h *MeetingHandlers) MyMeetings(c *gin.Context) {
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}
	ms, err := h.Store.ListMeetingsByCreator(c.Request.Context(), user.ID)
	if err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("list user meetings")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to get user meetings"})
		return
	}
	out := make([]meetingView, 0, len(ms))
	for _, m := range ms {
		out = append(out, h.view(m))
	}
	c.JSON(http.StatusOK, gin.H{"meetings": out})
}

// End flips the meeting to ended and evicts its live room. Creator only; the
// rule lives here, in the metadata surface, not inside the registry.
func (h *MeetingHandlers) End(c *gin.Context) {
	id := c.Param("id")
	user, ok := currentUser(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "Authentication required"})
		return
	}

	m, err := h.Store.GetMeeting(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, core.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Meeting not found"})
			return
		}
		log.Error().Err(err).Str("module", "adapters.http").Msg("end meeting lookup")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end meeting"})
		return
	}
	if m.CreatorID != user.ID {
		c.JSON(http.StatusForbidden, gin.H{"error": "Only the creator can end the meeting"})
		return
	}

	if err := h.Store.EndMeeting(c.Request.Context(), id); err != nil {
		log.Error().Err(err).Str("module", "adapters.http").Msg("end meeting")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to end meeting"})
		return
	}
	evicted := h.Coord.EvictMeeting(id)
	c.JSON(http.StatusOK, gin.H{"message": "Meeting ended", "evicted": evicted})
}

// Active lists live rooms from the registry snapshot.
func (h *MeetingHandlers) Active(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"meetings": h.Coord.Rooms().Snapshot()})
}
