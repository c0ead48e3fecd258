package notification

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/repairhub/notify/internal/middleware"
	"github.com/repairhub/notify/internal/model"
	"github.com/repairhub/notify/internal/service/notification"
	"github.com/repairhub/notify/pkg/auth"
	"github.com/repairhub/notify/pkg/security"
)

type fakeService struct {
	created    []notification.CreateRequest
	createErr  error
	listedFor  *model.Recipient
	listFilter model.ListFilter
	unread     int64
}

func (s *fakeService) Create(_ context.Context, req notification.CreateRequest) (*model.Notification, error) {
	if s.createErr != nil {
		return nil, s.createErr
	}
	s.created = append(s.created, req)
	return &model.Notification{ID: uuid.New(), EventID: req.EventID}, nil
}

func (s *fakeService) MarkRead(context.Context, uuid.UUID, model.Recipient) error { return nil }
func (s *fakeService) MarkAllRead(context.Context, model.Recipient) (int64, error) {
	return 0, nil
}

func (s *fakeService) UnreadCount(_ context.Context, r model.Recipient) (int64, error) {
	s.listedFor = &r
	return s.unread, nil
}

func (s *fakeService) List(_ context.Context, r model.Recipient, filter model.ListFilter) ([]*model.Notification, error) {
	s.listedFor = &r
	s.listFilter = filter
	return nil, nil
}

func (s *fakeService) Get(context.Context, uuid.UUID) (*model.Notification, error) {
	return nil, nil
}

func (s *fakeService) DeliveryHistory(context.Context, uuid.UUID) ([]*model.DeliveryLog, error) {
	return nil, nil
}

const testAPIKey = "svc-key-123"

func setupRouter(t *testing.T, svc notification.Service) (*gin.Engine, auth.TokenService) {
	t.Helper()
	gin.SetMode(gin.TestMode)

	verifier := security.NewBcryptVerifier(4)
	hash, err := verifier.Hash(testAPIKey)
	require.NoError(t, err)

	tokens := auth.NewTokenService("test-secret")
	authMW := middleware.NewAuthMiddleware(verifier, hash, tokens)

	r := gin.New()
	NewHandler(svc, authMW).RegisterRoutes(r.Group("/api/v1"))
	return r, tokens
}

func createBody(t *testing.T) []byte {
	t.Helper()
	body, err := json.Marshal(gin.H{
		"event_id": "evt-1",
		"recipient": gin.H{
			"type": "customer",
			"id":   uuid.New().String(),
		},
		"template": "repair_approved",
		"context": gin.H{
			"repair":     "iPhone 12 screen",
			"technician": "Dana",
		},
	})
	require.NoError(t, err)
	return body
}

func TestCreateRequiresAPIKey(t *testing.T) {
	r, _ := setupRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader(createBody(t)))
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader(createBody(t)))
	req.Header.Set("X-API-Key", "wrong-key")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestCreateAccepted(t *testing.T) {
	svc := &fakeService{}
	r, _ := setupRouter(t, svc)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader(createBody(t)))
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusCreated, w.Code)
	require.Len(t, svc.created, 1)
	got := svc.created[0]
	assert.Equal(t, "evt-1", got.EventID)
	assert.Equal(t, model.RecipientCustomer, got.Recipient.Type)
	assert.Equal(t, "repair_approved", got.TemplateName)
	assert.Equal(t, "iPhone 12 screen", got.Context["repair"].Render())
}

func TestCreateRejectsBadPriority(t *testing.T) {
	svc := &fakeService{}
	r, _ := setupRouter(t, svc)

	body, err := json.Marshal(gin.H{
		"event_id":  "evt-1",
		"recipient": gin.H{"type": "customer", "id": uuid.New().String()},
		"template":  "repair_approved",
		"priority":  "WHENEVER",
	})
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/notifications", bytes.NewReader(body))
	req.Header.Set("X-API-Key", testAPIKey)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Empty(t, svc.created)
}

func TestListUsesTokenRecipient(t *testing.T) {
	svc := &fakeService{}
	r, tokens := setupRouter(t, svc)

	recipient := model.Recipient{Type: model.RecipientTechnician, ID: uuid.New()}
	token, err := tokens.GenerateRecipientToken(recipient, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications?unread=true&limit=10", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	require.NotNil(t, svc.listedFor)
	assert.Equal(t, recipient, *svc.listedFor)
}

func TestListPagingMetaReflectsAppliedLimit(t *testing.T) {
	tests := []struct {
		name  string
		query string
		limit int
	}{
		{"default", "", 50},
		{"zero clamps to default", "?limit=0", 50},
		{"oversized clamps to default", "?limit=500", 50},
		{"in range passes through", "?limit=20", 20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc := &fakeService{}
			r, tokens := setupRouter(t, svc)

			recipient := model.Recipient{Type: model.RecipientCustomer, ID: uuid.New()}
			token, err := tokens.GenerateRecipientToken(recipient, time.Hour)
			require.NoError(t, err)

			req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications"+tt.query, nil)
			req.Header.Set("Authorization", "Bearer "+token)
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)

			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, tt.limit, svc.listFilter.Limit, "store must see the clamped limit")
			assert.Contains(t, w.Body.String(), fmt.Sprintf(`"limit":%d`, tt.limit),
				"meta must echo the applied limit")
		})
	}
}

func TestListRejectsMissingToken(t *testing.T) {
	r, _ := setupRouter(t, &fakeService{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications", nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestUnreadCount(t *testing.T) {
	svc := &fakeService{unread: 7}
	r, tokens := setupRouter(t, svc)

	recipient := model.Recipient{Type: model.RecipientCustomer, ID: uuid.New()}
	token, err := tokens.GenerateRecipientToken(recipient, time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/notifications/unread-count", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"unread":7`)
}
