package controllers

import (
	"net/http"
	"testing"

	"github.com/kendall-kelly/design-studio-api/models"
	"github.com/kendall-kelly/design-studio-api/tests/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateOrder(t *testing.T) {
	tests := []struct {
		name           string
		subject        func(app *testApp) string
		requestBody    any
		expectedStatus int
		expectedCode   string
	}{
		{
			name:           "client creates order",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]string{"design_type": "poster", "description": "Summer sale poster", "priority": "high"},
			expectedStatus: http.StatusCreated,
		},
		{
			name:           "designer cannot create orders",
			subject:        func(app *testApp) string { return app.designer.Auth0ID },
			requestBody:    map[string]string{"design_type": "poster", "description": "Summer sale poster"},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "CLIENTS_ONLY",
		},
		{
			name:           "missing description",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]string{"design_type": "poster"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "unknown priority",
			subject:        func(app *testApp) string { return app.client.Auth0ID },
			requestBody:    map[string]string{"design_type": "poster", "description": "x", "priority": "urgent"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_PRIORITY",
		},
		{
			name:           "profile missing",
			subject:        func(*testApp) string { return "auth0|nobody" },
			requestBody:    map[string]string{"design_type": "poster", "description": "x"},
			expectedStatus: http.StatusNotFound,
			expectedCode:   "USER_NOT_FOUND",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(t)
			w := app.do(t, http.MethodPost, "/api/v1/orders", tt.subject(app), tt.requestBody)

			if tt.expectedCode != "" {
				assertErrorCode(t, w, tt.expectedStatus, tt.expectedCode)
				return
			}
			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			var order models.DesignOrder
			decodeData(t, w, &order)
			assert.Equal(t, app.client.ID, order.ClientID)
			assert.Equal(t, app.client.Name, order.ClientName)
			assert.Equal(t, app.client.Phone, order.ClientPhone)
			assert.Equal(t, models.OrderStatusPending, order.Status)
			assert.Equal(t, models.PriorityHigh, order.Priority)
			assert.Nil(t, order.DesignerID)
		})
	}
}

func TestListOrders(t *testing.T) {
	app := newTestApp(t)
	otherOrder := testutil.CreateOrder(t, app.db, app.other)
	require.NoError(t, app.db.Model(&models.DesignOrder{}).Where("id = ?", otherOrder.ID).
		Update("designer_id", app.designer.ID).Error)

	tests := []struct {
		name     string
		subject  string
		query    string
		expected []uint
	}{
		{name: "client sees own orders", subject: app.client.Auth0ID, expected: []uint{app.order.ID}},
		{name: "designer sees assigned orders", subject: app.designer.Auth0ID, expected: []uint{otherOrder.ID}},
		{name: "admin sees every order", subject: app.admin.Auth0ID, expected: []uint{app.order.ID, otherOrder.ID}},
		{name: "status filter", subject: app.admin.Auth0ID, query: "?status=completed", expected: []uint{}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodGet, "/api/v1/orders"+tt.query, tt.subject, nil)
			require.Equal(t, http.StatusOK, w.Code, w.Body.String())

			var orders []models.DesignOrder
			decodeData(t, w, &orders)
			ids := make([]uint, 0, len(orders))
			for _, o := range orders {
				ids = append(ids, o.ID)
			}
			assert.ElementsMatch(t, tt.expected, ids)
			assert.Equal(t, len(tt.expected), *decodeEnvelope(t, w).Count)
		})
	}

	t.Run("invalid status filter", func(t *testing.T) {
		w := app.do(t, http.MethodGet, "/api/v1/orders?status=lost", app.admin.Auth0ID, nil)
		assertErrorCode(t, w, http.StatusBadRequest, "INVALID_STATUS")
	})
}

func TestGetOrder(t *testing.T) {
	app := newTestApp(t)

	tests := []struct {
		name           string
		path           string
		subject        string
		expectedStatus int
		expectedCode   string
	}{
		{name: "owner", path: orderPath(app.order.ID, ""), subject: app.client.Auth0ID, expectedStatus: http.StatusOK},
		{name: "designer", path: orderPath(app.order.ID, ""), subject: app.designer.Auth0ID, expectedStatus: http.StatusOK},
		{name: "admin", path: orderPath(app.order.ID, ""), subject: app.admin.Auth0ID, expectedStatus: http.StatusOK},
		{name: "other client", path: orderPath(app.order.ID, ""), subject: app.other.Auth0ID, expectedStatus: http.StatusForbidden, expectedCode: "NOT_ORDER_OWNER"},
		{name: "unknown order", path: orderPath(9999, ""), subject: app.admin.Auth0ID, expectedStatus: http.StatusNotFound, expectedCode: "ORDER_NOT_FOUND"},
		{name: "bad id", path: "/api/v1/orders/abc", subject: app.admin.Auth0ID, expectedStatus: http.StatusBadRequest, expectedCode: "INVALID_ORDER_ID"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodGet, tt.path, tt.subject, nil)
			if tt.expectedCode != "" {
				assertErrorCode(t, w, tt.expectedStatus, tt.expectedCode)
				return
			}
			require.Equal(t, tt.expectedStatus, w.Code)

			var order models.DesignOrder
			decodeData(t, w, &order)
			assert.Equal(t, app.order.ID, order.ID)
		})
	}
}

func TestAssignDesigner(t *testing.T) {
	t.Run("admin assigns the only designer", func(t *testing.T) {
		app := newTestApp(t)

		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/assign"), app.admin.Auth0ID, nil)
		require.Equal(t, http.StatusOK, w.Code, w.Body.String())

		var order models.DesignOrder
		decodeData(t, w, &order)
		require.NotNil(t, order.DesignerID)
		assert.Equal(t, app.designer.ID, *order.DesignerID)

		var system []models.ChatMessage
		require.NoError(t, app.db.Where("order_id = ? AND sender_role = ?", app.order.ID, models.SenderSystem).Find(&system).Error)
		require.Len(t, system, 1)
		assert.Contains(t, system[0].Content, app.designer.Name)
	})

	t.Run("client cannot assign", func(t *testing.T) {
		app := newTestApp(t)
		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/assign"), app.client.Auth0ID, nil)
		assertErrorCode(t, w, http.StatusForbidden, "STAFF_ONLY")
	})

	t.Run("second assignment is rejected", func(t *testing.T) {
		app := newTestApp(t)
		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/assign"), app.admin.Auth0ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		w = app.do(t, http.MethodPost, orderPath(app.order.ID, "/assign"), app.admin.Auth0ID, nil)
		assertErrorCode(t, w, http.StatusBadRequest, "ALREADY_ASSIGNED")
	})

	t.Run("no designer with capacity", func(t *testing.T) {
		app := newTestApp(t)
		for i := 0; i < 5; i++ {
			o := testutil.CreateOrder(t, app.db, app.other)
			require.NoError(t, app.db.Model(&models.DesignOrder{}).Where("id = ?", o.ID).
				Update("designer_id", app.designer.ID).Error)
		}

		w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/assign"), app.admin.Auth0ID, nil)
		assertErrorCode(t, w, http.StatusNotFound, "NO_DESIGNER_AVAILABLE")
	})
}

func TestUpdateOrderStatus(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodPost, orderPath(app.order.ID, "/assign"), app.admin.Auth0ID, nil)
	require.Equal(t, http.StatusOK, w.Code)

	tests := []struct {
		name           string
		subject        string
		body           any
		expectedStatus int
		expectedCode   string
		expected       models.OrderStatus
	}{
		{
			name:           "client cannot change status",
			subject:        app.client.Auth0ID,
			body:           map[string]string{"status": "in-progress"},
			expectedStatus: http.StatusForbidden,
			expectedCode:   "STAFF_ONLY",
		},
		{
			name:           "skipping a stage is rejected",
			subject:        app.designer.Auth0ID,
			body:           map[string]string{"status": "completed"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_TRANSITION",
		},
		{
			name:           "assigned designer starts work",
			subject:        app.designer.Auth0ID,
			body:           map[string]string{"status": "in-progress", "note": "starting sketches"},
			expectedStatus: http.StatusOK,
			expected:       models.OrderStatusInProgress,
		},
		{
			name:           "moving backwards is rejected",
			subject:        app.admin.Auth0ID,
			body:           map[string]string{"status": "pending"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_TRANSITION",
		},
		{
			name:           "unknown status",
			subject:        app.admin.Auth0ID,
			body:           map[string]string{"status": "shipped"},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "INVALID_STATUS",
		},
		{
			name:           "missing status",
			subject:        app.admin.Auth0ID,
			body:           map[string]string{},
			expectedStatus: http.StatusBadRequest,
			expectedCode:   "VALIDATION_ERROR",
		},
		{
			name:           "admin completes",
			subject:        app.admin.Auth0ID,
			body:           map[string]string{"status": "completed"},
			expectedStatus: http.StatusOK,
			expected:       models.OrderStatusCompleted,
		},
	}

	// Cases run in order; each builds on the previous state.
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := app.do(t, http.MethodPatch, orderPath(app.order.ID, "/status"), tt.subject, tt.body)
			if tt.expectedCode != "" {
				assertErrorCode(t, w, tt.expectedStatus, tt.expectedCode)
				return
			}
			require.Equal(t, tt.expectedStatus, w.Code, w.Body.String())

			var order models.DesignOrder
			decodeData(t, w, &order)
			assert.Equal(t, tt.expected, order.Status)
		})
	}

	t.Run("stages record every transition", func(t *testing.T) {
		w := app.do(t, http.MethodGet, orderPath(app.order.ID, "/stages"), app.client.Auth0ID, nil)
		require.Equal(t, http.StatusOK, w.Code)

		var stages []models.OrderStage
		decodeData(t, w, &stages)
		var transitions []models.OrderStatus
		for _, s := range stages {
			if s.FromStatus != s.ToStatus {
				transitions = append(transitions, s.ToStatus)
			}
		}
		assert.Equal(t, []models.OrderStatus{models.OrderStatusInProgress, models.OrderStatusCompleted}, transitions)
	})

	t.Run("status changes are posted to the chat", func(t *testing.T) {
		messages, err := app.messages.ReloadMessages(t.Context(), app.order.ID)
		require.NoError(t, err)

		var contents []string
		for _, m := range messages {
			if m.MessageType == models.MessageTypeSystem {
				contents = append(contents, m.Content)
			}
		}
		assert.Contains(t, contents, "Order status changed to in-progress")
		assert.Contains(t, contents, "Order status changed to completed")
	})
}

func TestListOrderStagesForbidden(t *testing.T) {
	app := newTestApp(t)
	w := app.do(t, http.MethodGet, orderPath(app.order.ID, "/stages"), app.other.Auth0ID, nil)
	assertErrorCode(t, w, http.StatusForbidden, "NOT_ORDER_OWNER")
}
